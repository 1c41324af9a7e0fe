package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/anze/pirun/internal/system"
	"github.com/anze/pirun/internal/ui"
)

// MountCommand mounts an image for interactive inspection
type MountCommand struct {
	ctx      *GlobalContext
	binds    []string
	readOnly bool
}

// NewMountCommand creates the mount command
func NewMountCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &MountCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "mount <image> [mount-point]",
		Short: "Mount an image for inspection",
		Long: `Mount an image's root and boot filesystems and hold them mounted
until Enter is pressed, then tear everything down. The session never
outlives the process; nothing stays mounted afterwards.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: cmd.Run,
	}

	cobraCmd.Flags().StringArrayVarP(&cmd.binds, "bind", "b", nil, "Bind mount host:image[:ro] into the image (repeatable)")
	cobraCmd.Flags().BoolVarP(&cmd.readOnly, "readonly", "r", false, "Mount image filesystems read-only")

	return cobraCmd
}

// Run executes the mount command
func (c *MountCommand) Run(cmd *cobra.Command, args []string) error {
	if err := system.RequireRoot(); err != nil {
		return err
	}
	if err := c.ctx.CheckDependencies(); err != nil {
		return err
	}

	imagePath, err := system.ValidateImagePath(args[0])
	if err != nil {
		return err
	}

	specs, err := ParseBindSpecs(c.binds)
	if err != nil {
		return err
	}

	rootDir := ""
	ephemeral := false
	if len(args) > 1 {
		if rootDir, err = filepath.Abs(args[1]); err != nil {
			return fmt.Errorf("invalid mount point: %w", err)
		}
	} else {
		if rootDir, err = os.MkdirTemp("", "pirun-root-*"); err != nil {
			return fmt.Errorf("failed to create mount point: %w", err)
		}
		ephemeral = true
	}

	session, err := c.ctx.Mounter.MountImage(imagePath, rootDir, specs, c.readOnly)
	if err != nil {
		if ephemeral {
			_ = os.Remove(rootDir)
		}
		return err
	}

	c.ctx.Logger.Success("Image mounted at: %s", session.Root)
	ui.PromptString("Press Enter to unmount")

	if err := session.Close(); err != nil {
		c.ctx.Logger.Warning("Teardown errors occurred: %v", err)
	}
	if ephemeral {
		if err := os.Remove(rootDir); err != nil {
			c.ctx.Logger.Warning("Failed to remove %s: %v", rootDir, err)
		}
	}

	c.ctx.Logger.Success("Image unmounted")
	return nil
}
