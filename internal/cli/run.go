package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anze/pirun/internal/image"
	"github.com/anze/pirun/internal/system"
)

// RunCommand mounts an image and executes a command inside it
type RunCommand struct {
	ctx      *GlobalContext
	rootDir  string
	binds    []string
	user     string
	readOnly bool
}

// NewRunCommand creates the run command
func NewRunCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &RunCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "run <image> [-- command [args...]]",
		Short: "Run a command inside an OS image",
		Long: `Attach an image to a loop device, mount its root and boot filesystems
plus any requested bind mounts, and execute a command with the mounted
tree as its root. Without a command an interactive shell inside the
image is started. The command's exit code becomes pirun's exit code.`,
		Args: cobra.MinimumNArgs(1),
		RunE: cmd.Run,
	}

	cobraCmd.Flags().StringVar(&cmd.rootDir, "root", "", "Mount point for the image root (default: ephemeral temp directory)")
	cobraCmd.Flags().StringArrayVarP(&cmd.binds, "bind", "b", nil, "Bind mount host:image[:ro] into the image (repeatable)")
	cobraCmd.Flags().StringVarP(&cmd.user, "user", "u", "", "Switch to this user's login shell inside the image")
	cobraCmd.Flags().BoolVarP(&cmd.readOnly, "readonly", "r", false, "Mount image filesystems read-only")

	return cobraCmd
}

// Run executes the run command
func (c *RunCommand) Run(cmd *cobra.Command, args []string) error {
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
	command := args[1:]

	user := c.user
	if user == "" {
		user = c.ctx.Config.DefaultUser
	}

	specs, err := ParseBindSpecs(c.binds)
	if err != nil {
		return err
	}

	// refuse to stack a second session on an already-attached image
	attached, err := c.ctx.Discovery.LoopDevicesFor(imagePath)
	if err != nil {
		c.ctx.Logger.Debug("loop device discovery failed: %v", err)
	} else if len(attached) > 0 {
		return fmt.Errorf("image already attached at %s", strings.Join(attached, ", "))
	}

	rootDir := c.rootDir
	ephemeral := false
	if rootDir == "" {
		rootDir, err = os.MkdirTemp("", "pirun-root-*")
		if err != nil {
			return fmt.Errorf("failed to create root mount point: %w", err)
		}
		ephemeral = true
	} else {
		if rootDir, err = filepath.Abs(rootDir); err != nil {
			return fmt.Errorf("invalid root directory: %w", err)
		}
	}

	return c.execute(imagePath, rootDir, ephemeral, user, specs, command)
}

func (c *RunCommand) execute(imagePath, rootDir string, ephemeral bool, user string, specs []image.MountSpec, command []string) error {
	c.ctx.Logger.Info("Mounting %s at %s...", imagePath, rootDir)
	session, err := c.ctx.Mounter.MountImage(imagePath, rootDir, specs, c.readOnly)
	if err != nil {
		if ephemeral {
			_ = os.Remove(rootDir)
		}
		return err
	}

	code, runErr := c.ctx.Chroot.RunInRoot(session.Root, user, command)

	// teardown always runs; its errors never change a completed
	// command's outcome
	if err := session.Close(); err != nil {
		c.ctx.Logger.Warning("Teardown errors occurred: %v", err)
	}
	if ephemeral {
		if err := os.Remove(rootDir); err != nil {
			c.ctx.Logger.Warning("Failed to remove %s: %v", rootDir, err)
		}
	}

	if runErr != nil {
		return runErr
	}
	if code != 0 {
		return exitCodeError{code: code}
	}
	c.ctx.Logger.Debug("Command completed with exit code 0")
	return nil
}
