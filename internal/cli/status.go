package cli

import (
	"github.com/spf13/cobra"

	"github.com/anze/pirun/internal/system"
	"github.com/anze/pirun/internal/ui"
)

// StatusCommand reports resources currently referencing an image
type StatusCommand struct {
	ctx *GlobalContext
}

// NewStatusCommand creates the status command
func NewStatusCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &StatusCommand{ctx: ctx}

	return &cobra.Command{
		Use:   "status <image>",
		Short: "Show loop devices and mounts referencing an image",
		Args:  cobra.ExactArgs(1),
		RunE:  cmd.Run,
	}
}

// Run executes the status command
func (c *StatusCommand) Run(cmd *cobra.Command, args []string) error {
	imagePath, err := system.ValidateImagePath(args[0])
	if err != nil {
		return err
	}

	devices, err := c.ctx.Discovery.LoopDevicesFor(imagePath)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		c.ctx.Logger.Info("No loop devices reference %s", imagePath)
		return nil
	}

	mounts, err := c.ctx.Discovery.MountsFor(devices)
	if err != nil {
		return err
	}

	table := ui.NewTable("RESOURCE", "PATH")
	for _, dev := range devices {
		table.AddRow("loop device", dev)
	}
	for _, mp := range mounts {
		table.AddRow("mount", mp)
	}
	table.Print()
	return nil
}
