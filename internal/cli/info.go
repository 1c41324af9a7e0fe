package cli

import (
	"strconv"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/anze/pirun/internal/image"
	"github.com/anze/pirun/internal/system"
	"github.com/anze/pirun/internal/ui"
)

// InfoCommand prints an image's partition table
type InfoCommand struct {
	ctx     *GlobalContext
	jsonOut bool
}

// NewInfoCommand creates the info command
func NewInfoCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &InfoCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "info <image>",
		Short: "Show an image's partition layout",
		Args:  cobra.ExactArgs(1),
		RunE:  cmd.Run,
	}

	cobraCmd.Flags().BoolVar(&cmd.jsonOut, "json", false, "Output as JSON")

	return cobraCmd
}

// Run executes the info command
func (c *InfoCommand) Run(cmd *cobra.Command, args []string) error {
	imagePath, err := system.ValidateImagePath(args[0])
	if err != nil {
		return err
	}

	parts, err := image.ReadTable(imagePath)
	if err != nil {
		return err
	}

	if c.jsonOut {
		return ui.PrintJSON(parts)
	}

	table := ui.NewTable("NUM", "TYPE", "START", "SIZE", "SECTORS")
	for _, p := range parts {
		table.AddRow(
			strconv.Itoa(p.Number),
			p.Type,
			units.HumanSize(float64(p.Start())),
			units.HumanSize(float64(p.Size())),
			strconv.FormatUint(p.SizeSectors, 10),
		)
	}
	table.Print()
	return nil
}
