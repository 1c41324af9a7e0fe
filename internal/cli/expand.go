package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/anze/pirun/internal/image"
	"github.com/anze/pirun/internal/system"
	"github.com/anze/pirun/internal/ui"
)

// ExpandCommand grows an image file and its last partition's filesystem
type ExpandCommand struct {
	ctx  *GlobalContext
	size string
	yes  bool
}

// NewExpandCommand creates the expand command
func NewExpandCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &ExpandCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "expand <image> [new-size]",
		Short: "Expand an image and its root filesystem",
		Long: `Grow the image file to a new size, extend its last partition to the
new end of the image, and resize the ext filesystem inside it. The image
must not be attached or mounted while expanding.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: cmd.Run,
	}

	cobraCmd.Flags().StringVarP(&cmd.size, "size", "s", "", "New image size (e.g., 8G, 500M)")
	cobraCmd.Flags().BoolVarP(&cmd.yes, "yes", "y", false, "Skip confirmation prompt")

	return cobraCmd
}

// Run executes the expand command
func (c *ExpandCommand) Run(cmd *cobra.Command, args []string) error {
	if err := system.RequireRoot(); err != nil {
		return err
	}
	if err := c.ctx.CheckDependencies("parted", "e2fsck", "resize2fs"); err != nil {
		return err
	}

	imagePath, err := system.ValidateImagePath(args[0])
	if err != nil {
		return err
	}

	newSize := c.size
	if len(args) > 1 {
		newSize = args[1]
	}
	if newSize == "" {
		newSize = ui.PromptString("New image size (e.g., 8G, 500M)")
	}
	newSizeBytes, err := units.RAMInBytes(newSize)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", newSize, err)
	}

	// the partition table is rewritten in place, so nothing may hold
	// the image while we work on it
	attached, err := c.ctx.Discovery.LoopDevicesFor(imagePath)
	if err != nil {
		c.ctx.Logger.Debug("loop device discovery failed: %v", err)
	} else if len(attached) > 0 {
		return fmt.Errorf("image is attached at %s, detach it first", strings.Join(attached, ", "))
	}

	return c.execute(imagePath, uint64(newSizeBytes))
}

func (c *ExpandCommand) execute(imagePath string, newSizeBytes uint64) error {
	parts, err := image.ReadTable(imagePath)
	if err != nil {
		return err
	}
	if err := image.RequireRootBoot(parts); err != nil {
		return err
	}
	// partitions are ordered by start, so the last one gets the space
	last := parts[len(parts)-1]

	// Open the image up front so the size check and the truncate act on
	// the same file even if the path is swapped underneath us.
	imageFile, err := os.OpenFile(imagePath, os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	defer imageFile.Close()

	info, err := imageFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat image: %w", err)
	}
	currentSize := uint64(info.Size())

	if newSizeBytes <= currentSize {
		return fmt.Errorf("new size (%s) must be larger than current size (%s)",
			units.HumanSize(float64(newSizeBytes)), units.HumanSize(float64(currentSize)))
	}

	expansion := newSizeBytes - currentSize
	available, err := system.GetAvailableSpace(imagePath)
	if err != nil {
		c.ctx.Logger.Warning("Failed to check available disk space: %v", err)
	} else if expansion > available {
		return fmt.Errorf("insufficient disk space: need %s, available %s",
			units.HumanSize(float64(expansion)), units.HumanSize(float64(available)))
	}

	c.ctx.Logger.Info("Image: %s", imagePath)
	c.ctx.Logger.Info("Partition %d (%s) ends at %s", last.Number, last.Type, units.HumanSize(float64(last.End())))
	c.ctx.Logger.Info("Current size: %s", units.HumanSize(float64(currentSize)))
	c.ctx.Logger.Info("New size:     %s", units.HumanSize(float64(newSizeBytes)))

	if !c.yes {
		if !ui.PromptConfirm("Proceed with expand?") {
			return fmt.Errorf("expand cancelled by user")
		}
	}

	// Step 1: grow the image file
	c.ctx.Logger.Info("Expanding image file...")
	if err := imageFile.Truncate(int64(newSizeBytes)); err != nil {
		return fmt.Errorf("failed to expand image file: %w", err)
	}
	if err := imageFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync image file: %w", err)
	}

	// Step 2: extend the last partition to the new end of the image
	c.ctx.Logger.Info("Extending partition %d...", last.Number)
	if err := c.ctx.Executor.Run("parted", "-s", imagePath,
		"resizepart", strconv.Itoa(last.Number), "100%"); err != nil {
		return fmt.Errorf("failed to extend partition: %w\n"+
			"The image file has been expanded but the partition has not.\n"+
			"You can retry: sudo pirun expand %s %s",
			err, imagePath, units.HumanSize(float64(newSizeBytes)))
	}

	// Step 3: attach standalone and grow the filesystem on the
	// partition's device node
	numbers := make([]int, len(parts))
	for i, p := range parts {
		numbers[i] = p.Number
	}
	dev, err := c.ctx.Loops.Attach(imagePath, false, numbers)
	if err != nil {
		return err
	}

	stack := system.NewStack()
	stack.Push("loop device "+dev.Device, dev.Detach)

	c.ctx.Logger.Info("Resizing filesystem on %s...", dev.Partitions[last.Number])
	growErr := c.ctx.Mounts.GrowFilesystem(dev.Partitions[last.Number])

	if err := stack.Release(); err != nil {
		c.ctx.Logger.Warning("Teardown errors occurred: %v", err)
	}
	if growErr != nil {
		return fmt.Errorf("failed to resize filesystem: %w\n"+
			"The partition has been extended but the filesystem has not.\n"+
			"You can retry the filesystem step manually with resize2fs", growErr)
	}

	c.ctx.Logger.Success("Image expanded to %s", units.HumanSize(float64(newSizeBytes)))
	return nil
}
