package image

import (
	"fmt"
	"os"
	"strings"

	"github.com/anze/pirun/internal/system"
)

// LoopManager attaches image files to loop devices
type LoopManager struct {
	runner system.Runner

	// device-node probe, replaceable in tests
	exists func(path string) bool
}

// NewLoopManager creates a new loop manager
func NewLoopManager(runner system.Runner) *LoopManager {
	return &LoopManager{
		runner: runner,
		exists: func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		},
	}
}

// LoopDevice is one loop attachment of an image file, exposing the
// kernel-created per-partition device nodes. The partition paths are
// only valid until Detach; callers must not retain them.
type LoopDevice struct {
	Device     string
	Partitions map[int]string

	manager *LoopManager
}

// Attach attaches the image as a loop device with partition scanning
// enabled and verifies the kernel exposed a sub-device for every
// partition number in numbers and nothing beyond them. On any failure
// after the attach itself, the device is detached before returning.
func (m *LoopManager) Attach(path string, readOnly bool, numbers []int) (*LoopDevice, error) {
	args := []string{"--find", "--show", "--partscan"}
	if readOnly {
		args = append(args, "--read-only")
	}
	args = append(args, path)

	output, err := m.runner.RunOutput("losetup", args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAttach, err)
	}
	device := strings.TrimSpace(output)
	if device == "" {
		return nil, fmt.Errorf("%w: losetup reported no device", ErrAttach)
	}

	partitions := make(map[int]string, len(numbers))
	maxNumber := 0
	for _, n := range numbers {
		node := fmt.Sprintf("%sp%d", device, n)
		if !m.exists(node) {
			_ = m.Detach(device)
			return nil, fmt.Errorf("%w: partition device %s missing after partition scan", ErrAttach, node)
		}
		partitions[n] = node
		if n > maxNumber {
			maxNumber = n
		}
	}

	// a sub-device past the highest table entry means the kernel and
	// the table disagree about the layout
	if stray := fmt.Sprintf("%sp%d", device, maxNumber+1); m.exists(stray) {
		_ = m.Detach(device)
		return nil, fmt.Errorf("%w: unexpected partition device %s", ErrAttach, stray)
	}

	return &LoopDevice{Device: device, Partitions: partitions, manager: m}, nil
}

// Detach detaches a loop device
func (m *LoopManager) Detach(device string) error {
	if err := m.runner.Run("losetup", "-d", device); err != nil {
		return fmt.Errorf("%w: detach %s: %v", ErrAttach, device, err)
	}
	return nil
}

// Detach releases the attachment; the partition mapping is invalid
// afterwards.
func (d *LoopDevice) Detach() error {
	return d.manager.Detach(d.Device)
}
