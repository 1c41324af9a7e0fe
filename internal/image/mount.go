package image

import (
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/anze/pirun/internal/system"
)

// RetryPolicy bounds unmount retries. Unmount can transiently fail while
// the kernel is still tearing down loop partition sub-devices or while a
// just-exited process holds the mount busy.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// MountManager handles filesystem mount operations
type MountManager struct {
	runner system.Runner
	retry  RetryPolicy
}

// NewMountManager creates a new mount manager
func NewMountManager(runner system.Runner, retry RetryPolicy) *MountManager {
	if retry.Attempts < 1 {
		retry.Attempts = 1
	}
	return &MountManager{
		runner: runner,
		retry:  retry,
	}
}

// Mount mounts a block device to a mount point
func (m *MountManager) Mount(device, mountPoint string, readOnly bool) error {
	// Ensure mount point exists
	if err := os.MkdirAll(mountPoint, 0755); err != nil {
		return fmt.Errorf("%w: create mount point %s: %v", ErrMount, mountPoint, err)
	}

	args := []string{}
	if readOnly {
		args = append(args, "-o", "ro")
	}
	args = append(args, device, mountPoint)

	if err := m.runner.Run("mount", args...); err != nil {
		return fmt.Errorf("%w: %s on %s: %v", ErrMount, device, mountPoint, err)
	}
	return nil
}

// BindMount makes hostPath visible at target without copying data. The
// target must already exist and match the source's kind (file or
// directory); see Prepare.
func (m *MountManager) BindMount(hostPath, target string, readOnly bool) error {
	if err := m.runner.Run("mount", "--bind", hostPath, target); err != nil {
		return fmt.Errorf("%w: bind %s on %s: %v", ErrMount, hostPath, target, err)
	}
	if readOnly {
		// a bind mount ignores ro on the initial mount; it takes a remount
		if err := m.runner.Run("mount", "-o", "remount,ro,bind", target); err != nil {
			_ = m.runner.Run("umount", target)
			return fmt.Errorf("%w: read-only remount of %s: %v", ErrMount, target, err)
		}
	}
	return nil
}

// Unmount unmounts a mount point, retrying within the configured budget
func (m *MountManager) Unmount(mountPoint string) error {
	policy := backoff.WithMaxRetries(
		backoff.NewConstantBackOff(m.retry.Backoff),
		uint64(m.retry.Attempts-1),
	)
	err := backoff.Retry(func() error {
		return m.runner.Run("umount", mountPoint)
	}, policy)
	if err != nil {
		return fmt.Errorf("%w: unmount %s after %d attempts: %v",
			ErrMount, mountPoint, m.retry.Attempts, err)
	}
	return nil
}

// GrowFilesystem checks and then grows the ext filesystem on device to
// fill its partition. Used against a partition's loop sub-device after
// the partition itself has been enlarged; the FAT boot partition is
// never resized.
func (m *MountManager) GrowFilesystem(device string) error {
	if err := m.runner.Run("e2fsck", "-f", "-p", device); err != nil {
		return fmt.Errorf("%w: fsck %s: %v", ErrMount, device, err)
	}
	if err := m.runner.Run("resize2fs", device); err != nil {
		return fmt.Errorf("%w: resize2fs %s: %v", ErrMount, device, err)
	}
	return nil
}
