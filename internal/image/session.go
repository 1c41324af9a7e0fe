package image

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/anze/pirun/internal/system"
)

// MountSpec is one planned host-to-image bind mount. ImagePath is
// absolute and rooted at the mounted image, not the host.
type MountSpec struct {
	HostPath  string
	ImagePath string
	ReadOnly  bool
}

// Validate checks the spec before any resource is touched and reports
// whether the host path is a regular file (which decides the placeholder
// kind the scaffold creates). The host path is not re-checked at mount
// time; a path vanishing in between is an accepted race.
func (s MountSpec) Validate() (wantFile bool, err error) {
	if !path.IsAbs(s.ImagePath) {
		return false, fmt.Errorf("%w: image path %q is not absolute", ErrValidation, s.ImagePath)
	}
	info, err := os.Stat(s.HostPath)
	if err != nil {
		return false, fmt.Errorf("%w: host path %s: %v", ErrValidation, s.HostPath, err)
	}
	return !info.IsDir(), nil
}

// Session is a live mounted image tree. Root is valid until Close.
type Session struct {
	Root string

	stack *system.Stack
}

// Close tears the session down in reverse acquisition order. Every
// resource gets a release attempt; the first release error, if any, is
// returned. Safe to call more than once.
func (s *Session) Close() error {
	return s.stack.Release()
}

// Mounter composes loop attachment, partition mounts, and bind mounts
// into scoped sessions.
type Mounter struct {
	loops    *LoopManager
	mounts   *MountManager
	fs       afero.Fs
	bootPath string
}

// NewMounter creates a new mounter. bootPath is where partition 1 is
// mounted inside the root tree, conventionally /boot.
func NewMounter(loops *LoopManager, mounts *MountManager, bootPath string) *Mounter {
	return &Mounter{
		loops:    loops,
		mounts:   mounts,
		fs:       afero.NewOsFs(),
		bootPath: bootPath,
	}
}

// MountImage attaches the image and builds the mount tree under rootDir:
// partition 2 at rootDir, partition 1 at rootDir's boot path, then each
// bind mount in list order (so a bind mount may target a path inside
// /boot). Every acquisition is pushed onto a resource stack; on any
// acquisition failure everything already acquired is released in reverse
// order before the error is returned, and the original failure stays the
// primary error.
func (m *Mounter) MountImage(imagePath, rootDir string, specs []MountSpec, readOnly bool) (*Session, error) {
	// validation happens before any resource is touched
	wantFile := make([]bool, len(specs))
	for i, spec := range specs {
		var err error
		if wantFile[i], err = spec.Validate(); err != nil {
			return nil, err
		}
	}

	parts, err := ReadTable(imagePath)
	if err != nil {
		return nil, err
	}
	if err := RequireRootBoot(parts); err != nil {
		return nil, err
	}
	numbers := make([]int, len(parts))
	for i, p := range parts {
		numbers[i] = p.Number
	}

	stack := system.NewStack()
	fail := func(err error) (*Session, error) {
		if relErr := stack.Release(); relErr != nil {
			err = fmt.Errorf("%w (additionally while unwinding: %v)", err, relErr)
		}
		return nil, err
	}

	dev, err := m.loops.Attach(imagePath, readOnly, numbers)
	if err != nil {
		return fail(err)
	}
	stack.Push("loop device "+dev.Device, dev.Detach)

	if err := m.mounts.Mount(dev.Partitions[2], rootDir, readOnly); err != nil {
		return fail(err)
	}
	stack.Push("root filesystem", func() error {
		return m.mounts.Unmount(rootDir)
	})

	bootDir := filepath.Join(rootDir, m.bootPath)
	if err := m.mounts.Mount(dev.Partitions[1], bootDir, readOnly); err != nil {
		return fail(err)
	}
	stack.Push("boot filesystem", func() error {
		return m.mounts.Unmount(bootDir)
	})

	for i, spec := range specs {
		target := filepath.Join(rootDir, spec.ImagePath)
		record, err := Prepare(m.fs, target, wantFile[i])
		if err != nil {
			return fail(err)
		}
		stack.Push("scaffold "+target, record.Remove)

		if err := m.mounts.BindMount(spec.HostPath, target, spec.ReadOnly); err != nil {
			return fail(err)
		}
		stack.Push("bind mount "+target, func() error {
			return m.mounts.Unmount(target)
		})
	}

	return &Session{Root: rootDir, stack: stack}, nil
}
