package image

import "errors"

// Error kinds, wrapped with fmt.Errorf("%w: ...") and matched with
// errors.Is. A non-zero exit code of a command run inside an image is
// not an error of any of these kinds; it is returned as data.
var (
	// ErrNotFound means the image carries no partitions at all.
	ErrNotFound = errors.New("no partitions found")
	// ErrLayout means the partition table cannot be read or lacks the
	// boot+root layout an operation requires.
	ErrLayout = errors.New("unsupported partition layout")
	// ErrAttach means loop attach or detach failed, or partition
	// scanning exposed an unexpected device topology.
	ErrAttach = errors.New("loop device attach failed")
	// ErrMount means a mount, bind mount, or unmount failed.
	ErrMount = errors.New("mount failed")
	// ErrScaffold means a mount point placeholder could not be created
	// or removed.
	ErrScaffold = errors.New("mount point scaffold failed")
	// ErrValidation means a mount spec is invalid: non-absolute image
	// path or nonexistent host path.
	ErrValidation = errors.New("invalid mount spec")
	// ErrExec means the command could not be launched inside the image
	// at all, as opposed to running and exiting non-zero.
	ErrExec = errors.New("command launch failed")
)
