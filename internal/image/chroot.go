package image

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/anze/pirun/internal/system"
)

const preloadFile = "etc/ld.so.preload"

// ChrootRunner executes commands inside a mounted image tree.
type ChrootRunner struct {
	runner system.Runner
	warn   func(format string, args ...interface{})
}

// NewChrootRunner creates a new chroot runner. warn receives non-fatal
// teardown problems, such as a failure to restore ld.so.preload after a
// command already completed.
func NewChrootRunner(runner system.Runner, warn func(format string, args ...interface{})) *ChrootRunner {
	return &ChrootRunner{
		runner: runner,
		warn:   warn,
	}
}

// disablePreload moves rootDir's ld.so.preload aside and returns a
// restore action. The file names host-architecture shared objects that
// abort every process started inside a foreign root, including the one
// about to run. The file is renamed, never deleted, so its content
// survives untouched.
func disablePreload(rootDir string) (func() error, error) {
	src := filepath.Join(rootDir, preloadFile)
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return func() error { return nil }, nil
		}
		return nil, err
	}
	moved := src + ".disabled"
	if err := os.Rename(src, moved); err != nil {
		return nil, err
	}
	return func() error {
		return os.Rename(moved, src)
	}, nil
}

// RunInRoot runs argv with rootDir as its filesystem root and returns
// the command's exit code. With a user, the command is wrapped in an
// interactive login shell for that user; with neither user nor command,
// whatever shell the image's environment defaults to is started.
// ld.so.preload is disabled for the duration and always restored before
// returning, whether the command succeeded, failed, or never launched.
func (c *ChrootRunner) RunInRoot(rootDir, user string, argv []string) (int, error) {
	stack := system.NewStack()
	restore, err := disablePreload(rootDir)
	if err != nil {
		return -1, fmt.Errorf("%w: ld.so.preload: %v", ErrExec, err)
	}
	stack.Push("ld.so.preload", restore)

	args := []string{rootDir}
	switch {
	case user != "" && len(argv) > 0:
		args = append(args, "/bin/su", "-", user, "-c", strings.Join(argv, " "))
	case user != "":
		args = append(args, "/bin/su", "-", user)
	default:
		args = append(args, argv...)
	}

	code, runErr := c.runner.RunInteractive("chroot", args...)

	// the restore must never clobber the command's own outcome
	if relErr := stack.Release(); relErr != nil {
		c.warn("Failed to restore %s under %s: %v", preloadFile, rootDir, relErr)
	}

	if runErr != nil {
		return -1, fmt.Errorf("%w: %v", ErrExec, runErr)
	}
	return code, nil
}
