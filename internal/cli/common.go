package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/anze/pirun/internal/config"
	"github.com/anze/pirun/internal/image"
	"github.com/anze/pirun/internal/system"
	"github.com/anze/pirun/internal/ui"
)

// GlobalContext holds shared resources for all commands
type GlobalContext struct {
	Config    *config.Config
	Executor  *system.Executor
	Logger    *ui.Logger
	Loops     *image.LoopManager
	Mounts    *image.MountManager
	Mounter   *image.Mounter
	Chroot    *image.ChrootRunner
	Discovery *image.Discovery
}

// NewGlobalContext creates a new global context
func NewGlobalContext(cfg *config.Config, verbose, quiet, noColor, debug bool) *GlobalContext {
	executor := system.NewExecutor(debug)
	logger := ui.NewLogger(verbose, quiet, noColor)

	retry := image.RetryPolicy{
		Attempts: cfg.UnmountAttempts,
		Backoff:  cfg.UnmountBackoffDuration(),
	}
	loops := image.NewLoopManager(executor)
	mounts := image.NewMountManager(executor, retry)

	return &GlobalContext{
		Config:    cfg,
		Executor:  executor,
		Logger:    logger,
		Loops:     loops,
		Mounts:    mounts,
		Mounter:   image.NewMounter(loops, mounts, cfg.BootPath),
		Chroot:    image.NewChrootRunner(executor, logger.Warning),
		Discovery: image.NewDiscovery(executor),
	}
}

// CheckDependencies checks for required system commands
func (ctx *GlobalContext) CheckDependencies(extra ...string) error {
	deps := append([]string{
		"losetup",
		"mount",
		"umount",
		"chroot",
	}, extra...)
	return ctx.Executor.CheckDependencies(deps)
}

// ParseBindSpecs parses repeated host:image[:ro] flag values into mount
// specs, validating each before any resource is touched.
func ParseBindSpecs(raw []string) ([]image.MountSpec, error) {
	specs := make([]image.MountSpec, 0, len(raw))
	for _, entry := range raw {
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("%w: bind spec %q, want host:image[:ro]", image.ErrValidation, entry)
		}
		spec := image.MountSpec{HostPath: parts[0], ImagePath: parts[1]}
		if len(parts) == 3 {
			if parts[2] != "ro" {
				return nil, fmt.Errorf("%w: bind option %q, only \"ro\" is supported", image.ErrValidation, parts[2])
			}
			spec.ReadOnly = true
		}
		if _, err := spec.Validate(); err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// exitCodeError carries a chrooted command's exit code out through the
// cobra error path so main can propagate it as the process exit status.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("command exited with code %d", e.code)
}

// ExitCode extracts a propagated child exit code from err, if present
func ExitCode(err error) (int, bool) {
	var ec exitCodeError
	if errors.As(err, &ec) {
		return ec.code, true
	}
	return 0, false
}
