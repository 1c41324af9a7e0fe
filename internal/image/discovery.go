package image

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/anze/pirun/internal/system"
)

// Discovery reports which loop devices and mounts currently reference an
// image file, by querying losetup and /proc/mounts.
type Discovery struct {
	runner     system.Runner
	mountsPath string
}

// NewDiscovery creates a new discovery instance
func NewDiscovery(runner system.Runner) *Discovery {
	return &Discovery{
		runner:     runner,
		mountsPath: "/proc/mounts",
	}
}

// losetupDevice represents a loop device from losetup -l -J output
type losetupDevice struct {
	Name     string `json:"name"`
	BackFile string `json:"back-file"`
}

type losetupOutput struct {
	LoopDevices []losetupDevice `json:"loopdevices"`
}

// LoopDevicesFor returns the loop devices backed by the image at path
func (d *Discovery) LoopDevicesFor(path string) ([]string, error) {
	output, err := d.runner.RunOutput("losetup", "-l", "-J")
	if err != nil {
		return nil, fmt.Errorf("failed to list loop devices: %w", err)
	}
	if strings.TrimSpace(output) == "" {
		return nil, nil
	}

	var parsed losetupOutput
	if err := json.Unmarshal([]byte(output), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse losetup output: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	var devices []string
	for _, dev := range parsed.LoopDevices {
		if dev.BackFile == "" {
			continue
		}
		backAbs, _ := filepath.Abs(dev.BackFile)
		if backAbs == abs {
			devices = append(devices, dev.Name)
		}
	}
	return devices, nil
}

// MountsFor returns mount points whose source is one of the given loop
// devices or their partition sub-devices.
func (d *Discovery) MountsFor(devices []string) ([]string, error) {
	f, err := os.Open(d.mountsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read mounts: %w", err)
	}
	defer f.Close()

	var mounts []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		for _, dev := range devices {
			if fields[0] == dev || strings.HasPrefix(fields[0], dev+"p") {
				mounts = append(mounts, fields[1])
			}
		}
	}
	return mounts, scanner.Err()
}
