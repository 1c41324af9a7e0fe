package image

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMounter(runner *fakeRunner) *Mounter {
	loops := NewLoopManager(runner)
	loops.exists = func(path string) bool {
		return strings.HasSuffix(path, "p1") || strings.HasSuffix(path, "p2")
	}
	mounts := NewMountManager(runner, testRetry(1))
	return NewMounter(loops, mounts, "/boot")
}

func TestMountImageAcquisitionAndTeardownOrder(t *testing.T) {
	imagePath := createTestImage(t)
	rootDir := t.TempDir()
	hostDir := t.TempDir()

	runner := &fakeRunner{
		onOutput: func(name string, args []string) (string, error) {
			return "/dev/loop9\n", nil
		},
	}
	m := newTestMounter(runner)

	specs := []MountSpec{{HostPath: hostDir, ImagePath: "/mnt/data"}}
	session, err := m.MountImage(imagePath, rootDir, specs, false)
	require.NoError(t, err)
	assert.Equal(t, rootDir, session.Root)

	bindTarget := filepath.Join(rootDir, "mnt", "data")
	assert.DirExists(t, bindTarget, "scaffold must have created the bind target")

	assert.Equal(t, []string{
		"losetup --find --show --partscan " + imagePath,
		"mount /dev/loop9p2 " + rootDir,
		"mount /dev/loop9p1 " + filepath.Join(rootDir, "boot"),
		"mount --bind " + hostDir + " " + bindTarget,
	}, runner.commandLines())

	require.NoError(t, session.Close())

	// teardown mirrors acquisition exactly
	assert.Equal(t, []string{
		"umount " + bindTarget,
		"umount " + filepath.Join(rootDir, "boot"),
		"umount " + rootDir,
		"losetup -d /dev/loop9",
	}, runner.commandLines()[4:])

	assert.NoDirExists(t, filepath.Join(rootDir, "mnt"), "scaffold must leave no trace")
}

func TestMountImageReadOnly(t *testing.T) {
	imagePath := createTestImage(t)
	rootDir := t.TempDir()

	runner := &fakeRunner{
		onOutput: func(name string, args []string) (string, error) {
			return "/dev/loop9\n", nil
		},
	}
	m := newTestMounter(runner)

	session, err := m.MountImage(imagePath, rootDir, nil, true)
	require.NoError(t, err)
	defer session.Close()

	lines := runner.commandLines()
	assert.Contains(t, lines[0], "--read-only")
	assert.Equal(t, "mount -o ro /dev/loop9p2 "+rootDir, lines[1])
}

func TestMountImageUnwindsOnBootMountFailure(t *testing.T) {
	imagePath := createTestImage(t)
	rootDir := t.TempDir()

	runner := &fakeRunner{
		onOutput: func(name string, args []string) (string, error) {
			return "/dev/loop9\n", nil
		},
	}
	runner.onRun = func(name string, args []string) error {
		for _, a := range args {
			if a == "/dev/loop9p1" {
				return errors.New("wrong fs type")
			}
		}
		return nil
	}
	m := newTestMounter(runner)

	_, err := m.MountImage(imagePath, rootDir, nil, false)
	require.ErrorIs(t, err, ErrMount)

	// everything acquired before the failure is released, in reverse
	lines := runner.commandLines()
	assert.Equal(t, "umount "+rootDir, lines[len(lines)-2])
	assert.Equal(t, "losetup -d /dev/loop9", lines[len(lines)-1])
}

func TestMountImageUnwindsOnBindMountFailure(t *testing.T) {
	imagePath := createTestImage(t)
	rootDir := t.TempDir()
	hostDir := t.TempDir()

	runner := &fakeRunner{
		onOutput: func(name string, args []string) (string, error) {
			return "/dev/loop9\n", nil
		},
	}
	runner.onRun = func(name string, args []string) error {
		if len(args) > 0 && args[0] == "--bind" {
			return errors.New("bind refused")
		}
		return nil
	}
	m := newTestMounter(runner)

	specs := []MountSpec{{HostPath: hostDir, ImagePath: "/mnt/data"}}
	_, err := m.MountImage(imagePath, rootDir, specs, false)
	require.ErrorIs(t, err, ErrMount)

	// the scaffold created for the failed bind mount is gone too
	assert.NoDirExists(t, filepath.Join(rootDir, "mnt"))

	lines := runner.commandLines()
	assert.Equal(t, "umount "+filepath.Join(rootDir, "boot"), lines[len(lines)-3])
	assert.Equal(t, "umount "+rootDir, lines[len(lines)-2])
	assert.Equal(t, "losetup -d /dev/loop9", lines[len(lines)-1])
}

func TestMountImageValidatesBeforeTouchingResources(t *testing.T) {
	imagePath := createTestImage(t)
	runner := &fakeRunner{}
	m := newTestMounter(runner)

	specs := []MountSpec{{HostPath: "/definitely/not/there", ImagePath: "/mnt/data"}}
	_, err := m.MountImage(imagePath, t.TempDir(), specs, false)
	require.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, runner.calls, "no resource may be touched on validation failure")
}

func TestMountImageRejectsRelativeImagePath(t *testing.T) {
	imagePath := createTestImage(t)
	runner := &fakeRunner{}
	m := newTestMounter(runner)

	specs := []MountSpec{{HostPath: t.TempDir(), ImagePath: "mnt/data"}}
	_, err := m.MountImage(imagePath, t.TempDir(), specs, false)
	require.ErrorIs(t, err, ErrValidation)
}

func TestMountSpecValidate(t *testing.T) {
	dir := t.TempDir()

	wantFile, err := MountSpec{HostPath: dir, ImagePath: "/mnt"}.Validate()
	require.NoError(t, err)
	assert.False(t, wantFile)

	file := filepath.Join(dir, "resolv.conf")
	require.NoError(t, os.WriteFile(file, []byte("nameserver 1.1.1.1\n"), 0644))
	wantFile, err = MountSpec{HostPath: file, ImagePath: "/etc/resolv.conf"}.Validate()
	require.NoError(t, err)
	assert.True(t, wantFile)
}
