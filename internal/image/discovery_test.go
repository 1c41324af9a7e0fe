package image

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopDevicesFor(t *testing.T) {
	imagePath := filepath.Join(t.TempDir(), "pi.img")
	require.NoError(t, os.WriteFile(imagePath, []byte{}, 0644))

	runner := &fakeRunner{
		onOutput: func(name string, args []string) (string, error) {
			return `{"loopdevices": [
				{"name": "/dev/loop0", "back-file": "/somewhere/else.img"},
				{"name": "/dev/loop3", "back-file": "` + imagePath + `"}
			]}`, nil
		},
	}
	d := NewDiscovery(runner)

	devices, err := d.LoopDevicesFor(imagePath)
	require.NoError(t, err)
	assert.Equal(t, []string{"/dev/loop3"}, devices)

	assert.Equal(t, [][]string{{"losetup", "-l", "-J"}}, runner.calls)
}

func TestLoopDevicesForNoneAttached(t *testing.T) {
	runner := &fakeRunner{
		onOutput: func(name string, args []string) (string, error) {
			return "\n", nil
		},
	}
	d := NewDiscovery(runner)

	devices, err := d.LoopDevicesFor("/images/pi.img")
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestMountsFor(t *testing.T) {
	mountsFile := filepath.Join(t.TempDir(), "mounts")
	content := `/dev/sda1 / ext4 rw 0 0
/dev/loop3p2 /mnt/piroot ext4 rw 0 0
/dev/loop3p1 /mnt/piroot/boot vfat rw 0 0
/dev/loop7 /mnt/other squashfs ro 0 0
`
	require.NoError(t, os.WriteFile(mountsFile, []byte(content), 0644))

	d := NewDiscovery(&fakeRunner{})
	d.mountsPath = mountsFile

	mounts, err := d.MountsFor([]string{"/dev/loop3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/mnt/piroot", "/mnt/piroot/boot"}, mounts)
}

func TestMountsForWholeDevice(t *testing.T) {
	mountsFile := filepath.Join(t.TempDir(), "mounts")
	require.NoError(t, os.WriteFile(mountsFile, []byte("/dev/loop7 /mnt/other squashfs ro 0 0\n"), 0644))

	d := NewDiscovery(&fakeRunner{})
	d.mountsPath = mountsFile

	mounts, err := d.MountsFor([]string{"/dev/loop7"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/mnt/other"}, mounts)
}
