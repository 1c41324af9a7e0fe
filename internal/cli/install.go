package cli

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"
	"github.com/ulikunitz/xz"
)

// InstallCommand decompresses a downloaded image archive into a raw
// image file, optionally verifying a checksum, and installs it
// atomically so an interrupted install never leaves a half-written
// image behind.
type InstallCommand struct {
	ctx       *GlobalContext
	sha256Hex string
}

// NewInstallCommand creates the install command
func NewInstallCommand(ctx *GlobalContext) *cobra.Command {
	cmd := &InstallCommand{ctx: ctx}

	cobraCmd := &cobra.Command{
		Use:   "install <compressed-image> [dest.img]",
		Short: "Decompress an image archive into a raw image",
		Long: `Decompress an xz, zstd, gzip, or zip compressed image into a raw
image file. The checksum, when given, is verified against the
decompressed content before the image is moved into place.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: cmd.Run,
	}

	cobraCmd.Flags().StringVar(&cmd.sha256Hex, "sha256", "", "Expected SHA-256 of the decompressed image")

	return cobraCmd
}

// Run executes the install command
func (c *InstallCommand) Run(cmd *cobra.Command, args []string) error {
	srcPath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	destPath := destinationFor(srcPath)
	if len(args) > 1 {
		if destPath, err = filepath.Abs(args[1]); err != nil {
			return fmt.Errorf("invalid destination: %w", err)
		}
	}
	if destPath == srcPath {
		return fmt.Errorf("cannot install %s onto itself; pass a destination", srcPath)
	}

	reader, closer, err := openDecompressed(srcPath)
	if err != nil {
		return err
	}
	defer closer()

	c.ctx.Logger.Info("Decompressing %s...", srcPath)
	written, err := c.installAtomic(reader, destPath)
	if err != nil {
		return err
	}

	c.ctx.Logger.Success("Installed %s (%s)", destPath, units.HumanSize(float64(written)))
	return nil
}

// destinationFor derives the raw image name from an archive name
func destinationFor(srcPath string) string {
	switch ext := strings.ToLower(filepath.Ext(srcPath)); ext {
	case ".xz", ".zst", ".gz":
		return strings.TrimSuffix(srcPath, filepath.Ext(srcPath))
	case ".zip":
		return strings.TrimSuffix(srcPath, filepath.Ext(srcPath)) + ".img"
	default:
		return srcPath + ".img"
	}
}

// openDecompressed picks a decompressor by file extension and returns a
// stream of the raw image plus a cleanup closure.
func openDecompressed(srcPath string) (io.Reader, func(), error) {
	switch ext := strings.ToLower(filepath.Ext(srcPath)); ext {
	case ".zip":
		archive, err := zip.OpenReader(srcPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open %s: %w", srcPath, err)
		}
		for _, entry := range archive.File {
			if strings.HasSuffix(strings.ToLower(entry.Name), ".img") {
				f, err := entry.Open()
				if err != nil {
					archive.Close()
					return nil, nil, fmt.Errorf("failed to open %s in archive: %w", entry.Name, err)
				}
				return f, func() { f.Close(); archive.Close() }, nil
			}
		}
		archive.Close()
		return nil, nil, fmt.Errorf("no .img entry found in %s", srcPath)

	case ".xz":
		f, err := os.Open(srcPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open %s: %w", srcPath, err)
		}
		r, err := xz.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("failed to read xz stream: %w", err)
		}
		return r, func() { f.Close() }, nil

	case ".zst":
		f, err := os.Open(srcPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open %s: %w", srcPath, err)
		}
		d, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("failed to read zstd stream: %w", err)
		}
		return d, func() { d.Close(); f.Close() }, nil

	case ".gz":
		f, err := os.Open(srcPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open %s: %w", srcPath, err)
		}
		r, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("failed to read gzip stream: %w", err)
		}
		return r, func() { r.Close(); f.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unsupported archive type %q (want .xz, .zst, .gz, or .zip)", ext)
	}
}

// installAtomic streams the image into a temp file next to the
// destination, verifies the checksum if requested, and renames it into
// place only once it is complete and synced.
func (c *InstallCommand) installAtomic(r io.Reader, destPath string) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".pirun-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	hash := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hash), r)
	if err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("failed to decompress image: %w", err)
	}

	if c.sha256Hex != "" {
		got := hex.EncodeToString(hash.Sum(nil))
		if !strings.EqualFold(got, c.sha256Hex) {
			_ = tmp.Close()
			return 0, fmt.Errorf("checksum mismatch: expected %s, got %s", c.sha256Hex, got)
		}
		c.ctx.Logger.Debug("Checksum verified: %s", got)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("failed to sync image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close image: %w", err)
	}
	if err := os.Rename(tmpName, destPath); err != nil {
		return 0, fmt.Errorf("failed to install image: %w", err)
	}
	return written, nil
}
