package image

import (
	"fmt"
	"sort"

	diskfs "github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/partition/gpt"
	"github.com/diskfs/go-diskfs/partition/mbr"
)

// Partition describes one entry of an image's partition table. Offsets
// and sizes are stored in sectors; byte values are derived. Descriptors
// must be re-read after any image mutation, never cached across one.
type Partition struct {
	Number       int    `json:"number"`
	Type         string `json:"type"`
	StartSectors uint64 `json:"start_sectors"`
	SizeSectors  uint64 `json:"size_sectors"`
	SectorSize   uint64 `json:"sector_size"`
}

// Start returns the partition's byte offset within the image
func (p Partition) Start() uint64 {
	return p.StartSectors * p.SectorSize
}

// Size returns the partition's size in bytes
func (p Partition) Size() uint64 {
	return p.SizeSectors * p.SectorSize
}

// End returns the byte offset just past the partition
func (p Partition) End() uint64 {
	return p.Start() + p.Size()
}

// mbrTypeNames maps MBR partition type codes to the labels fdisk prints.
// Loaded once, immutable.
var mbrTypeNames = map[byte]string{
	0x00: "Empty",
	0x01: "FAT12",
	0x04: "FAT16 <32M",
	0x05: "Extended",
	0x06: "FAT16",
	0x07: "HPFS/NTFS/exFAT",
	0x0b: "W95 FAT32",
	0x0c: "W95 FAT32 (LBA)",
	0x0e: "W95 FAT16 (LBA)",
	0x82: "Linux swap",
	0x83: "Linux",
	0x85: "Linux extended",
	0x8e: "Linux LVM",
	0xee: "GPT protective",
	0xef: "EFI (FAT-12/16/32)",
}

// PartitionTypeName resolves an MBR type code to a human-readable name
func PartitionTypeName(code byte) string {
	if name, ok := mbrTypeNames[code]; ok {
		return name
	}
	return fmt.Sprintf("Unknown (0x%02x)", code)
}

// ReadTable reads the partition table of the image at path and returns
// its partitions ordered by ascending start offset. No file handle is
// held open after returning.
func ReadTable(path string) ([]Partition, error) {
	d, err := diskfs.Open(path, diskfs.WithOpenMode(diskfs.ReadOnly))
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrLayout, path, err)
	}
	defer d.Close()

	table, err := d.GetPartitionTable()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLayout, path, err)
	}

	sectorSize := uint64(d.LogicalBlocksize)
	var parts []Partition
	for i, p := range table.GetPartitions() {
		size := uint64(p.GetSize())
		if size == 0 {
			// empty MBR slot
			continue
		}
		part := Partition{
			Number:       i + 1,
			StartSectors: uint64(p.GetStart()) / sectorSize,
			SizeSectors:  size / sectorSize,
			SectorSize:   sectorSize,
		}
		switch typed := p.(type) {
		case *mbr.Partition:
			part.Type = PartitionTypeName(byte(typed.Type))
		case *gpt.Partition:
			part.Type = string(typed.Type)
		default:
			part.Type = "unknown"
		}
		parts = append(parts, part)
	}

	if len(parts) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNotFound, path)
	}

	sort.Slice(parts, func(i, j int) bool {
		return parts[i].StartSectors < parts[j].StartSectors
	})
	return parts, nil
}

// RequireRootBoot verifies the image has the conventional layout:
// partition 1 is the boot filesystem, partition 2 the root filesystem.
func RequireRootBoot(parts []Partition) error {
	if len(parts) < 2 {
		return fmt.Errorf("%w: need boot and root partitions, found %d", ErrLayout, len(parts))
	}
	var haveBoot, haveRoot bool
	for _, p := range parts {
		switch p.Number {
		case 1:
			haveBoot = true
		case 2:
			haveRoot = true
		}
	}
	if !haveBoot || !haveRoot {
		return fmt.Errorf("%w: partitions 1 (boot) and 2 (root) are required", ErrLayout)
	}
	return nil
}
