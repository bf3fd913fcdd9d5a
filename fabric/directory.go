package fabric

import (
	"encoding/binary"

	"github.com/gbxfabric/fabric/atomicmem"
)

// RegionEntry is one row of the region directory: kind, flags, offset,
// length, align.
type RegionEntry struct {
	Kind   RegionKind
	Flags  uint8
	Offset uint32
	Length uint32
	Align  uint32
}

func encodeRegionEntry(e RegionEntry) [RegionDirEntrySize]byte {
	var buf [RegionDirEntrySize]byte
	buf[0] = uint8(e.Kind)
	buf[1] = e.Flags
	binary.LittleEndian.PutUint32(buf[4:8], e.Offset)
	binary.LittleEndian.PutUint32(buf[8:12], e.Length)
	binary.LittleEndian.PutUint32(buf[12:16], e.Align)
	return buf
}

func decodeRegionEntry(buf []byte) RegionEntry {
	return RegionEntry{
		Kind:   RegionKind(buf[0]),
		Flags:  buf[1],
		Offset: binary.LittleEndian.Uint32(buf[4:8]),
		Length: binary.LittleEndian.Uint32(buf[8:12]),
		Align:  binary.LittleEndian.Uint32(buf[12:16]),
	}
}

// WriteRegionDirectory writes entries contiguously starting at offset.
func WriteRegionDirectory(mem atomicmem.Mem, offset uint32, entries []RegionEntry) error {
	for i, e := range entries {
		buf := encodeRegionEntry(e)
		if err := mem.CopyFrom(offset+uint32(i)*RegionDirEntrySize, buf[:]); err != nil {
			return err
		}
	}
	return nil
}

// ReadRegionDirectory reads count entries starting at offset.
func ReadRegionDirectory(mem atomicmem.Mem, offset uint32, count uint32) ([]RegionEntry, error) {
	entries := make([]RegionEntry, count)
	for i := uint32(0); i < count; i++ {
		var buf [RegionDirEntrySize]byte
		if err := mem.CopyTo(offset+i*RegionDirEntrySize, buf[:]); err != nil {
			return nil, err
		}
		entries[i] = decodeRegionEntry(buf[:])
	}
	return entries, nil
}
