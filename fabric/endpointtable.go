package fabric

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/gbxfabric/fabric/atomicmem"
)

// EndpointKind distinguishes the small closed set of service sides this
// fabric hosts. New services add a variant here rather than going through
// a dynamic registry, matching the spec's "small closed set" design note.
type EndpointKind uint8

const (
	EndpointKernel EndpointKind = iota
	EndpointGpu
	EndpointAudio
	EndpointFs
)

// EndpointEntry is one row of the endpoint table: a name hash, its kind,
// and the region-directory indices of its ports (0xFFFF marks an unused
// slot, e.g. a service with no slot pool).
type EndpointEntry struct {
	NameHash      uint32
	Kind          EndpointKind
	PortRegionIDs [MaxPortsPerEndpoint]uint16
}

// UnusedPort marks a port slot the endpoint does not use.
const UnusedPort uint16 = 0xFFFF

// HashServiceName derives the stable name_hash stored in an endpoint table
// entry, letting the adapter find its endpoint by name without a string
// table in the shared buffer.
func HashServiceName(name string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return h.Sum32()
}

func encodeEndpointEntry(e EndpointEntry) [EndpointTableEntrySize]byte {
	var buf [EndpointTableEntrySize]byte
	binary.LittleEndian.PutUint32(buf[0:4], e.NameHash)
	buf[4] = uint8(e.Kind)
	for i, id := range e.PortRegionIDs {
		off := 6 + i*2
		binary.LittleEndian.PutUint16(buf[off:off+2], id)
	}
	return buf
}

func decodeEndpointEntry(buf []byte) EndpointEntry {
	e := EndpointEntry{
		NameHash: binary.LittleEndian.Uint32(buf[0:4]),
		Kind:     EndpointKind(buf[4]),
	}
	for i := range e.PortRegionIDs {
		off := 6 + i*2
		e.PortRegionIDs[i] = binary.LittleEndian.Uint16(buf[off : off+2])
	}
	return e
}

// WriteEndpointTable writes entries contiguously starting at offset.
func WriteEndpointTable(mem atomicmem.Mem, offset uint32, entries []EndpointEntry) error {
	for i, e := range entries {
		buf := encodeEndpointEntry(e)
		if err := mem.CopyFrom(offset+uint32(i)*EndpointTableEntrySize, buf[:]); err != nil {
			return err
		}
	}
	return nil
}

// ReadEndpointTable reads count entries starting at offset.
func ReadEndpointTable(mem atomicmem.Mem, offset uint32, count uint32) ([]EndpointEntry, error) {
	entries := make([]EndpointEntry, count)
	for i := uint32(0); i < count; i++ {
		var buf [EndpointTableEntrySize]byte
		if err := mem.CopyTo(offset+i*EndpointTableEntrySize, buf[:]); err != nil {
			return nil, err
		}
		entries[i] = decodeEndpointEntry(buf[:])
	}
	return entries, nil
}
