package fabric

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gbxfabric/fabric/atomicmem"
)

// ErrVersionMismatch is returned by ReadHeader when the image's magic or
// abi_version does not match what this build expects. Per the external
// interface's version check, callers must treat this as a Closed outcome
// rather than retrying.
var ErrVersionMismatch = errors.New("fabric: magic or abi_version mismatch")

// Header mirrors the fixed 64-byte prefix at offset 0 of a fabric image.
type Header struct {
	Magic                 uint64
	AbiVersion            uint32
	TotalSize             uint32
	EndpointCount         uint32
	RegionCount           uint32
	EndpointTableOffset   uint32
	RegionDirectoryOffset uint32
}

// WriteHeader encodes h into mem at offset 0, zero-padding the remainder of
// the 64-byte cache line.
func WriteHeader(mem atomicmem.Mem, h Header) error {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], h.Magic)
	binary.LittleEndian.PutUint32(buf[8:12], h.AbiVersion)
	binary.LittleEndian.PutUint32(buf[12:16], h.TotalSize)
	binary.LittleEndian.PutUint32(buf[16:20], h.EndpointCount)
	binary.LittleEndian.PutUint32(buf[20:24], h.RegionCount)
	binary.LittleEndian.PutUint32(buf[24:28], h.EndpointTableOffset)
	binary.LittleEndian.PutUint32(buf[28:32], h.RegionDirectoryOffset)
	return mem.CopyFrom(0, buf[:])
}

// ReadHeader decodes the fixed prefix at offset 0 and validates magic and
// abi_version against this build's expectations.
func ReadHeader(mem atomicmem.Mem) (Header, error) {
	var buf [HeaderSize]byte
	if err := mem.CopyTo(0, buf[:]); err != nil {
		return Header{}, err
	}
	h := Header{
		Magic:                 binary.LittleEndian.Uint64(buf[0:8]),
		AbiVersion:            binary.LittleEndian.Uint32(buf[8:12]),
		TotalSize:             binary.LittleEndian.Uint32(buf[12:16]),
		EndpointCount:         binary.LittleEndian.Uint32(buf[16:20]),
		RegionCount:           binary.LittleEndian.Uint32(buf[20:24]),
		EndpointTableOffset:   binary.LittleEndian.Uint32(buf[24:28]),
		RegionDirectoryOffset: binary.LittleEndian.Uint32(buf[28:32]),
	}
	if h.Magic != FabricMagic || h.AbiVersion != AbiVersion {
		return h, fmt.Errorf("%w: got magic=%#x abi_version=%d", ErrVersionMismatch, h.Magic, h.AbiVersion)
	}
	return h, nil
}
