//go:build !(js && wasm)

package atomicmem

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"

	"github.com/gbxfabric/fabric/kernel/utils"
)

// Shared is a Mem backed by a memory-mapped file under /dev/shm (or the OS
// temp dir as a fallback), letting multiple OS processes map the same
// region with MAP_SHARED. This is the native counterpart of the browser's
// SharedArrayBuffer: one process builds the fabric and mmaps it read-write,
// worker processes open the same path and mmap it too.
//
// Grounded on kernel/threads/sab/hal_native.go's SharedMemoryProvider.
type Shared struct {
	*core
	path string
	file *os.File
}

// SharedOptions configures creation or attachment of a native shared region.
type SharedOptions struct {
	Path   string
	Size   uint32
	Create bool
}

// DefaultSharedPath returns the conventional location for the fabric's
// backing file, preferring tmpfs when available.
func DefaultSharedPath() string {
	if _, err := os.Stat("/dev/shm"); err == nil {
		return "/dev/shm/gbxfabric"
	}
	return filepath.Join(os.TempDir(), "gbxfabric")
}

// UniqueSharedPath returns a fresh DefaultSharedPath sibling suffixed with
// a random id, for tests and multi-instance setups where two fabrics must
// never collide on the same backing file. Grounded on
// kernel/utils/id.go's GenerateID, the teacher's standard way of minting a
// short collision-resistant identifier for exactly this kind of scoping.
func UniqueSharedPath() string {
	return DefaultSharedPath() + "-" + utils.GenerateID()
}

// OpenShared creates or attaches to a native shared-memory region.
func OpenShared(opts SharedOptions) (*Shared, error) {
	if opts.Path == "" {
		return nil, errors.New("atomicmem: shared path required")
	}

	path := filepath.Clean(opts.Path)
	flags := os.O_RDWR
	if opts.Create {
		flags |= os.O_CREATE
	}

	file, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return nil, utils.WrapError(err, "atomicmem: open shared file")
	}

	if opts.Create {
		if opts.Size == 0 {
			_ = file.Close()
			return nil, errors.New("atomicmem: size required when creating")
		}
		if err := file.Truncate(int64(opts.Size)); err != nil {
			_ = file.Close()
			return nil, utils.WrapError(err, "atomicmem: truncate shared file")
		}
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, utils.WrapError(err, "atomicmem: stat shared file")
	}
	if info.Size() == 0 {
		_ = file.Close()
		return nil, errors.New("atomicmem: shared file has zero size")
	}
	size := uint32(info.Size())

	data, err := syscall.Mmap(int(file.Fd()), 0, int(size), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		_ = file.Close()
		return nil, utils.WrapError(err, "atomicmem: mmap shared file")
	}

	return &Shared{
		core: newCore(data),
		path: path,
		file: file,
	}, nil
}

// Close unmaps the region and closes the backing file descriptor.
func (s *Shared) Close() error {
	var err error
	if s.data != nil {
		if unmapErr := syscall.Munmap(s.data); unmapErr != nil {
			err = unmapErr
		}
		s.data = nil
	}
	if s.file != nil {
		if closeErr := s.file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		s.file = nil
	}
	return err
}
