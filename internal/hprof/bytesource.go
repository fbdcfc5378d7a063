package hprof

import (
	"io"
	"os"
	"syscall"

	"github.com/wroldwiedbwe/hprofkit/pkg/compression"
)

// ByteSource is a random-access, read-only window over the bytes of an HPROF
// dump. Every parser in this package addresses the dump through a ByteSource
// rather than a stream, since records are revisited out of order once the
// index is built.
type ByteSource interface {
	// ReadAt copies len(p) bytes starting at off into p. It returns
	// OutOfBounds if the range [off, off+len(p)) exceeds the source.
	ReadAt(p []byte, off int64) error

	// Size returns the total number of addressable bytes.
	Size() int64

	// Close releases any OS resources (mmap, open file descriptors) held by
	// the source. Closed sources return ClosedSource on every access.
	Close() error
}

// mmapSource is a ByteSource backed by a memory-mapped, already-uncompressed
// on-disk file. Mapping avoids reading the whole dump into the Go heap; the
// OS manages paging as records are visited.
type mmapSource struct {
	file   *os.File
	data   []byte
	closed bool
}

// openMmapSource maps f's entire contents read-only.
func openMmapSource(f *os.File) (*mmapSource, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, outOfBounds("stat dump file: %v", err)
	}
	size := info.Size()
	if size == 0 {
		return &mmapSource{file: f, data: nil}, nil
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(size), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		return nil, outOfBounds("mmap dump file: %v", err)
	}
	return &mmapSource{file: f, data: data}, nil
}

func (s *mmapSource) ReadAt(p []byte, off int64) error {
	if s.closed {
		return closedSource()
	}
	if off < 0 || off+int64(len(p)) > int64(len(s.data)) {
		return outOfBounds("read of %d bytes at offset %d exceeds dump size %d", len(p), off, len(s.data))
	}
	copy(p, s.data[off:off+int64(len(p))])
	return nil
}

func (s *mmapSource) Size() int64 {
	return int64(len(s.data))
}

func (s *mmapSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	if len(s.data) > 0 {
		if err := syscall.Munmap(s.data); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.file.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// bufferSource is a ByteSource backed by an in-memory byte slice. It is used
// whenever the input cannot be mapped directly — gzip/zstd-compressed input
// is fully decompressed into one of these before header parsing begins.
type bufferSource struct {
	data   []byte
	closed bool
}

func (s *bufferSource) ReadAt(p []byte, off int64) error {
	if s.closed {
		return closedSource()
	}
	if off < 0 || off+int64(len(p)) > int64(len(s.data)) {
		return outOfBounds("read of %d bytes at offset %d exceeds dump size %d", len(p), off, len(s.data))
	}
	copy(p, s.data[off:off+int64(len(p))])
	return nil
}

func (s *bufferSource) Size() int64 {
	return int64(len(s.data))
}

func (s *bufferSource) Close() error {
	s.closed = true
	s.data = nil
	return nil
}

// sniffCompression inspects the leading bytes of a file for a gzip or zstd
// envelope. Anything else — including the dump's own "JAVA PROFILE " magic —
// is treated as uncompressed, unlike compression.DetectType which always
// guesses gzip for unrecognised input.
func sniffCompression(b []byte) compression.Type {
	switch {
	case len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b:
		return compression.TypeGzip
	case len(b) >= 4 && b[0] == 0x28 && b[1] == 0xb5 && b[2] == 0x2f && b[3] == 0xfd:
		return compression.TypeZstd
	default:
		return compression.TypeNone
	}
}

// openByteSource sniffs path for a gzip or zstd envelope. Compressed input is
// fully inflated into a bufferSource; anything else (including an already
// plain HPROF file) is mapped directly via mmapSource. This is the only
// place in the package that decides between the two ByteSource
// implementations.
func openByteSource(path string) (ByteSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, outOfBounds("open dump file: %v", err)
	}

	sniff := make([]byte, 4)
	n, _ := io.ReadFull(f, sniff)
	kind := sniffCompression(sniff[:n])

	if kind == compression.TypeNone {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return nil, outOfBounds("seek dump file: %v", err)
		}
		src, err := openMmapSource(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return src, nil
	}

	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, outOfBounds("read compressed dump file: %v", err)
	}
	comp, err := compression.New(kind, compression.LevelDefault)
	if err != nil {
		return nil, badFormat("unsupported compression envelope: %v", err)
	}
	defer compression.Close(comp)
	data, err := comp.Decompress(raw)
	if err != nil {
		return nil, badFormat("decompress dump file: %v", err)
	}
	return &bufferSource{data: data}, nil
}

// openBytesSource wraps an already in-memory dump (used by OpenBytes and by
// tests) without any decompression sniffing.
func openBytesSource(data []byte) ByteSource {
	return &bufferSource{data: data}
}
