package hprof

import (
	"time"

	"github.com/wroldwiedbwe/hprofkit/pkg/utils"
)

// Record is one top-level record view, decoded just enough to expose its
// variant (§4.4). Unknown tags are preserved opaquely rather than rejected.
type Record struct {
	Tag    RecordTag
	Offset int64
	Length uint32

	Name    *Utf8Name
	Class   *ClassLoad
	Unload  *uint32 // class-serial being unloaded, for TagUnloadClass
	Segment *heapDumpSegment
}

// File is an open HPROF dump: the decoded header, the byte source backing
// every read, and the lazily-built Index Builder caches.
type File struct {
	header Header
	src    ByteSource
	r      *reader
	ix     *index
	off    int64 // offset of the first top-level record, immediately after the header
	closed bool
}

// Option configures Open/OpenBytes.
type Option func(*File)

// WithLogger directs the Index Builder's diagnostic logging to logger
// instead of a no-op sink.
func WithLogger(logger utils.Logger) Option {
	return func(f *File) { f.ix.logger = logger }
}

// Open opens the dump at path. Gzip- and zstd-compressed dumps are
// transparently inflated into memory first; an uncompressed dump is
// memory-mapped directly.
func Open(path string, opts ...Option) (*File, error) {
	src, err := openByteSource(path)
	if err != nil {
		return nil, err
	}
	return newFile(src, opts...)
}

// OpenBytes opens a dump already held in memory (e.g. fetched over the
// network), with no compression handling: callers that may have compressed
// bytes should inflate them first.
func OpenBytes(data []byte, opts ...Option) (*File, error) {
	return newFile(openBytesSource(data), opts...)
}

func newFile(src ByteSource, opts ...Option) (*File, error) {
	header, headerLen, err := decodeHeader(src)
	if err != nil {
		src.Close()
		return nil, err
	}
	f := &File{
		header: header,
		src:    src,
		r:      newReader(src, header.IDSize),
		ix:     newIndex(nil),
		off:    headerLen,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Header returns the dump's decoded header.
func (f *File) Header() Header {
	return f.header
}

// Close releases the underlying byte source. Any further use of f is
// ClosedSource; Records, Dumps and JavaObjects already obtained from it hold
// their decoded values and do not read the source again.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	return f.src.Close()
}

// Records returns every top-level record in file order, decoding the
// variants the Record Catalogue names (§4.4) and preserving anything else
// opaquely.
func (f *File) Records() ([]Record, error) {
	if f.closed {
		return nil, closedSource()
	}
	var records []Record
	err := frameRecords(f.src, f.off, func(rec rawRecord) error {
		rv := Record{Tag: rec.Tag, Offset: rec.BodyOff, Length: rec.BodyLen}
		switch rec.Tag {
		case TagUtf8:
			name, err := decodeUtf8Name(f.r, rec)
			if err != nil {
				return err
			}
			rv.Name = &name
		case TagLoadClass:
			cl, err := decodeClassLoad(f.r, rec)
			if err != nil {
				return err
			}
			if name, ok, lookErr := f.lookupName(cl.NameID); lookErr != nil {
				return lookErr
			} else if ok {
				cl.Name = internalNameToJava(name)
			}
			rv.Class = &cl
		case TagUnloadClass:
			serial, err := unloadClassSerial(f.r, rec)
			if err != nil {
				return err
			}
			rv.Unload = &serial
		case TagHeapDump, TagHeapDumpSegment:
			seg := heapDumpSegment{Offset: rec.BodyOff, Length: rec.BodyLen}
			rv.Segment = &seg
		}
		records = append(records, rv)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// lookupName resolves a name id for the Records() walk, building the Index
// Builder's level-1 name cache on first use. Returns false (not an error) if
// no name record in the file carries the id.
func (f *File) lookupName(id uint64) (string, bool, error) {
	if err := f.ix.ensureLevel(f.r, f.off, levelNames); err != nil {
		return "", false, err
	}
	n, ok := f.ix.names[id]
	return n.String, ok, nil
}

// Name resolves a Utf8Name by id, building the Index Builder's name cache on
// first use.
func (f *File) Name(id uint64) (Utf8Name, error) {
	if f.closed {
		return Utf8Name{}, closedSource()
	}
	if err := f.ix.ensureLevel(f.r, f.off, levelNames); err != nil {
		return Utf8Name{}, err
	}
	n, ok := f.ix.names[id]
	if !ok {
		return Utf8Name{}, refError("no name with id 0x%x", id)
	}
	return n, nil
}

// ClassInfo resolves a ClassLoad by class-object-id (uint64) or by its fully
// dotted Java name (string), building the Index Builder's class-load cache
// on first use.
func (f *File) ClassInfo(idOrName interface{}) (ClassLoad, error) {
	if f.closed {
		return ClassLoad{}, closedSource()
	}
	if err := f.ix.ensureLevel(f.r, f.off, levelClassLoads); err != nil {
		return ClassLoad{}, err
	}
	switch key := idOrName.(type) {
	case uint64:
		cl, ok := f.ix.classes[key]
		if !ok {
			return ClassLoad{}, classNotFound("no class with id 0x%x", key)
		}
		return cl, nil
	case string:
		cl, ok := f.ix.classNames[key]
		if !ok {
			return ClassLoad{}, classNotFound("no class named %q", key)
		}
		return cl, nil
	default:
		return ClassLoad{}, classNotFound("class_info key must be a class id or name")
	}
}

// Dumps materialises every heap dump in the file, building the Index
// Builder's dump-grouping cache on first use and then running the two-pass
// class/object materialisation of §4.7 for each group.
func (f *File) Dumps() ([]*Dump, error) {
	if f.closed {
		return nil, closedSource()
	}
	if err := f.ix.ensureLevel(f.r, f.off, levelDumps); err != nil {
		return nil, err
	}
	if err := f.ix.ensureLevel(f.r, f.off, levelClassLoads); err != nil {
		return nil, err
	}

	classOf := func(classID uint64) (string, error) {
		cl, ok := f.ix.classes[classID]
		if !ok {
			return "", classNotFound("no class-load record for class id 0x%x", classID)
		}
		n, ok := f.ix.names[cl.NameID]
		if !ok {
			return "", refError("no name with id 0x%x", cl.NameID)
		}
		return n.String, nil
	}
	nameOf := func(nameID uint64) (string, error) {
		n, ok := f.ix.names[nameID]
		if !ok {
			return "", refError("no name with id 0x%x", nameID)
		}
		return n.String, nil
	}

	dumps := make([]*Dump, 0, len(f.ix.dumps))
	for _, dr := range f.ix.dumps {
		d, err := buildDump(f.r, dr.segments, classOf, nameOf)
		if err != nil {
			return nil, err
		}
		dumps = append(dumps, d)
	}
	return dumps, nil
}

// decodeHeader parses the fixed-format preamble described in §6: magic,
// NUL-terminated version, 4-byte idsize, 8-byte big-endian ms timestamp. It
// returns the decoded Header and the byte length of the header itself (the
// offset of the first top-level record).
func decodeHeader(src ByteSource) (Header, int64, error) {
	magicBuf := make([]byte, magicLen)
	if err := src.ReadAt(magicBuf, 0); err != nil {
		return Header{}, 0, badFormat("truncated header: missing magic")
	}
	if string(magicBuf) != magic {
		return Header{}, 0, badFormat("bad magic %q", magicBuf)
	}

	version, versionLen, err := readNulTerminated(src, int64(magicLen))
	if err != nil {
		return Header{}, 0, err
	}
	if version != versionAccepted1 && version != versionAccepted2 {
		return Header{}, 0, badFormat("unknown HPROF version %q", version)
	}

	off := int64(magicLen) + versionLen
	var idsizeBuf [4]byte
	if err := src.ReadAt(idsizeBuf[:], off); err != nil {
		return Header{}, 0, badFormat("truncated header: missing idsize")
	}
	idsize := int(be32(idsizeBuf[:]))
	if idsize < 3 || idsize > 8 {
		return Header{}, 0, badFormat("idsize %d out of range [3,8]", idsize)
	}
	off += 4

	var tsBuf [8]byte
	if err := src.ReadAt(tsBuf[:], off); err != nil {
		return Header{}, 0, badFormat("truncated header: missing timestamp")
	}
	hi := be32(tsBuf[0:4])
	lo := be32(tsBuf[4:8])
	ms := int64(hi)<<32 | int64(lo)
	off += 8

	header := Header{
		Version:   version,
		IDSize:    idsize,
		StartTime: time.UnixMilli(ms).UTC(),
	}
	return header, off, nil
}

// readNulTerminated reads bytes starting at off up to (not including) a NUL
// byte, returning the decoded string and its length including the
// terminator. BadFormat if no NUL is found before EOF.
func readNulTerminated(src ByteSource, off int64) (string, int64, error) {
	var buf []byte
	for pos := off; pos < src.Size(); pos++ {
		var b [1]byte
		if err := src.ReadAt(b[:], pos); err != nil {
			return "", 0, err
		}
		if b[0] == 0 {
			return string(buf), int64(len(buf)) + 1, nil
		}
		buf = append(buf, b[0])
	}
	return "", 0, badFormat("truncated header: version not NUL-terminated")
}
