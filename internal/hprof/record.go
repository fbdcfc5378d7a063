package hprof

// rawRecord is the framing-level view of a top-level record: its tag, the
// absolute offset of its body, and the body's declared length. Decoding a
// typed record (Utf8Name, ClassLoad, ...) is a separate step so the Index
// Builder can skip decoding bodies it has no use for at the requested level.
type rawRecord struct {
	Tag     RecordTag
	Delta   uint32
	BodyOff int64
	BodyLen uint32
}

// end returns the absolute offset one past this record's body, i.e. the
// offset of the next record's tag byte.
func (r rawRecord) end() int64 {
	return r.BodyOff + int64(r.BodyLen)
}

// frameRecords walks the top-level records starting at off (the offset of
// the first record's tag byte, i.e. immediately after the file header) and
// invokes yield for each. Reaching EOF exactly at a record boundary ends the
// walk cleanly; any other short read is BadFormat.
func frameRecords(src ByteSource, off int64, yield func(rawRecord) error) error {
	size := src.Size()
	for {
		if off == size {
			return nil
		}
		if off > size {
			return badFormat("record stream overruns file at offset %d", off)
		}

		var tagByte [1]byte
		if err := src.ReadAt(tagByte[:], off); err != nil {
			return badFormat("truncated record header at offset %d", off)
		}

		var deltaLen [8]byte
		if err := src.ReadAt(deltaLen[:], off+1); err != nil {
			return badFormat("truncated record header at offset %d", off)
		}
		delta := be32(deltaLen[0:4])
		bodyLen := be32(deltaLen[4:8])

		bodyOff := off + 9
		rec := rawRecord{
			Tag:     RecordTag(tagByte[0]),
			Delta:   delta,
			BodyOff: bodyOff,
			BodyLen: bodyLen,
		}
		if rec.end() > size {
			return badFormat("record at offset %d (tag 0x%x, length %d) extends past end of file", off, rec.Tag, bodyLen)
		}

		if err := yield(rec); err != nil {
			return err
		}
		off = rec.end()
	}
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// Utf8Name is a (id, string) pair decoded from a tag-0x01 record. Name ids
// are globally unique within a file.
type Utf8Name struct {
	ID     uint64
	Offset int64 // absolute offset of the record's body, for duplicate-error reporting
	String string
}

// decodeUtf8Name decodes a tag-0x01 record body. The encoded string is
// exactly BodyLen-idsize bytes of UTF-8, per §6.
func decodeUtf8Name(r *reader, rec rawRecord) (Utf8Name, error) {
	if int(rec.BodyLen) < r.idsize {
		return Utf8Name{}, badFormat("Utf8Name record at offset %d shorter than idsize", rec.BodyOff)
	}
	id, err := r.id(rec.BodyOff)
	if err != nil {
		return Utf8Name{}, err
	}
	strLen := int(rec.BodyLen) - r.idsize
	b, err := r.bytes(rec.BodyOff+int64(r.idsize), strLen)
	if err != nil {
		return Utf8Name{}, err
	}
	return Utf8Name{ID: id, Offset: rec.BodyOff, String: string(b)}, nil
}

// ClassLoad is a (class-object-id, name-id) pair decoded from a tag-0x02
// record, with the class's resolved name filled in by the Index Builder
// once the name table is available.
type ClassLoad struct {
	ClassSerial uint32
	ClassID     uint64
	StackSerial uint32
	NameID      uint64
	Offset      int64
	Name        string
}

// decodeClassLoad decodes a tag-0x02 record body: class-serial(4),
// class-object-id(idsize), stack-serial(4), class-name-id(idsize).
func decodeClassLoad(r *reader, rec rawRecord) (ClassLoad, error) {
	off := rec.BodyOff
	serial, err := r.u32(off)
	if err != nil {
		return ClassLoad{}, err
	}
	off += 4
	classID, err := r.id(off)
	if err != nil {
		return ClassLoad{}, err
	}
	off += int64(r.idsize)
	stackSerial, err := r.u32(off)
	if err != nil {
		return ClassLoad{}, err
	}
	off += 4
	nameID, err := r.id(off)
	if err != nil {
		return ClassLoad{}, err
	}
	return ClassLoad{
		ClassSerial: serial,
		ClassID:     classID,
		StackSerial: stackSerial,
		NameID:      nameID,
		Offset:      rec.BodyOff,
	}, nil
}

// unloadClassSerial decodes a tag-0x03 record body down to its sole field,
// the class-serial-number being unloaded.
func unloadClassSerial(r *reader, rec rawRecord) (uint32, error) {
	return r.u32(rec.BodyOff)
}

// heapDumpSegment is the raw body range of a single tag-0x0c/0x1c record,
// later grouped by the Index Builder into Dumps.
type heapDumpSegment struct {
	Offset int64
	Length uint32
}
