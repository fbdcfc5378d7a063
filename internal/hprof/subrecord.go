package hprof

// Field describes one entry in a class's instance- or static-field schema:
// its name id and its Java type tag.
type Field struct {
	NameID uint64
	Type   JType
}

// StaticField is a Field together with its constant value, as stored
// directly on the defining ClassDump.
type StaticField struct {
	Field
	Value interface{}
}

// ConstantPoolEntry is one slot of a ClassDump's constant pool. Nothing in
// this package's object model currently resolves constant-pool indices back
// to bytecode, so entries are kept only for completeness of the class dump.
type ConstantPoolEntry struct {
	Index uint16
	Type  JType
	Value interface{}
}

// ClassDumpRecord is the decoded form of a heap-tag-0x20 subrecord.
type ClassDumpRecord struct {
	ClassID        uint64
	StackSerial    uint32
	SuperClassID   uint64
	LoaderID       uint64
	SignersID      uint64
	ProtDomainID   uint64
	Reserved1      uint64
	Reserved2      uint64
	InstanceSize   uint32
	ConstantPool   []ConstantPoolEntry
	StaticFields   []StaticField
	InstanceFields []Field
}

// InstanceDumpRecord is the decoded form of a heap-tag-0x21 subrecord. Field
// values are not unpacked here: Data holds the opaque field bytes, which the
// object model decodes once it knows the owning class's field schema.
type InstanceDumpRecord struct {
	ObjectID    uint64
	StackSerial uint32
	ClassID     uint64
	Data        []byte
}

// ObjectArrayDumpRecord is the decoded form of a heap-tag-0x22 subrecord.
type ObjectArrayDumpRecord struct {
	ObjectID     uint64
	StackSerial  uint32
	ElementClass uint64
	Elements     []uint64
}

// PrimitiveArrayDumpRecord is the decoded form of a heap-tag-0x23 subrecord.
type PrimitiveArrayDumpRecord struct {
	ObjectID    uint64
	StackSerial uint32
	ElementType JType
	Data        []byte // N elements of width(ElementType), packed big-endian
}

// GCRootRecord is the decoded form of any GC-root subrecord (0x01-0x08,
// 0xFF). Not every field is populated for every tag; ThreadSerial and
// FrameNumber are zero where the variant's fixed shape omits them.
type GCRootRecord struct {
	Tag          HeapDumpTag
	ObjectID     uint64
	ThreadSerial uint32
	FrameNumber  uint32
}

// HeapDumpInfoRecord is the decoded form of a heap-tag-0xFE subrecord,
// naming the heap that subsequent subrecords in the segment belong to.
type HeapDumpInfoRecord struct {
	HeapID uint32
	NameID uint64
}

// subrecord is the tagged union yielded by frameSubrecords, one variant
// populated according to Tag.
type subrecord struct {
	Tag       HeapDumpTag
	Offset    int64 // absolute offset of the tag byte
	Class     *ClassDumpRecord
	Instance  *InstanceDumpRecord
	ObjArray  *ObjectArrayDumpRecord
	PrimArray *PrimitiveArrayDumpRecord
	Root      *GCRootRecord
	HeapInfo  *HeapDumpInfoRecord
}

// frameSubrecords walks the heap subrecords making up a dump: the
// concatenation of one or more heapDumpSegment bodies. Per §4.5, a
// subrecord's length is computed from its tag and inline contents rather
// than stored explicitly, so each segment is swept in turn and a subrecord
// is never allowed to straddle a segment boundary.
func frameSubrecords(r *reader, segments []heapDumpSegment, yield func(subrecord) error) error {
	for _, seg := range segments {
		off := seg.Offset
		end := seg.Offset + int64(seg.Length)
		for off < end {
			sub, next, err := decodeSubrecord(r, off)
			if err != nil {
				return err
			}
			if next > end {
				return badFormat("subrecord at offset %d (tag 0x%x) crosses segment boundary at %d", off, sub.Tag, end)
			}
			if err := yield(sub); err != nil {
				return err
			}
			off = next
		}
	}
	return nil
}

// decodeSubrecord decodes the subrecord at off and returns it along with the
// absolute offset of the subrecord immediately following it.
func decodeSubrecord(r *reader, off int64) (subrecord, int64, error) {
	tagByte, err := r.u8(off)
	if err != nil {
		return subrecord{}, 0, err
	}
	tag := HeapDumpTag(tagByte)
	cur := off + 1

	if tag.isGCRoot() {
		root, next, err := decodeGCRoot(r, tag, cur)
		if err != nil {
			return subrecord{}, 0, err
		}
		return subrecord{Tag: tag, Offset: off, Root: &root}, next, nil
	}

	switch tag {
	case HeapTagClassDump:
		cd, next, err := decodeClassDump(r, cur)
		if err != nil {
			return subrecord{}, 0, err
		}
		return subrecord{Tag: tag, Offset: off, Class: &cd}, next, nil

	case HeapTagInstanceDump:
		id, err := r.id(cur)
		if err != nil {
			return subrecord{}, 0, err
		}
		cur += int64(r.idsize)
		stackSerial, err := r.u32(cur)
		if err != nil {
			return subrecord{}, 0, err
		}
		cur += 4
		classID, err := r.id(cur)
		if err != nil {
			return subrecord{}, 0, err
		}
		cur += int64(r.idsize)
		dataLen, err := r.u32(cur)
		if err != nil {
			return subrecord{}, 0, err
		}
		cur += 4
		data, err := r.bytes(cur, int(dataLen))
		if err != nil {
			return subrecord{}, 0, err
		}
		cur += int64(dataLen)
		inst := InstanceDumpRecord{ObjectID: id, StackSerial: stackSerial, ClassID: classID, Data: data}
		return subrecord{Tag: tag, Offset: off, Instance: &inst}, cur, nil

	case HeapTagObjectArrayDump:
		id, err := r.id(cur)
		if err != nil {
			return subrecord{}, 0, err
		}
		cur += int64(r.idsize)
		stackSerial, err := r.u32(cur)
		if err != nil {
			return subrecord{}, 0, err
		}
		cur += 4
		n, err := r.u32(cur)
		if err != nil {
			return subrecord{}, 0, err
		}
		cur += 4
		elemClass, err := r.id(cur)
		if err != nil {
			return subrecord{}, 0, err
		}
		cur += int64(r.idsize)
		elems := make([]uint64, n)
		for i := range elems {
			v, err := r.id(cur)
			if err != nil {
				return subrecord{}, 0, err
			}
			elems[i] = v
			cur += int64(r.idsize)
		}
		arr := ObjectArrayDumpRecord{ObjectID: id, StackSerial: stackSerial, ElementClass: elemClass, Elements: elems}
		return subrecord{Tag: tag, Offset: off, ObjArray: &arr}, cur, nil

	case HeapTagPrimArrayDump:
		id, err := r.id(cur)
		if err != nil {
			return subrecord{}, 0, err
		}
		cur += int64(r.idsize)
		stackSerial, err := r.u32(cur)
		if err != nil {
			return subrecord{}, 0, err
		}
		cur += 4
		n, err := r.u32(cur)
		if err != nil {
			return subrecord{}, 0, err
		}
		cur += 4
		elemTypeByte, err := r.u8(cur)
		if err != nil {
			return subrecord{}, 0, err
		}
		cur += 1
		elemType := JType(elemTypeByte)
		width, ok := elemType.size(r.idsize)
		if !ok {
			return subrecord{}, 0, badFormat("primitive array at offset %d has invalid element type tag 0x%x", off, elemTypeByte)
		}
		data, err := r.bytes(cur, int(n)*width)
		if err != nil {
			return subrecord{}, 0, err
		}
		cur += int64(int(n) * width)
		arr := PrimitiveArrayDumpRecord{ObjectID: id, StackSerial: stackSerial, ElementType: elemType, Data: data}
		return subrecord{Tag: tag, Offset: off, PrimArray: &arr}, cur, nil

	case HeapTagHeapDumpInfo:
		heapID, err := r.u32(cur)
		if err != nil {
			return subrecord{}, 0, err
		}
		cur += 4
		nameID, err := r.id(cur)
		if err != nil {
			return subrecord{}, 0, err
		}
		cur += int64(r.idsize)
		info := HeapDumpInfoRecord{HeapID: heapID, NameID: nameID}
		return subrecord{Tag: tag, Offset: off, HeapInfo: &info}, cur, nil

	default:
		return subrecord{}, 0, badFormat("unknown heap subrecord tag 0x%x at offset %d", tagByte, off)
	}
}

// decodeGCRoot decodes one of the fixed-shape GC-root subrecords.
func decodeGCRoot(r *reader, tag HeapDumpTag, off int64) (GCRootRecord, int64, error) {
	id, err := r.id(off)
	if err != nil {
		return GCRootRecord{}, 0, err
	}
	cur := off + int64(r.idsize)
	root := GCRootRecord{Tag: tag, ObjectID: id}

	switch tag {
	case HeapTagRootUnknown, HeapTagRootStickyClass, HeapTagRootMonitorUsed:
		// id only

	case HeapTagRootJNIGlobal:
		// id + JNI global ref id (ignored: not surfaced by any operation in
		// the object model)
		if _, err := r.id(cur); err != nil {
			return GCRootRecord{}, 0, err
		}
		cur += int64(r.idsize)

	case HeapTagRootJNILocal, HeapTagRootJavaFrame:
		threadSerial, err := r.u32(cur)
		if err != nil {
			return GCRootRecord{}, 0, err
		}
		cur += 4
		frameNum, err := r.u32(cur)
		if err != nil {
			return GCRootRecord{}, 0, err
		}
		cur += 4
		root.ThreadSerial = threadSerial
		root.FrameNumber = frameNum

	case HeapTagRootNativeStack, HeapTagRootThreadBlock:
		threadSerial, err := r.u32(cur)
		if err != nil {
			return GCRootRecord{}, 0, err
		}
		cur += 4
		root.ThreadSerial = threadSerial

	case HeapTagRootThreadObject:
		threadSerial, err := r.u32(cur)
		if err != nil {
			return GCRootRecord{}, 0, err
		}
		cur += 4
		stackSerial, err := r.u32(cur)
		if err != nil {
			return GCRootRecord{}, 0, err
		}
		cur += 4
		root.ThreadSerial = threadSerial
		root.FrameNumber = stackSerial

	default:
		return GCRootRecord{}, 0, badFormat("unreachable GC root tag 0x%x", uint8(tag))
	}

	return root, cur, nil
}

// decodeClassDump decodes a heap-tag-0x20 subrecord per the layout in §4.5:
// a fixed 6-id header, then a constant-pool block, a static-field block, and
// an instance-field block, each prefixed by a 2-byte count.
func decodeClassDump(r *reader, off int64) (ClassDumpRecord, int64, error) {
	classID, err := r.id(off)
	if err != nil {
		return ClassDumpRecord{}, 0, err
	}
	cur := off + int64(r.idsize)

	stackSerial, err := r.u32(cur)
	if err != nil {
		return ClassDumpRecord{}, 0, err
	}
	cur += 4

	ids := make([]uint64, 6)
	for i := range ids {
		v, err := r.id(cur)
		if err != nil {
			return ClassDumpRecord{}, 0, err
		}
		ids[i] = v
		cur += int64(r.idsize)
	}

	instanceSize, err := r.u32(cur)
	if err != nil {
		return ClassDumpRecord{}, 0, err
	}
	cur += 4

	cd := ClassDumpRecord{
		ClassID:      classID,
		StackSerial:  stackSerial,
		SuperClassID: ids[0],
		LoaderID:     ids[1],
		SignersID:    ids[2],
		ProtDomainID: ids[3],
		Reserved1:    ids[4],
		Reserved2:    ids[5],
		InstanceSize: instanceSize,
	}

	// Constant pool: count(2), then count * (index(2) + type(1) + value(width))
	poolCount, err := r.u16(cur)
	if err != nil {
		return ClassDumpRecord{}, 0, err
	}
	cur += 2
	cd.ConstantPool = make([]ConstantPoolEntry, poolCount)
	for i := range cd.ConstantPool {
		idx, err := r.u16(cur)
		if err != nil {
			return ClassDumpRecord{}, 0, err
		}
		cur += 2
		typeByte, err := r.u8(cur)
		if err != nil {
			return ClassDumpRecord{}, 0, err
		}
		cur += 1
		val, width, err := r.jvalue(cur, JType(typeByte))
		if err != nil {
			return ClassDumpRecord{}, 0, err
		}
		cur += int64(width)
		cd.ConstantPool[i] = ConstantPoolEntry{Index: idx, Type: JType(typeByte), Value: val}
	}

	// Static fields: count(2), then count * (name-id(idsize) + type(1) + value(width))
	staticCount, err := r.u16(cur)
	if err != nil {
		return ClassDumpRecord{}, 0, err
	}
	cur += 2
	cd.StaticFields = make([]StaticField, staticCount)
	for i := range cd.StaticFields {
		nameID, err := r.id(cur)
		if err != nil {
			return ClassDumpRecord{}, 0, err
		}
		cur += int64(r.idsize)
		typeByte, err := r.u8(cur)
		if err != nil {
			return ClassDumpRecord{}, 0, err
		}
		cur += 1
		val, width, err := r.jvalue(cur, JType(typeByte))
		if err != nil {
			return ClassDumpRecord{}, 0, err
		}
		cur += int64(width)
		cd.StaticFields[i] = StaticField{Field: Field{NameID: nameID, Type: JType(typeByte)}, Value: val}
	}

	// Instance fields: count(2), then count * (name-id(idsize) + type(1))
	instCount, err := r.u16(cur)
	if err != nil {
		return ClassDumpRecord{}, 0, err
	}
	cur += 2
	cd.InstanceFields = make([]Field, instCount)
	for i := range cd.InstanceFields {
		nameID, err := r.id(cur)
		if err != nil {
			return ClassDumpRecord{}, 0, err
		}
		cur += int64(r.idsize)
		typeByte, err := r.u8(cur)
		if err != nil {
			return ClassDumpRecord{}, 0, err
		}
		cur += 1
		if _, ok := JType(typeByte).size(r.idsize); !ok {
			return ClassDumpRecord{}, 0, badFormat("class 0x%x instance field has invalid type tag 0x%x", classID, typeByte)
		}
		cd.InstanceFields[i] = Field{NameID: nameID, Type: JType(typeByte)}
	}

	return cd, cur, nil
}
