package testutil

import (
	"bytes"
	"encoding/binary"
)

// HprofBuilder constructs a well-formed (or deliberately malformed) HPROF
// byte buffer one record at a time, for tests that need real bytes to feed
// hprof.OpenBytes rather than mocking the parser itself.
type HprofBuilder struct {
	idsize  int
	buf     bytes.Buffer
	version string
}

// NewHprofBuilder starts a buffer with the fixed-format header: magic,
// NUL-terminated version, 4-byte idsize, 8-byte big-endian ms timestamp.
func NewHprofBuilder(idsize int, version string, startMillis int64) *HprofBuilder {
	b := &HprofBuilder{idsize: idsize, version: version}
	b.buf.WriteString("JAVA PROFILE ")
	b.buf.WriteString(version)
	b.buf.WriteByte(0)
	var idsizeBuf [4]byte
	binary.BigEndian.PutUint32(idsizeBuf[:], uint32(idsize))
	b.buf.Write(idsizeBuf[:])
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(startMillis))
	b.buf.Write(tsBuf[:])
	return b
}

// Bytes returns the accumulated buffer.
func (b *HprofBuilder) Bytes() []byte {
	return b.buf.Bytes()
}

// id encodes v as an idsize-wide big-endian value.
func (b *HprofBuilder) id(v uint64) []byte {
	buf := make([]byte, b.idsize)
	for i := 0; i < b.idsize; i++ {
		buf[b.idsize-1-i] = byte(v >> (8 * i))
	}
	return buf
}

func u32(v uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return buf[:]
}

func u16(v uint16) []byte {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	return buf[:]
}

// record appends one top-level record: tag(1), delta(4, unused by this
// package, written as 0), body-length(4), body.
func (b *HprofBuilder) record(tag byte, body []byte) {
	b.buf.WriteByte(tag)
	b.buf.Write(u32(0))
	b.buf.Write(u32(uint32(len(body))))
	b.buf.Write(body)
}

// Utf8 appends a tag-0x01 Utf8 record.
func (b *HprofBuilder) Utf8(id uint64, s string) *HprofBuilder {
	body := append(b.id(id), []byte(s)...)
	b.record(0x01, body)
	return b
}

// LoadClass appends a tag-0x02 class-load record.
func (b *HprofBuilder) LoadClass(classSerial uint32, classID uint64, stackSerial uint32, nameID uint64) *HprofBuilder {
	var body []byte
	body = append(body, u32(classSerial)...)
	body = append(body, b.id(classID)...)
	body = append(body, u32(stackSerial)...)
	body = append(body, b.id(nameID)...)
	b.record(0x02, body)
	return b
}

// HeapDump appends a tag-0x0c heap-dump record wrapping body (the
// concatenation of one or more subrecords built with ClassDump/
// InstanceDump/ObjectArrayDump/HeapDumpInfo).
func (b *HprofBuilder) HeapDump(body []byte) *HprofBuilder {
	b.record(0x0c, body)
	return b
}

// FieldSpec describes one instance field in a ClassDump.
type FieldSpec struct {
	NameID uint64
	Type   byte // hprof.JType value
}

// ClassDump builds a heap-tag-0x20 subrecord body: classID, superID and the
// other five header ids (zeroed beyond super/loader), instance size,
// zero-length constant-pool and static-field blocks, then the given
// instance fields.
func (b *HprofBuilder) ClassDump(classID, superID, loaderID uint64, fields []FieldSpec) []byte {
	var body []byte
	body = append(body, 0x20)
	body = append(body, b.id(classID)...)
	body = append(body, u32(0)...) // stack serial
	body = append(body, b.id(superID)...)
	body = append(body, b.id(loaderID)...)
	body = append(body, b.id(0)...) // signers
	body = append(body, b.id(0)...) // prot domain
	body = append(body, b.id(0)...) // reserved1
	body = append(body, b.id(0)...) // reserved2
	body = append(body, u32(0)...) // instance size (not consulted)
	body = append(body, u16(0)...) // constant pool count
	body = append(body, u16(0)...) // static field count
	body = append(body, u16(uint16(len(fields)))...)
	for _, f := range fields {
		body = append(body, b.id(f.NameID)...)
		body = append(body, f.Type)
	}
	return body
}

// InstanceDump builds a heap-tag-0x21 subrecord body for objID of class
// classID, with data already encoded in field-declaration order.
func (b *HprofBuilder) InstanceDump(objID, classID uint64, data []byte) []byte {
	var body []byte
	body = append(body, 0x21)
	body = append(body, b.id(objID)...)
	body = append(body, u32(0)...) // stack serial
	body = append(body, b.id(classID)...)
	body = append(body, u32(uint32(len(data)))...)
	body = append(body, data...)
	return body
}

// ObjectArrayDump builds a heap-tag-0x22 subrecord body.
func (b *HprofBuilder) ObjectArrayDump(objID, elemClassID uint64, elems []uint64) []byte {
	var body []byte
	body = append(body, 0x22)
	body = append(body, b.id(objID)...)
	body = append(body, u32(0)...)
	body = append(body, u32(uint32(len(elems)))...)
	body = append(body, b.id(elemClassID)...)
	for _, e := range elems {
		body = append(body, b.id(e)...)
	}
	return body
}

// HeapDumpInfo builds a heap-tag-0xFE subrecord body, naming the heap that
// subsequent subrecords in the segment belong to until the next such tag.
func (b *HprofBuilder) HeapDumpInfo(heapID uint32, nameID uint64) []byte {
	var body []byte
	body = append(body, 0xFE)
	body = append(body, u32(heapID)...)
	body = append(body, b.id(nameID)...)
	return body
}

// Int32Field encodes a signed 32-bit int field value, big-endian, for use in
// InstanceDump's data.
func Int32Field(v int32) []byte {
	return u32(uint32(v))
}
