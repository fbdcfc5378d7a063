package hprof

import (
	"encoding/binary"
	"math"
)

// reader decodes the big-endian primitives that make up HPROF records. It
// carries no position of its own — callers pass an explicit offset for every
// read — since the index builder and object materialiser both need to jump
// around the dump rather than consume it linearly.
type reader struct {
	src    ByteSource
	idsize int
}

func newReader(src ByteSource, idsize int) *reader {
	return &reader{src: src, idsize: idsize}
}

func (r *reader) u8(off int64) (uint8, error) {
	var b [1]byte
	if err := r.src.ReadAt(b[:], off); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u16(off int64) (uint16, error) {
	var b [2]byte
	if err := r.src.ReadAt(b[:], off); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func (r *reader) u32(off int64) (uint32, error) {
	var b [4]byte
	if err := r.src.ReadAt(b[:], off); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func (r *reader) u64(off int64) (uint64, error) {
	var b [8]byte
	if err := r.src.ReadAt(b[:], off); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func (r *reader) i32(off int64) (int32, error) {
	v, err := r.u32(off)
	return int32(v), err
}

func (r *reader) i64(off int64) (int64, error) {
	v, err := r.u64(off)
	return int64(v), err
}

func (r *reader) f32(off int64) (float32, error) {
	v, err := r.u32(off)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (r *reader) f64(off int64) (float64, error) {
	v, err := r.u64(off)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// id reads a dump-wide object/class/string identifier. Its width is fixed by
// the file's idsize, which may be anywhere from 3 to 8 bytes.
func (r *reader) id(off int64) (uint64, error) {
	var b [8]byte
	if err := r.src.ReadAt(b[:r.idsize], off); err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < r.idsize; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}

// bytes reads n raw bytes starting at off.
func (r *reader) bytes(off int64, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if err := r.src.ReadAt(b, off); err != nil {
		return nil, err
	}
	return b, nil
}

// jvalue reads a single value of the given type at off and returns it in its
// natural Go representation: uint64 for object ids, bool for booleans,
// uint16 for chars, int32/int64 for the other integral widths,
// float32/float64 for the floating
// widths. The returned width in bytes is always consistent with JType.size.
func (r *reader) jvalue(off int64, t JType) (interface{}, int, error) {
	width, ok := t.size(r.idsize)
	if !ok {
		return nil, 0, badFormat("invalid value type tag 0x%x", uint8(t))
	}
	switch t {
	case JTypeObject:
		v, err := r.id(off)
		return v, width, err
	case JTypeBoolean:
		v, err := r.u8(off)
		if err != nil {
			return nil, 0, err
		}
		if v > 1 {
			return nil, 0, badFormat("invalid boolean byte 0x%x", v)
		}
		return v != 0, width, nil
	case JTypeByte:
		v, err := r.u8(off)
		return int32(int8(v)), width, err
	case JTypeChar:
		v, err := r.u16(off)
		return v, width, err
	case JTypeShort:
		v, err := r.u16(off)
		return int32(int16(v)), width, err
	case JTypeInt:
		v, err := r.i32(off)
		return v, width, err
	case JTypeLong:
		v, err := r.i64(off)
		return v, width, err
	case JTypeFloat:
		v, err := r.f32(off)
		return v, width, err
	case JTypeDouble:
		v, err := r.f64(off)
		return v, width, err
	default:
		return nil, 0, badFormat("invalid value type tag 0x%x", uint8(t))
	}
}
