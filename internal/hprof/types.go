package hprof

import "time"

// RecordTag identifies the kind of a top-level record.
type RecordTag uint8

const (
	TagUtf8             RecordTag = 0x01
	TagLoadClass        RecordTag = 0x02
	TagUnloadClass      RecordTag = 0x03
	TagStackFrame       RecordTag = 0x04
	TagStackTrace       RecordTag = 0x05
	TagAllocSites       RecordTag = 0x06
	TagHeapSummary      RecordTag = 0x07
	TagStartThread      RecordTag = 0x0A
	TagEndThread        RecordTag = 0x0B
	TagHeapDump         RecordTag = 0x0C
	TagCPUSamples       RecordTag = 0x0D
	TagControlSettings  RecordTag = 0x0E
	TagHeapDumpSegment  RecordTag = 0x1C
	TagHeapDumpEnd      RecordTag = 0x2C
)

// HeapDumpTag identifies the kind of a subrecord nested inside a heap dump segment.
type HeapDumpTag uint8

const (
	HeapTagRootUnknown      HeapDumpTag = 0xFF
	HeapTagRootJNIGlobal    HeapDumpTag = 0x01
	HeapTagRootJNILocal     HeapDumpTag = 0x02
	HeapTagRootJavaFrame    HeapDumpTag = 0x03
	HeapTagRootNativeStack  HeapDumpTag = 0x04
	HeapTagRootStickyClass  HeapDumpTag = 0x05
	HeapTagRootThreadBlock  HeapDumpTag = 0x06
	HeapTagRootMonitorUsed  HeapDumpTag = 0x07
	HeapTagRootThreadObject HeapDumpTag = 0x08
	HeapTagClassDump        HeapDumpTag = 0x20
	HeapTagInstanceDump     HeapDumpTag = 0x21
	HeapTagObjectArrayDump  HeapDumpTag = 0x22
	HeapTagPrimArrayDump    HeapDumpTag = 0x23

	// HeapTagHeapDumpInfo assigns a heap id/name to the subrecords that
	// follow it within the segment. Dump partitions its objects into one
	// Heap per such tag (see Dump.Heaps); a dump with no heap tags has a
	// single default heap.
	HeapTagHeapDumpInfo HeapDumpTag = 0xFE
)

// isGCRoot reports whether tag names one of the fixed-shape GC-root subrecords.
func (t HeapDumpTag) isGCRoot() bool {
	switch t {
	case HeapTagRootUnknown, HeapTagRootJNIGlobal, HeapTagRootJNILocal,
		HeapTagRootJavaFrame, HeapTagRootNativeStack, HeapTagRootStickyClass,
		HeapTagRootThreadBlock, HeapTagRootMonitorUsed, HeapTagRootThreadObject:
		return true
	default:
		return false
	}
}

// JType is a Java primitive or object type tag, as it appears in ClassDump
// field schemas and instance-dump values.
type JType uint8

const (
	JTypeObject  JType = 2
	JTypeBoolean JType = 4
	JTypeChar    JType = 5
	JTypeFloat   JType = 6
	JTypeDouble  JType = 7
	JTypeByte    JType = 8
	JTypeShort   JType = 9
	JTypeInt     JType = 10
	JTypeLong    JType = 11
)

func (t JType) String() string {
	switch t {
	case JTypeObject:
		return "object"
	case JTypeBoolean:
		return "boolean"
	case JTypeChar:
		return "char"
	case JTypeFloat:
		return "float"
	case JTypeDouble:
		return "double"
	case JTypeByte:
		return "byte"
	case JTypeShort:
		return "short"
	case JTypeInt:
		return "int"
	case JTypeLong:
		return "long"
	default:
		return "invalid"
	}
}

// size returns the encoded width in bytes of a value of this type, given the
// id size in effect for the file. idsize is only consulted for JTypeObject.
func (t JType) size(idsize int) (int, bool) {
	switch t {
	case JTypeObject:
		return idsize, true
	case JTypeBoolean, JTypeByte:
		return 1, true
	case JTypeChar, JTypeShort:
		return 2, true
	case JTypeFloat, JTypeInt:
		return 4, true
	case JTypeDouble, JTypeLong:
		return 8, true
	default:
		return 0, false
	}
}

// Header is the fixed-format preamble of every HPROF file.
type Header struct {
	Version   string    // "1.0.2" or "1.0.3"
	IDSize    int       // width in bytes of every id in the file
	StartTime time.Time // dump start time, from the big-endian millisecond timestamp
}

const (
	magic             = "JAVA PROFILE "
	magicLen          = len(magic)
	versionAccepted1  = "1.0.2"
	versionAccepted2  = "1.0.3"
)
