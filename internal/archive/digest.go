// Package archive walks an already-parsed HPROF dump and persists a flat
// projection of it: one row per observed class, one row per processed file.
// It never mutates the dump it reads, and never recomputes anything the core
// hprof package's Index Builder has not already computed for it (no
// retained-size, no dominator tree, no graph).
package archive

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/wroldwiedbwe/hprofkit/internal/hprof"
	"github.com/wroldwiedbwe/hprofkit/pkg/filter"
	"github.com/wroldwiedbwe/hprofkit/pkg/parallel"
)

// primitiveArrayWidths maps a primitive type's Java name to its encoded byte
// width, mirroring hprof.JType.size but keyed by name since an array
// instance's hprof.JavaClass does not expose its JavaArrayClass.ElementType
// once embedded (see elementWidth).
var primitiveArrayWidths = map[string]int{
	"boolean": 1,
	"byte":    1,
	"char":    2,
	"short":   2,
	"float":   4,
	"int":     4,
	"double":  8,
	"long":    8,
}

// objectHeaderSize and arrayHeaderSize approximate the JVM's per-instance
// bookkeeping overhead (mark word + klass pointer, plus a length word for
// arrays) on a 64-bit HotSpot with compressed oops. hprofkit does not parse a
// JVM's actual object layout, so these are the same fixed constants common
// heap-dump tools (e.g. Eclipse MAT) assume absent more specific data.
const (
	objectHeaderSize = 16
	arrayHeaderSize  = 16
)

// DigestClass is one row of a file digest: all instances of one class
// observed across every Dump in the file, aggregated.
type DigestClass struct {
	ClassID       uint64
	Name          string
	Category      string // filter.ClassCategory.String(), e.g. "business", "jdk"
	InstanceCount int64
	ShallowBytes  int64
}

// Digest is the flat projection of one processed HPROF file: its identity
// (per DigestFile) and the per-class instance/size rollup.
type Digest struct {
	File    DigestFileInfo
	Classes []DigestClass
}

// DigestFileInfo identifies the file a Digest was computed from, independent
// of how it is persisted (see store.go's DigestFile gorm model).
type DigestFileInfo struct {
	Path      string
	IDSize    int
	StartTime time.Time
	DumpCount int
}

// classAgg accumulates one class's instance count and shallow byte total,
// merged across the per-worker local maps parallel.ParallelAggregate builds.
type classAgg struct {
	classID uint64
	name    string
	count   int64
	bytes   int64
}

// Walk materialises every Dump in f and aggregates one DigestClass per
// distinct class observed across all of them, classifying each class with
// clf (nil uses filter.DefaultFilter). path is recorded as the Digest's
// source identity; it need not be f's own path (a COS-fetched file is walked
// from a local temp path but digested under its remote key). The per-object
// rollup runs on pkg/parallel.ParallelAggregate, the teacher's per-worker
// local-map pattern for lock-free concurrent aggregation, since a large dump
// can hold millions of objects and each one's shallow size is independent of
// every other.
func Walk(ctx context.Context, f *hprof.File, path string, clf *filter.ClassFilter) (*Digest, error) {
	if clf == nil {
		clf = filter.DefaultFilter
	}

	dumps, err := f.Dumps()
	if err != nil {
		return nil, err
	}

	idsize := f.Header().IDSize
	var objs []*hprof.JavaObject
	for _, d := range dumps {
		d.Objects(func(obj *hprof.JavaObject) bool {
			objs = append(objs, obj)
			return true
		})
	}

	totals := parallel.ParallelAggregate(ctx, objs, parallel.DefaultPoolConfig(),
		func(obj *hprof.JavaObject) (string, classAgg) {
			return obj.Class.Name, classAgg{
				classID: obj.Class.ClassID,
				name:    obj.Class.Name,
				count:   1,
				bytes:   shallowSize(obj, idsize),
			}
		},
		func(existing, next classAgg) classAgg {
			existing.count += next.count
			existing.bytes += next.bytes
			return existing
		},
	)

	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	sort.Strings(names)

	classes := make([]DigestClass, 0, len(names))
	for _, name := range names {
		a := totals[name]
		classes = append(classes, DigestClass{
			ClassID:       a.classID,
			Name:          a.name,
			Category:      clf.Classify(a.name).String(),
			InstanceCount: a.count,
			ShallowBytes:  a.bytes,
		})
	}

	header := f.Header()
	return &Digest{
		File: DigestFileInfo{
			Path:      path,
			IDSize:    header.IDSize,
			StartTime: header.StartTime,
			DumpCount: len(dumps),
		},
		Classes: classes,
	}, nil
}

// shallowSize estimates obj's own byte footprint: header overhead plus its
// field vector (instance) or element vector (array), never following
// references into other objects.
func shallowSize(obj *hprof.JavaObject, idsize int) int64 {
	if n, err := hprof.ArrayLen(obj); err == nil {
		width := elementWidth(obj.Class.Name, idsize)
		return int64(arrayHeaderSize) + int64(n)*int64(width)
	}

	total := int64(objectHeaderSize)
	for c := obj.Class; c != nil; c = c.Super {
		for _, f := range c.InstanceFields {
			total += int64(fieldWidth(f.Type, idsize))
		}
	}
	return total
}

// elementWidth returns the per-element byte width of an array class name
// (e.g. "int[]", "java.lang.String[]"), following the same "[]"-suffixed
// naming hprof.Dump's object/primitive array metaclasses use.
func elementWidth(arrayClassName string, idsize int) int {
	elem := strings.TrimSuffix(arrayClassName, "[]")
	if w, ok := primitiveArrayWidths[elem]; ok {
		return w
	}
	return idsize // object array: elements are ids
}

// fieldWidth returns the encoded byte width of one instance field, mirroring
// hprof's internal JType.size (unexported, so restated here against the
// same, exported, JType constants).
func fieldWidth(t hprof.JType, idsize int) int {
	switch t {
	case hprof.JTypeObject:
		return idsize
	case hprof.JTypeBoolean, hprof.JTypeByte:
		return 1
	case hprof.JTypeChar, hprof.JTypeShort:
		return 2
	case hprof.JTypeFloat, hprof.JTypeInt:
		return 4
	case hprof.JTypeDouble, hprof.JTypeLong:
		return 8
	default:
		return 0
	}
}
