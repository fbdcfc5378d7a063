package hprof

import "github.com/wroldwiedbwe/hprofkit/pkg/utils"

// indexLevel is the Index Builder's staged build-level counter.
type indexLevel int

const (
	levelNone       indexLevel = 0
	levelNames      indexLevel = 1
	levelClassLoads indexLevel = 2
	levelDumps      indexLevel = 3
)

// index is the lazy, multi-level cache described in §4.6: a single sweep
// over the top-level records populates whichever of the three caches sit
// below the requested level. Re-requesting a level already built is a no-op;
// requesting a level that failed mid-build clears and retries the levels
// below it, never leaving a half-populated cache in place.
type index struct {
	level indexLevel

	names      map[uint64]Utf8Name
	classes    map[uint64]ClassLoad // by class id
	classNames map[string]ClassLoad // by resolved name
	dumps      []dumpRange

	logger utils.Logger
}

// dumpRange is the set of segment ranges belonging to one logical Dump, as
// grouped by ensureLevel(levelDumps).
type dumpRange struct {
	segments []heapDumpSegment
}

func newIndex(logger utils.Logger) *index {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	return &index{level: levelNone, logger: logger}
}

// ensureLevel builds the cache up to (at least) target, sweeping the file at
// most once per call regardless of how many levels remain to build.
func (ix *index) ensureLevel(r *reader, off int64, target indexLevel) error {
	if ix.level >= target {
		return nil
	}

	// Clear any cache at or below target that isn't already built, so a
	// failed sweep never leaves stale partial state for the next call. A
	// cache already built by an earlier, lower-target call is left alone:
	// it stays valid and must not be rebuilt by this sweep.
	if ix.level < levelNames && target >= levelNames {
		ix.names = make(map[uint64]Utf8Name)
	}
	if ix.level < levelClassLoads && target >= levelClassLoads {
		ix.classes = make(map[uint64]ClassLoad)
		ix.classNames = make(map[string]ClassLoad)
	}
	if ix.level < levelDumps && target >= levelDumps {
		ix.dumps = nil
	}

	var pendingSegments []heapDumpSegment
	var haveOpenDump bool

	flushDump := func() {
		ix.dumps = append(ix.dumps, dumpRange{segments: pendingSegments})
		pendingSegments = nil
		haveOpenDump = false
	}

	err := frameRecords(r.src, off, func(rec rawRecord) error {
		switch rec.Tag {
		case TagUtf8:
			if ix.level >= levelNames || target < levelNames {
				return nil
			}
			name, err := decodeUtf8Name(r, rec)
			if err != nil {
				return err
			}
			if prev, dup := ix.names[name.ID]; dup {
				return badFormat("duplicate name id 0x%x (records at offsets %d and %d)", name.ID, prev.Offset, rec.BodyOff)
			}
			ix.names[name.ID] = name

		case TagLoadClass:
			if ix.level >= levelClassLoads || target < levelClassLoads {
				return nil
			}
			cl, err := decodeClassLoad(r, rec)
			if err != nil {
				return err
			}
			if name, ok := ix.names[cl.NameID]; ok {
				cl.Name = internalNameToJava(name.String)
			} else {
				return refError("class load at offset %d references unknown name id 0x%x", rec.BodyOff, cl.NameID)
			}
			if _, dup := ix.classes[cl.ClassID]; dup {
				return badFormat("duplicate class id 0x%x (class-load at offset %d)", cl.ClassID, rec.BodyOff)
			}
			if _, dup := ix.classNames[cl.Name]; dup {
				return badFormat("duplicate class name %q (class-load at offset %d)", cl.Name, rec.BodyOff)
			}
			ix.classes[cl.ClassID] = cl
			ix.classNames[cl.Name] = cl

		case TagUnloadClass:
			// Per §9's open question: unload records are observed but left
			// unhandled, preserving the conservative default that a repeat
			// of a class id/name is a hard error rather than a relaxation.
			return nil

		case TagHeapDump, TagHeapDumpSegment:
			if ix.level >= levelDumps || target < levelDumps {
				return nil
			}
			pendingSegments = append(pendingSegments, heapDumpSegment{Offset: rec.BodyOff, Length: rec.BodyLen})
			haveOpenDump = true

		case TagHeapDumpEnd:
			if ix.level >= levelDumps || target < levelDumps {
				return nil
			}
			if haveOpenDump {
				flushDump()
			} else {
				// A HeapDumpEnd with no preceding segment still yields an
				// empty Dump, per the open question in §9.
				ix.dumps = append(ix.dumps, dumpRange{})
			}
		}
		return nil
	})
	if err != nil {
		// Leave the level unchanged; caches below target were cleared above
		// and remain cleared, so the next call retries cleanly.
		return err
	}

	if target >= levelDumps && haveOpenDump {
		// A trailing group of segments without a terminating HeapDumpEnd
		// still becomes a final Dump.
		flushDump()
	}

	ix.level = target
	ix.logger.Debug("index built level=%d names=%d classes=%d dumps=%d", int(target), len(ix.names), len(ix.classes), len(ix.dumps))
	return nil
}
