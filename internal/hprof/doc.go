// Package hprof parses and navigates Java Virtual Machine heap-dump files
// ("HPROF" format, versions 1.0.2 and 1.0.3).
//
// # Package Organization
//
// The package is organized into logical groups using file name prefixes:
//
//   - types.go:        record/subrecord tag constants, Java primitive types, Header
//   - errors.go:        the seven structured error kinds the format can raise
//   - bytesource.go:    random-access read-only window over the dump bytes
//   - reader.go:        typed big-endian decoders parameterised by idsize
//   - record.go:        top-level record framing and the record catalogue
//   - subrecord.go:      heap-dump subrecord framing (class/instance/array dumps, GC roots)
//   - index.go:         the three-level lazy index builder
//   - dump.go:          Dump/Heap aggregation and two-pass object materialisation
//   - class.go:         JavaClass/JavaArrayClass metatypes and internal-name parsing
//   - object.go:        JavaObject instances, field lookup, Ref narrowing, cast
//   - file.go:          File, the package's single entry point (Open/OpenBytes)
//
// Data flow mirrors the file layout: ByteSource -> Reader -> records -> (name
// table | class-load table | heap dumps) -> class model -> object model.
package hprof
