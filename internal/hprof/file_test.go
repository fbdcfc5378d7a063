package hprof

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wroldwiedbwe/hprofkit/internal/testutil"
)

// Scenario 1: minimal empty file.
func TestOpenBytes_MinimalEmptyFile(t *testing.T) {
	b := testutil.NewHprofBuilder(4, "1.0.3", 0)

	f, err := OpenBytes(b.Bytes())
	require.NoError(t, err)
	defer f.Close()

	h := f.Header()
	assert.Equal(t, 4, h.IDSize)
	assert.Equal(t, time.Unix(0, 0).UTC(), h.StartTime)

	records, err := f.Records()
	require.NoError(t, err)
	assert.Empty(t, records)

	dumps, err := f.Dumps()
	require.NoError(t, err)
	assert.Empty(t, dumps)
}

// Scenario 2: one name.
func TestOpenBytes_OneName(t *testing.T) {
	b := testutil.NewHprofBuilder(4, "1.0.3", 0)
	b.Utf8(1, "hello")

	f, err := OpenBytes(b.Bytes())
	require.NoError(t, err)
	defer f.Close()

	name, err := f.Name(1)
	require.NoError(t, err)
	assert.Equal(t, "hello", name.String)
}

// Scenario 3: duplicate name -> BadFormat.
func TestOpenBytes_DuplicateName(t *testing.T) {
	b := testutil.NewHprofBuilder(4, "1.0.3", 0)
	b.Utf8(1, "hello")
	b.Utf8(1, "hello")

	f, err := OpenBytes(b.Bytes())
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Name(1)
	require.Error(t, err)
	assert.True(t, IsBadFormat(err), "expected BadFormat, got %v", err)
}

// Scenario 4: class load + instance, signed-int field decode.
func TestOpenBytes_ClassLoadAndInstance(t *testing.T) {
	b := testutil.NewHprofBuilder(4, "1.0.3", 0)
	b.Utf8(0x64, "com/Ex")
	b.LoadClass(1, 0x1000, 0, 0x64)

	classBody := b.ClassDump(0x1000, 0, 0, []testutil.FieldSpec{{NameID: 0x64, Type: byte(JTypeInt)}})
	instBody := b.InstanceDump(0x2000, 0x1000, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	b.HeapDump(append(classBody, instBody...))

	f, err := OpenBytes(b.Bytes())
	require.NoError(t, err)
	defer f.Close()

	dumps, err := f.Dumps()
	require.NoError(t, err)
	require.Len(t, dumps, 1)

	obj, ok := dumps[0].Object(0x2000)
	require.True(t, ok)

	v, err := Get(obj, "com/Ex")
	require.NoError(t, err)
	assert.Equal(t, JTypeInt, v.Type)
	assert.Equal(t, int32(-559038737), v.Value)

	cls, ok := dumps[0].ClassByID(0x1000)
	require.True(t, ok)
	assert.Equal(t, "com.Ex", cls.Name)
}

// Scenario 5: narrowing / field shadowing.
func TestCast_NarrowingShadowedField(t *testing.T) {
	b := testutil.NewHprofBuilder(4, "1.0.3", 0)
	b.Utf8(1, "A")
	b.Utf8(2, "B")
	b.Utf8(3, "x")
	b.LoadClass(1, 0x10, 0, 1) // A
	b.LoadClass(2, 0x20, 0, 2) // B extends A

	aBody := b.ClassDump(0x10, 0, 0, []testutil.FieldSpec{{NameID: 3, Type: byte(JTypeInt)}})
	bBody := b.ClassDump(0x20, 0x10, 0, []testutil.FieldSpec{{NameID: 3, Type: byte(JTypeInt)}})
	// Data layout is root-to-leaf: A.x first, then B.x.
	instBody := b.InstanceDump(0x30, 0x20, append(testutil.Int32Field(1), testutil.Int32Field(2)...))
	b.HeapDump(append(append(aBody, bBody...), instBody...))

	f, err := OpenBytes(b.Bytes())
	require.NoError(t, err)
	defer f.Close()

	dumps, err := f.Dumps()
	require.NoError(t, err)

	obj, ok := dumps[0].Object(0x30)
	require.True(t, ok)

	v, err := Get(obj, "x")
	require.NoError(t, err)
	assert.Equal(t, int32(2), v.Value)

	aClass, ok := dumps[0].ClassByID(0x10)
	require.True(t, ok)

	narrowed, err := Cast(obj, aClass)
	require.NoError(t, err)

	v, err = Get(narrowed, "x")
	require.NoError(t, err)
	assert.Equal(t, int32(1), v.Value)

	// cast(cast(x, T), T) == cast(x, T)
	twice, err := Cast(narrowed, aClass)
	require.NoError(t, err)
	assert.Equal(t, narrowed, twice)

	// cast(x, dynamic_type(x)) is x
	same, err := Cast(obj, obj.Class)
	require.NoError(t, err)
	assert.Same(t, obj, same)
}

// Scenario 6: idsize variation produces identical logical results.
func TestOpenBytes_IdsizeVariation(t *testing.T) {
	for _, idsize := range []int{3, 4, 5} {
		idsize := idsize
		t.Run(idsizeLabel(idsize), func(t *testing.T) {
			b := testutil.NewHprofBuilder(idsize, "1.0.3", 0)
			b.Utf8(1, "com/Ex")
			b.LoadClass(1, 0x10, 0, 1)
			classBody := b.ClassDump(0x10, 0, 0, nil)
			instBody := b.InstanceDump(0x20, 0x10, nil)
			b.HeapDump(append(classBody, instBody...))

			f, err := OpenBytes(b.Bytes())
			require.NoError(t, err)
			defer f.Close()

			dumps, err := f.Dumps()
			require.NoError(t, err)
			require.Len(t, dumps, 1)

			cls, ok := dumps[0].Class("com.Ex")
			require.True(t, ok)
			assert.Equal(t, "com.Ex", cls.Name)

			_, ok = dumps[0].Object(0x20)
			assert.True(t, ok)
		})
	}
}

func idsizeLabel(idsize int) string {
	switch idsize {
	case 3:
		return "idsize=3"
	case 4:
		return "idsize=4"
	case 5:
		return "idsize=5"
	default:
		return "idsize=other"
	}
}

// Boundary: header truncated right after magic.
func TestOpenBytes_TruncatedAfterMagic(t *testing.T) {
	_, err := OpenBytes([]byte("JAVA PROFILE "))
	require.Error(t, err)
	assert.True(t, IsBadFormat(err))
}

// Boundary: unknown version.
func TestOpenBytes_UnknownVersion(t *testing.T) {
	b := testutil.NewHprofBuilder(4, "9.9.9", 0)
	_, err := OpenBytes(b.Bytes())
	require.Error(t, err)
	assert.True(t, IsBadFormat(err))
	assert.Contains(t, err.Error(), "9.9.9")
}

// Boundary: instance dump referencing an unknown class id.
func TestDumps_UnknownClassReference(t *testing.T) {
	b := testutil.NewHprofBuilder(4, "1.0.3", 0)
	instBody := b.InstanceDump(0x20, 0xDEAD, nil)
	b.HeapDump(instBody)

	f, err := OpenBytes(b.Bytes())
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Dumps()
	require.Error(t, err)
	assert.True(t, IsClassNotFound(err))
}

// Regression: raising the index level after a lower level was already built
// must not re-sweep and re-insert records that level already cached.
func TestEnsureLevel_RaisingLevelIsIdempotent(t *testing.T) {
	b := testutil.NewHprofBuilder(4, "1.0.3", 0)
	b.Utf8(0x64, "com/Ex")
	b.LoadClass(1, 0x1000, 0, 0x64)
	classBody := b.ClassDump(0x1000, 0, 0, nil)
	instBody := b.InstanceDump(0x2000, 0x1000, nil)
	b.HeapDump(append(classBody, instBody...))

	f, err := OpenBytes(b.Bytes())
	require.NoError(t, err)
	defer f.Close()

	name, err := f.Name(0x64)
	require.NoError(t, err)
	assert.Equal(t, "com/Ex", name.String)

	// Name() built only levelNames; Dumps() must raise to levelDumps without
	// re-decoding (and re-rejecting as a duplicate) the Utf8 record above.
	dumps, err := f.Dumps()
	require.NoError(t, err)
	require.Len(t, dumps, 1)

	cls, ok := dumps[0].Class("com.Ex")
	require.True(t, ok)
	assert.Equal(t, "com.Ex", cls.Name)
}

// Scenario: heap-tagged objects partition into one Heap per tag, in order of
// first appearance; objects dumped before any tag land in the default heap.
func TestDumps_HeapPartitioning(t *testing.T) {
	b := testutil.NewHprofBuilder(4, "1.0.3", 0)
	b.Utf8(0x64, "com/Ex")
	b.Utf8(0x200, "young")
	b.Utf8(0x201, "old")
	b.LoadClass(1, 0x1000, 0, 0x64)

	classBody := b.ClassDump(0x1000, 0, 0, nil)
	untagged := b.InstanceDump(0x10, 0x1000, nil)
	youngInfo := b.HeapDumpInfo(1, 0x200)
	youngInst := b.InstanceDump(0x20, 0x1000, nil)
	oldInfo := b.HeapDumpInfo(2, 0x201)
	oldInst := b.InstanceDump(0x30, 0x1000, nil)

	body := append([]byte{}, classBody...)
	body = append(body, untagged...)
	body = append(body, youngInfo...)
	body = append(body, youngInst...)
	body = append(body, oldInfo...)
	body = append(body, oldInst...)
	b.HeapDump(body)

	f, err := OpenBytes(b.Bytes())
	require.NoError(t, err)
	defer f.Close()

	dumps, err := f.Dumps()
	require.NoError(t, err)
	require.Len(t, dumps, 1)

	heaps := dumps[0].Heaps()
	require.Len(t, heaps, 3)

	assert.Equal(t, uint32(0), heaps[0].ID())
	assert.Equal(t, "", heaps[0].Name())
	_, ok := heaps[0].ByID(0x10)
	assert.True(t, ok)

	assert.Equal(t, uint32(1), heaps[1].ID())
	assert.Equal(t, "young", heaps[1].Name())
	_, ok = heaps[1].ByID(0x20)
	assert.True(t, ok)

	assert.Equal(t, uint32(2), heaps[2].ID())
	assert.Equal(t, "old", heaps[2].Name())
	_, ok = heaps[2].ByID(0x30)
	assert.True(t, ok)

	h, ok := dumps[0].Heap(1)
	require.True(t, ok)
	assert.Equal(t, "young", h.Name())
}

// Boundary: an instance dump's data doesn't match its class's encoded field
// size.
func TestDumps_InstanceDataLengthMismatch(t *testing.T) {
	b := testutil.NewHprofBuilder(4, "1.0.3", 0)
	b.Utf8(0x64, "com/Ex")
	b.Utf8(0x65, "x")
	b.LoadClass(1, 0x1000, 0, 0x64)

	classBody := b.ClassDump(0x1000, 0, 0, []testutil.FieldSpec{{NameID: 0x65, Type: byte(JTypeInt)}})
	// Declares one int field (4 bytes) but supplies 8.
	instBody := b.InstanceDump(0x2000, 0x1000, append(testutil.Int32Field(1), testutil.Int32Field(2)...))
	b.HeapDump(append(classBody, instBody...))

	f, err := OpenBytes(b.Bytes())
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Dumps()
	require.Error(t, err)
	assert.True(t, IsBadFormat(err), "expected BadFormat, got %v", err)
}
