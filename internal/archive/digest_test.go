package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wroldwiedbwe/hprofkit/internal/hprof"
	"github.com/wroldwiedbwe/hprofkit/internal/testutil"
	"github.com/wroldwiedbwe/hprofkit/pkg/filter"
)

func TestWalk_AggregatesInstancesAndArrays(t *testing.T) {
	b := testutil.NewHprofBuilder(4, "1.0.3", 0)
	b.Utf8(1, "com/Ex")
	b.LoadClass(1, 0x10, 0, 1)

	classBody := b.ClassDump(0x10, 0, 0, []testutil.FieldSpec{{NameID: 1, Type: byte(hprof.JTypeInt)}})
	inst1 := b.InstanceDump(0x20, 0x10, testutil.Int32Field(1))
	inst2 := b.InstanceDump(0x21, 0x10, testutil.Int32Field(2))
	arr := b.ObjectArrayDump(0x30, 0x10, []uint64{0x20, 0x21})
	b.HeapDump(append(append(append(classBody, inst1...), inst2...), arr...))

	f, err := hprof.OpenBytes(b.Bytes())
	require.NoError(t, err)
	defer f.Close()

	digest, err := Walk(context.Background(), f, "heap.hprof", filter.DefaultFilter)
	require.NoError(t, err)

	assert.Equal(t, "heap.hprof", digest.File.Path)
	assert.Equal(t, 4, digest.File.IDSize)
	assert.Equal(t, 1, digest.File.DumpCount)
	require.Len(t, digest.Classes, 2)

	byName := map[string]DigestClass{}
	for _, c := range digest.Classes {
		byName[c.Name] = c
	}

	instCls, ok := byName["com.Ex"]
	require.True(t, ok)
	assert.Equal(t, int64(2), instCls.InstanceCount)
	// header(16) + one int field(4) = 20 bytes per instance.
	assert.Equal(t, int64(40), instCls.ShallowBytes)

	arrCls, ok := byName["com.Ex[]"]
	require.True(t, ok)
	assert.Equal(t, int64(1), arrCls.InstanceCount)
	// header(16) + 2 elements * idsize(4) = 24 bytes.
	assert.Equal(t, int64(24), arrCls.ShallowBytes)
}

func TestWalk_NilFilterUsesDefault(t *testing.T) {
	b := testutil.NewHprofBuilder(4, "1.0.3", 0)
	f, err := hprof.OpenBytes(b.Bytes())
	require.NoError(t, err)
	defer f.Close()

	digest, err := Walk(context.Background(), f, "empty.hprof", nil)
	require.NoError(t, err)
	assert.Empty(t, digest.Classes)
	assert.Equal(t, 0, digest.File.DumpCount)
}
