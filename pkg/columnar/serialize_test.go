package columnar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeDeserializePlainInt(t *testing.T) {
	values := []int64{9, 1, 5, 1}
	codec, data, typ := EncodeInt(values, nil)

	blob, err := SerializeColumn(codec, data, typ, len(values))
	require.NoError(t, err)

	buf, err := DeserializeColumn(blob)
	require.NoError(t, err)
	ib, ok := buf.(*Int64Buffer)
	require.True(t, ok)
	assert.Equal(t, values, ib.Values)
}

func TestSerializeDeserializeDeltaEncodedInt(t *testing.T) {
	values := []int64{3, 3, 8, 20, 20}
	codec, data, typ := EncodeInt(values, nil)

	blob, err := SerializeColumn(codec, data, typ, len(values))
	require.NoError(t, err)

	buf, err := DeserializeColumn(blob)
	require.NoError(t, err)
	ib := buf.(*Int64Buffer)
	assert.Equal(t, values, ib.Values)
}

func TestSerializeDeserializeIntWithNulls(t *testing.T) {
	values := []int64{9, 1, 5, 1}
	nulls := NewBitset(4)
	nulls.Set(2, true)
	codec, data, typ := EncodeInt(values, nulls)

	blob, err := SerializeColumn(codec, data, typ, len(values))
	require.NoError(t, err)

	buf, err := DeserializeColumn(blob)
	require.NoError(t, err)
	ib := buf.(*Int64Buffer)
	assert.Equal(t, values, ib.Values)
	assert.True(t, ib.IsNull(2))
	assert.False(t, ib.IsNull(0))
}

func TestSerializeDeserializeDictString(t *testing.T) {
	values := []string{"red", "green", "red", "red", "blue", "red", "red"}
	codec, data := EncodeString(values, nil)

	blob, err := SerializeColumn(codec, data, TypeString, len(values))
	require.NoError(t, err)

	buf, err := DeserializeColumn(blob)
	require.NoError(t, err)
	sb := buf.(*StringBuffer)
	assert.Equal(t, values, sb.Values)
}

func TestSerializeDeserializeXorFloat(t *testing.T) {
	values := []float64{2.5, 2.5, 2.5, 2.5}
	codec, data := EncodeFloat(values)

	blob, err := SerializeColumn(codec, data, TypeFloat, len(values))
	require.NoError(t, err)

	buf, err := DeserializeColumn(blob)
	require.NoError(t, err)
	fb := buf.(*Float64Buffer)
	assert.InDeltaSlice(t, values, fb.Values, 1e-9)
}

func TestSerializeDeserializeAllNull(t *testing.T) {
	values := []int64{0, 0, 0}
	nulls := NewBitset(3)
	nulls.Set(0, true)
	nulls.Set(1, true)
	nulls.Set(2, true)
	codec, data, typ := EncodeInt(values, nulls)

	blob, err := SerializeColumn(codec, data, typ, len(values))
	require.NoError(t, err)

	buf, err := DeserializeColumn(blob)
	require.NoError(t, err)
	nb, ok := buf.(*NullBuffer)
	require.True(t, ok)
	assert.Equal(t, 3, nb.N)
}

func TestSerializeDeserializeRangeSection(t *testing.T) {
	values := []int64{1000, 1010, 1020, 1030}
	codec, data, typ := EncodeInt(values, nil)

	blob, err := SerializeColumn(codec, data, typ, len(values))
	require.NoError(t, err)

	buf, err := DeserializeColumn(blob)
	require.NoError(t, err)
	ib := buf.(*Int64Buffer)
	assert.Equal(t, values, ib.Values)
}

func TestDeserializeUnknownOpTagFails(t *testing.T) {
	blob, err := SerializeColumn(Codec{Add{Width: WidthU8, Amount: 1}}, []DataSection{IntSection{Width: WidthU8, Values: []int64{1}}}, TypeInt, 1)
	require.NoError(t, err)

	corrupted := append([]byte(nil), blob...)
	corrupted = []byte(replaceOnce(string(corrupted), `"tag":"add"`, `"tag":"bogus_op"`))

	_, err = DeserializeColumn(corrupted)
	assert.Error(t, err)
}

// replaceOnce replaces the first occurrence of old with new, used to
// hand-corrupt a serialized blob for the malformed-input test above.
func replaceOnce(s, old, new string) string {
	i := indexOf(s, old)
	if i < 0 {
		return s
	}
	return s[:i] + new + s[i+len(old):]
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
