package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	Name string
	N    int
}

func TestMarshalUnmarshal_Uncompressed(t *testing.T) {
	in := sample{Name: "offer", N: 7}
	env, err := Marshal(in, false)
	require.NoError(t, err)
	require.Equal(t, CompressionNone, env.Compression)

	var out sample
	require.NoError(t, Unmarshal(env, &out))
	require.Equal(t, in, out)
}

func TestMarshalUnmarshal_RLECompressed(t *testing.T) {
	in := sample{Name: "aaaaaaaaaaaaaaaaaaaa", N: 1}
	env, err := Marshal(in, true)
	require.NoError(t, err)
	require.Equal(t, CompressionRLE, env.Compression)

	var out sample
	require.NoError(t, Unmarshal(env, &out))
	require.Equal(t, in, out)
}

func TestUnmarshal_RejectsUnknownVersion(t *testing.T) {
	env := Envelope{Version: CurrentVersion + 1}
	var out sample
	require.Error(t, Unmarshal(env, &out))
}

func TestRLERoundTrip_EmptyAndSingleByte(t *testing.T) {
	require.Empty(t, rleEncode(nil))
	enc := rleEncode([]byte{5})
	require.Equal(t, []byte{5}, rleDecode(enc))
}

func TestRLERoundTrip_LongRunSplitsAt255(t *testing.T) {
	in := make([]byte, 300)
	for i := range in {
		in[i] = 'x'
	}
	enc := rleEncode(in)
	require.Equal(t, in, rleDecode(enc))
}
