package threshold

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aura-id/aura/internal/idkey"
)

func makeShares(n int) []Share {
	shares := make([]Share, n)
	for i := range shares {
		shares[i] = Share{
			Witness:   idkey.NewDeviceID([]byte{byte(i)}),
			NonceComm: []byte{byte(i), 0xAA},
			Value:     []byte{byte(i), 0xBB},
		}
	}
	return shares
}

func TestThreshold_SignVerifyRoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	gk := GroupKey{Public: pub}

	shares := makeShares(3)
	sig, err := ThresholdSign([]byte("msg"), shares, gk, 3)
	require.NoError(t, err)
	require.True(t, ThresholdVerify([]byte("msg"), sig, gk, shares, 3))
}

func TestThreshold_BelowThresholdFails(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	gk := GroupKey{Public: pub}

	_, err = ThresholdSign([]byte("msg"), makeShares(2), gk, 3)
	require.ErrorIs(t, err, ErrBelowThreshold)
}

func TestThreshold_OrderIndependent(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	gk := GroupKey{Public: pub}

	shares := makeShares(3)
	reversed := []Share{shares[2], shares[1], shares[0]}

	sig1, err := ThresholdSign([]byte("msg"), shares, gk, 3)
	require.NoError(t, err)
	sig2, err := ThresholdSign([]byte("msg"), reversed, gk, 3)
	require.NoError(t, err)
	require.Equal(t, sig1.Bytes, sig2.Bytes)
}

func TestThreshold_DifferentMessageFailsVerify(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	gk := GroupKey{Public: pub}

	shares := makeShares(3)
	sig, err := ThresholdSign([]byte("msg"), shares, gk, 3)
	require.NoError(t, err)
	require.False(t, ThresholdVerify([]byte("other"), sig, gk, shares, 3))
}
