package recovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aura-id/aura/internal/errs"
	"github.com/aura-id/aura/internal/hpke"
	"github.com/aura-id/aura/internal/idkey"
)

func guardians(n int) []idkey.GuardianID {
	out := make([]idkey.GuardianID, n)
	for i := range out {
		out[i] = idkey.NewGuardianID([]byte{byte(i)})
	}
	return out
}

// sealedApproval seals share for recipientPK under the AAD binding
// Reconstruct requires, producing a ready-to-submit Approval.
func sealedApproval(t *testing.T, recoveryID idkey.SessionID, guardianID idkey.GuardianID, recipientPK interface{}, share []byte) Approval {
	t.Helper()
	ct, err := hpke.EncryptWithAAD(recipientPK, share, GuardianShareAAD(recoveryID, guardianID))
	require.NoError(t, err)
	return Approval{RecoveryID: recoveryID, GuardianID: guardianID, ShareData: &ct}
}

// Scenario 4: Guardian recovery 2-of-3 happy path.
func TestCoordinator_TwoOfThreeHappyPath(t *testing.T) {
	c := NewCoordinator(DefaultPolicy(), nil, nil)
	g := guardians(3)
	requester := idkey.NewDeviceID([]byte("requester"))
	rid := idkey.NewSessionID([]byte("rec-1"))
	now := time.Now()

	st, err := c.Initiate(rid, requester, AddDevice, g, 2, Normal, "lost device", now, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 2, st.Threshold)

	pub, priv, err := hpke.GenerateKeyPair()
	require.NoError(t, err)

	_, err = c.Approve(rid, sealedApproval(t, rid, g[0], pub, []byte("share-0")), now)
	require.NoError(t, err)
	st, err = c.Approve(rid, sealedApproval(t, rid, g[1], pub, []byte("share-1")), now)
	require.NoError(t, err)
	require.Equal(t, Reconstructing, st.Phase)

	var recoveredShares map[idkey.GuardianID][]byte
	st, err = c.Reconstruct(rid, priv, now, func(_ *State, shares map[idkey.GuardianID][]byte) error {
		recoveredShares = shares
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, Completed, st.Phase)
	require.Equal(t, 2, st.Metrics.GuardiansApproved)
	require.Equal(t, 3, st.Metrics.GuardiansContacted)
	require.Equal(t, []byte("share-0"), recoveredShares[g[0]])
	require.Equal(t, []byte("share-1"), recoveredShares[g[1]])
}

// Scenario 4b: a guardian share sealed for a different recovery_id
// cannot be replayed into this ceremony's reconstruction.
func TestCoordinator_ReconstructRejectsReplayedShare(t *testing.T) {
	c := NewCoordinator(DefaultPolicy(), nil, nil)
	g := guardians(3)
	requester := idkey.NewDeviceID([]byte("requester"))
	rid := idkey.NewSessionID([]byte("rec-1b"))
	otherRid := idkey.NewSessionID([]byte("rec-other"))
	now := time.Now()

	_, err := c.Initiate(rid, requester, AddDevice, g, 2, Normal, "lost device", now, time.Hour)
	require.NoError(t, err)

	pub, priv, err := hpke.GenerateKeyPair()
	require.NoError(t, err)

	// Sealed under otherRid's AAD binding, then submitted against rid.
	replayed := sealedApproval(t, otherRid, g[0], pub, []byte("share-0"))
	replayed.RecoveryID = rid
	_, err = c.Approve(rid, replayed, now)
	require.NoError(t, err)
	st, err := c.Approve(rid, sealedApproval(t, rid, g[1], pub, []byte("share-1")), now)
	require.NoError(t, err)
	require.Equal(t, Reconstructing, st.Phase)

	st, err = c.Reconstruct(rid, priv, now, func(*State, map[idkey.GuardianID][]byte) error { return nil })
	require.Error(t, err)
	require.Equal(t, RecFailed, st.Phase)
}

// Scenario 4c: an approval with no share data at all fails reconstruction.
func TestCoordinator_ReconstructRejectsMissingShareData(t *testing.T) {
	c := NewCoordinator(DefaultPolicy(), nil, nil)
	g := guardians(3)
	requester := idkey.NewDeviceID([]byte("requester"))
	rid := idkey.NewSessionID([]byte("rec-1c"))
	now := time.Now()

	_, err := c.Initiate(rid, requester, AddDevice, g, 2, Normal, "lost device", now, time.Hour)
	require.NoError(t, err)

	_, priv, err := hpke.GenerateKeyPair()
	require.NoError(t, err)

	_, err = c.Approve(rid, Approval{RecoveryID: rid, GuardianID: g[0], ApprovedAt: now}, now)
	require.NoError(t, err)
	st, err := c.Approve(rid, Approval{RecoveryID: rid, GuardianID: g[1], ApprovedAt: now}, now)
	require.NoError(t, err)
	require.Equal(t, Reconstructing, st.Phase)

	st, err = c.Reconstruct(rid, priv, now, func(*State, map[idkey.GuardianID][]byte) error { return nil })
	require.Error(t, err)
	require.Equal(t, RecFailed, st.Phase)
}

// Scenario 5: Guardian recovery with insufficient guardians.
func TestCoordinator_InsufficientGuardiansRejected(t *testing.T) {
	c := NewCoordinator(DefaultPolicy(), nil, nil)
	g := guardians(2)
	requester := idkey.NewDeviceID([]byte("requester"))
	rid := idkey.NewSessionID([]byte("rec-2"))

	_, err := c.Initiate(rid, requester, AddDevice, g, 3, Normal, "justification", time.Now(), time.Hour)
	require.Error(t, err)
	var pv *errs.PolicyViolationError
	require.ErrorAs(t, err, &pv)
	require.NotEmpty(t, pv.Violations)
}

func TestCoordinator_CooldownBlocksRepeatedRequest(t *testing.T) {
	c := NewCoordinator(DefaultPolicy(), nil, nil)
	g := guardians(3)
	requester := idkey.NewDeviceID([]byte("requester"))
	now := time.Now()

	_, err := c.Initiate(idkey.NewSessionID([]byte("rec-a")), requester, AddDevice, g, 2, Normal, "j", now, time.Hour)
	require.NoError(t, err)

	_, err = c.Initiate(idkey.NewSessionID([]byte("rec-b")), requester, AddDevice, g, 2, Normal, "j", now.Add(time.Minute), time.Hour)
	require.Error(t, err)
}

func TestCoordinator_EmergencyPriorityRaisesThreshold(t *testing.T) {
	c := NewCoordinator(DefaultPolicy(), nil, nil)
	g := guardians(3)
	requester := idkey.NewDeviceID([]byte("requester"))

	st, err := c.Initiate(idkey.NewSessionID([]byte("rec-emg")), requester, RemoveDevice, g, 1, Emergency, "compromised", time.Now(), time.Hour)
	require.NoError(t, err)
	require.Equal(t, 3, st.Threshold) // raised from 1 to the emergency minimum
}

func TestCoordinator_DisputeFreezesOutcome(t *testing.T) {
	c := NewCoordinator(DefaultPolicy(), nil, nil)
	g := guardians(2)
	requester := idkey.NewDeviceID([]byte("requester"))
	rid := idkey.NewSessionID([]byte("rec-3"))
	now := time.Now()

	pub, priv, err := hpke.GenerateKeyPair()
	require.NoError(t, err)

	_, err = c.Initiate(rid, requester, AddDevice, g, 2, Normal, "j", now, time.Hour)
	require.NoError(t, err)
	_, err = c.Approve(rid, sealedApproval(t, rid, g[0], pub, []byte("share-0")), now)
	require.NoError(t, err)
	st, err := c.Approve(rid, sealedApproval(t, rid, g[1], pub, []byte("share-1")), now)
	require.NoError(t, err)
	require.Equal(t, Reconstructing, st.Phase)

	st, err = c.Reconstruct(rid, priv, now, func(*State, map[idkey.GuardianID][]byte) error { return nil })
	require.NoError(t, err)

	_, err = c.Dispute(rid, now.Add(time.Minute))
	require.ErrorIs(t, err, errs.ErrDisputed)
	require.Equal(t, Disputed, st.Phase)
}

func TestCoordinator_CancelReleasesNoLocks(t *testing.T) {
	c := NewCoordinator(DefaultPolicy(), nil, nil)
	g := guardians(2)
	requester := idkey.NewDeviceID([]byte("requester"))
	rid := idkey.NewSessionID([]byte("rec-4"))

	_, err := c.Initiate(rid, requester, AddDevice, g, 2, Normal, "j", time.Now(), time.Hour)
	require.NoError(t, err)
	st, err := c.Cancel(rid)
	require.NoError(t, err)
	require.Equal(t, Cancelled, st.Phase)

	// A distinct recovery_id for the same requester may retry immediately.
	rid2 := idkey.NewSessionID([]byte("rec-4b"))
	_, err = c.Initiate(rid2, requester, AddDevice, g, 2, Normal, "j", time.Now(), time.Hour)
	require.NoError(t, err)
}
