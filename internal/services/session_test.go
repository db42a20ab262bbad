package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateReusesSession(t *testing.T) {
	sm := NewSignupManager(time.Hour)

	first := sm.GetOrCreate("org-1")
	second := sm.GetOrCreate("org-1")

	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, 1, sm.ActiveCount())

	sm.GetOrCreate("org-2")
	assert.Equal(t, 2, sm.ActiveCount())
}

func TestSnapshotIsDetachedFromLiveSession(t *testing.T) {
	sm := NewSignupManager(time.Hour)
	sm.GetOrCreate("org-1")

	require.NoError(t, sm.Update("org-1", func(s *SignupSession) error {
		s.State = StateCodeReceived
		s.Attempts[StateCodeReceived] = &Attempt{Status: AttemptInFlight}
		s.SyncJobIDs[SyncJobContacts] = "req-1"
		return nil
	}))

	snapshot, err := sm.Snapshot("org-1")
	require.NoError(t, err)

	// mutating the live session must not show through the snapshot
	require.NoError(t, sm.Update("org-1", func(s *SignupSession) error {
		s.Attempts[StateCodeReceived].Status = AttemptFailed
		s.SyncJobIDs[SyncJobContacts] = "req-2"
		return nil
	}))

	assert.Equal(t, AttemptInFlight, snapshot.Attempts[StateCodeReceived].Status)
	assert.Equal(t, "req-1", snapshot.SyncJobIDs[SyncJobContacts])
}

func TestSnapshotUnknownOrganization(t *testing.T) {
	sm := NewSignupManager(time.Hour)

	_, err := sm.Snapshot("org-missing")
	assert.Error(t, err)

	err = sm.Update("org-missing", func(s *SignupSession) error { return nil })
	assert.Error(t, err)
}

func TestDeleteDiscardsSession(t *testing.T) {
	sm := NewSignupManager(time.Hour)
	sm.GetOrCreate("org-1")

	sm.Delete("org-1")
	_, err := sm.Snapshot("org-1")
	assert.Error(t, err)
	assert.Equal(t, 0, sm.ActiveCount())

	// deleting a missing session is a no-op
	sm.Delete("org-1")
}

func TestCleanupExpiredDropsIdleSessions(t *testing.T) {
	sm := NewSignupManager(10 * time.Millisecond)
	sm.GetOrCreate("org-idle")
	sm.GetOrCreate("org-busy")
	require.NoError(t, sm.Update("org-busy", func(s *SignupSession) error {
		s.busy = true
		return nil
	}))

	time.Sleep(25 * time.Millisecond)
	sm.GetOrCreate("org-active") // fresh, inside TTL

	removed := sm.CleanupExpired()

	// idle session ages out; busy and recently active ones survive
	assert.Equal(t, 1, removed)
	_, err := sm.Snapshot("org-idle")
	assert.Error(t, err)
	_, err = sm.Snapshot("org-busy")
	assert.NoError(t, err)
	_, err = sm.Snapshot("org-active")
	assert.NoError(t, err)
}

func TestNewSessionStartsInitial(t *testing.T) {
	sm := NewSignupManager(time.Hour)
	session := sm.GetOrCreate("org-1")

	assert.Equal(t, StateInitial, session.State)
	assert.Equal(t, BranchUnknown, session.Branch)
	assert.Equal(t, "org-1", session.OrganizationID)
	assert.NotEmpty(t, session.SessionID)
	assert.False(t, session.Busy())
	assert.NotNil(t, session.Attempts)
}
