package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestOpenCreatesEmptyTables(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(dir)
	require.NoError(t, err)

	for _, name := range []string{"verifications.json", "whitelist.json", "bans.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
}

func TestVerificationRoundTrip(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	rec := VerificationRecord{
		UserID:    "42",
		Email:     "ab123@student.le.ac.uk",
		IssuedAt:  now,
		ExpiresAt: now.Add(365 * 24 * time.Hour),
	}
	require.NoError(t, s.PutVerification(rec))

	got, ok, err := s.GetVerification("42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.Email, got.Email)
	assert.True(t, got.ExpiresAt.Equal(rec.ExpiresAt))

	// survives reopen
	s2, err := Open(s.dir)
	require.NoError(t, err)
	got, ok, err = s2.GetVerification("42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.Email, got.Email)

	deleted, err := s.DeleteVerification("42")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeleteVerification("42")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestFindByEmailIsCaseInsensitive(t *testing.T) {
	s := openTestStore(t)
	rec := VerificationRecord{UserID: "1", Email: "person@leicester.ac.uk"}
	require.NoError(t, s.PutVerification(rec))

	userID, ok, err := s.FindByEmail("Person@Leicester.AC.UK")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", userID)

	_, ok, err = s.FindByEmail("other@leicester.ac.uk")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListExpired(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, s.PutVerification(VerificationRecord{
		UserID: "live", Email: "a@x", IssuedAt: now, ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, s.PutVerification(VerificationRecord{
		UserID: "stale", Email: "b@x", IssuedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}))

	expired, err := s.ListExpired(now)
	require.NoError(t, err)
	assert.Equal(t, []string{"stale"}, expired)
}

func TestUsernameClaims(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.AddUsername("a", "Notch"))
	require.NoError(t, s.AddUsername("a", "Herobrine"))

	// same user, same name (case-insensitive)
	assert.ErrorIs(t, s.AddUsername("a", "notch"), ErrUsernameLinked)
	// different user
	assert.ErrorIs(t, s.AddUsername("b", "NOTCH"), ErrUsernameTaken)

	// b's entry was never created
	names, err := s.Usernames("b")
	require.NoError(t, err)
	assert.Empty(t, names)

	owner, ok, err := s.OwnerOfUsername("notch")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", owner)
}

func TestRemoveUsernameRollsBackSingleName(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.AddUsername("a", "Notch"))
	require.NoError(t, s.AddUsername("a", "Herobrine"))

	require.NoError(t, s.RemoveUsername("a", "notch"))

	names, err := s.Usernames("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"Herobrine"}, names)

	// removing the last name drops the entry entirely
	require.NoError(t, s.RemoveUsername("a", "Herobrine"))
	names, err = s.Usernames("a")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestRemoveAllUsernames(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.AddUsername("a", "Notch"))
	require.NoError(t, s.AddUsername("a", "Herobrine"))

	removed, err := s.RemoveAllUsernames("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"Notch", "Herobrine"}, removed)

	removed, err = s.RemoveAllUsernames("a")
	require.NoError(t, err)
	assert.Nil(t, removed)
}

func TestBanList(t *testing.T) {
	s := openTestStore(t)

	added, err := s.AddBan("Bad@Student.le.ac.uk")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.AddBan("bad@student.le.ac.uk")
	require.NoError(t, err)
	assert.False(t, added)

	banned, err := s.IsBanned("BAD@student.le.ac.uk")
	require.NoError(t, err)
	assert.True(t, banned)

	banned, err = s.IsBanned("fine@student.le.ac.uk")
	require.NoError(t, err)
	assert.False(t, banned)
}

func TestCounts(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	require.NoError(t, s.PutVerification(VerificationRecord{UserID: "1", Email: "a@x", IssuedAt: now, ExpiresAt: now}))
	require.NoError(t, s.AddUsername("1", "One"))
	require.NoError(t, s.AddUsername("2", "Two"))
	require.NoError(t, s.AddUsername("2", "Three"))

	verified, err := s.CountVerified()
	require.NoError(t, err)
	assert.Equal(t, 1, verified)

	whitelisted, err := s.CountWhitelisted()
	require.NoError(t, err)
	assert.Equal(t, 3, whitelisted)
}

func TestCorruptFileFailsLoudly(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "verifications.json"), []byte("{not json"), 0o644))

	_, _, err = s.GetVerification("42")
	assert.ErrorIs(t, err, ErrCorruptStore)

	_, err = s.ListExpired(time.Now())
	assert.ErrorIs(t, err, ErrCorruptStore)
}

func TestLockUserSerializesCascades(t *testing.T) {
	s := openTestStore(t)

	unlock := s.LockUser("42")

	acquired := make(chan struct{})
	go func() {
		u := s.LockUser("42")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired the lock while the first still held it")
	case <-time.After(50 * time.Millisecond):
	}

	// a different user is not held up
	otherUnlock := s.LockUser("99")
	otherUnlock()

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second holder never acquired the lock after release")
	}
}
