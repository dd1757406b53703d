package verify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leicestercs/societybot/internal/store"
	"github.com/leicestercs/societybot/internal/whitelist"
)

const (
	leicesterRole   = "role-leicester"
	dmuRole         = "role-dmu"
	whitelistedRole = "role-whitelisted"
)

var testDomains = map[string]string{
	"student.le.ac.uk": leicesterRole,
	"leicester.ac.uk":  leicesterRole,
	"dmu.ac.uk":        dmuRole,
}

type sentMail struct {
	to   string
	code string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeMailer) Send(_ context.Context, to, code string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{to: to, code: code})
	return nil
}

type fakeRoles struct {
	mu      sync.Mutex
	held    map[string]map[string]bool
	grants  []string
	revokes []string
}

func newFakeRoles() *fakeRoles {
	return &fakeRoles{held: map[string]map[string]bool{}}
}

func (f *fakeRoles) Grant(_ context.Context, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[userID] == nil {
		f.held[userID] = map[string]bool{}
	}
	f.held[userID][roleID] = true
	f.grants = append(f.grants, userID+":"+roleID)
	return nil
}

func (f *fakeRoles) Revoke(_ context.Context, userID string, roleIDs ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range roleIDs {
		delete(f.held[userID], id)
		f.revokes = append(f.revokes, userID+":"+id)
	}
	return nil
}

func (f *fakeRoles) HasRole(ctx context.Context, userID, roleID string) (bool, error) {
	return f.HasAnyRole(ctx, userID, roleID)
}

func (f *fakeRoles) HasAnyRole(_ context.Context, userID string, roleIDs ...string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range roleIDs {
		if f.held[userID][id] {
			return true, nil
		}
	}
	return false, nil
}

type fakeAllowList struct {
	mu      sync.Mutex
	adds    []string
	removes [][]string
}

func (f *fakeAllowList) Add(_ context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adds = append(f.adds, username)
	return nil
}

func (f *fakeAllowList) Remove(_ context.Context, usernames ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removes = append(f.removes, usernames)
	return nil
}

type fixture struct {
	svc       *Service
	whitelist *whitelist.Service
	store     *store.Store
	mailer    *fakeMailer
	roles     *fakeRoles
	allowList *fakeAllowList
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)

	m := &fakeMailer{}
	r := newFakeRoles()
	al := &fakeAllowList{}

	wl := whitelist.NewService(testLogger(), st, al, r, []string{leicesterRole, dmuRole}, whitelistedRole)
	svc := NewService(testLogger(), st, m, r, wl, testDomains, 15*time.Minute, 365*24*time.Hour)
	svc.newCode = func() (int, error) { return 4821, nil }

	return &fixture{svc: svc, whitelist: wl, store: st, mailer: m, roles: r, allowList: al}
}

func TestSubmitEmailValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.SubmitEmail(ctx, "42", "not-an-email"), ErrInvalidEmail)
	assert.ErrorIs(t, f.svc.SubmitEmail(ctx, "42", "someone@gmail.com"), ErrDisallowedDomain)
	assert.Empty(t, f.mailer.sent)
	assert.Empty(t, f.svc.pending)
}

func TestSubmitEmailBannedGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.AddBan("bad@student.le.ac.uk")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.SubmitEmail(ctx, "42", "Bad@Student.le.ac.uk"), ErrEmailBanned)
	assert.Empty(t, f.mailer.sent)
}

func TestSubmitEmailAlreadyVerified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, f.store.PutVerification(store.VerificationRecord{
		UserID: "42", Email: "ab123@student.le.ac.uk",
		IssuedAt: now, ExpiresAt: now.Add(time.Hour),
	}))
	assert.ErrorIs(t, f.svc.SubmitEmail(ctx, "42", "ab123@student.le.ac.uk"), ErrAlreadyVerified)

	// an expired record does not block re-verification
	require.NoError(t, f.store.PutVerification(store.VerificationRecord{
		UserID: "42", Email: "ab123@student.le.ac.uk",
		IssuedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}))
	assert.NoError(t, f.svc.SubmitEmail(ctx, "42", "ab123@student.le.ac.uk"))
}

func TestSubmitEmailMailFailureKeepsNoChallenge(t *testing.T) {
	f := newFixture(t)
	f.mailer.err = errors.New("smtp down")
	ctx := context.Background()

	err := f.svc.SubmitEmail(ctx, "42", "ab123@student.le.ac.uk")
	assert.ErrorIs(t, err, ErrMailDelivery)

	_, err = f.svc.SubmitCode(ctx, "42", "04821")
	assert.ErrorIs(t, err, ErrNoChallenge)
}

func TestSubmitEmailSendsZeroPaddedCode(t *testing.T) {
	f := newFixture(t)
	f.svc.newCode = func() (int, error) { return 7, nil }
	ctx := context.Background()

	require.NoError(t, f.svc.SubmitEmail(ctx, "42", "  AB123@Student.LE.ac.uk "))
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "ab123@student.le.ac.uk", f.mailer.sent[0].to)
	assert.Equal(t, "00007", f.mailer.sent[0].code)
}

func TestSubmitCodeLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SubmitCode(ctx, "42", "04821")
	assert.ErrorIs(t, err, ErrNoChallenge)

	require.NoError(t, f.svc.SubmitEmail(ctx, "42", "ab123@student.le.ac.uk"))

	// wrong code keeps the challenge live
	_, err = f.svc.SubmitCode(ctx, "42", "00000")
	assert.ErrorIs(t, err, ErrWrongCode)
	_, err = f.svc.SubmitCode(ctx, "42", "garbage")
	assert.ErrorIs(t, err, ErrWrongCode)

	res, err := f.svc.SubmitCode(ctx, "42", "04821")
	require.NoError(t, err)
	assert.Equal(t, leicesterRole, res.RoleID)
	assert.Equal(t, "ab123@student.le.ac.uk", res.Email)

	rec, ok, err := f.store.GetVerification("42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 365*24*time.Hour, rec.ExpiresAt.Sub(rec.IssuedAt))

	assert.Equal(t, []string{"42:" + leicesterRole}, f.roles.grants)

	// the challenge is consumed
	_, err = f.svc.SubmitCode(ctx, "42", "04821")
	assert.ErrorIs(t, err, ErrNoChallenge)
}

func TestSubmitCodeResolvesDomainBucket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SubmitEmail(ctx, "7", "p123@dmu.ac.uk"))
	res, err := f.svc.SubmitCode(ctx, "7", "4821")
	require.NoError(t, err)
	assert.Equal(t, dmuRole, res.RoleID)
}

func TestChallengeExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	base := time.Now()
	f.svc.now = func() time.Time { return base }
	require.NoError(t, f.svc.SubmitEmail(ctx, "42", "ab123@student.le.ac.uk"))

	f.svc.now = func() time.Time { return base.Add(16 * time.Minute) }
	_, err := f.svc.SubmitCode(ctx, "42", "04821")
	assert.ErrorIs(t, err, ErrNoChallenge)
}

func TestNewEmailSupersedesChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SubmitEmail(ctx, "42", "ab123@student.le.ac.uk"))
	require.NoError(t, f.svc.SubmitEmail(ctx, "42", "cd456@leicester.ac.uk"))

	res, err := f.svc.SubmitCode(ctx, "42", "4821")
	require.NoError(t, err)
	assert.Equal(t, "cd456@leicester.ac.uk", res.Email)
}

func TestUnverifyCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SubmitEmail(ctx, "42", "ab123@student.le.ac.uk"))
	_, err := f.svc.SubmitCode(ctx, "42", "4821")
	require.NoError(t, err)
	require.NoError(t, f.whitelist.SubmitUsername(ctx, "42", "Notch", true))

	require.NoError(t, f.svc.Unverify(ctx, "42"))

	_, ok, err := f.store.GetVerification("42")
	require.NoError(t, err)
	assert.False(t, ok)

	names, err := f.store.Usernames("42")
	require.NoError(t, err)
	assert.Empty(t, names)

	require.Len(t, f.allowList.removes, 1)
	assert.Equal(t, []string{"Notch"}, f.allowList.removes[0])
	assert.Contains(t, f.roles.revokes, "42:"+whitelistedRole)
	assert.Contains(t, f.roles.revokes, "42:"+leicesterRole)

	// idempotent: second call reports NotVerified, no escalation
	assert.ErrorIs(t, f.svc.Unverify(ctx, "42"), ErrNotVerified)
}

func TestBanCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// the concrete scenario: verify, link, then ban the email
	require.NoError(t, f.svc.SubmitEmail(ctx, "42", "ab123@student.le.ac.uk"))
	_, err := f.svc.SubmitCode(ctx, "42", "4821")
	require.NoError(t, err)
	require.NoError(t, f.whitelist.SubmitUsername(ctx, "42", "Notch", true))

	require.NoError(t, f.svc.Ban(ctx, "AB123@student.le.ac.uk"))

	_, ok, err := f.store.GetVerification("42")
	require.NoError(t, err)
	assert.False(t, ok)
	names, err := f.store.Usernames("42")
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.Contains(t, f.roles.revokes, "42:"+leicesterRole)
	assert.Contains(t, f.roles.revokes, "42:"+whitelistedRole)

	// re-verification with the banned address is refused
	assert.ErrorIs(t, f.svc.SubmitEmail(ctx, "42", "ab123@student.le.ac.uk"), ErrEmailBanned)
	// and by anyone else
	assert.ErrorIs(t, f.svc.SubmitEmail(ctx, "99", "ab123@student.le.ac.uk"), ErrEmailBanned)

	assert.ErrorIs(t, f.svc.Ban(ctx, "ab123@student.le.ac.uk"), ErrAlreadyBanned)
}

func TestBanWithoutHolderJustRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Ban(ctx, "nobody@student.le.ac.uk"))

	banned, err := f.store.IsBanned("nobody@student.le.ac.uk")
	require.NoError(t, err)
	assert.True(t, banned)
	assert.Empty(t, f.roles.revokes)
}

func TestLookupPrecedence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SubmitEmail(ctx, "42", "ab123@student.le.ac.uk"))
	_, err := f.svc.SubmitCode(ctx, "42", "4821")
	require.NoError(t, err)
	require.NoError(t, f.whitelist.SubmitUsername(ctx, "42", "Notch", true))

	byUser, err := f.svc.Lookup(ctx, Query{UserID: "42"})
	require.NoError(t, err)
	assert.Equal(t, "ab123@student.le.ac.uk", byUser.Email)
	assert.Equal(t, []string{"Notch"}, byUser.Usernames)

	byName, err := f.svc.Lookup(ctx, Query{Username: "notch"})
	require.NoError(t, err)
	assert.Equal(t, "42", byName.UserID)

	byEmail, err := f.svc.Lookup(ctx, Query{Email: "AB123@student.le.ac.uk"})
	require.NoError(t, err)
	assert.Equal(t, "42", byEmail.UserID)

	// user id outranks a username filter pointing elsewhere
	require.NoError(t, f.svc.SubmitEmail(ctx, "77", "zz999@dmu.ac.uk"))
	_, err = f.svc.SubmitCode(ctx, "77", "4821")
	require.NoError(t, err)
	both, err := f.svc.Lookup(ctx, Query{UserID: "77", Username: "Notch"})
	require.NoError(t, err)
	assert.Equal(t, "77", both.UserID)

	_, err = f.svc.Lookup(ctx, Query{})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.Lookup(ctx, Query{Username: "Ghost"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookupUnmatchedFiltersFallThrough(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SubmitEmail(ctx, "42", "ab123@student.le.ac.uk"))
	_, err := f.svc.SubmitCode(ctx, "42", "4821")
	require.NoError(t, err)
	require.NoError(t, f.whitelist.SubmitUsername(ctx, "42", "Notch", true))

	// a user id that resolves to nothing falls through to the next filter
	byEmail, err := f.svc.Lookup(ctx, Query{UserID: "ghost", Email: "ab123@student.le.ac.uk"})
	require.NoError(t, err)
	assert.Equal(t, "42", byEmail.UserID)

	byName, err := f.svc.Lookup(ctx, Query{UserID: "ghost", Username: "Notch"})
	require.NoError(t, err)
	assert.Equal(t, "42", byName.UserID)

	// an unknown username falls through to a matching email
	viaEmail, err := f.svc.Lookup(ctx, Query{Username: "Ghost", Email: "ab123@student.le.ac.uk"})
	require.NoError(t, err)
	assert.Equal(t, "42", viaEmail.UserID)

	_, err = f.svc.Lookup(ctx, Query{UserID: "ghost"})
	assert.ErrorIs(t, err, ErrNotFound)
}
