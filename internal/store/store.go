// Package store persists verification records, whitelist entries, and the
// ban list as human-inspectable JSON files.
//
// All mutating operations serialize through a single mutex for the full
// read-modify-write, and every write lands via a temp file and rename so a
// crash never leaves a half-written table behind. A file that exists but
// fails to decode surfaces ErrCorruptStore; it is never treated as empty.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	verificationsFile = "verifications.json"
	whitelistFile     = "whitelist.json"
	bansFile          = "bans.json"
)

var (
	// ErrCorruptStore wraps decode failures of an existing state file.
	ErrCorruptStore = errors.New("state file is corrupt")
	// ErrUsernameTaken reports a username already claimed by another user.
	ErrUsernameTaken = errors.New("username already claimed by another user")
	// ErrUsernameLinked reports a username the same user already linked.
	ErrUsernameLinked = errors.New("username already linked to this user")
)

// VerificationRecord is the durable link between a platform user and a
// validated email address.
type VerificationRecord struct {
	UserID    string    `json:"-"`
	Email     string    `json:"email"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the record has passed its expiry at now.
func (r VerificationRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Store is the sole writer of persisted identity state.
type Store struct {
	mu  sync.Mutex
	dir string

	userMu    sync.Mutex
	userLocks map[string]*sync.Mutex
}

// Open prepares the data directory and creates empty state files for any
// table that does not exist yet.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &Store{dir: dir, userLocks: map[string]*sync.Mutex{}}
	if err := s.ensureFile(verificationsFile, "{}"); err != nil {
		return nil, err
	}
	if err := s.ensureFile(whitelistFile, "{}"); err != nil {
		return nil, err
	}
	if err := s.ensureFile(bansFile, "[]"); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureFile(name, empty string) error {
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", name, err)
	}
	if err := os.WriteFile(path, []byte(empty+"\n"), 0o644); err != nil {
		return fmt.Errorf("init %s: %w", name, err)
	}
	return nil
}

// LockUser takes the per-user cascade lock, serializing multi-step
// teardowns (unverify, ban, expiry reaping) for one user across callers.
// The returned func releases the lock. Individual store operations do not
// need it; it exists so whole cascades cannot interleave.
func (s *Store) LockUser(userID string) func() {
	s.userMu.Lock()
	lock, ok := s.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.userLocks[userID] = lock
	}
	s.userMu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// GetVerification returns the record for userID, if any.
func (s *Store) GetVerification(userID string) (VerificationRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readVerifications()
	if err != nil {
		return VerificationRecord{}, false, err
	}
	rec, ok := records[userID]
	if !ok {
		return VerificationRecord{}, false, nil
	}
	rec.UserID = userID
	return rec, true, nil
}

// PutVerification stores rec, replacing any existing record for the user.
func (s *Store) PutVerification(rec VerificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readVerifications()
	if err != nil {
		return err
	}
	records[rec.UserID] = rec
	return s.writeJSON(verificationsFile, records)
}

// DeleteVerification removes the record for userID and reports whether one
// existed.
func (s *Store) DeleteVerification(userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readVerifications()
	if err != nil {
		return false, err
	}
	if _, ok := records[userID]; !ok {
		return false, nil
	}
	delete(records, userID)
	return true, s.writeJSON(verificationsFile, records)
}

// FindByEmail returns the user holding a record for the (normalized) email.
func (s *Store) FindByEmail(email string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readVerifications()
	if err != nil {
		return "", false, err
	}
	email = strings.ToLower(email)
	for userID, rec := range records {
		if strings.ToLower(rec.Email) == email {
			return userID, true, nil
		}
	}
	return "", false, nil
}

// ListExpired returns the users whose records have expired at now, in a
// stable order.
func (s *Store) ListExpired(now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readVerifications()
	if err != nil {
		return nil, err
	}
	var expired []string
	for userID, rec := range records {
		if rec.Expired(now) {
			expired = append(expired, userID)
		}
	}
	sort.Strings(expired)
	return expired, nil
}

// Usernames returns the usernames linked to userID.
func (s *Store) Usernames(userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readWhitelist()
	if err != nil {
		return nil, err
	}
	return entries[userID], nil
}

// AddUsername links username to userID, enforcing case-insensitive
// uniqueness across all users. The check and the append happen under one
// lock so two concurrent claims cannot both win.
func (s *Store) AddUsername(userID, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readWhitelist()
	if err != nil {
		return err
	}
	lower := strings.ToLower(username)
	for owner, names := range entries {
		for _, name := range names {
			if strings.ToLower(name) != lower {
				continue
			}
			if owner == userID {
				return ErrUsernameLinked
			}
			return ErrUsernameTaken
		}
	}
	entries[userID] = append(entries[userID], username)
	return s.writeJSON(whitelistFile, entries)
}

// RemoveUsername unlinks a single username from userID. Used to roll back
// an append whose external counterpart failed.
func (s *Store) RemoveUsername(userID, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readWhitelist()
	if err != nil {
		return err
	}
	names := entries[userID]
	lower := strings.ToLower(username)
	kept := names[:0]
	for _, name := range names {
		if strings.ToLower(name) != lower {
			kept = append(kept, name)
		}
	}
	if len(kept) == 0 {
		delete(entries, userID)
	} else {
		entries[userID] = kept
	}
	return s.writeJSON(whitelistFile, entries)
}

// RemoveAllUsernames drops the whole whitelist entry for userID and returns
// the usernames that were linked.
func (s *Store) RemoveAllUsernames(userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readWhitelist()
	if err != nil {
		return nil, err
	}
	removed, ok := entries[userID]
	if !ok {
		return nil, nil
	}
	delete(entries, userID)
	if err := s.writeJSON(whitelistFile, entries); err != nil {
		return nil, err
	}
	return removed, nil
}

// OwnerOfUsername resolves the user a username is linked to
// (case-insensitive).
func (s *Store) OwnerOfUsername(username string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readWhitelist()
	if err != nil {
		return "", false, err
	}
	lower := strings.ToLower(username)
	for owner, names := range entries {
		for _, name := range names {
			if strings.ToLower(name) == lower {
				return owner, true, nil
			}
		}
	}
	return "", false, nil
}

// IsBanned reports whether email is on the ban list (case-insensitive).
func (s *Store) IsBanned(email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bans, err := s.readBans()
	if err != nil {
		return false, err
	}
	email = strings.ToLower(email)
	for _, banned := range bans {
		if strings.ToLower(banned) == email {
			return true, nil
		}
	}
	return false, nil
}

// AddBan appends email to the ban list. Returns false without writing when
// the email is already banned.
func (s *Store) AddBan(email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bans, err := s.readBans()
	if err != nil {
		return false, err
	}
	email = strings.ToLower(email)
	for _, banned := range bans {
		if strings.ToLower(banned) == email {
			return false, nil
		}
	}
	bans = append(bans, email)
	return true, s.writeJSON(bansFile, bans)
}

// CountVerified returns the number of verification records.
func (s *Store) CountVerified() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readVerifications()
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// CountWhitelisted returns the number of linked usernames across all users.
func (s *Store) CountWhitelisted() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readWhitelist()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, names := range entries {
		total += len(names)
	}
	return total, nil
}

func (s *Store) readVerifications() (map[string]VerificationRecord, error) {
	records := map[string]VerificationRecord{}
	if err := s.readJSON(verificationsFile, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) readWhitelist() (map[string][]string, error) {
	entries := map[string][]string{}
	if err := s.readJSON(whitelistFile, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) readBans() ([]string, error) {
	var bans []string
	if err := s.readJSON(bansFile, &bans); err != nil {
		return nil, err
	}
	return bans, nil
}

func (s *Store) readJSON(name string, out any) error {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w: %w", name, ErrCorruptStore, err)
	}
	return nil
}

func (s *Store) writeJSON(name string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("temp file for %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
