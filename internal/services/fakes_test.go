package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/movielist/apiserver/internal/store"
	"github.com/movielist/apiserver/types"
)

// memoryStore is an in-memory stand-in for the Postgres repositories with
// the same error contract.
type memoryStore struct {
	mu         sync.Mutex
	users      map[int]types.User
	tokens     map[string]types.RefreshToken
	challenges map[int64]types.RecoveryChallenge
	nextID     int

	// resetErr fails ResetPassword after the challenge check, before any write.
	resetErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:      map[int]types.User{},
		tokens:     map[string]types.RefreshToken{},
		challenges: map[int64]types.RecoveryChallenge{},
	}
}

func (m *memoryStore) id() int {
	m.nextID++
	return m.nextID
}

// users

type memoryUsers struct{ *memoryStore }

func (m memoryUsers) GetByID(_ context.Context, id int) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (m memoryUsers) find(match func(types.User) bool) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m memoryUsers) GetByUsername(_ context.Context, username string) (types.User, error) {
	return m.find(func(u types.User) bool { return u.Username == username })
}

func (m memoryUsers) GetByEmail(_ context.Context, email string) (types.User, error) {
	return m.find(func(u types.User) bool { return u.Email == email })
}

func (m memoryUsers) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, error) {
	_, err := m.find(func(u types.User) bool { return u.Username == username || u.Email == email })
	return err == nil, nil
}

func (m memoryUsers) Create(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == user.Username || u.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	user.ID = m.id()
	m.users[user.ID] = user
	return user, nil
}

func (m memoryUsers) UpdateRole(_ context.Context, id int, role types.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.Role = role
	m.users[id] = u
	return nil
}

// refresh tokens

type memoryTokens struct{ *memoryStore }

func (m memoryTokens) Create(_ context.Context, token types.RefreshToken) (types.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[token.TokenHash]; ok {
		return types.RefreshToken{}, store.ErrConflict
	}
	token.ID = int64(m.id())
	m.tokens[token.TokenHash] = token
	return token, nil
}

func (m memoryTokens) Rotate(_ context.Context, oldHash string, next types.RefreshToken, now time.Time) (types.RefreshToken, types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.tokens[oldHash]
	switch {
	case !ok:
		return types.RefreshToken{}, types.User{}, store.ErrNotFound
	case old.Revoked():
		return types.RefreshToken{}, types.User{}, store.ErrRevoked
	case old.Expired(now):
		return types.RefreshToken{}, types.User{}, store.ErrExpired
	}
	owner, ok := m.users[old.UserID]
	if !ok {
		return types.RefreshToken{}, types.User{}, store.ErrNotFound
	}
	old.RevokedAt = &now
	m.tokens[oldHash] = old

	next.UserID = old.UserID
	next.ID = int64(m.id())
	m.tokens[next.TokenHash] = next
	return next, owner, nil
}

func (m memoryTokens) Revoke(_ context.Context, hash string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[hash]
	if !ok {
		return store.ErrNotFound
	}
	if t.RevokedAt == nil {
		t.RevokedAt = &now
		m.tokens[hash] = t
	}
	return nil
}

func (m memoryTokens) RevokeAllForUser(_ context.Context, userID int, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for hash, t := range m.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
			m.tokens[hash] = t
			n++
		}
	}
	return n, nil
}

func (m memoryTokens) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for hash, t := range m.tokens {
		if !before.Before(t.ExpiresAt) {
			delete(m.tokens, hash)
			n++
		}
	}
	return n, nil
}

// recovery challenges

type memoryChallenges struct{ *memoryStore }

func (m memoryChallenges) Replace(_ context.Context, c types.RecoveryChallenge) (types.RecoveryChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.challenges {
		if existing.UserID == c.UserID {
			delete(m.challenges, id)
		}
	}
	c.ID = int64(m.id())
	m.challenges[c.ID] = c
	return c, nil
}

func (m memoryChallenges) FindByCode(_ context.Context, userID int, codeHash string) (types.RecoveryChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.challenges {
		if c.UserID == userID && c.CodeHash == codeHash {
			return c, nil
		}
	}
	return types.RecoveryChallenge{}, store.ErrNotFound
}

func (m memoryChallenges) MarkVerified(_ context.Context, id int64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[id]
	if !ok {
		return store.ErrNotFound
	}
	c.VerifiedAt = &now
	m.challenges[id] = c
	return nil
}

func (m memoryChallenges) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.challenges, id)
	return nil
}

func (m memoryChallenges) ResetPassword(_ context.Context, userID int, hash string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := false
	for _, c := range m.challenges {
		if c.UserID == userID && c.VerifiedAt != nil && !c.Expired(now) {
			found = true
		}
	}
	if !found {
		return 0, store.ErrNotFound
	}
	if m.resetErr != nil {
		return 0, m.resetErr
	}
	u, ok := m.users[userID]
	if !ok {
		return 0, store.ErrNotFound
	}

	for id, c := range m.challenges {
		if c.UserID == userID {
			delete(m.challenges, id)
		}
	}
	u.PasswordHash = hash
	m.users[userID] = u

	var revoked int64
	for tokenHash, t := range m.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
			m.tokens[tokenHash] = t
			revoked++
		}
	}
	return revoked, nil
}

func (m memoryChallenges) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, c := range m.challenges {
		if c.Expired(before) {
			delete(m.challenges, id)
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) challengesFor(userID int) []types.RecoveryChallenge {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.RecoveryChallenge
	for _, c := range m.challenges {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type outbox struct {
	mu   sync.Mutex
	sent []types.Mail
	err  error
}

func (o *outbox) Send(_ context.Context, msg types.Mail) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, msg)
	return nil
}

func (o *outbox) last() types.Mail {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sent[len(o.sent)-1]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
