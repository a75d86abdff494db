package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/JokanderTest/CVX/internal/domain"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newTestRedisWithServer(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

type mockUserRepo struct {
	mu           sync.Mutex
	usersByID    map[string]domain.User
	usersByEmail map[string]string
	usersByAuth  map[string]string
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		usersByID:    make(map[string]domain.User),
		usersByEmail: make(map[string]string),
		usersByAuth:  make(map[string]string),
	}
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usersByID[user.ID] = user
	if user.Email != "" {
		m.usersByEmail[user.Email] = user.ID
	}
	if user.AuthProvider != "" && user.AuthSubject != "" {
		m.usersByAuth[user.AuthProvider+"|"+user.AuthSubject] = user.ID
	}
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getByIDLocked(id)
}

func (m *mockUserRepo) getByIDLocked(id string) (domain.User, error) {
	user, ok := m.usersByID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.usersByEmail[email]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.getByIDLocked(id)
}

func (m *mockUserRepo) GetByAuth(_ context.Context, provider, subject string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.usersByAuth[provider+"|"+subject]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.getByIDLocked(id)
}

func (m *mockUserRepo) LinkOAuth(_ context.Context, id, provider, subject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.AuthProvider = provider
	user.AuthSubject = subject
	m.usersByID[id] = user
	m.usersByAuth[provider+"|"+subject] = id
	return nil
}

func (m *mockUserRepo) VerifyEmail(_ context.Context, id string, verifiedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.EmailVerifiedAt = &verifiedAt
	m.usersByID[id] = user
	return nil
}

type mockRefreshTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]domain.RefreshToken
}

func newMockRefreshTokenRepo() *mockRefreshTokenRepo {
	return &mockRefreshTokenRepo{tokens: make(map[string]domain.RefreshToken)}
}

func (m *mockRefreshTokenRepo) Create(_ context.Context, token domain.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.ID] = token
	return nil
}

func (m *mockRefreshTokenRepo) ListActive(_ context.Context, userID string, limit int) ([]domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	var active []domain.RefreshToken
	for _, t := range m.tokens {
		if t.UserID == userID && t.IsActive(now) {
			active = append(active, t)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].CreatedAt.After(active[j].CreatedAt) })
	if len(active) > limit {
		active = active[:limit]
	}
	return active, nil
}

func (m *mockRefreshTokenRepo) Rotate(_ context.Context, oldID string, newToken domain.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.tokens[oldID]
	if !ok || old.Revoked {
		return pgx.ErrNoRows
	}
	m.tokens[newToken.ID] = newToken
	old.Revoked = true
	old.ReplacedBy = &newToken.ID
	m.tokens[oldID] = old
	return nil
}

func (m *mockRefreshTokenRepo) Revoke(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return nil
	}
	t.Revoked = true
	m.tokens[id] = t
	return nil
}

func (m *mockRefreshTokenRepo) RevokeAllForUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.tokens {
		if t.UserID == userID {
			t.Revoked = true
			m.tokens[id] = t
		}
	}
	return nil
}

func (m *mockRefreshTokenRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

type mockVerificationTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]domain.EmailVerificationToken
}

func newMockVerificationTokenRepo() *mockVerificationTokenRepo {
	return &mockVerificationTokenRepo{tokens: make(map[string]domain.EmailVerificationToken)}
}

func (m *mockVerificationTokenRepo) Create(_ context.Context, token domain.EmailVerificationToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.ID] = token
	return nil
}

func (m *mockVerificationTokenRepo) Latest(_ context.Context, userID string) (domain.EmailVerificationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest domain.EmailVerificationToken
	found := false
	for _, t := range m.tokens {
		if t.UserID != userID {
			continue
		}
		if !found || t.CreatedAt.After(latest.CreatedAt) {
			latest = t
			found = true
		}
	}
	if !found {
		return domain.EmailVerificationToken{}, pgx.ErrNoRows
	}
	return latest, nil
}

func (m *mockVerificationTokenRepo) RecordAttempt(_ context.Context, id string, attempts int, lockedUntil *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return pgx.ErrNoRows
	}
	t.Attempts = attempts
	t.LockedUntil = lockedUntil
	m.tokens[id] = t
	return nil
}

func (m *mockVerificationTokenRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, id)
	return nil
}

type mockEmailSender struct {
	mu    sync.Mutex
	sent  []string
	codes []string
	err   error
}

func (m *mockEmailSender) SendVerificationOTP(_ context.Context, toEmail string, code string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, toEmail)
	m.codes = append(m.codes, code)
	return nil
}

func (m *mockEmailSender) lastCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.codes) == 0 {
		return ""
	}
	return m.codes[len(m.codes)-1]
}

func (m *mockEmailSender) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}
