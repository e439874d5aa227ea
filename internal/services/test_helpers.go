package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/folio-auth/internal/audit"
	"github.com/BradenHooton/folio-auth/internal/models"
)

// MemoryUserRepository is an in-memory UserRepository that applies the same
// field transitions as the SQL repository
type MemoryUserRepository struct {
	mu     sync.Mutex
	users  map[string]*models.User
	nextID int
	now    func() time.Time

	// Err, when set, is returned by every call
	Err error
}

func NewMemoryUserRepository(now func() time.Time) *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]*models.User), now: now}
}

// Add stores a copy of user and returns its id
func (r *MemoryUserRepository) Add(user *models.User) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == "" {
		r.nextID++
		user.ID = fmt.Sprintf("user-%d", r.nextID)
	}
	u := *user
	r.users[u.ID] = &u
	return u.ID
}

// Snapshot returns a copy of the stored user
func (r *MemoryUserRepository) Snapshot(id string) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil
	}
	c := *u
	return &c
}

func (r *MemoryUserRepository) find(match func(*models.User) bool) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	for _, u := range r.users {
		if match(u) {
			c := *u
			return &c, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *MemoryUserRepository) update(id string, fn func(*models.User) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	u, ok := r.users[id]
	if !ok {
		return models.ErrNotFound
	}
	return fn(u)
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.ID == id })
}

func (r *MemoryUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.Email == email })
}

func (r *MemoryUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return strings.EqualFold(u.Username, username) })
}

func (r *MemoryUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if _, err := r.GetByEmail(ctx, user.Email); err == nil {
		return nil, models.Conflict("Email already registered")
	}
	user.CreatedAt = r.now()
	user.UpdatedAt = user.CreatedAt
	r.Add(user)
	return r.Snapshot(user.ID), nil
}

func (r *MemoryUserRepository) SetOTP(ctx context.Context, id, otpHash string, generatedAt time.Time) error {
	return r.update(id, func(u *models.User) error {
		u.OTPHash, u.OTPGeneratedAt, u.OTPAttempts = &otpHash, &generatedAt, 0
		u.ResetTokenHash, u.ResetTokenExpiry = nil, nil
		return nil
	})
}

func (r *MemoryUserRepository) ClearOTP(ctx context.Context, id string) error {
	return r.update(id, func(u *models.User) error {
		u.OTPHash, u.OTPGeneratedAt, u.OTPAttempts = nil, nil, 0
		return nil
	})
}

func (r *MemoryUserRepository) IncrementOTPAttempts(ctx context.Context, id string, maxAttempts int) (int, bool, error) {
	var attempts int
	var locked bool
	err := r.update(id, func(u *models.User) error {
		u.OTPAttempts++
		if u.OTPAttempts >= maxAttempts {
			u.AccountLocked = true
			u.OTPHash, u.OTPGeneratedAt = nil, nil
		}
		attempts, locked = u.OTPAttempts, u.AccountLocked
		return nil
	})
	return attempts, locked, err
}

func (r *MemoryUserRepository) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	return r.update(id, func(u *models.User) error {
		u.ResetTokenHash, u.ResetTokenExpiry = &tokenHash, &expiresAt
		u.OTPHash, u.OTPGeneratedAt, u.OTPAttempts = nil, nil, 0
		return nil
	})
}

func (r *MemoryUserRepository) ClearResetToken(ctx context.Context, id string) error {
	return r.update(id, func(u *models.User) error {
		u.ResetTokenHash, u.ResetTokenExpiry = nil, nil
		return nil
	})
}

func (r *MemoryUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) (int, error) {
	var version int
	err := r.update(id, func(u *models.User) error {
		u.PasswordHash = passwordHash
		u.SessionVersion++
		u.ResetTokenHash, u.ResetTokenExpiry = nil, nil
		version = u.SessionVersion
		return nil
	})
	return version, err
}

func (r *MemoryUserRepository) ConsumeResetToken(ctx context.Context, id, tokenHash, passwordHash string) (int, error) {
	var version int
	err := r.update(id, func(u *models.User) error {
		if u.ResetTokenHash == nil || *u.ResetTokenHash != tokenHash || !u.ResetTokenExpiry.After(r.now()) {
			return models.ErrNotFound
		}
		u.PasswordHash = passwordHash
		u.SessionVersion++
		u.ResetTokenHash, u.ResetTokenExpiry = nil, nil
		version = u.SessionVersion
		return nil
	})
	return version, err
}

func (r *MemoryUserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.update(id, func(u *models.User) error {
		u.LastLoginAt = &at
		return nil
	})
}

// MockTokenRevocationRepository implements TokenRevocationRepository for testing
type MockTokenRevocationRepository struct {
	RevokeTokenFunc    func(ctx context.Context, jti, userID, tokenType string, expiresAt time.Time, reason string) error
	IsTokenRevokedFunc func(ctx context.Context, jti string) (bool, error)

	mu      sync.Mutex
	revoked map[string]string
}

func (m *MockTokenRevocationRepository) RevokeToken(ctx context.Context, jti, userID, tokenType string, expiresAt time.Time, reason string) error {
	if m.RevokeTokenFunc != nil {
		return m.RevokeTokenFunc(ctx, jti, userID, tokenType, expiresAt, reason)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.revoked == nil {
		m.revoked = make(map[string]string)
	}
	if _, ok := m.revoked[jti]; ok {
		return models.ErrConflict
	}
	m.revoked[jti] = reason
	return nil
}

func (m *MockTokenRevocationRepository) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if m.IsTokenRevokedFunc != nil {
		return m.IsTokenRevokedFunc(ctx, jti)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[jti]
	return ok, nil
}

// MemoryEmailVerificationRepository implements EmailVerificationRepository
// over a map; Users, when set, is marked verified on Consume
type MemoryEmailVerificationRepository struct {
	mu     sync.Mutex
	tokens map[string]*models.EmailVerificationToken
	nextID int
	Users  *MemoryUserRepository
}

func NewMemoryEmailVerificationRepository(users *MemoryUserRepository) *MemoryEmailVerificationRepository {
	return &MemoryEmailVerificationRepository{tokens: make(map[string]*models.EmailVerificationToken), Users: users}
}

func (r *MemoryEmailVerificationRepository) Create(ctx context.Context, userID, tokenHash, email string, expiresAt time.Time) (*models.EmailVerificationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	t := &models.EmailVerificationToken{
		ID:        fmt.Sprintf("evt-%d", r.nextID),
		UserID:    userID,
		TokenHash: tokenHash,
		Email:     email,
		ExpiresAt: expiresAt,
	}
	r.tokens[t.ID] = t
	c := *t
	return &c, nil
}

func (r *MemoryEmailVerificationRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.EmailVerificationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.TokenHash == tokenHash {
			c := *t
			return &c, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *MemoryEmailVerificationRepository) Consume(ctx context.Context, tokenID, userID string) error {
	r.mu.Lock()
	t, ok := r.tokens[tokenID]
	if !ok || t.UsedAt != nil {
		r.mu.Unlock()
		return models.ErrNotFound
	}
	now := time.Now()
	t.UsedAt = &now
	r.mu.Unlock()

	if r.Users != nil {
		return r.Users.update(userID, func(u *models.User) error {
			u.EmailVerified = true
			return nil
		})
	}
	return nil
}

func (r *MemoryEmailVerificationRepository) DeleteByUserID(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.tokens {
		if t.UserID == userID {
			delete(r.tokens, id)
		}
	}
	return nil
}

func (r *MemoryEmailVerificationRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}

// MockEmailService implements EmailService for testing and records what it sent
type MockEmailService struct {
	SendOTPFunc               func(ctx context.Context, email, code string, validFor time.Duration) error
	SendPasswordChangedFunc   func(ctx context.Context, email string, changedAt time.Time) error
	SendVerificationEmailFunc func(ctx context.Context, email, token string, expiresAt time.Time) error

	mu                 sync.Mutex
	OTPCodes           map[string]string
	VerificationTokens map[string]string
	PasswordChanged    []string
}

func (m *MockEmailService) SendOTP(ctx context.Context, email, code string, validFor time.Duration) error {
	m.mu.Lock()
	if m.OTPCodes == nil {
		m.OTPCodes = make(map[string]string)
	}
	m.OTPCodes[email] = code
	m.mu.Unlock()
	if m.SendOTPFunc != nil {
		return m.SendOTPFunc(ctx, email, code, validFor)
	}
	return nil
}

func (m *MockEmailService) SendPasswordChanged(ctx context.Context, email string, changedAt time.Time) error {
	m.mu.Lock()
	m.PasswordChanged = append(m.PasswordChanged, email)
	m.mu.Unlock()
	if m.SendPasswordChangedFunc != nil {
		return m.SendPasswordChangedFunc(ctx, email, changedAt)
	}
	return nil
}

func (m *MockEmailService) SendVerificationEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	m.mu.Lock()
	if m.VerificationTokens == nil {
		m.VerificationTokens = make(map[string]string)
	}
	m.VerificationTokens[email] = token
	m.mu.Unlock()
	if m.SendVerificationEmailFunc != nil {
		return m.SendVerificationEmailFunc(ctx, email, token, expiresAt)
	}
	return nil
}

func (m *MockEmailService) LastOTP(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.OTPCodes[email]
}

func (m *MockEmailService) LastVerificationToken(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.VerificationTokens[email]
}

// RecordingEmitter collects audit events synchronously
type RecordingEmitter struct {
	mu     sync.Mutex
	Events []audit.Event
}

func (r *RecordingEmitter) Emit(ctx context.Context, event audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, event)
}

// Types returns the recorded event types in order
func (r *RecordingEmitter) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, len(r.Events))
	for i, e := range r.Events {
		types[i] = e.Type
	}
	return types
}

func (r *RecordingEmitter) Last() audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Events) == 0 {
		return audit.Event{}
	}
	return r.Events[len(r.Events)-1]
}
