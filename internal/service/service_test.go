package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"
	"time"

	"inventory_service/internal/auth"
	"inventory_service/internal/config"
	"inventory_service/internal/models"
	"inventory_service/internal/storage"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStorage mimics the postgres storage semantics in memory: unique
// emails, expiry-filtered token lookup, delete-then-insert replacement.
type memStorage struct {
	mu     sync.Mutex
	users  map[uuid.UUID]models.User
	tokens map[uuid.UUID]models.ResetToken
}

func newMemStorage() *memStorage {
	return &memStorage{
		users:  make(map[uuid.UUID]models.User),
		tokens: make(map[uuid.UUID]models.ResetToken),
	}
}

func (m *memStorage) CreateUser(_ context.Context, name, email, passwordHash string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == email {
			return models.User{}, storage.ErrEmailTaken
		}
	}

	id, err := uuid.NewV4()
	if err != nil {
		return models.User{}, err
	}

	now := time.Now().UTC()
	user := models.User{
		ID:           id,
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.users[id] = user
	return user, nil
}

func (m *memStorage) GetUserByID(_ context.Context, userID uuid.UUID) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}
	return user, nil
}

func (m *memStorage) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, storage.ErrUserNotFound
}

func (m *memStorage) UpdateProfile(_ context.Context, userID uuid.UUID, upd models.ProfileUpdate) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}

	if upd.Name != nil {
		user.Name = *upd.Name
	}
	if upd.Photo != nil {
		user.Photo = *upd.Photo
	}
	if upd.Phone != nil {
		user.Phone = *upd.Phone
	}
	if upd.Bio != nil {
		user.Bio = *upd.Bio
	}
	user.UpdatedAt = time.Now().UTC()
	m.users[userID] = user
	return user, nil
}

func (m *memStorage) UpdatePassword(_ context.Context, userID uuid.UUID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	m.users[userID] = user
	return nil
}

func (m *memStorage) ReplaceResetToken(_ context.Context, token models.ResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.tokens, token.UserID)
	m.tokens[token.UserID] = token
	return nil
}

func (m *memStorage) GetResetTokenByHash(_ context.Context, tokenHash string) (models.ResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, token := range m.tokens {
		if token.TokenHash == tokenHash && token.ExpiresAt.After(time.Now()) {
			return token, nil
		}
	}
	return models.ResetToken{}, storage.ErrTokenNotFound
}

func (m *memStorage) DeleteResetToken(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.tokens, userID)
	return nil
}

func (m *memStorage) Close() {}

type captureSender struct {
	mu     sync.Mutex
	fail   bool
	bodies []string
	to     []string
}

func (s *captureSender) Send(_ context.Context, _, htmlBody, to, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fail {
		return errors.New("smtp transport failure")
	}
	s.bodies = append(s.bodies, htmlBody)
	s.to = append(s.to, to)
	return nil
}

var resetURLRe = regexp.MustCompile(`/resetpassword/([0-9a-f]{64}[0-9a-f-]{36})`)

func (s *captureSender) lastResetToken(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	require.NotEmpty(t, s.bodies)
	match := resetURLRe.FindStringSubmatch(s.bodies[len(s.bodies)-1])
	require.Len(t, match, 2, "reset email must contain the reset url")
	return match[1]
}

func testConfig() *config.Config {
	return &config.Config{
		Env: "local",
		Auth: config.Auth{
			JWTSecret:   "test-secret",
			SessionTTL:  24 * time.Hour,
			ResetTTL:    30 * time.Minute,
			FrontendURL: "http://localhost:3000",
		},
		Email: config.Email{Sender: "noreply@example.com"},
	}
}

func newTestService(t *testing.T) (*service, *memStorage, *captureSender) {
	t.Helper()

	st := newMemStorage()
	sender := &captureSender{}
	lgr := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(st, sender, testConfig(), lgr), st, sender
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		userName string
		email    string
		password string
		wantErr  *Error
	}{
		{"missing name", "", "ann@x.com", "secret1", ErrMissingFields},
		{"missing email", "Ann", "", "secret1", ErrMissingFields},
		{"missing password", "Ann", "ann@x.com", "", ErrMissingFields},
		{"short password", "Ann", "ann@x.com", "short", ErrPasswordTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Register(ctx, tt.userName, tt.email, tt.password)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRegisterSuccess(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	user, token, err := svc.Register(ctx, "Ann", "ann@x.com", "secret1")
	require.NoError(t, err)

	assert.Equal(t, "Ann", user.Name)
	assert.Equal(t, "ann@x.com", user.Email)
	assert.NotEmpty(t, token)

	// stored hash must verify the original password and nothing else
	assert.NotEqual(t, "secret1", user.PasswordHash)
	assert.True(t, auth.CheckPasswordHash(user.PasswordHash, "secret1"))

	// the session token round-trips to the same user
	gotID, err := auth.VerifyJWT(token, []byte("test-secret"))
	require.NoError(t, err)
	assert.Equal(t, user.ID, gotID)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "Ann", "ann@x.com", "secret1")
	require.NoError(t, err)

	_, _, err = svc.Register(ctx, "Another Ann", "ann@x.com", "secret2")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLoginGenericFailure(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "Ann", "ann@x.com", "secret1")
	require.NoError(t, err)

	// wrong password and unknown email are indistinguishable
	_, _, wrongPass := svc.Login(ctx, "ann@x.com", "wrong")
	_, _, unknown := svc.Login(ctx, "nobody@x.com", "secret1")

	assert.ErrorIs(t, wrongPass, ErrInvalidCredentials)
	assert.ErrorIs(t, unknown, ErrInvalidCredentials)
	assert.Equal(t, wrongPass.Error(), unknown.Error())
}

func TestLoginSuccess(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	registered, _, err := svc.Register(ctx, "Ann", "ann@x.com", "secret1")
	require.NoError(t, err)

	user, token, err := svc.Login(ctx, "ann@x.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
	assert.NotEmpty(t, token)
}

func TestUpdateProfileOnlyAuxiliaryFields(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	user, _, err := svc.Register(ctx, "Ann", "ann@x.com", "secret1")
	require.NoError(t, err)

	bio := "hi"
	updated, err := svc.UpdateProfile(ctx, user.ID, models.ProfileUpdate{Bio: &bio})
	require.NoError(t, err)

	assert.Equal(t, "hi", updated.Bio)
	assert.Equal(t, "ann@x.com", updated.Email)

	stored, err := st.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, auth.CheckPasswordHash(stored.PasswordHash, "secret1"))
}

func TestChangePassword(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	user, _, err := svc.Register(ctx, "Ann", "ann@x.com", "secret1")
	require.NoError(t, err)

	require.ErrorIs(t, svc.ChangePassword(ctx, user.ID, "wrong", "newpass1"), ErrOldPasswordWrong)
	require.ErrorIs(t, svc.ChangePassword(ctx, user.ID, "", "newpass1"), ErrMissingPasswords)
	require.ErrorIs(t, svc.ChangePassword(ctx, user.ID, "secret1", "tiny"), ErrPasswordTooShort)

	require.NoError(t, svc.ChangePassword(ctx, user.ID, "secret1", "newpass1"))

	_, _, err = svc.Login(ctx, "ann@x.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "ann@x.com", "newpass1")
	assert.NoError(t, err)
}

func TestChangePasswordUnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t)

	ghost, err := uuid.NewV4()
	require.NoError(t, err)

	err = svc.ChangePassword(context.Background(), ghost, "secret1", "newpass1")
	assert.ErrorIs(t, err, ErrSignupRequired)
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.ForgotPassword(context.Background(), "nobody@x.com")
	assert.ErrorIs(t, err, ErrEmailUnknown)
}

func TestForgotPasswordSendsResetLink(t *testing.T) {
	svc, st, sender := newTestService(t)
	ctx := context.Background()

	user, _, err := svc.Register(ctx, "Ann", "ann@x.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, svc.ForgotPassword(ctx, "ann@x.com"))

	require.Equal(t, []string{"ann@x.com"}, sender.to)
	plaintext := sender.lastResetToken(t)

	token, ok := st.tokens[user.ID]
	require.True(t, ok, "one reset token row must exist")
	assert.Equal(t, auth.HashResetToken(plaintext), token.TokenHash)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), token.ExpiresAt, time.Minute)
}

func TestForgotPasswordEmailFailure(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "Ann", "ann@x.com", "secret1")
	require.NoError(t, err)

	sender.fail = true
	err = svc.ForgotPassword(ctx, "ann@x.com")
	assert.ErrorIs(t, err, ErrEmailNotSent)
}

func TestResetPasswordFlow(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "Ann", "ann@x.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, svc.ForgotPassword(ctx, "ann@x.com"))
	plaintext := sender.lastResetToken(t)

	require.NoError(t, svc.ResetPassword(ctx, plaintext, "newpass1"))

	_, _, err = svc.Login(ctx, "ann@x.com", "newpass1")
	assert.NoError(t, err)
	_, _, err = svc.Login(ctx, "ann@x.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestResetTokenSingleUse(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "Ann", "ann@x.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, svc.ForgotPassword(ctx, "ann@x.com"))
	plaintext := sender.lastResetToken(t)

	require.NoError(t, svc.ResetPassword(ctx, plaintext, "newpass1"))

	err = svc.ResetPassword(ctx, plaintext, "anotherpass")
	assert.ErrorIs(t, err, ErrResetTokenInvalid)
}

func TestSecondResetTokenInvalidatesFirst(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "Ann", "ann@x.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, svc.ForgotPassword(ctx, "ann@x.com"))
	first := sender.lastResetToken(t)

	require.NoError(t, svc.ForgotPassword(ctx, "ann@x.com"))
	second := sender.lastResetToken(t)
	require.NotEqual(t, first, second)

	err = svc.ResetPassword(ctx, first, "newpass1")
	assert.ErrorIs(t, err, ErrResetTokenInvalid)

	assert.NoError(t, svc.ResetPassword(ctx, second, "newpass1"))
}

func TestResetTokenExpired(t *testing.T) {
	svc, st, sender := newTestService(t)
	ctx := context.Background()

	user, _, err := svc.Register(ctx, "Ann", "ann@x.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, svc.ForgotPassword(ctx, "ann@x.com"))
	plaintext := sender.lastResetToken(t)

	// simulate the 30 minutes passing
	token := st.tokens[user.ID]
	token.ExpiresAt = time.Now().Add(-time.Second)
	st.tokens[user.ID] = token

	err = svc.ResetPassword(ctx, plaintext, "newpass1")
	assert.ErrorIs(t, err, ErrResetTokenInvalid)
}

func TestResetPasswordGarbageToken(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.ResetPassword(context.Background(), "not-a-real-token", "newpass1")
	assert.ErrorIs(t, err, ErrResetTokenInvalid)
}

func TestResetPasswordUserVanished(t *testing.T) {
	svc, st, sender := newTestService(t)
	ctx := context.Background()

	user, _, err := svc.Register(ctx, "Ann", "ann@x.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, svc.ForgotPassword(ctx, "ann@x.com"))
	plaintext := sender.lastResetToken(t)

	delete(st.users, user.ID)

	err = svc.ResetPassword(ctx, plaintext, "newpass1")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestGetUserNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	ghost, err := uuid.NewV4()
	require.NoError(t, err)

	_, err = svc.GetUser(context.Background(), ghost)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
