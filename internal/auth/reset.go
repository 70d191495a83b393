package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"inventory_service/internal/models"

	"github.com/gofrs/uuid"
)

const resetSecretBytes = 32

// ResetTokenStore is the slice of storage the reset flow needs.
type ResetTokenStore interface {
	ReplaceResetToken(ctx context.Context, token models.ResetToken) error
}

// IssueResetToken mints a single-use password-reset token for the user.
// The returned plaintext goes into the reset URL once and is never
// persisted; the store only ever sees its SHA-256 digest. Any earlier
// token for the same user is replaced, so at most one is live.
func IssueResetToken(ctx context.Context, st ResetTokenStore, userID uuid.UUID, ttl time.Duration) (string, error) {
	const op = "auth.IssueResetToken"

	secret := make([]byte, resetSecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	// The user id suffix disambiguates tokens without weakening them.
	plaintext := hex.EncodeToString(secret) + userID.String()

	now := time.Now().UTC()
	token := models.ResetToken{
		UserID:    userID,
		TokenHash: HashResetToken(plaintext),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	if err := st.ReplaceResetToken(ctx, token); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return plaintext, nil
}

// HashResetToken derives the digest under which a token is stored and
// later looked up. Redeeming hashes the presented plaintext the same way.
func HashResetToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
