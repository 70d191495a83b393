package storage

import (
	"context"
	"errors"
	"fmt"

	"inventory_service/internal/models"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const (
	usersTable       = "users"
	resetTokensTable = "reset_tokens"

	uniqueViolationCode = "23505"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrEmailTaken    = errors.New("email already taken")
	ErrTokenNotFound = errors.New("reset token not found")
)

type Storage interface {

	// Пользователи
	CreateUser(ctx context.Context, name, email, passwordHash string) (models.User, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, upd models.ProfileUpdate) (models.User, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error

	// Reset-токены
	ReplaceResetToken(ctx context.Context, token models.ResetToken) error
	GetResetTokenByHash(ctx context.Context, tokenHash string) (models.ResetToken, error)
	DeleteResetToken(ctx context.Context, userID uuid.UUID) error

	Close()
}

type PostgresStorage struct {
	db *pgxpool.Pool
}

func NewPostgresStorage(ctx context.Context, dbURL string) (*PostgresStorage, error) {
	const op = "storage.NewPostgresStorage"

	conn, err := pgxpool.Connect(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &PostgresStorage{
		db: conn,
	}, nil
}

const userColumns = "id, name, email, password_hash, photo, phone, bio, created_at, updated_at"

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Photo,
		&user.Phone,
		&user.Bio,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (p *PostgresStorage) CreateUser(ctx context.Context, name, email, passwordHash string) (models.User, error) {
	const op = "storage.CreateUser"

	userID, err := uuid.NewV4()
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	query := fmt.Sprintf(`INSERT INTO %s(id, name, email, password_hash)
	VALUES ($1, $2, $3, $4) RETURNING %s;`, usersTable, userColumns)

	user, err := scanUser(p.db.QueryRow(ctx, query, userID, name, email, passwordHash))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (p *PostgresStorage) GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	const op = "storage.GetUserByID"

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id=$1;", userColumns, usersTable)

	user, err := scanUser(p.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user, ErrUserNotFound
		}
		return user, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (p *PostgresStorage) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	const op = "storage.GetUserByEmail"

	query := fmt.Sprintf("SELECT %s FROM %s WHERE email=$1;", userColumns, usersTable)

	user, err := scanUser(p.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user, ErrUserNotFound
		}
		return user, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (p *PostgresStorage) UpdateProfile(ctx context.Context, userID uuid.UUID, upd models.ProfileUpdate) (models.User, error) {
	const op = "storage.UpdateProfile"

	query := fmt.Sprintf(`UPDATE %s SET
	name=COALESCE($2, name),
	photo=COALESCE($3, photo),
	phone=COALESCE($4, phone),
	bio=COALESCE($5, bio),
	updated_at=now()
	WHERE id=$1 RETURNING %s;`, usersTable, userColumns)

	user, err := scanUser(p.db.QueryRow(ctx, query, userID, upd.Name, upd.Photo, upd.Phone, upd.Bio))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user, ErrUserNotFound
		}
		return user, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (p *PostgresStorage) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	const op = "storage.UpdatePassword"

	query := fmt.Sprintf("UPDATE %s SET password_hash=$1, updated_at=now() WHERE id=$2;", usersTable)

	tag, err := p.db.Exec(ctx, query, passwordHash, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

// ReplaceResetToken removes whatever reset token the user had and stores
// the new one in the same transaction, so a concurrent redeem can never
// observe two live tokens for one user.
func (p *PostgresStorage) ReplaceResetToken(ctx context.Context, token models.ResetToken) error {
	const op = "storage.ReplaceResetToken"

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback(ctx)

	deleteQuery := fmt.Sprintf("DELETE FROM %s WHERE user_id=$1;", resetTokensTable)
	if _, err := tx.Exec(ctx, deleteQuery, token.UserID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	insertQuery := fmt.Sprintf(`INSERT INTO %s(user_id, token_hash, created_at, expires_at)
	VALUES ($1, $2, $3, $4);`, resetTokensTable)
	if _, err := tx.Exec(ctx, insertQuery, token.UserID, token.TokenHash, token.CreatedAt, token.ExpiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// GetResetTokenByHash only matches tokens that have not expired yet.
// The caller cannot tell a missing token from an expired one.
func (p *PostgresStorage) GetResetTokenByHash(ctx context.Context, tokenHash string) (models.ResetToken, error) {
	const op = "storage.GetResetTokenByHash"

	var token models.ResetToken
	query := fmt.Sprintf(`SELECT user_id, token_hash, created_at, expires_at
	FROM %s WHERE token_hash=$1 AND expires_at > now();`, resetTokensTable)

	err := p.db.QueryRow(ctx, query, tokenHash).Scan(
		&token.UserID,
		&token.TokenHash,
		&token.CreatedAt,
		&token.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return token, ErrTokenNotFound
		}
		return token, fmt.Errorf("%s: %w", op, err)
	}

	return token, nil
}

func (p *PostgresStorage) DeleteResetToken(ctx context.Context, userID uuid.UUID) error {
	const op = "storage.DeleteResetToken"

	query := fmt.Sprintf("DELETE FROM %s WHERE user_id=$1;", resetTokensTable)
	if _, err := p.db.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (p *PostgresStorage) Close() {
	p.db.Close()
}
