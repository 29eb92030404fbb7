package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/phrazzld/echopod-api/internal/platform/logger"
	"github.com/phrazzld/echopod-api/internal/store"
)

// PostgreSQL error codes
const pgUniqueViolationCode = "23505"

// PostgresUserStore implements the store.UserStore interface
// using a PostgreSQL database as the storage backend.
type PostgresUserStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresUserStore creates a new PostgreSQL implementation of the
// UserStore interface. The database connection or transaction is managed
// by the caller. If logger is nil, a default logger is used.
func NewPostgresUserStore(db store.DBTX, logger *slog.Logger) *PostgresUserStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresUserStore{
		db:     db,
		logger: logger.With(slog.String("component", "user_store")),
	}
}

// Ensure PostgresUserStore implements store.UserStore interface
var _ store.UserStore = (*PostgresUserStore)(nil)

const userColumns = `id, username, email, hashed_password, is_admin, created_at`

func scanUser(row *sql.Row) (*store.User, error) {
	var u store.User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.HashedPassword,
		&u.IsAdmin,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID implements store.UserStore.GetByID
// Returns store.ErrUserNotFound if the user does not exist.
func (s *PostgresUserStore) GetByID(ctx context.Context, id int64) (*store.User, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("user not found", slog.Int64("user_id", id))
			return nil, store.ErrUserNotFound
		}
		log.Error("failed to get user by ID",
			slog.String("error", err.Error()),
			slog.Int64("user_id", id))
		return nil, err
	}
	return user, nil
}

// GetByUsername implements store.UserStore.GetByUsername
// Returns store.ErrUserNotFound if the user does not exist.
func (s *PostgresUserStore) GetByUsername(ctx context.Context, username string) (*store.User, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("user not found", slog.String("username", username))
			return nil, store.ErrUserNotFound
		}
		log.Error("failed to get user by username",
			slog.String("error", err.Error()),
			slog.String("username", username))
		return nil, err
	}
	return user, nil
}

// GetByAPIKey implements store.UserStore.GetByAPIKey
// Returns store.ErrUserNotFound if the key is unknown.
func (s *PostgresUserStore) GetByAPIKey(ctx context.Context, apiKey string) (*store.User, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT u.id, u.username, u.email, u.hashed_password, u.is_admin, u.created_at
		FROM users u
		JOIN api_keys k ON k.user_id = u.id
		WHERE k.api_key = $1
	`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, apiKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("api key not found")
			return nil, store.ErrUserNotFound
		}
		log.Error("failed to resolve api key",
			slog.String("error", err.Error()))
		return nil, err
	}
	return user, nil
}

// IsWebKey implements store.UserStore.IsWebKey
// The web key is the key owned by the background user, which the frontend
// backend uses to act on behalf of any user.
func (s *PostgresUserStore) IsWebKey(ctx context.Context, apiKey string) (bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT EXISTS (
			SELECT 1 FROM api_keys
			WHERE api_key = $1 AND user_id = $2
		)
	`

	var isWeb bool
	err := s.db.QueryRowContext(ctx, query, apiKey, webKeyUserID).Scan(&isWeb)
	if err != nil {
		log.Error("failed to check web key",
			slog.String("error", err.Error()))
		return false, err
	}
	return isWeb, nil
}

// webKeyUserID is the reserved account that owns the shared web key.
const webKeyUserID int64 = 1
