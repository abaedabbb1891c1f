// Package user is the account store: credential storage (argon2id-hashed,
// salted) and lookups by username or ID. Grounded on the teacher's
// internal/user/store.go, simplified to drop the permissions-table
// join/JSONB aggregation entirely - this service's authorization model is
// plain ownership (every core operation takes an already-authenticated
// owner_id), not permission scopes.
package user

import (
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/arcflux/reeltime/internal/database"
	"github.com/arcflux/reeltime/pkg/logger"
)

var ErrUserNotFound = errors.New("user does not exist")

var log = logger.Get("UserStore")

type (
	User struct {
		ID             uuid.UUID  `db:"id"`
		Username       string     `db:"username"`
		HashedPassword []byte     `db:"password" json:"-"`
		HashSalt       []byte     `db:"salt" json:"-"`
		CreatedAt      time.Time  `db:"created_at"`
		UpdatedAt      time.Time  `db:"updated_at"`
		LastLoginAt    *time.Time `db:"last_login"`
		LastRefreshAt  *time.Time `db:"last_refresh"`
	}

	Store struct {
		hasher *argonHasher
	}
)

func NewStore() *Store {
	return &Store{
		//TODO figure out the best values for this
		hasher: newArgon2IdHasher(1, 64, 64*1024, 1, 128),
	}
}

func (store *Store) Create(db database.Queryable, username []byte, rawPassword []byte) error {
	hash, err := store.hasher.GenerateHash(rawPassword, []byte{})
	if err != nil {
		return fmt.Errorf("provided password is invalid: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO users(id, username, password, salt, created_at, updated_at, last_login, last_refresh)
		VALUES ($1, $2, $3, $4, current_timestamp, current_timestamp, NULL, NULL)
	`, uuid.New(), username, hash.hash, hash.salt)
	if err != nil {
		return fmt.Errorf("failed to insert new user: %w", err)
	}

	log.Debugf("created user %s\n", username)
	return nil
}

// GetWithUsernameAndPassword finds a user with the matching username and
// returns it IF AND ONLY IF the raw (unhashed) password provided hashes to
// the same value as the stored hash, using the stored salt.
func (store *Store) GetWithUsernameAndPassword(db database.Queryable, username []byte, rawPassword []byte) (*User, error) {
	query, args, err := selectUserBuilder().Where("username=?", username).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct select user query: %w", err)
	}

	var user User
	if err := db.Get(&user, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to find user with username %s: %w", username, err)
	}

	if err := store.hasher.Compare(user.HashedPassword, user.HashSalt, rawPassword); err != nil {
		return nil, fmt.Errorf("password supplied for user %s is invalid: %v", username, err)
	}

	return &user, nil
}

func (store *Store) GetWithId(db database.Queryable, id uuid.UUID) (*User, error) {
	query, args, err := selectUserBuilder().Where("id=?", id).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct select user query: %w", err)
	}

	var user User
	if err := db.Get(&user, db.Rebind(query), args...); err != nil {
		return nil, ErrUserNotFound
	}

	return &user, nil
}

func (store *Store) RecordUpdate(db database.Queryable, userID uuid.UUID) error {
	_, err := db.Exec(`UPDATE users SET updated_at=current_timestamp WHERE id = $1`, userID)
	return err
}

func (store *Store) RecordLogin(db database.Queryable, userID uuid.UUID) error {
	_, err := db.Exec(`UPDATE users SET last_login=current_timestamp WHERE id = $1`, userID)
	return err
}

func (store *Store) RecordRefresh(db database.Queryable, userID uuid.UUID) error {
	_, err := db.Exec(`UPDATE users SET last_refresh=current_timestamp WHERE id = $1`, userID)
	return err
}

func selectUserBuilder() squirrel.SelectBuilder {
	return squirrel.Select("*").From("users")
}
