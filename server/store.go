package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pkgradar/kanban"
)

var ErrNotFound = errors.New("not found")

// userStore is what the API needs from persistence. Package and board
// lists are replaced wholesale; there is no merge and no version check.
type userStore interface {
	UserByID(ctx context.Context, id int64) (User, error)
	UserBySession(ctx context.Context, token string) (User, error)
	EnsureOAuthUser(ctx context.Context, provider string, p Profile) (User, error)
	CreateSession(ctx context.Context, userID int64, ttl time.Duration) (string, time.Time, error)
	DeleteSession(ctx context.Context, token string) error
	ReplacePackages(ctx context.Context, userID int64, cards kanban.Cards) (User, error)
	ReplaceBoards(ctx context.Context, userID int64, boards []string) (User, error)
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const userCols = `id, username, name, coalesce(avatar_url,''), kanban_boards, packages, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	var boards, packages []byte
	err := row.Scan(&u.ID, &u.Username, &u.Name, &u.AvatarURL, &boards, &packages, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	if err := json.Unmarshal(boards, &u.KanbanBoards); err != nil {
		return User{}, fmt.Errorf("decode kanban_boards: %w", err)
	}
	if err := json.Unmarshal(packages, &u.Packages); err != nil {
		return User{}, fmt.Errorf("decode packages: %w", err)
	}
	if u.KanbanBoards == nil {
		u.KanbanBoards = []string{}
	}
	if u.Packages == nil {
		u.Packages = kanban.Cards{}
	}
	return u, nil
}

func (s *Store) UserByID(ctx context.Context, id int64) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userCols+` from users where id=$1`, id))
}

func (s *Store) userByUsername(ctx context.Context, username string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userCols+` from users where lower(username)=lower($1)`, username))
}

func (s *Store) UserBySession(ctx context.Context, token string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select u.id, u.username, u.name, coalesce(u.avatar_url,''), u.kanban_boards, u.packages, u.created_at
		from sessions s join users u on u.id=s.user_id
		where s.token=$1 and s.expires_at > now()`, token))
}

func (s *Store) CreateSession(ctx context.Context, userID int64, ttl time.Duration) (string, time.Time, error) {
	// 32 random bytes, base64 URL encoded
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", time.Time{}, err
	}
	token := base64.RawURLEncoding.EncodeToString(b)
	expires := time.Now().Add(ttl)
	_, err := s.db.ExecContext(ctx, `insert into sessions(user_id, token, expires_at) values($1,$2,$3)`, userID, token, expires)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `delete from sessions where token=$1`, token)
	return err
}

// EnsureOAuthUser links or creates a user for provider and p.ProviderUserID.
// Profile fields refresh on every login.
func (s *Store) EnsureOAuthUser(ctx context.Context, provider string, p Profile) (User, error) {
	// 1) linked account
	u, err := scanUser(s.db.QueryRowContext(ctx, `select u.id, u.username, u.name, coalesce(u.avatar_url,''), u.kanban_boards, u.packages, u.created_at
		from oauth_accounts oa join users u on u.id = oa.user_id
		where oa.provider=$1 and oa.provider_user_id=$2`, provider, p.ProviderUserID))
	switch {
	case err == nil:
		return scanUser(s.db.QueryRowContext(ctx, `update users set name=$1, avatar_url=$2 where id=$3 returning `+userCols,
			p.Name, p.AvatarURL, u.ID))
	case !errors.Is(err, ErrNotFound):
		return User{}, err
	}
	// 2) same username
	have, err := s.userByUsername(ctx, p.Username)
	notFound := errors.Is(err, ErrNotFound)
	if err != nil && !notFound {
		return User{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return User{}, err
	}
	defer func() { _ = tx.Rollback() }()
	if notFound {
		u, err = scanUser(tx.QueryRowContext(ctx, `insert into users(username, name, avatar_url) values($1,$2,$3) returning `+userCols,
			p.Username, p.Name, p.AvatarURL))
		if err != nil {
			return User{}, err
		}
	} else {
		u = have
	}
	// 3) link (ignore duplicate unique constraint)
	if _, err = tx.ExecContext(ctx, `insert into oauth_accounts(user_id, provider, provider_user_id) values($1,$2,$3)
			on conflict (provider, provider_user_id) do nothing`, u.ID, provider, p.ProviderUserID); err != nil {
		return User{}, err
	}
	if err = tx.Commit(); err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *Store) ReplacePackages(ctx context.Context, userID int64, cards kanban.Cards) (User, error) {
	if cards == nil {
		cards = kanban.Cards{}
	}
	data, err := json.Marshal(cards)
	if err != nil {
		return User{}, fmt.Errorf("encode packages: %w", err)
	}
	return scanUser(s.db.QueryRowContext(ctx, `update users set packages=$1::jsonb where id=$2 returning `+userCols, string(data), userID))
}

func (s *Store) ReplaceBoards(ctx context.Context, userID int64, boards []string) (User, error) {
	data, err := json.Marshal(kanban.NormalizeBoards(boards))
	if err != nil {
		return User{}, fmt.Errorf("encode boards: %w", err)
	}
	return scanUser(s.db.QueryRowContext(ctx, `update users set kanban_boards=$1::jsonb where id=$2 returning `+userCols, string(data), userID))
}

const schema = `
create table if not exists users(
		id bigserial primary key,
		username text unique not null check (length(username) > 0),
		name text not null default '',
		avatar_url text,
		kanban_boards jsonb not null default '[]',
		packages jsonb not null default '[]',
		created_at timestamptz not null default now()
);
create unique index if not exists users_username_lower_idx on users(lower(username));

create table if not exists oauth_accounts(
		id bigserial primary key,
		user_id bigint not null references users(id) on delete cascade,
		provider text not null,
		provider_user_id text not null,
		unique(provider, provider_user_id)
);

create table if not exists sessions(
		id bigserial primary key,
		user_id bigint not null references users(id) on delete cascade,
		token text unique not null,
		created_at timestamptz not null default now(),
		expires_at timestamptz not null
);
create index if not exists sessions_expires_idx on sessions(expires_at);
`
