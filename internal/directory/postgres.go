package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Postgres implements Directory and RefreshTokenStore on PostgreSQL.
type Postgres struct {
	db *sql.DB
}

var (
	_ Directory         = (*Postgres)(nil)
	_ RefreshTokenStore = (*Postgres)(nil)
)

// Open connects using the pgx stdlib driver with pool defaults tuned for
// a small auth service.
func Open(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Postgres{db: db}, nil
}

// NewPostgres wraps an existing database handle (used in tests).
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := p.db.QueryRowContext(ctx,
		`select id, email, name, password_hash, status from users where email=$1`, email)
	return p.scanUser(ctx, row)
}

func (p *Postgres) FindByID(ctx context.Context, id string) (*User, error) {
	row := p.db.QueryRowContext(ctx,
		`select id, email, name, password_hash, status from users where id=$1`, id)
	return p.scanUser(ctx, row)
}

func (p *Postgres) scanUser(ctx context.Context, row *sql.Row) (*User, error) {
	var user User
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	memberships, err := p.memberships(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Memberships = memberships
	return &user, nil
}

func (p *Postgres) memberships(ctx context.Context, userID string) ([]Membership, error) {
	rows, err := p.db.QueryContext(ctx, `
		select m.company_id, c.name, m.role
		from memberships m
		join companies c on c.id = m.company_id
		where m.user_id = $1
		order by m.created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query memberships: %w", err)
	}
	defer rows.Close()

	var out []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.CompanyID, &m.CompanyName, &m.Role); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) Create(ctx context.Context, tok *RefreshToken) error {
	_, err := p.db.ExecContext(ctx,
		`insert into refresh_tokens(id, user_id, token_hash, expires_at) values($1,$2,$3,$4)`,
		tok.ID, tok.UserID, tok.TokenHash, tok.ExpiresAt,
	)
	return err
}

func (p *Postgres) Find(ctx context.Context, id string) (*RefreshToken, error) {
	var tok RefreshToken
	err := p.db.QueryRowContext(ctx,
		`select id, user_id, token_hash, expires_at, revoked from refresh_tokens where id=$1`, id,
	).Scan(&tok.ID, &tok.UserID, &tok.TokenHash, &tok.ExpiresAt, &tok.Revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}
	return &tok, nil
}

func (p *Postgres) MarkRevoked(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx,
		`update refresh_tokens set revoked = true where id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Schema documents the tables the postgres directory expects. The stub
// server does not run migrations; apply this manually when pointing it at
// a database.
const Schema = `
create table if not exists users (
	id            text primary key,
	email         text not null unique,
	name          text not null default '',
	password_hash text not null,
	status        text not null default 'active',
	created_at    timestamptz not null default now()
);

create table if not exists companies (
	id         text primary key,
	name       text not null,
	created_at timestamptz not null default now()
);

create table if not exists memberships (
	user_id    text not null references users(id) on delete cascade,
	company_id text not null references companies(id) on delete cascade,
	role       text not null,
	created_at timestamptz not null default now(),
	primary key (user_id, company_id)
);

create table if not exists refresh_tokens (
	id         text primary key,
	user_id    text not null references users(id) on delete cascade,
	token_hash text not null,
	expires_at timestamptz not null,
	revoked    boolean not null default false,
	created_at timestamptz not null default now()
);
`
