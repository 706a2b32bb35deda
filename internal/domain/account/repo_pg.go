package account

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TechCorp07/klara-test-sub003/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository { return &userRepoPG{pool: pool} }

func (r *userRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const userCols = `id, email, role, first_name, last_name, phone, date_of_birth, avatar_url,
	timezone, language, two_factor_enabled, status, created_at, updated_at`

func (r *userRepoPG) scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Role, &u.FirstName, &u.LastName, &u.Phone, &u.DateOfBirth,
		&u.AvatarURL, &u.Timezone, &u.Language, &u.TwoFactorEnabled, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	return &u, err
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO portal_user (id, email, role, first_name, last_name, phone, date_of_birth,
			avatar_url, timezone, language, two_factor_enabled, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		u.ID, u.Email, u.Role, u.FirstName, u.LastName, u.Phone, u.DateOfBirth,
		u.AvatarURL, u.Timezone, u.Language, u.TwoFactorEnabled, u.Status)
	return err
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM portal_user WHERE id = $1`, id))
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM portal_user WHERE email = $1`, email))
}

func (r *userRepoPG) Update(ctx context.Context, u *User) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE portal_user SET first_name=$2, last_name=$3, phone=$4, date_of_birth=$5,
			avatar_url=$6, timezone=$7, language=$8, two_factor_enabled=$9, status=$10, updated_at=NOW()
		WHERE id = $1`,
		u.ID, u.FirstName, u.LastName, u.Phone, u.DateOfBirth,
		u.AvatarURL, u.Timezone, u.Language, u.TwoFactorEnabled, u.Status)
	return err
}

func (r *userRepoPG) List(ctx context.Context, limit, offset int) ([]*User, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM portal_user`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+userCols+` FROM portal_user ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*User
	for rows.Next() {
		u, err := r.scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, u)
	}
	return items, total, nil
}

type credentialRepoPG struct{ pool *pgxpool.Pool }

func NewCredentialRepoPG(pool *pgxpool.Pool) CredentialRepository {
	return &credentialRepoPG{pool: pool}
}

func (r *credentialRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *credentialRepoPG) Set(ctx context.Context, c *Credential) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO user_credential (user_id, password_hash, password_changed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET password_hash = $2, password_changed_at = NOW()`,
		c.UserID, c.PasswordHash)
	return err
}

func (r *credentialRepoPG) Get(ctx context.Context, userID uuid.UUID) (*Credential, error) {
	var c Credential
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT user_id, password_hash, password_changed_at FROM user_credential WHERE user_id = $1`,
		userID).Scan(&c.UserID, &c.PasswordHash, &c.PasswordChangedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
