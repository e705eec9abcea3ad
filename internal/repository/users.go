package repository

import (
	"context"
	"fmt"
	"time"

	"truefantix/internal/models"
)

const userColumns = `id, email, phone, password_hash, first_name, last_name, display_name,
	street_address1, street_address2, city, region, postal_code, country,
	role, can_buy, can_sell, is_banned, email_verified_at, phone_verified_at,
	seller_id, last_login_at, created_at, updated_at`

type UserPGRepository struct {
	q querier
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(
		&u.ID, &u.Email, &u.Phone, &u.PasswordHash, &u.FirstName, &u.LastName, &u.DisplayName,
		&u.StreetAddress1, &u.StreetAddress2, &u.City, &u.Region, &u.PostalCode, &u.Country,
		&u.Role, &u.CanBuy, &u.CanSell, &u.IsBanned, &u.EmailVerifiedAt, &u.PhoneVerifiedAt,
		&u.SellerID, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UserPGRepository) Create(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (id, email, phone, password_hash, first_name, last_name, display_name,
			street_address1, street_address2, city, region, postal_code, country,
			role, can_buy, can_sell, is_banned, email_verified_at, phone_verified_at,
			seller_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $21)`

	_, err := r.q.ExecContext(ctx, query,
		u.ID, u.Email, u.Phone, u.PasswordHash, u.FirstName, u.LastName, u.DisplayName,
		u.StreetAddress1, u.StreetAddress2, u.City, u.Region, u.PostalCode, u.Country,
		u.Role, u.CanBuy, u.CanSell, u.IsBanned, u.EmailVerifiedAt, u.PhoneVerifiedAt,
		u.SellerID, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", mapError(err))
	}
	u.UpdatedAt = u.CreatedAt
	return nil
}

func (r *UserPGRepository) getBy(ctx context.Context, column, value string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = $1`
	return scanUser(r.q.QueryRowContext(ctx, query, value))
}

func (r *UserPGRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getBy(ctx, "id", id)
}

func (r *UserPGRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getBy(ctx, "email", email)
}

func (r *UserPGRepository) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	return r.getBy(ctx, "phone", phone)
}

func (r *UserPGRepository) GetBySellerID(ctx context.Context, sellerID string) (*models.User, error) {
	return r.getBy(ctx, "seller_id", sellerID)
}

func (r *UserPGRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `UPDATE users SET last_login_at = $2, updated_at = $2 WHERE id = $1`, id, at)
	return err
}

func (r *UserPGRepository) MarkVerified(ctx context.Context, id, channel string, at time.Time) error {
	column := "email_verified_at"
	if channel == models.ChannelPhone {
		column = "phone_verified_at"
	}
	query := `UPDATE users SET ` + column + ` = $2, updated_at = $2 WHERE id = $1`
	_, err := r.q.ExecContext(ctx, query, id, at)
	return err
}

func (r *UserPGRepository) SetCanSell(ctx context.Context, id string, canSell bool) error {
	_, err := r.q.ExecContext(ctx, `UPDATE users SET can_sell = $2, updated_at = NOW() WHERE id = $1`, id, canSell)
	return err
}

// Sessions

type SessionPGRepository struct {
	q querier
}

func (r *SessionPGRepository) Create(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, token_hash, expires_at, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.q.ExecContext(ctx, query, s.ID, s.UserID, s.TokenHash, s.ExpiresAt, s.IP, s.UserAgent, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", mapError(err))
	}
	return nil
}

func (r *SessionPGRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	s := &models.Session{}
	query := `
		SELECT id, user_id, token_hash, expires_at, ip, user_agent, created_at
		FROM sessions WHERE token_hash = $1`
	err := r.q.QueryRowContext(ctx, query, tokenHash).Scan(
		&s.ID, &s.UserID, &s.TokenHash, &s.ExpiresAt, &s.IP, &s.UserAgent, &s.CreatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SessionPGRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	return err
}

func (r *SessionPGRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return affected(r.q.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now))
}

// Verification codes

type VerificationCodePGRepository struct {
	q querier
}

func (r *VerificationCodePGRepository) Create(ctx context.Context, c *models.VerificationCode) error {
	query := `
		INSERT INTO verification_codes (id, user_id, channel, code_hash, expires_at, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6)`
	_, err := r.q.ExecContext(ctx, query, c.ID, c.UserID, c.Channel, c.CodeHash, c.ExpiresAt, c.CreatedAt)
	return err
}

func (r *VerificationCodePGRepository) GetLatestActive(ctx context.Context, userID, channel string, now time.Time) (*models.VerificationCode, error) {
	c := &models.VerificationCode{}
	query := `
		SELECT id, user_id, channel, code_hash, expires_at, consumed_at, attempts, created_at
		FROM verification_codes
		WHERE user_id = $1 AND channel = $2 AND consumed_at IS NULL AND expires_at > $3
		ORDER BY created_at DESC
		LIMIT 1`
	err := r.q.QueryRowContext(ctx, query, userID, channel, now).Scan(
		&c.ID, &c.UserID, &c.Channel, &c.CodeHash, &c.ExpiresAt, &c.ConsumedAt, &c.Attempts, &c.CreatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *VerificationCodePGRepository) IncrementAttempts(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `UPDATE verification_codes SET attempts = attempts + 1 WHERE id = $1`, id)
	return err
}

func (r *VerificationCodePGRepository) Consume(ctx context.Context, id string, at time.Time) (int64, error) {
	return affected(r.q.ExecContext(ctx,
		`UPDATE verification_codes SET consumed_at = $2 WHERE id = $1 AND consumed_at IS NULL`, id, at))
}
