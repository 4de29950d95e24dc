package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/razvanmacovei/x402-crawl-gateway/internal/audit"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/license"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/replay"
)

// ClaimStore implements replay.Store on the payment_claims table.
type ClaimStore struct{ db DB }

func NewClaimStore(db DB) *ClaimStore { return &ClaimStore{db: db} }

func (s *ClaimStore) Claim(ctx context.Context, c replay.Claim) error {
	if c.ClaimedAt.IsZero() {
		c.ClaimedAt = time.Now()
	}
	tag, err := s.db.Exec(ctx,
		`INSERT INTO payment_claims (reference, payer, amount, resource, claimed_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (reference) DO NOTHING`,
		c.Reference, c.Payer, c.Amount, c.Resource, c.ClaimedAt)
	if err != nil {
		return fmt.Errorf("insert claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return replay.ErrAlreadyClaimed
	}
	return nil
}

// AuditStore implements audit.Store on the crawl_logs table.
type AuditStore struct{ db DB }

func NewAuditStore(db DB) *AuditStore { return &AuditStore{db: db} }

func (s *AuditStore) Name() string { return "postgres" }

func (s *AuditStore) Write(ctx context.Context, r audit.Record) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO crawl_logs (id, subject, publisher, resource, amount, reference, outcome, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		pgUUID(r.ID), r.Subject, r.Publisher, r.Resource, r.Amount, r.Reference, r.Outcome, r.Timestamp)
	if err != nil {
		return fmt.Errorf("insert crawl log %s: %w", r.ID, err)
	}
	return nil
}

func (s *AuditStore) Unlogged(ctx context.Context, limit int) ([]audit.Record, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, subject, publisher, resource, amount, reference, outcome, created_at
		 FROM crawl_logs
		 WHERE NOT ledger_logged
		 ORDER BY created_at, id
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unlogged: %w", err)
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		var (
			id pgtype.UUID
			r  audit.Record
		)
		if err := rows.Scan(&id, &r.Subject, &r.Publisher, &r.Resource, &r.Amount, &r.Reference, &r.Outcome, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan crawl log: %w", err)
		}
		r.ID = uuid.UUID(id.Bytes)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *AuditStore) MarkLogged(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	params := make([]pgtype.UUID, len(ids))
	for i, id := range ids {
		params[i] = pgUUID(id)
	}
	if _, err := s.db.Exec(ctx, `UPDATE crawl_logs SET ledger_logged = true WHERE id = ANY($1)`, params); err != nil {
		return fmt.Errorf("mark logged: %w", err)
	}
	return nil
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

// LicenseStore implements license.Lookup on the publisher_licenses table.
// Rows are written by the publisher-management service.
type LicenseStore struct{ db DB }

func NewLicenseStore(db DB) *LicenseStore { return &LicenseStore{db: db} }

func (s *LicenseStore) Lookup(ctx context.Context, owner string) (license.License, error) {
	l := license.License{Owner: license.NormalizeOwner(owner)}
	err := s.db.QueryRow(ctx,
		`SELECT active, created_at, updated_at, expires_at
		 FROM publisher_licenses
		 WHERE lower(owner) = $1`, l.Owner).
		Scan(&l.Active, &l.CreatedAt, &l.UpdatedAt, &l.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return license.License{}, license.ErrNotFound
	}
	if err != nil {
		return license.License{}, fmt.Errorf("query license: %w", err)
	}
	return l, nil
}

// TokenStore answers allow-list lookups from the access_tokens table.
type TokenStore struct{ db DB }

func NewTokenStore(db DB) *TokenStore { return &TokenStore{db: db} }

func (s *TokenStore) ValidToken(ctx context.Context, token string) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM access_tokens WHERE token = $1 AND NOT revoked)`, token).
		Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("query token: %w", err)
	}
	return ok, nil
}
