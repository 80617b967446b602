package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arcsign/compliance-relayer/internal/apperr"
	"github.com/arcsign/compliance-relayer/internal/domain"
)

// PostgresConfig holds pool-sizing knobs, built by a constructor-plus-
// defaults shape: min 2, max 10 connections, acquire timeout 3s.
type PostgresConfig struct {
	MaxConns        int32
	MinConns        int32
	AcquireTimeout  time.Duration
	MaxConnLifetime time.Duration
}

// DefaultPostgresConfig returns the default pool sizing.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		MaxConns:        10,
		MinConns:        2,
		AcquireTimeout:  3 * time.Second,
		MaxConnLifetime: 30 * time.Minute,
	}
}

// PostgresStore implements Store against a PostgreSQL database via pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL with the given pool config.
func NewPostgresStore(ctx context.Context, databaseURL string, cfg PostgresConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, "invalid database_url", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDBConnection, "failed to create connection pool", err)
	}

	acquireCtx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
	defer cancel()
	conn, err := pool.Acquire(acquireCtx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDBConnection, "failed to acquire initial connection", err)
	}
	conn.Release()

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() { p.pool.Close() }

func (p *PostgresStore) HealthCheck(ctx context.Context) error {
	var one int
	if err := p.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return apperr.Wrap(apperr.KindDBConnection, "database health check failed", err)
	}
	return nil
}

const transferColumns = `id, from_address, to_address, transfer_details, token_mint,
	client_signature, nonce, compliance_status, blockchain_status,
	blockchain_signature, blockchain_retry_count, blockchain_last_error,
	blockchain_next_retry_at, created_at, updated_at`

func scanTransfer(row pgx.Row) (*domain.TransferRequest, error) {
	var r domain.TransferRequest
	var detailsJSON []byte
	var complianceStr, blockchainStr string

	err := row.Scan(
		&r.ID, &r.FromAddress, &r.ToAddress, &detailsJSON, &r.TokenMint,
		&r.ClientSignature, &r.Nonce, &complianceStr, &blockchainStr,
		&r.BlockchainSignature, &r.BlockchainRetryCount, &r.BlockchainLastError,
		&r.BlockchainNextRetry, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.KindDBQuery, "failed to scan transfer_requests row", err)
	}
	if err := json.Unmarshal(detailsJSON, &r.TransferDetails); err != nil {
		return nil, apperr.Wrap(apperr.KindDeserialize, "failed to decode transfer_details", err)
	}
	r.ComplianceStatus = domain.ComplianceStatus(complianceStr)
	r.BlockchainStatus = domain.BlockchainStatus(blockchainStr)
	return &r, nil
}

func (p *PostgresStore) CreateTransferRequest(ctx context.Context, r *domain.TransferRequest) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now

	detailsJSON, err := json.Marshal(r.TransferDetails)
	if err != nil {
		return apperr.Wrap(apperr.KindSerialization, "failed to encode transfer_details", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO transfer_requests (
			id, from_address, to_address, transfer_details, token_mint,
			client_signature, nonce, compliance_status, blockchain_status,
			blockchain_retry_count, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		r.ID, r.FromAddress, r.ToAddress, detailsJSON, r.TokenMint,
		r.ClientSignature, r.Nonce, string(r.ComplianceStatus), string(r.BlockchainStatus),
		r.BlockchainRetryCount, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Wrap(apperr.KindDuplicate, "transfer request with this (from_address, nonce) already exists", err)
		}
		return apperr.Wrap(apperr.KindDBQuery, "failed to insert transfer_requests row", err)
	}
	return nil
}

func (p *PostgresStore) GetTransferRequest(ctx context.Context, id string) (*domain.TransferRequest, error) {
	row := p.pool.QueryRow(ctx, "SELECT "+transferColumns+" FROM transfer_requests WHERE id = $1", id)
	r, err := scanTransfer(row)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, apperr.New(apperr.KindDBNotFound, "transfer request not found")
	}
	return r, nil
}

func (p *PostgresStore) GetByNonce(ctx context.Context, fromAddress, nonce string) (*domain.TransferRequest, error) {
	row := p.pool.QueryRow(ctx,
		"SELECT "+transferColumns+" FROM transfer_requests WHERE from_address = $1 AND nonce = $2",
		fromAddress, nonce)
	return scanTransfer(row)
}

func (p *PostgresStore) ListTransferRequests(ctx context.Context, limit int, cursor string) (domain.Page[domain.TransferRequest], error) {
	fetchLimit := limit + 1

	var rows pgx.Rows
	var err error
	if cursor != "" {
		var cursorCreatedAt time.Time
		if scanErr := p.pool.QueryRow(ctx, "SELECT created_at FROM transfer_requests WHERE id = $1", cursor).Scan(&cursorCreatedAt); scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
				return domain.Page[domain.TransferRequest]{}, apperr.New(apperr.KindValidation, "invalid cursor")
			}
			return domain.Page[domain.TransferRequest]{}, apperr.Wrap(apperr.KindDBQuery, "failed to resolve cursor", scanErr)
		}
		rows, err = p.pool.Query(ctx, `
			SELECT `+transferColumns+`
			FROM transfer_requests
			WHERE (created_at, id) < ($1, $2)
			ORDER BY created_at DESC, id DESC
			LIMIT $3`, cursorCreatedAt, cursor, fetchLimit)
	} else {
		rows, err = p.pool.Query(ctx, `
			SELECT `+transferColumns+`
			FROM transfer_requests
			ORDER BY created_at DESC, id DESC
			LIMIT $1`, fetchLimit)
	}
	if err != nil {
		return domain.Page[domain.TransferRequest]{}, apperr.Wrap(apperr.KindDBQuery, "failed to list transfer_requests", err)
	}
	defer rows.Close()

	items := make([]domain.TransferRequest, 0, fetchLimit)
	for rows.Next() {
		r, scanErr := scanTransfer(rows)
		if scanErr != nil {
			return domain.Page[domain.TransferRequest]{}, scanErr
		}
		items = append(items, *r)
	}
	if rows.Err() != nil {
		return domain.Page[domain.TransferRequest]{}, apperr.Wrap(apperr.KindDBQuery, "error iterating transfer_requests", rows.Err())
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}
	page := domain.Page[domain.TransferRequest]{Items: items, HasMore: hasMore}
	if hasMore {
		page.NextCursor = items[len(items)-1].ID
	}
	return page, nil
}

func (p *PostgresStore) SetComplianceStatus(ctx context.Context, id string, status domain.ComplianceStatus) error {
	_, err := p.pool.Exec(ctx,
		"UPDATE transfer_requests SET compliance_status = $1, updated_at = NOW() WHERE id = $2",
		string(status), id)
	if err != nil {
		return apperr.Wrap(apperr.KindDBQuery, "failed to update compliance_status", err)
	}
	return nil
}

func (p *PostgresStore) MarkPendingSubmission(ctx context.Context, id string, lastError string, nextRetryAt time.Time) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE transfer_requests
		SET blockchain_status = 'pending_submission',
		    blockchain_last_error = NULLIF($1, ''),
		    blockchain_next_retry_at = $2,
		    updated_at = NOW()
		WHERE id = $3
		  AND blockchain_status NOT IN ('confirmed', 'failed')`,
		lastError, nextRetryAt, id)
	if err != nil {
		return apperr.Wrap(apperr.KindDBQuery, "failed to mark pending_submission", err)
	}
	return nil
}

func (p *PostgresStore) MarkSubmitted(ctx context.Context, id string, signature string) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE transfer_requests
		SET blockchain_status = 'submitted',
		    blockchain_signature = $1,
		    blockchain_next_retry_at = NULL,
		    updated_at = NOW()
		WHERE id = $2
		  AND blockchain_status NOT IN ('confirmed', 'failed')`,
		signature, id)
	if err != nil {
		return apperr.Wrap(apperr.KindDBQuery, "failed to mark submitted", err)
	}
	return nil
}

func (p *PostgresStore) MarkConfirmed(ctx context.Context, id string) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE transfer_requests
		SET blockchain_status = 'confirmed', updated_at = NOW()
		WHERE id = $1 AND blockchain_status = 'submitted'`, id)
	if err != nil {
		return false, apperr.Wrap(apperr.KindDBQuery, "failed to mark confirmed", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *PostgresStore) MarkFailed(ctx context.Context, id string, reason string) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE transfer_requests
		SET blockchain_status = 'failed', blockchain_last_error = $1, updated_at = NOW()
		WHERE id = $2 AND blockchain_status = 'submitted'`, reason, id)
	if err != nil {
		return false, apperr.Wrap(apperr.KindDBQuery, "failed to mark failed", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *PostgresStore) MarkFailedFromRetryExhaustion(ctx context.Context, id string, reason string) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE transfer_requests
		SET blockchain_status = 'failed',
		    blockchain_last_error = $1,
		    blockchain_next_retry_at = NULL,
		    updated_at = NOW()
		WHERE id = $2
		  AND blockchain_status NOT IN ('confirmed', 'failed')`, reason, id)
	if err != nil {
		return apperr.Wrap(apperr.KindDBQuery, "failed to mark failed from retry exhaustion", err)
	}
	return nil
}

func (p *PostgresStore) GetBySignature(ctx context.Context, signature string) (*domain.TransferRequest, error) {
	row := p.pool.QueryRow(ctx, "SELECT "+transferColumns+" FROM transfer_requests WHERE blockchain_signature = $1", signature)
	return scanTransfer(row)
}

// ClaimPendingSubmissions atomically claims eligible rows via a single
// UPDATE...RETURNING that both selects them and marks them Processing, so
// no two workers can ever claim the same row.
func (p *PostgresStore) ClaimPendingSubmissions(ctx context.Context, limit int, now time.Time) ([]*domain.TransferRequest, error) {
	rows, err := p.pool.Query(ctx, `
		UPDATE transfer_requests
		SET blockchain_status = 'processing', updated_at = $1
		WHERE id IN (
			SELECT id FROM transfer_requests
			WHERE compliance_status = 'approved'
			  AND blockchain_status = 'pending_submission'
			  AND (blockchain_next_retry_at IS NULL OR blockchain_next_retry_at <= $1)
			  AND blockchain_retry_count < $2
			ORDER BY blockchain_next_retry_at ASC NULLS FIRST, created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+transferColumns,
		now, domain.MaxRetries, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDBQuery, "failed to claim pending submissions", err)
	}
	defer rows.Close()

	out := make([]*domain.TransferRequest, 0, limit)
	for rows.Next() {
		r, scanErr := scanTransfer(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, apperr.Wrap(apperr.KindDBQuery, "error iterating claimed rows", rows.Err())
	}
	return out, nil
}

func (p *PostgresStore) IncrementRetryCount(ctx context.Context, id string) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx, `
		UPDATE transfer_requests
		SET blockchain_retry_count = blockchain_retry_count + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING blockchain_retry_count`, id).Scan(&count)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindDBQuery, "failed to increment retry count", err)
	}
	return count, nil
}

func (p *PostgresStore) ResetRetryCount(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE transfer_requests
		SET blockchain_retry_count = 0, blockchain_last_error = NULL, updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return apperr.Wrap(apperr.KindDBQuery, "failed to reset retry count", err)
	}
	return nil
}

func (p *PostgresStore) ClaimStaleSubmitted(ctx context.Context, limit int, cutoff time.Time) ([]*domain.TransferRequest, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+transferColumns+`
		FROM transfer_requests
		WHERE blockchain_status = 'submitted' AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDBQuery, "failed to select stale submitted rows", err)
	}
	defer rows.Close()

	out := make([]*domain.TransferRequest, 0, limit)
	for rows.Next() {
		r, scanErr := scanTransfer(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) TouchUpdatedAt(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx, "UPDATE transfer_requests SET updated_at = NOW() WHERE id = $1", id)
	if err != nil {
		return apperr.Wrap(apperr.KindDBQuery, "failed to touch updated_at", err)
	}
	return nil
}

func (p *PostgresStore) UpsertBlocklistEntry(ctx context.Context, e *domain.BlocklistEntry) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO blocklist (address, reason, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (address) DO UPDATE SET reason = EXCLUDED.reason, updated_at = NOW()`,
		e.Address, e.Reason)
	if err != nil {
		return apperr.Wrap(apperr.KindDBQuery, "failed to upsert blocklist entry", err)
	}
	return nil
}

func (p *PostgresStore) DeleteBlocklistEntry(ctx context.Context, address string) (bool, error) {
	tag, err := p.pool.Exec(ctx, "DELETE FROM blocklist WHERE address = $1", address)
	if err != nil {
		return false, apperr.Wrap(apperr.KindDBQuery, "failed to delete blocklist entry", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *PostgresStore) ListBlocklistEntries(ctx context.Context) ([]*domain.BlocklistEntry, error) {
	rows, err := p.pool.Query(ctx, "SELECT address, reason, created_at, updated_at FROM blocklist ORDER BY address")
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDBQuery, "failed to list blocklist", err)
	}
	defer rows.Close()

	out := make([]*domain.BlocklistEntry, 0)
	for rows.Next() {
		var e domain.BlocklistEntry
		if err := rows.Scan(&e.Address, &e.Reason, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindDBQuery, "failed to scan blocklist row", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GetRiskProfile(ctx context.Context, address string) (*domain.WalletRiskProfile, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT address, risk_score, risk_level, reasoning, has_sanctioned_assets,
		       helius_assets_checked, created_at, updated_at
		FROM wallet_risk_profiles WHERE address = $1`, address)

	var prof domain.WalletRiskProfile
	err := row.Scan(&prof.Address, &prof.RiskScore, &prof.RiskLevel, &prof.Reasoning,
		&prof.HasSanctionedAssets, &prof.HeliusAssetsChecked, &prof.CreatedAt, &prof.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.KindDBQuery, "failed to fetch risk profile", err)
	}
	return &prof, nil
}

func (p *PostgresStore) UpsertRiskProfile(ctx context.Context, prof *domain.WalletRiskProfile) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO wallet_risk_profiles (
			address, risk_score, risk_level, reasoning, has_sanctioned_assets,
			helius_assets_checked, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW())
		ON CONFLICT (address) DO UPDATE SET
			risk_score = EXCLUDED.risk_score,
			risk_level = EXCLUDED.risk_level,
			reasoning = EXCLUDED.reasoning,
			has_sanctioned_assets = EXCLUDED.has_sanctioned_assets,
			helius_assets_checked = EXCLUDED.helius_assets_checked,
			updated_at = NOW()`,
		prof.Address, prof.RiskScore, prof.RiskLevel, prof.Reasoning,
		prof.HasSanctionedAssets, prof.HeliusAssetsChecked)
	if err != nil {
		return apperr.Wrap(apperr.KindDBQuery, "failed to upsert risk profile", err)
	}
	return nil
}

// postgresUniqueViolation is the SQLSTATE for a unique_violation.
const postgresUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == postgresUniqueViolation
}
