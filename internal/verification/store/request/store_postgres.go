package request

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"vouch/internal/verification/models"
	id "vouch/pkg/domain"
	"vouch/pkg/platform/sentinel"
)

// Schema is the DDL for the verification_requests table.
//
//go:embed schema.sql
var Schema string

const uniqueViolation = "23505"

const requestColumns = `id, owner_id, verification_type, status, submitted_data, documents,
	user_notes, admin_notes, rejection_reason, reviewed_by, submitted_at, reviewed_at`

// PostgresStore persists verification requests in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed request store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreatePending serializes submissions per (owner, type) with a transaction
// scoped advisory lock, then checks and inserts. The partial unique indexes
// back this up if a writer bypasses the lock.
func (s *PostgresStore) CreatePending(ctx context.Context, req *models.Request) error {
	data, err := json.Marshal(req.SubmittedData)
	if err != nil {
		return fmt.Errorf("marshal submitted data: %w", err)
	}
	docs, err := json.Marshal(req.Documents)
	if err != nil {
		return fmt.Errorf("marshal documents: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create pending tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	lockKey := "verification:" + req.OwnerID.String() + ":" + string(req.Type)
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
		return fmt.Errorf("acquire submission lock: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT status FROM verification_requests
		WHERE owner_id = $1 AND verification_type = $2 AND status = ANY($3)
	`, uuid.UUID(req.OwnerID), string(req.Type), pq.Array([]string{
		string(models.StatusApproved), string(models.StatusPending),
	}))
	if err != nil {
		return fmt.Errorf("check existing requests: %w", err)
	}
	var hasApproved, hasPending bool
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan existing status: %w", err)
		}
		switch models.Status(status) {
		case models.StatusApproved:
			hasApproved = true
		case models.StatusPending:
			hasPending = true
		}
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("close existing requests: %w", err)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate existing requests: %w", err)
	}
	if hasApproved {
		return sentinel.ErrFinalized
	}
	if hasPending {
		return sentinel.ErrConflict
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO verification_requests (
			id, owner_id, verification_type, status, submitted_data, documents, user_notes, submitted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.UUID(req.ID), uuid.UUID(req.OwnerID), string(req.Type), string(models.StatusPending),
		data, docs, req.UserNotes, req.SubmittedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert verification request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create pending: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM verification_requests WHERE id = $1`,
		uuid.UUID(requestID))
	r, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find verification request by id: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID id.UserID) ([]*models.Request, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM verification_requests
		WHERE owner_id = $1
		ORDER BY submitted_at DESC, id DESC`,
		uuid.UUID(ownerID))
	if err != nil {
		return nil, fmt.Errorf("list verification requests by owner: %w", err)
	}
	return collectRequests(rows)
}

func (s *PostgresStore) FindPendingFor(ctx context.Context, ownerID id.UserID, t models.VerificationType) (*models.Request, error) {
	return s.findFor(ctx, ownerID, t, models.StatusPending)
}

func (s *PostgresStore) FindApprovedFor(ctx context.Context, ownerID id.UserID, t models.VerificationType) (*models.Request, error) {
	return s.findFor(ctx, ownerID, t, models.StatusApproved)
}

func (s *PostgresStore) findFor(ctx context.Context, ownerID id.UserID, t models.VerificationType, status models.Status) (*models.Request, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM verification_requests
		WHERE owner_id = $1 AND verification_type = $2 AND status = $3
		LIMIT 1`,
		uuid.UUID(ownerID), string(t), string(status))
	r, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find %s verification request: %w", status, err)
	}
	return r, nil
}

func (s *PostgresStore) ListPending(ctx context.Context, q models.PendingQuery) ([]*models.Request, error) {
	var (
		where = []string{"status = 'pending'"}
		args  []any
	)
	if q.Type != "" {
		args = append(args, string(q.Type))
		where = append(where, fmt.Sprintf("verification_type = $%d", len(args)))
	}
	if q.After != nil {
		args = append(args, q.After.SubmittedAt, uuid.UUID(q.After.ID))
		where = append(where, fmt.Sprintf("(submitted_at, id) > ($%d, $%d)", len(args)-1, len(args)))
	}
	query := `SELECT ` + requestColumns + ` FROM verification_requests
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY submitted_at, id`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending verification requests: %w", err)
	}
	return collectRequests(rows)
}

// UpdateTerminal is a compare-and-set on status: the UPDATE only matches a
// pending row, so of two concurrent reviewers exactly one gets a row back.
func (s *PostgresStore) UpdateTerminal(ctx context.Context, requestID id.RequestID, review models.Review) (*models.Request, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE verification_requests
		SET status = $2, admin_notes = $3, rejection_reason = $4, reviewed_by = $5, reviewed_at = $6
		WHERE id = $1 AND status = 'pending'
		RETURNING `+requestColumns,
		uuid.UUID(requestID), string(review.Decision), review.Notes, review.Reason,
		uuid.UUID(review.ReviewerID), review.At)
	r, err := scanRequest(row)
	if err == nil {
		return r, nil
	}
	if isUniqueViolation(err) {
		return nil, sentinel.ErrInvalidState
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update verification request: %w", err)
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM verification_requests WHERE id = $1)`,
		uuid.UUID(requestID)).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check verification request exists: %w", err)
	}
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	return nil, sentinel.ErrInvalidState
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.Request, error) {
	var (
		r          models.Request
		rid, owner uuid.UUID
		reviewedBy uuid.NullUUID
		reviewedAt sql.NullTime
		typ        string
		status     string
		data, docs []byte
	)
	if err := row.Scan(&rid, &owner, &typ, &status, &data, &docs,
		&r.UserNotes, &r.AdminNotes, &r.RejectionReason, &reviewedBy, &r.SubmittedAt, &reviewedAt); err != nil {
		return nil, err
	}

	r.ID = id.RequestID(rid)
	r.OwnerID = id.UserID(owner)
	r.Type = models.VerificationType(typ)
	r.Status = models.Status(status)
	r.SubmittedAt = r.SubmittedAt.UTC()
	if err := json.Unmarshal(data, &r.SubmittedData); err != nil {
		return nil, fmt.Errorf("unmarshal submitted data: %w", err)
	}
	if r.SubmittedData == nil {
		r.SubmittedData = map[string]string{}
	}
	if err := json.Unmarshal(docs, &r.Documents); err != nil {
		return nil, fmt.Errorf("unmarshal documents: %w", err)
	}
	if reviewedBy.Valid {
		v := id.UserID(reviewedBy.UUID)
		r.ReviewedBy = &v
	}
	if reviewedAt.Valid {
		v := reviewedAt.Time.UTC()
		r.ReviewedAt = &v
	}
	return &r, nil
}

func collectRequests(rows *sql.Rows) ([]*models.Request, error) {
	defer rows.Close()

	var out []*models.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verification request: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verification requests: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
