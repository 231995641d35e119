package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AnTengye/contracthub/model"
	"github.com/AnTengye/contracthub/store/migrations"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const pgUniqueViolation = "23505"

// PostgresStore implements Store on PostgreSQL through the pgx database/sql
// driver.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects to dsn, verifies the connection and applies the
// embedded migrations.
func OpenPostgres(ctx context.Context, dsn string, maxOpenConns int) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStore wraps an already migrated database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

const contractColumns = `id, title, status, owner_id, reviewer_id, rejection_reason, created_at, updated_at`

func (s *PostgresStore) CreateContract(ctx context.Context, c *model.Contract) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contracts (`+contractColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.Title, string(c.Status), c.OwnerID,
		nullString(c.ReviewerID), nullString(c.RejectionReason), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "contract "+c.ID)
	}
	return nil
}

func (s *PostgresStore) GetContract(ctx context.Context, id string) (*model.Contract, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = $1`, id)
	c, err := scanContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: contract %s", model.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load contract: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListContracts(ctx context.Context, f ContractFilter) ([]*model.Contract, error) {
	var (
		where []string
		args  []any
	)
	if f.ReviewerID != "" {
		args = append(args, f.ReviewerID)
		where = append(where, fmt.Sprintf("reviewer_id = $%d", len(args)))
	}
	if f.OwnerID != "" {
		args = append(args, f.OwnerID)
		where = append(where, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + contractColumns + ` FROM contracts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	result := make([]*model.Contract, 0)
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *PostgresStore) UpdateContract(ctx context.Context, c *model.Contract) error {
	return updateContract(ctx, s.db, c)
}

func updateContract(ctx context.Context, db DBTX, c *model.Contract) error {
	res, err := db.ExecContext(ctx, `
		UPDATE contracts
		SET title = $2, status = $3, reviewer_id = $4, rejection_reason = $5, updated_at = $6
		WHERE id = $1`,
		c.ID, c.Title, string(c.Status), nullString(c.ReviewerID), nullString(c.RejectionReason), c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update contract: %w", err)
	}
	return expectOneRow(res, "contract "+c.ID)
}

func (s *PostgresStore) DeleteContract(ctx context.Context, id string) (int, error) {
	var versions int
	err := withTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM contract_versions WHERE contract_id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete versions: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected error: %w", err)
		}
		versions = int(n)

		if _, err := tx.ExecContext(ctx, `DELETE FROM audit_logs WHERE contract_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete audit logs: %w", err)
		}

		res, err = tx.ExecContext(ctx, `DELETE FROM contracts WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete contract: %w", err)
		}
		return expectOneRow(res, "contract "+id)
	})
	if err != nil {
		return 0, err
	}
	return versions, nil
}

const versionColumns = `id, contract_id, sequence, file_ref, filename, uploaded_by, status,
	approved_by, rejection_reason, decided_at, created_at, updated_at`

func (s *PostgresStore) CreateVersion(ctx context.Context, v *model.Version, contract *model.Contract) error {
	return withTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM contracts WHERE id = $1 FOR UPDATE`, v.ContractID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: contract %s", model.ErrNotFound, v.ContractID)
		}
		if err != nil {
			return fmt.Errorf("failed to lock contract: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO contract_versions (`+versionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			v.ID, v.ContractID, v.Sequence, v.FileRef, v.Filename, v.UploadedBy, string(v.Status),
			nullString(v.ApprovedBy), nullString(v.RejectionReason), nullTime(v.DecidedAt), v.CreatedAt, v.UpdatedAt)
		if err != nil {
			return mapWriteError(err, fmt.Sprintf("version %d of contract %s", v.Sequence, v.ContractID))
		}
		if contract != nil {
			return updateContract(ctx, tx, contract)
		}
		return nil
	})
}

func (s *PostgresStore) UpdateVersion(ctx context.Context, v *model.Version, contract *model.Contract) error {
	return withTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE contract_versions
			SET status = $3, approved_by = $4, rejection_reason = $5, decided_at = $6, updated_at = $7
			WHERE id = $1 AND contract_id = $2`,
			v.ID, v.ContractID, string(v.Status), nullString(v.ApprovedBy), nullString(v.RejectionReason),
			nullTime(v.DecidedAt), v.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update version: %w", err)
		}
		if err := expectOneRow(res, "version "+v.ID); err != nil {
			return err
		}
		if contract != nil {
			return updateContract(ctx, tx, contract)
		}
		return nil
	})
}

func (s *PostgresStore) GetVersion(ctx context.Context, id string) (*model.Version, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM contract_versions WHERE id = $1`, id)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: version %s", model.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load version: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, contractID string) ([]*model.Version, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+versionColumns+` FROM contract_versions
		WHERE contract_id = $1
		ORDER BY sequence DESC`, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	result := make([]*model.Version, 0)
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

func (s *PostgresStore) CountVersions(ctx context.Context, contractID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contract_versions WHERE contract_id = $1`, contractID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count versions: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) AppendAudit(ctx context.Context, e *model.AuditLogEntry) error {
	meta, err := model.EncodeAuditDetails(e.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit metadata: %w", err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO audit_logs (id, action, actor_id, contract_id, version_id, version_scoped, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq`,
		e.ID, string(e.Action), e.ActorID, e.ContractID, nullString(e.VersionID), e.VersionScoped, string(meta), e.CreatedAt,
	).Scan(&e.Seq)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAudit(ctx context.Context, q AuditQuery) ([]*model.AuditLogEntry, error) {
	args := []any{q.ContractID}
	where := []string{"contract_id = $1"}

	if q.VersionID != "" {
		args = append(args, q.VersionID)
		cond := fmt.Sprintf("version_id = $%d", len(args))
		if q.IncludeFeedback {
			args = append(args, string(model.ActionVersionFeedback))
			cond = fmt.Sprintf("(%s OR action = $%d)", cond, len(args))
		}
		where = append(where, cond)
	}
	if q.VersionScopedOnly {
		where = append(where, "version_scoped")
	}
	if len(q.Actions) > 0 {
		placeholders := make([]string, len(q.Actions))
		for i, a := range q.Actions {
			args = append(args, string(a))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		where = append(where, "action IN ("+strings.Join(placeholders, ", ")+")")
	}
	if q.ActorID != "" {
		args = append(args, q.ActorID)
		where = append(where, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if !q.Since.IsZero() {
		args = append(args, q.Since)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !q.Until.IsZero() {
		args = append(args, q.Until)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}

	query := `SELECT seq, id, action, actor_id, contract_id, version_id, version_scoped, metadata, created_at
		FROM audit_logs WHERE ` + strings.Join(where, " AND ") + ` ORDER BY seq DESC`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	result := make([]*model.AuditLogEntry, 0)
	for rows.Next() {
		var (
			e         model.AuditLogEntry
			action    string
			versionID sql.NullString
			meta      []byte
		)
		if err := rows.Scan(&e.Seq, &e.ID, &action, &e.ActorID, &e.ContractID, &versionID, &e.VersionScoped, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		e.Action = model.Action(action)
		e.VersionID = versionID.String
		e.Details, err = model.DecodeAuditDetails(e.Action, e.VersionScoped, meta)
		if err != nil {
			return nil, err
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContract(row scanner) (*model.Contract, error) {
	var (
		c                        model.Contract
		status                   string
		reviewerID, rejectReason sql.NullString
	)
	if err := row.Scan(&c.ID, &c.Title, &status, &c.OwnerID, &reviewerID, &rejectReason, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Status = model.Status(status)
	c.ReviewerID = reviewerID.String
	c.RejectionReason = rejectReason.String
	return &c, nil
}

func scanVersion(row scanner) (*model.Version, error) {
	var (
		v                        model.Version
		status                   string
		approvedBy, rejectReason sql.NullString
		decidedAt                sql.NullTime
	)
	err := row.Scan(&v.ID, &v.ContractID, &v.Sequence, &v.FileRef, &v.Filename, &v.UploadedBy, &status,
		&approvedBy, &rejectReason, &decidedAt, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	v.Status = model.Status(status)
	v.ApprovedBy = approvedBy.String
	v.RejectionReason = rejectReason.String
	if decidedAt.Valid {
		v.DecidedAt = decidedAt.Time
	}
	return &v, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func expectOneRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return fmt.Errorf("%w: %s", model.ErrNotFound, what)
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func mapWriteError(err error, what string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s already exists", model.ErrConflict, what)
	}
	return fmt.Errorf("failed to write %s: %w", what, err)
}
