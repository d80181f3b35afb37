package personnel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/garrison-hq/garrison/internal/platform/db"
	"github.com/garrison-hq/garrison/internal/shared"
)

var (
	// ErrDuplicateServiceNumber indicates an insert clashed with an
	// existing service number.
	ErrDuplicateServiceNumber = errors.New("duplicate service number")
	// ErrNotPending indicates an approval targeted a record that is not
	// awaiting approval.
	ErrNotPending = errors.New("record is not pending approval")
)

// Repository defines persistence operations for the personnel directory.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Record, int, error)
	FindByID(ctx context.Context, id int64) (*Record, error)
	FindByEmail(ctx context.Context, email string) (*Record, error)
	Create(ctx context.Context, rec *Record) error
	UpdateStatus(ctx context.Context, id int64, status string) error
	Approve(ctx context.Context, id int64) (*Record, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const recordColumns = `id, service_number, full_name, email, role, company, service_rank, status, created_at, updated_at`

func scanRecord(row pgx.Row) (*Record, error) {
	rec := &Record{}
	var createdAt, updatedAt pgtype.Timestamptz
	err := row.Scan(
		&rec.ID,
		&rec.ServiceNumber,
		&rec.FullName,
		&rec.Email,
		&rec.Role,
		&rec.Company,
		&rec.ServiceRank,
		&rec.Status,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	rec.CreatedAt = createdAt.Time
	rec.UpdatedAt = updatedAt.Time
	return rec, nil
}

// List returns a page of directory records plus the unpaged total.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Record, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Company != "" {
		args = append(args, filter.Company)
		conds = append(conds, fmt.Sprintf("company = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conds = append(conds, fmt.Sprintf("(full_name ILIKE $%d OR service_number ILIKE $%d)", len(args), len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM personnel"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	pagination := shared.NewPagination(filter.Page, filter.PerPage, total)
	args = append(args, pagination.PerPage, pagination.Offset())
	query := fmt.Sprintf("SELECT %s FROM personnel%s ORDER BY full_name, id LIMIT $%d OFFSET $%d",
		recordColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// FindByID fetches one record.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*Record, error) {
	query := fmt.Sprintf("SELECT %s FROM personnel WHERE id = $1", recordColumns)
	return scanRecord(r.pool.QueryRow(ctx, query, id))
}

// FindByEmail fetches the record backing an account email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Record, error) {
	query := fmt.Sprintf("SELECT %s FROM personnel WHERE email = $1", recordColumns)
	return scanRecord(r.pool.QueryRow(ctx, query, email))
}

// Create inserts a new directory record.
func (r *PGRepository) Create(ctx context.Context, rec *Record) error {
	const query = `
		INSERT INTO personnel (service_number, full_name, email, role, company, service_rank, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING id`
	now := time.Now().UTC()
	err := r.pool.QueryRow(ctx, query,
		rec.ServiceNumber,
		rec.FullName,
		rec.Email,
		rec.Role,
		rec.Company,
		rec.ServiceRank,
		rec.Status,
		pgtype.Timestamptz{Time: now, Valid: true},
	).Scan(&rec.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateServiceNumber
		}
		return err
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return nil
}

// UpdateStatus transitions a record's status.
func (r *PGRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE personnel SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Approve flips a pending record to ACTIVE and re-enables its login
// account in one transaction.
func (r *PGRepository) Approve(ctx context.Context, id int64) (*Record, error) {
	var rec *Record
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		query := fmt.Sprintf("SELECT %s FROM personnel WHERE id = $1 FOR UPDATE", recordColumns)
		var err error
		rec, err = scanRecord(tx.QueryRow(ctx, query, id))
		if err != nil {
			return err
		}
		if rec.Status != StatusPending {
			return ErrNotPending
		}
		if _, err := tx.Exec(ctx,
			`UPDATE personnel SET status = $1, updated_at = now() WHERE id = $2`, StatusActive, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE accounts SET status = $1, is_active = TRUE, updated_at = now() WHERE email = $2`, StatusActive, rec.Email); err != nil {
			return err
		}
		rec.Status = StatusActive
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

var _ Repository = (*PGRepository)(nil)
