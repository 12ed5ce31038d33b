package clinical

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medrec/medrec/internal/domain/clinicalcalc"
	"github.com/medrec/medrec/internal/platform/apperr"
	"github.com/medrec/medrec/internal/platform/db"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const entryCols = `id, patient_id, section, recorded_at, raw_values, "values", meta, created_at, updated_at`

// metaArg stores an absent meta document as SQL NULL.
func metaArg(meta []byte) interface{} {
	if len(meta) == 0 || string(meta) == "null" {
		return nil
	}
	return string(meta)
}

func (r *repoPG) Create(ctx context.Context, e *Entry) error {
	e.ID = uuid.New()
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO clinical_entries (id, patient_id, section, recorded_at, raw_values, "values", meta, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9)`,
		e.ID, e.PatientID, string(e.Section), e.RecordedAt, e.RawValues, e.Values, metaArg(e.Meta), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create clinical entry: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	e, err := scanEntry(r.conn(ctx).QueryRow(ctx, `SELECT `+entryCols+` FROM clinical_entries WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("clinical entry")
	}
	return e, err
}

func (r *repoPG) Update(ctx context.Context, e *Entry) error {
	e.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE clinical_entries
		SET recorded_at = $2, raw_values = $3, "values" = $4, meta = $5::jsonb, updated_at = $6
		WHERE id = $1`,
		e.ID, e.RecordedAt, e.RawValues, e.Values, metaArg(e.Meta), e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update clinical entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("clinical entry")
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM clinical_entries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete clinical entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("clinical entry")
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, patientID uuid.UUID, f ListFilter) ([]*Entry, int, error) {
	where := `patient_id = $1`
	args := []interface{}{patientID}
	if f.Section != "" {
		where += ` AND section = $2`
		args = append(args, string(f.Section))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM clinical_entries WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count clinical entries: %w", err)
	}

	query := `SELECT ` + entryCols + ` FROM clinical_entries WHERE ` + where + ` ORDER BY recorded_at DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
		args = append(args, f.Limit, f.Offset)
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list clinical entries: %w", err)
	}
	defer rows.Close()

	entries := []*Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func (r *repoPG) Latest(ctx context.Context, patientID uuid.UUID, section clinicalcalc.Section) (*Entry, error) {
	e, err := scanEntry(r.conn(ctx).QueryRow(ctx, `SELECT `+entryCols+` FROM clinical_entries
		WHERE patient_id = $1 AND section = $2 ORDER BY recorded_at DESC, created_at DESC LIMIT 1`,
		patientID, string(section)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("clinical entry")
	}
	return e, err
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var (
		e       Entry
		section string
		meta    []byte
	)
	e.RawValues = clinicalcalc.NewValueSet()
	e.Values = clinicalcalc.NewValueSet()
	err := row.Scan(&e.ID, &e.PatientID, &section, &e.RecordedAt, e.RawValues, e.Values, &meta, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan clinical entry: %w", err)
	}
	e.Section = clinicalcalc.Section(section)
	if len(meta) > 0 {
		e.Meta = meta
	}
	return &e, nil
}
