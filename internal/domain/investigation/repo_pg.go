package investigation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

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

const (
	sessionCols = `id, patient_id, investigation_date, created_at, updated_at`
	resultCols  = `id, investigation_id, panel, position, test_name, value,
		COALESCE(unit, ''), COALESCE(test_method, ''), is_favourite, COALESCE(notes, ''), created_at`
)

func (r *repoPG) Create(ctx context.Context, inv *Investigation) error {
	inv.ID = uuid.New()
	now := time.Now().UTC()
	inv.CreatedAt, inv.UpdatedAt = now, now

	return db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO investigations (`+sessionCols+`) VALUES ($1, $2, $3, $4, $5)`,
			inv.ID, inv.PatientID, inv.InvestigationDate, inv.CreatedAt, inv.UpdatedAt)
		if err != nil {
			return fmt.Errorf("create investigation: %w", err)
		}

		for _, res := range inv.All() {
			res.ID = uuid.New()
			res.InvestigationID = inv.ID
			res.CreatedAt = now
			_, err := r.conn(ctx).Exec(ctx, `
				INSERT INTO investigation_results
					(id, investigation_id, panel, position, test_name, value, unit, test_method, is_favourite, notes, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, NULLIF($10, ''), $11)`,
				res.ID, res.InvestigationID, string(res.Panel), res.Position, res.TestName, res.Value,
				res.Unit, res.TestMethod, res.IsFavourite, res.Notes, res.CreatedAt)
			if err != nil {
				return fmt.Errorf("create investigation result: %w", err)
			}
		}
		return nil
	})
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Investigation, error) {
	inv, err := scanSession(r.conn(ctx).QueryRow(ctx, `SELECT `+sessionCols+` FROM investigations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("investigation")
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadResults(ctx, []*Investigation{inv}); err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Investigation, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM investigations WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count investigations: %w", err)
	}

	query := `SELECT ` + sessionCols + ` FROM investigations WHERE patient_id = $1 ORDER BY investigation_date DESC`
	args := []interface{}{patientID}
	if limit > 0 {
		query += ` LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list investigations: %w", err)
	}
	defer rows.Close()

	invs := []*Investigation{}
	for rows.Next() {
		inv, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		invs = append(invs, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := r.loadResults(ctx, invs); err != nil {
		return nil, 0, err
	}
	return invs, total, nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM investigations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete investigation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("investigation")
	}
	return nil
}

// loadResults fills the panels of invs with a single query.
func (r *repoPG) loadResults(ctx context.Context, invs []*Investigation) error {
	if len(invs) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*Investigation, len(invs))
	ids := make([]uuid.UUID, len(invs))
	for i, inv := range invs {
		byID[inv.ID] = inv
		ids[i] = inv.ID
		inv.Hematology, inv.LFT, inv.RFT = []*Result{}, []*Result{}, []*Result{}
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+resultCols+` FROM investigation_results
		WHERE investigation_id = ANY($1) ORDER BY investigation_id, panel, position`, ids)
	if err != nil {
		return fmt.Errorf("load investigation results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			res   Result
			panel string
		)
		if err := rows.Scan(&res.ID, &res.InvestigationID, &panel, &res.Position, &res.TestName, &res.Value,
			&res.Unit, &res.TestMethod, &res.IsFavourite, &res.Notes, &res.CreatedAt); err != nil {
			return fmt.Errorf("scan investigation result: %w", err)
		}
		res.Panel = Panel(panel)
		if inv, ok := byID[res.InvestigationID]; ok {
			inv.attach(&res)
		}
	}
	return rows.Err()
}

func scanSession(row pgx.Row) (*Investigation, error) {
	var inv Investigation
	err := row.Scan(&inv.ID, &inv.PatientID, &inv.InvestigationDate, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan investigation: %w", err)
	}
	return &inv, nil
}
