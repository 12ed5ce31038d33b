package image

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

const imageCols = `id, patient_id, investigation_id, blob_key, content_type, size_bytes,
	COALESCE(file_name, ''), COALESCE(description, ''), created_at`

func (r *repoPG) Create(ctx context.Context, img *Image) error {
	img.ID = uuid.New()
	img.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO images (id, patient_id, investigation_id, blob_key, content_type, size_bytes, file_name, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9)`,
		img.ID, img.PatientID, img.InvestigationID, img.BlobKey, img.ContentType, img.SizeBytes,
		img.FileName, img.Description, img.CreatedAt)
	if err != nil {
		return fmt.Errorf("create image: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Image, error) {
	img, err := scanImage(r.conn(ctx).QueryRow(ctx, `SELECT `+imageCols+` FROM images WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("image")
	}
	return img, err
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Image, error) {
	return r.list(ctx, `SELECT `+imageCols+` FROM images
		WHERE patient_id = $1 AND investigation_id IS NULL ORDER BY created_at DESC`, patientID)
}

func (r *repoPG) ListByInvestigation(ctx context.Context, investigationID uuid.UUID) ([]*Image, error) {
	return r.list(ctx, `SELECT `+imageCols+` FROM images
		WHERE investigation_id = $1 ORDER BY created_at DESC`, investigationID)
}

func (r *repoPG) list(ctx context.Context, query string, arg uuid.UUID) ([]*Image, error) {
	rows, err := r.conn(ctx).Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	images := []*Image{}
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("image")
	}
	return nil
}

func scanImage(row pgx.Row) (*Image, error) {
	var img Image
	err := row.Scan(&img.ID, &img.PatientID, &img.InvestigationID, &img.BlobKey, &img.ContentType,
		&img.SizeBytes, &img.FileName, &img.Description, &img.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan image: %w", err)
	}
	return &img, nil
}
