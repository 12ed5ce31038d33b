package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
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

// Optional text columns are stored as NULL and read back as "".
const patientCols = `id, owner_id, patient_code, name, date_of_birth, age, sex,
	COALESCE(ethnicity, ''), religion, COALESCE(nid_number, ''),
	COALESCE(patient_mobile, ''), COALESCE(spouse_mobile, ''), COALESCE(first_degree_relative_mobile, ''),
	COALESCE(district, ''), COALESCE(address_details, ''),
	COALESCE(short_history, ''), COALESCE(surgical_history, ''), COALESCE(family_history, ''), COALESCE(past_illness, ''),
	tags, COALESCE(special_notes, ''), COALESCE(final_diagnosis, ''),
	created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	if p.Tags == nil {
		p.Tags = []string{}
	}

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (
			id, owner_id, patient_code, name, date_of_birth, age, sex,
			ethnicity, religion, nid_number,
			patient_mobile, spouse_mobile, first_degree_relative_mobile,
			district, address_details,
			short_history, surgical_history, family_history, past_illness,
			tags, special_notes, final_diagnosis, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			NULLIF($8, ''), $9, NULLIF($10, ''),
			NULLIF($11, ''), NULLIF($12, ''), NULLIF($13, ''),
			NULLIF($14, ''), NULLIF($15, ''),
			NULLIF($16, ''), NULLIF($17, ''), NULLIF($18, ''), NULLIF($19, ''),
			$20, NULLIF($21, ''), NULLIF($22, ''), $23, $24
		)`,
		p.ID, p.OwnerID, p.PatientID, p.Name, p.DateOfBirth, p.Age, p.Sex,
		p.Ethnicity, p.Religion, p.NIDNumber,
		p.PatientMobile, p.SpouseMobile, p.FirstDegreeRelativeMobile,
		p.District, p.AddressDetails,
		p.ShortHistory, p.SurgicalHistory, p.FamilyHistory, p.PastIllness,
		p.Tags, p.SpecialNotes, p.FinalDiagnosis, p.CreatedAt, p.UpdatedAt,
	)
	return mapWriteErr(err, p)
}

func (r *repoPG) GetByID(ctx context.Context, ownerID, id uuid.UUID) (*Patient, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE id = $1 AND owner_id = $2`, id, ownerID)
	p, err := scanPatient(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("patient")
	}
	return p, err
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	p.UpdatedAt = time.Now().UTC()
	if p.Tags == nil {
		p.Tags = []string{}
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET
			name = $3, date_of_birth = $4, age = $5, sex = $6,
			ethnicity = NULLIF($7, ''), religion = $8, nid_number = NULLIF($9, ''),
			patient_mobile = NULLIF($10, ''), spouse_mobile = NULLIF($11, ''),
			first_degree_relative_mobile = NULLIF($12, ''),
			district = NULLIF($13, ''), address_details = NULLIF($14, ''),
			short_history = NULLIF($15, ''), surgical_history = NULLIF($16, ''),
			family_history = NULLIF($17, ''), past_illness = NULLIF($18, ''),
			tags = $19, special_notes = NULLIF($20, ''), final_diagnosis = NULLIF($21, ''),
			updated_at = $22
		WHERE id = $1 AND owner_id = $2`,
		p.ID, p.OwnerID,
		p.Name, p.DateOfBirth, p.Age, p.Sex,
		p.Ethnicity, p.Religion, p.NIDNumber,
		p.PatientMobile, p.SpouseMobile, p.FirstDegreeRelativeMobile,
		p.District, p.AddressDetails,
		p.ShortHistory, p.SurgicalHistory, p.FamilyHistory, p.PastIllness,
		p.Tags, p.SpecialNotes, p.FinalDiagnosis, p.UpdatedAt,
	)
	if err != nil {
		return mapWriteErr(err, p)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient")
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient")
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE owner_id = $1`, ownerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patients
		WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, ownerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	patients, err := collect(rows)
	return patients, total, err
}

// searchWhere matches name, diagnosis and patient code case-insensitively,
// mobile numbers by substring and tags exactly.
const searchWhere = `owner_id = $1 AND (
	name ILIKE $2 ESCAPE '\' OR final_diagnosis ILIKE $2 ESCAPE '\'
	OR patient_code ILIKE $2 ESCAPE '\' OR patient_mobile LIKE $2 ESCAPE '\'
	OR $3 = ANY(tags))`

func (r *repoPG) Search(ctx context.Context, ownerID uuid.UUID, query string, limit, offset int) ([]*Patient, int, error) {
	pattern := "%" + escapeLike(query) + "%"

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE `+searchWhere,
		ownerID, pattern, query).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count search: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patients WHERE `+searchWhere+`
		ORDER BY created_at DESC LIMIT $4 OFFSET $5`, ownerID, pattern, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("search patients: %w", err)
	}
	patients, err := collect(rows)
	return patients, total, err
}

func (r *repoPG) ListAll(ctx context.Context, ownerID uuid.UUID) ([]*Patient, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patients
		WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]*Patient, error) {
	defer rows.Close()
	patients := []*Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.PatientID, &p.Name, &p.DateOfBirth, &p.Age, &p.Sex,
		&p.Ethnicity, &p.Religion, &p.NIDNumber,
		&p.PatientMobile, &p.SpouseMobile, &p.FirstDegreeRelativeMobile,
		&p.District, &p.AddressDetails,
		&p.ShortHistory, &p.SurgicalHistory, &p.FamilyHistory, &p.PastIllness,
		&p.Tags, &p.SpecialNotes, &p.FinalDiagnosis,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan patient: %w", err)
	}
	return &p, nil
}

func mapWriteErr(err error, p *Patient) error {
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err, "patients_owner_code_key"):
		return apperr.Duplicate("patient ID %s already exists", p.PatientID)
	case db.IsUniqueViolation(err, "patients_owner_mobile_key"):
		return apperr.Duplicate("patient with mobile %s already exists", p.PatientMobile)
	default:
		return fmt.Errorf("write patient: %w", err)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
