package clinical

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medrec/medrec/internal/domain/clinicalcalc"
	"github.com/medrec/medrec/internal/platform/apperr"
)

const maxValueKeys = 200

// PatientChecker confirms a patient exists and belongs to the caller.
type PatientChecker interface {
	Exists(ctx context.Context, ownerID, patientID uuid.UUID) error
}

type Service struct {
	repo      Repository
	patients  PatientChecker
	processor *clinicalcalc.Processor
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(repo Repository, patients PatientChecker, processor *clinicalcalc.Processor, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		patients:  patients,
		processor: processor,
		logger:    logger.With().Str("component", "clinical").Logger(),
		now:       time.Now,
	}
}

// Create stores a new entry. The submitted values are kept verbatim as the
// raw set and processed into the returned values.
func (s *Service) Create(ctx context.Context, ownerID, patientID uuid.UUID, req CreateRequest) (*Entry, error) {
	if err := s.patients.Exists(ctx, ownerID, patientID); err != nil {
		return nil, err
	}
	section, err := clinicalcalc.ParseSection(req.Section)
	if err != nil {
		return nil, apperr.Invalid("%v", err)
	}
	if err := checkValues(req.Values); err != nil {
		return nil, err
	}
	recorded := s.now().UTC()
	if strings.TrimSpace(req.RecordedAt) != "" {
		if recorded, err = parseRecordedAt(req.RecordedAt); err != nil {
			return nil, err
		}
	}
	meta, err := checkMeta(req.Meta)
	if err != nil {
		return nil, err
	}

	e := &Entry{
		PatientID:  patientID,
		Section:    section,
		RecordedAt: recorded,
		RawValues:  req.Values.Clone(),
		Meta:       meta,
	}
	if e.Values, err = s.process(ctx, e); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("entry_id", e.ID.String()).
		Str("patient_id", patientID.String()).
		Str("section", string(section)).
		Int("values", e.Values.Len()).
		Msg("clinical entry created")
	return e, nil
}

// Get returns an entry of the patient. Entries of other patients, and
// entries outside the requested section, are reported as not found.
func (s *Service) Get(ctx context.Context, ownerID, patientID, entryID uuid.UUID, section string) (*Entry, error) {
	if err := s.patients.Exists(ctx, ownerID, patientID); err != nil {
		return nil, err
	}
	return s.load(ctx, patientID, entryID, section)
}

// List returns entries of the patient, newest recordedAt first. An empty
// section lists all sections.
func (s *Service) List(ctx context.Context, ownerID, patientID uuid.UUID, section string, limit, offset int) ([]*Entry, int, error) {
	if err := s.patients.Exists(ctx, ownerID, patientID); err != nil {
		return nil, 0, err
	}
	f := ListFilter{Limit: limit, Offset: offset}
	if strings.TrimSpace(section) != "" {
		sec, err := clinicalcalc.ParseSection(section)
		if err != nil {
			return nil, 0, apperr.Invalid("%v", err)
		}
		f.Section = sec
	}
	return s.repo.List(ctx, patientID, f)
}

// ListAll returns every entry of the patient across sections. It assumes the
// caller already checked ownership.
func (s *Service) ListAll(ctx context.Context, patientID uuid.UUID) ([]*Entry, error) {
	entries, _, err := s.repo.List(ctx, patientID, ListFilter{})
	return entries, err
}

// Update changes recordedAt or meta, and merges new values into the stored
// raw values before processing them again. Derived values from the previous
// run never feed the new one.
func (s *Service) Update(ctx context.Context, ownerID, patientID, entryID uuid.UUID, req UpdateRequest) (*Entry, error) {
	if err := s.patients.Exists(ctx, ownerID, patientID); err != nil {
		return nil, err
	}
	e, err := s.load(ctx, patientID, entryID, req.Section)
	if err != nil {
		return nil, err
	}

	if req.RecordedAt != nil {
		t, err := parseRecordedAt(*req.RecordedAt)
		if err != nil {
			return nil, err
		}
		e.RecordedAt = t
	}
	if req.Meta != nil {
		if e.Meta, err = checkMeta(req.Meta); err != nil {
			return nil, err
		}
	}
	if req.Values != nil {
		raw := e.RawValues.Merge(req.Values)
		if err := checkValues(raw); err != nil {
			return nil, err
		}
		e.RawValues = raw
		if e.Values, err = s.process(ctx, e); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, e); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("entry_id", e.ID.String()).
		Str("section", string(e.Section)).
		Bool("reprocessed", req.Values != nil).
		Msg("clinical entry updated")
	return e, nil
}

func (s *Service) Delete(ctx context.Context, ownerID, patientID, entryID uuid.UUID, section string) error {
	if err := s.patients.Exists(ctx, ownerID, patientID); err != nil {
		return err
	}
	if _, err := s.load(ctx, patientID, entryID, section); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, entryID); err != nil {
		return err
	}
	s.logger.Info().Str("entry_id", entryID.String()).Msg("clinical entry deleted")
	return nil
}

func (s *Service) load(ctx context.Context, patientID, entryID uuid.UUID, section string) (*Entry, error) {
	e, err := s.repo.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if e.PatientID != patientID {
		return nil, apperr.NotFound("clinical entry")
	}
	if strings.TrimSpace(section) != "" {
		sec, err := clinicalcalc.ParseSection(section)
		if err != nil {
			return nil, apperr.Invalid("%v", err)
		}
		if sec != e.Section {
			return nil, apperr.NotFound("clinical entry")
		}
	}
	return e, nil
}

// process runs the section rules over the entry's raw values. Renal entries
// take bilirubin, INR and dialysis from the patient's latest liver function
// entry.
func (s *Service) process(ctx context.Context, e *Entry) (*clinicalcalc.ValueSet, error) {
	if e.Section != clinicalcalc.SectionRenalFunction {
		return s.processor.Process(e.Section, e.RawValues), nil
	}

	var cross clinicalcalc.CrossSection
	lft, err := s.repo.Latest(ctx, e.PatientID, clinicalcalc.SectionLiverFunction)
	switch {
	case err == nil:
		cross = crossSectionFrom(lft.Values)
	case errors.Is(err, apperr.ErrNotFound):
	default:
		return nil, err
	}
	cross = withOwnDialysis(cross, e.RawValues)
	return s.processor.ProcessWith(e.Section, e.RawValues, cross), nil
}

func checkValues(vs *clinicalcalc.ValueSet) error {
	if vs == nil || vs.Len() == 0 {
		return apperr.Invalid("values are required")
	}
	if vs.Len() > maxValueKeys {
		return apperr.Invalid("at most %d values per entry", maxValueKeys)
	}
	for _, k := range vs.Keys() {
		if strings.TrimSpace(k) == "" {
			return apperr.Invalid("value keys must not be blank")
		}
	}
	return nil
}

// checkMeta accepts a JSON object or null.
func checkMeta(meta json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(meta)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, apperr.Invalid("meta must be a JSON object")
	}
	return trimmed, nil
}

func parseRecordedAt(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, apperr.Invalid("recordedAt must be an RFC 3339 timestamp or YYYY-MM-DD date")
}
