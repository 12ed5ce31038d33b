package investigation

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medrec/medrec/internal/domain/dropdown"
	"github.com/medrec/medrec/internal/platform/apperr"
	"github.com/medrec/medrec/internal/platform/middleware"
)

const (
	maxResultsPerPanel = 100
	maxTestNameLen     = 100
	maxValueLen        = 100
	maxUnitLen         = 50
	maxNotesLen        = 5000
)

// PatientChecker confirms a patient exists and belongs to the caller.
type PatientChecker interface {
	Exists(ctx context.Context, ownerID, patientID uuid.UUID) error
}

type Service struct {
	repo     Repository
	patients PatientChecker
	cat      *dropdown.Catalogue
	logger   zerolog.Logger
}

func NewService(repo Repository, patients PatientChecker, cat *dropdown.Catalogue, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		patients: patients,
		cat:      cat,
		logger:   logger.With().Str("component", "investigation").Logger(),
	}
}

func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, req CreateRequest) (*Investigation, error) {
	patientID, err := uuid.Parse(strings.TrimSpace(req.PatientID))
	if err != nil {
		return nil, apperr.Invalid("patientId must be a valid id")
	}
	if err := s.patients.Exists(ctx, ownerID, patientID); err != nil {
		return nil, err
	}
	date, err := parseDate(req.InvestigationDate)
	if err != nil {
		return nil, err
	}

	inv := &Investigation{PatientID: patientID, InvestigationDate: date}
	if inv.Hematology, err = s.results(PanelHematology, req.Hematology); err != nil {
		return nil, err
	}
	if inv.LFT, err = s.results(PanelLFT, req.LFT); err != nil {
		return nil, err
	}
	if inv.RFT, err = s.results(PanelRFT, req.RFT); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, inv); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("investigation_id", inv.ID.String()).
		Str("patient_id", patientID.String()).
		Int("hematology", len(inv.Hematology)).
		Int("lft", len(inv.LFT)).
		Int("rft", len(inv.RFT)).
		Msg("investigation created")
	return inv, nil
}

// Get returns a session with its results. Sessions of patients the caller
// does not own are reported as not found.
func (s *Service) Get(ctx context.Context, ownerID, id uuid.UUID) (*Investigation, error) {
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.patients.Exists(ctx, ownerID, inv.PatientID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound("investigation")
		}
		return nil, err
	}
	return inv, nil
}

// PatientOf returns the patient an owned investigation belongs to.
func (s *Service) PatientOf(ctx context.Context, ownerID, id uuid.UUID) (uuid.UUID, error) {
	inv, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return uuid.Nil, err
	}
	return inv.PatientID, nil
}

func (s *Service) ListByPatient(ctx context.Context, ownerID, patientID uuid.UUID, limit, offset int) ([]*Investigation, int, error) {
	if err := s.patients.Exists(ctx, ownerID, patientID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// ListAll returns every session of a patient the caller already owns.
func (s *Service) ListAll(ctx context.Context, patientID uuid.UUID) ([]*Investigation, error) {
	invs, _, err := s.repo.ListByPatient(ctx, patientID, 0, 0)
	return invs, err
}

func (s *Service) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("investigation_id", id.String()).Msg("investigation deleted")
	return nil
}

func (s *Service) results(panel Panel, in []ResultInput) ([]*Result, error) {
	if len(in) > maxResultsPerPanel {
		return nil, apperr.Invalid("at most %d %s results per investigation", maxResultsPerPanel, strings.ToLower(string(panel)))
	}
	out := make([]*Result, 0, len(in))
	for i, r := range in {
		res := &Result{
			Panel:       panel,
			Position:    i,
			TestName:    middleware.SanitizeString(r.TestName),
			Value:       middleware.SanitizeString(r.Value),
			Unit:        middleware.SanitizeString(r.Unit),
			TestMethod:  strings.TrimSpace(r.TestMethod),
			IsFavourite: r.IsFavourite,
			Notes:       middleware.SanitizeString(r.Notes),
		}
		if err := s.checkResult(panel, i, res); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (s *Service) checkResult(panel Panel, i int, r *Result) error {
	where := strings.ToLower(string(panel))
	switch {
	case r.TestName == "":
		return apperr.Invalid("%s[%d]: testName is required", where, i)
	case r.Value == "":
		return apperr.Invalid("%s[%d]: value is required", where, i)
	case utf8.RuneCountInString(r.TestName) > maxTestNameLen:
		return apperr.Invalid("%s[%d]: testName must be at most %d characters", where, i, maxTestNameLen)
	case utf8.RuneCountInString(r.Value) > maxValueLen:
		return apperr.Invalid("%s[%d]: value must be at most %d characters", where, i, maxValueLen)
	case utf8.RuneCountInString(r.Unit) > maxUnitLen:
		return apperr.Invalid("%s[%d]: unit must be at most %d characters", where, i, maxUnitLen)
	case utf8.RuneCountInString(r.Notes) > maxNotesLen:
		return apperr.Invalid("%s[%d]: notes must be at most %d characters", where, i, maxNotesLen)
	}
	if r.TestMethod == "" {
		return nil
	}
	if panel != PanelLFT {
		return apperr.Invalid("%s[%d]: testMethod only applies to lft results", where, i)
	}
	if !contains(s.cat.TestMethods, r.TestMethod) {
		return apperr.Invalid("%s[%d]: unknown testMethod %q", where, i, r.TestMethod)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, apperr.Invalid("investigationDate is required")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, apperr.Invalid("invalid investigation date")
}
