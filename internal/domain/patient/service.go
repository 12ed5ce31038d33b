package patient

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medrec/medrec/internal/domain/dropdown"
	"github.com/medrec/medrec/internal/platform/apperr"
	"github.com/medrec/medrec/internal/platform/cache"
	"github.com/medrec/medrec/internal/platform/middleware"
)

var (
	mobilePattern    = regexp.MustCompile(`^01[3-9]\d{8}$`)
	patientIDPattern = regexp.MustCompile(`^P\d{6}$`)
)

const (
	minNameLen     = 2
	maxNameLen     = 100
	maxAge         = 150
	minSearchLen   = 2
	maxTagLen      = 50
	maxTextLen     = 5000
	ageToleranceYr = 1
)

type Service struct {
	repo   Repository
	cat    *dropdown.Catalogue
	cache  cache.Cache
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, cat *dropdown.Catalogue, c cache.Cache, logger zerolog.Logger) *Service {
	if c == nil {
		c = cache.Nop{}
	}
	return &Service{
		repo:   repo,
		cat:    cat,
		cache:  c,
		logger: logger.With().Str("component", "patient").Logger(),
		now:    time.Now,
	}
}

func ownerPrefix(ownerID uuid.UUID) string { return "patient:" + ownerID.String() + ":" }

func itemKey(ownerID, id uuid.UUID) string { return ownerPrefix(ownerID) + id.String() }

func listKey(ownerID uuid.UUID, limit, offset int) string {
	return fmt.Sprintf("%slist:%d:%d", ownerPrefix(ownerID), limit, offset)
}

type listPage struct {
	Patients []*Patient `json:"patients"`
	Total    int        `json:"total"`
}

func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, req CreateRequest) (*Patient, error) {
	p := &Patient{
		OwnerID:                   ownerID,
		PatientID:                 strings.TrimSpace(req.PatientID),
		Name:                      req.Name,
		Sex:                       req.Sex,
		Ethnicity:                 req.Ethnicity,
		Religion:                  req.Religion,
		NIDNumber:                 req.NIDNumber,
		PatientMobile:             req.PatientMobile,
		SpouseMobile:              req.SpouseMobile,
		FirstDegreeRelativeMobile: req.FirstDegreeRelativeMobile,
		District:                  req.District,
		AddressDetails:            req.AddressDetails,
		ShortHistory:              req.ShortHistory,
		SurgicalHistory:           req.SurgicalHistory,
		FamilyHistory:             req.FamilyHistory,
		PastIllness:               req.PastIllness,
		Tags:                      req.Tags,
		SpecialNotes:              req.SpecialNotes,
		FinalDiagnosis:            req.FinalDiagnosis,
	}
	if !patientIDPattern.MatchString(p.PatientID) {
		return nil, apperr.Invalid("patientId must be in format P000001")
	}
	if err := s.setAge(p, req.DateOfBirth, req.Age); err != nil {
		return nil, err
	}
	if err := s.normalize(p); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	s.invalidate(ctx, ownerID)
	s.logger.Info().Str("patient_id", p.ID.String()).Str("owner_id", ownerID.String()).Msg("patient created")
	return p, nil
}

// Get reads through the cache.
func (s *Service) Get(ctx context.Context, ownerID, id uuid.UUID) (*Patient, error) {
	key := itemKey(ownerID, id)
	if p, ok := cache.GetJSON[*Patient](ctx, s.cache, key); ok && p != nil {
		return p, nil
	}
	p, err := s.repo.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if err := cache.SetJSON(ctx, s.cache, key, p); err != nil {
		s.logger.Warn().Err(err).Msg("cache patient")
	}
	return p, nil
}

// Exists reports ownership without returning the record.
func (s *Service) Exists(ctx context.Context, ownerID, id uuid.UUID) error {
	_, err := s.Get(ctx, ownerID, id)
	return err
}

func (s *Service) List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Patient, int, error) {
	key := listKey(ownerID, limit, offset)
	if page, ok := cache.GetJSON[listPage](ctx, s.cache, key); ok {
		return page.Patients, page.Total, nil
	}
	patients, total, err := s.repo.List(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if err := cache.SetJSON(ctx, s.cache, key, listPage{Patients: patients, Total: total}); err != nil {
		s.logger.Warn().Err(err).Msg("cache patient list")
	}
	return patients, total, nil
}

func (s *Service) ListAll(ctx context.Context, ownerID uuid.UUID) ([]*Patient, error) {
	return s.repo.ListAll(ctx, ownerID)
}

func (s *Service) Search(ctx context.Context, ownerID uuid.UUID, query string, limit, offset int) ([]*Patient, int, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < minSearchLen {
		return nil, 0, apperr.Invalid("search query must be at least %d characters", minSearchLen)
	}
	return s.repo.Search(ctx, ownerID, query, limit, offset)
}

func (s *Service) Update(ctx context.Context, ownerID, id uuid.UUID, req UpdateRequest) (*Patient, error) {
	existing, err := s.repo.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	p := *existing
	p.Tags = append([]string(nil), existing.Tags...)

	setStr := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setStr(&p.Name, req.Name)
	setStr(&p.Sex, req.Sex)
	setStr(&p.Ethnicity, req.Ethnicity)
	setStr(&p.Religion, req.Religion)
	setStr(&p.NIDNumber, req.NIDNumber)
	setStr(&p.PatientMobile, req.PatientMobile)
	setStr(&p.SpouseMobile, req.SpouseMobile)
	setStr(&p.FirstDegreeRelativeMobile, req.FirstDegreeRelativeMobile)
	setStr(&p.District, req.District)
	setStr(&p.AddressDetails, req.AddressDetails)
	setStr(&p.ShortHistory, req.ShortHistory)
	setStr(&p.SurgicalHistory, req.SurgicalHistory)
	setStr(&p.FamilyHistory, req.FamilyHistory)
	setStr(&p.PastIllness, req.PastIllness)
	setStr(&p.SpecialNotes, req.SpecialNotes)
	setStr(&p.FinalDiagnosis, req.FinalDiagnosis)
	if req.Tags != nil {
		p.Tags = *req.Tags
	}

	if req.DateOfBirth != nil || req.Age != nil {
		dob := p.DOB()
		if req.DateOfBirth != nil {
			dob = *req.DateOfBirth
		}
		age := req.Age
		if age == nil && strings.TrimSpace(dob) == "" {
			current := p.Age
			age = &current
		}
		if err := s.setAge(&p, dob, age); err != nil {
			return nil, err
		}
	}
	if err := s.normalize(&p); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, &p); err != nil {
		return nil, err
	}
	s.invalidate(ctx, ownerID)
	s.logger.Info().Str("patient_id", id.String()).Msg("patient updated")
	return &p, nil
}

func (s *Service) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		return err
	}
	s.invalidate(ctx, ownerID)
	s.logger.Info().Str("patient_id", id.String()).Msg("patient deleted")
	return nil
}

func (s *Service) invalidate(ctx context.Context, ownerID uuid.UUID) {
	if err := s.cache.DeletePrefix(ctx, ownerPrefix(ownerID)); err != nil {
		s.logger.Warn().Err(err).Str("owner_id", ownerID.String()).Msg("invalidate patient cache")
	}
}

// setAge applies the date of birth and age rules. With a date of birth the
// supplied age is kept only when within one year of the computed age.
// Without one, the supplied age is required.
func (s *Service) setAge(p *Patient, dob string, age *int) error {
	dob = strings.TrimSpace(dob)
	if dob == "" {
		p.DateOfBirth = nil
		if age == nil {
			return apperr.Invalid("dateOfBirth or age is required")
		}
		p.Age = *age
	} else {
		d, err := parseDate(dob)
		if err != nil {
			return apperr.Invalid("dateOfBirth must be a valid date (YYYY-MM-DD)")
		}
		today := s.now().UTC()
		if d.After(today) {
			return apperr.Invalid("dateOfBirth cannot be in the future")
		}
		computed := AgeOn(d, today)
		p.DateOfBirth = &d
		p.Age = computed
		if age != nil && abs(*age-computed) <= ageToleranceYr {
			p.Age = *age
		}
	}
	if p.Age < 0 || p.Age > maxAge {
		return apperr.Invalid("age must be between 0 and %d", maxAge)
	}
	return nil
}

// AgeOn returns the completed years between dob and day.
func AgeOn(dob, day time.Time) int {
	age := day.Year() - dob.Year()
	if day.Month() < dob.Month() || (day.Month() == dob.Month() && day.Day() < dob.Day()) {
		age--
	}
	return age
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// normalize trims and sanitizes free text, applies the religion default and
// validates every catalogue-backed and formatted field.
func (s *Service) normalize(p *Patient) error {
	for _, f := range []*string{
		&p.Name, &p.Sex, &p.Ethnicity, &p.Religion, &p.NIDNumber,
		&p.PatientMobile, &p.SpouseMobile, &p.FirstDegreeRelativeMobile,
		&p.District, &p.AddressDetails, &p.ShortHistory, &p.SurgicalHistory,
		&p.FamilyHistory, &p.PastIllness, &p.SpecialNotes, &p.FinalDiagnosis,
	} {
		*f = middleware.SanitizeString(*f)
		if len(*f) > maxTextLen {
			return apperr.Invalid("text fields must not exceed %d characters", maxTextLen)
		}
	}

	if n := len([]rune(p.Name)); n < minNameLen || n > maxNameLen {
		return apperr.Invalid("name must be between %d and %d characters", minNameLen, maxNameLen)
	}
	if !s.cat.IsSex(p.Sex) {
		return apperr.Invalid("sex must be one of: %s", strings.Join(s.cat.Sex, ", "))
	}
	if p.Religion == "" {
		p.Religion = s.cat.DefaultReligion()
	}
	if !s.cat.IsReligion(p.Religion) {
		return apperr.Invalid("religion must be one of: %s", strings.Join(s.cat.Religion.Options, ", "))
	}
	if p.Ethnicity != "" && !s.cat.IsEthnicity(p.Ethnicity) {
		return apperr.Invalid("ethnicity %q is not a known option", p.Ethnicity)
	}
	if p.District != "" && !s.cat.IsDistrict(p.District) {
		return apperr.Invalid("district %q is not a known option", p.District)
	}

	if p.PatientMobile == "" {
		return apperr.Invalid("patientMobile is required")
	}
	mobiles := []struct{ name, v string }{
		{"patientMobile", p.PatientMobile},
		{"spouseMobile", p.SpouseMobile},
		{"firstDegreeRelativeMobile", p.FirstDegreeRelativeMobile},
	}
	for _, m := range mobiles {
		if m.v != "" && !mobilePattern.MatchString(m.v) {
			return apperr.Invalid("%s must be a valid Bangladesh mobile number (01XXXXXXXXX)", m.name)
		}
	}

	p.Tags = normalizeTags(p.Tags)
	for _, t := range p.Tags {
		if len([]rune(t)) > maxTagLen {
			return apperr.Invalid("tags must not exceed %d characters", maxTagLen)
		}
	}
	return nil
}

// normalizeTags trims tags and drops blanks and case-insensitive duplicates,
// keeping the first spelling.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = middleware.SanitizeString(t)
		if t == "" {
			continue
		}
		k := strings.ToLower(t)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, t)
	}
	return out
}
