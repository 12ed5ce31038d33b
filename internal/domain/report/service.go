// Package report renders patients, investigations and clinical entries into
// downloadable xlsx workbooks.
package report

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medrec/medrec/internal/domain/clinical"
	"github.com/medrec/medrec/internal/domain/clinicalcalc"
	"github.com/medrec/medrec/internal/domain/dropdown"
	"github.com/medrec/medrec/internal/domain/investigation"
	"github.com/medrec/medrec/internal/domain/patient"
	"github.com/medrec/medrec/internal/platform/export"
)

const dateLayout = "2006-01-02"

type PatientSource interface {
	Get(ctx context.Context, ownerID, id uuid.UUID) (*patient.Patient, error)
	ListAll(ctx context.Context, ownerID uuid.UUID) ([]*patient.Patient, error)
}

type InvestigationSource interface {
	Get(ctx context.Context, ownerID, id uuid.UUID) (*investigation.Investigation, error)
	ListAll(ctx context.Context, patientID uuid.UUID) ([]*investigation.Investigation, error)
}

type ClinicalSource interface {
	ListAll(ctx context.Context, patientID uuid.UUID) ([]*clinical.Entry, error)
}

// File is a rendered workbook ready to be served.
type File struct {
	Name string
	Data []byte
}

type Service struct {
	patients       PatientSource
	investigations InvestigationSource
	clinical       ClinicalSource
	cat            *dropdown.Catalogue
	logger         zerolog.Logger
	now            func() time.Time
}

func NewService(patients PatientSource, investigations InvestigationSource, clinical ClinicalSource,
	cat *dropdown.Catalogue, logger zerolog.Logger) *Service {
	return &Service{
		patients:       patients,
		investigations: investigations,
		clinical:       clinical,
		cat:            cat,
		logger:         logger.With().Str("component", "report").Logger(),
		now:            time.Now,
	}
}

var patientColumns = []export.Column{
	{Header: "Patient ID", Width: 15},
	{Header: "Name", Width: 30},
	{Header: "Age", Width: 10},
	{Header: "Sex", Width: 10},
	{Header: "Mobile", Width: 15},
	{Header: "District", Width: 15},
	{Header: "Final Diagnosis", Width: 40},
	{Header: "Created Date", Width: 20},
}

// Patients lists every patient of the caller on one sheet.
func (s *Service) Patients(ctx context.Context, ownerID uuid.UUID) (*File, error) {
	patients, err := s.patients.ListAll(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	rows := make([][]interface{}, len(patients))
	for i, p := range patients {
		rows[i] = []interface{}{
			p.PatientID,
			p.Name,
			p.Age,
			p.Sex,
			export.NA(p.PatientMobile),
			export.NA(p.District),
			export.NA(p.FinalDiagnosis),
			p.CreatedAt.Format(dateLayout),
		}
	}

	w, err := export.New()
	if err != nil {
		return nil, err
	}
	if err := w.Table("Patients", patientColumns, rows); err != nil {
		w.Close()
		return nil, err
	}
	data, err := w.Bytes()
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("owner_id", ownerID.String()).Int("patients", len(patients)).Msg("patients exported")
	return &File{Name: fmt.Sprintf("patients_%s.xlsx", s.now().Format(dateLayout)), Data: data}, nil
}

// Patient renders one patient: an info sheet, a sheet per investigation and
// a sheet per clinical section that has entries.
func (s *Service) Patient(ctx context.Context, ownerID, patientID uuid.UUID) (*File, error) {
	p, err := s.patients.Get(ctx, ownerID, patientID)
	if err != nil {
		return nil, err
	}
	invs, err := s.investigations.ListAll(ctx, patientID)
	if err != nil {
		return nil, err
	}
	entries, err := s.clinical.ListAll(ctx, patientID)
	if err != nil {
		return nil, err
	}

	w, err := export.New()
	if err != nil {
		return nil, err
	}
	if err := s.fillPatient(w, p, invs, entries); err != nil {
		w.Close()
		return nil, err
	}
	data, err := w.Bytes()
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("patient_id", patientID.String()).
		Int("investigations", len(invs)).
		Int("clinical_entries", len(entries)).
		Msg("patient report exported")
	return &File{Name: fmt.Sprintf("patient_%s_%s.xlsx", p.PatientID, s.now().Format(dateLayout)), Data: data}, nil
}

func (s *Service) fillPatient(w *export.Workbook, p *patient.Patient, invs []*investigation.Investigation, entries []*clinical.Entry) error {
	info := [][2]string{
		{"Patient ID", p.PatientID},
		{"Name", p.Name},
		{"Date of Birth", export.NA(p.DOB())},
		{"Age", strconv.Itoa(p.Age)},
		{"Age Category", p.AgeCategory()},
		{"Sex", p.Sex},
		{"Ethnicity", export.NA(p.Ethnicity)},
		{"Religion", p.Religion},
		{"NID Number", export.NA(p.NIDNumber)},
		{"Mobile", export.NA(p.PatientMobile)},
		{"Spouse Mobile", export.NA(p.SpouseMobile)},
		{"First Degree Relative Mobile", export.NA(p.FirstDegreeRelativeMobile)},
		{"District", export.NA(p.District)},
		{"Address Details", export.NA(p.AddressDetails)},
		{"Short History", export.NA(p.ShortHistory)},
		{"Surgical History", export.NA(p.SurgicalHistory)},
		{"Family History", export.NA(p.FamilyHistory)},
		{"Past Illness", export.NA(p.PastIllness)},
		{"Tags", export.NA(strings.Join(p.Tags, ", "))},
		{"Special Notes", export.NA(p.SpecialNotes)},
		{"Final Diagnosis", export.NA(p.FinalDiagnosis)},
	}
	rows := make([][]interface{}, len(info))
	for i, kv := range info {
		rows[i] = []interface{}{kv[0], kv[1]}
	}
	if err := w.Table("Patient Info", []export.Column{{Header: "Field", Width: 25}, {Header: "Value", Width: 50}}, rows); err != nil {
		return err
	}

	for i, inv := range invs {
		r := investigationReport(inv, false)
		r.Title = "Investigation Date: " + inv.InvestigationDate.Format(dateLayout)
		r.Meta = nil
		if err := w.AddReport(fmt.Sprintf("Investigation %d", i+1), r); err != nil {
			return err
		}
	}

	bySection := make(map[clinicalcalc.Section][]*clinical.Entry)
	for _, e := range entries {
		bySection[e.Section] = append(bySection[e.Section], e)
	}
	for _, sec := range clinicalcalc.Sections {
		if len(bySection[sec]) == 0 {
			continue
		}
		cols, rows := s.clinicalTable(sec, bySection[sec])
		if err := w.Table("Clinical "+sectionTitle(sec), cols, rows); err != nil {
			return err
		}
	}
	return nil
}

// clinicalTable lays entries out one per row. Columns follow the catalogue's
// field order, then any other keys in the order they first appear.
func (s *Service) clinicalTable(sec clinicalcalc.Section, entries []*clinical.Entry) ([]export.Column, [][]interface{}) {
	seen := make(map[string]bool)
	for _, e := range entries {
		for _, k := range e.Values.Keys() {
			seen[k] = true
		}
	}
	var keys []string
	for _, f := range s.cat.FieldsFor(string(sec)) {
		if seen[f.Key] {
			keys = append(keys, f.Key)
			delete(seen, f.Key)
		}
	}
	for _, e := range entries {
		for _, k := range e.Values.Keys() {
			if seen[k] {
				keys = append(keys, k)
				delete(seen, k)
			}
		}
	}

	cols := make([]export.Column, 0, len(keys)+1)
	cols = append(cols, export.Column{Header: "Recorded At", Width: 20})
	for _, k := range keys {
		cols = append(cols, export.Column{Header: s.cat.FieldLabel(string(sec), k), Width: 18})
	}
	rows := make([][]interface{}, len(entries))
	for i, e := range entries {
		row := make([]interface{}, 0, len(cols))
		row = append(row, e.RecordedAt.Format("2006-01-02 15:04"))
		for _, k := range keys {
			v, _ := e.Values.Get(k)
			row = append(row, v.String())
		}
		rows[i] = row
	}
	return cols, rows
}

func sectionTitle(sec clinicalcalc.Section) string {
	switch sec {
	case clinicalcalc.SectionExamination:
		return "On Examination"
	case clinicalcalc.SectionHematology:
		return "Hematology"
	default:
		return string(sec)
	}
}

// Investigation renders one session as a standalone report.
func (s *Service) Investigation(ctx context.Context, ownerID, id uuid.UUID) (*File, error) {
	inv, err := s.investigations.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	w, err := export.New()
	if err != nil {
		return nil, err
	}
	if err := w.AddReport("Investigation Report", investigationReport(inv, true)); err != nil {
		w.Close()
		return nil, err
	}
	data, err := w.Bytes()
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("investigation_id", id.String()).Msg("investigation exported")
	return &File{Name: fmt.Sprintf("investigation_%s.xlsx", inv.ID), Data: data}, nil
}

func investigationReport(inv *investigation.Investigation, favourites bool) export.Report {
	titles := map[investigation.Panel]string{
		investigation.PanelHematology: "HEMATOLOGY TESTS",
		investigation.PanelLFT:        "LIVER FUNCTION TEST (LFT)",
		investigation.PanelRFT:        "RENAL FUNCTION TEST (RFT)",
	}
	r := export.Report{
		Title:  "INVESTIGATION REPORT",
		Meta:   [][2]string{{"Investigation Date:", inv.InvestigationDate.Format(dateLayout)}},
		Widths: []float64{30, 15, 15, 15, 15, 35},
	}
	for _, panel := range investigation.Panels {
		cols := []string{"Test Name", "Value", "Unit"}
		if panel == investigation.PanelLFT {
			cols = append(cols, "Method")
		}
		if favourites {
			cols = append(cols, "Favourite")
		}
		cols = append(cols, "Notes")

		sec := export.Section{Title: titles[panel], Columns: cols}
		for _, res := range inv.Results(panel) {
			row := []string{res.TestName, res.Value, export.NA(res.Unit)}
			if panel == investigation.PanelLFT {
				row = append(row, export.NA(res.TestMethod))
			}
			if favourites {
				row = append(row, export.YesNo(res.IsFavourite))
			}
			row = append(row, export.NA(res.Notes))
			sec.Rows = append(sec.Rows, row)
		}
		r.Sections = append(r.Sections, sec)
	}
	return r
}
