package patient

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// Patient is a person under the care of one owning user. PatientID is the
// owner's own code in P000001 form and is unique per owner.
type Patient struct {
	ID                        uuid.UUID  `json:"id"`
	OwnerID                   uuid.UUID  `json:"userId"`
	PatientID                 string     `json:"patientId"`
	Name                      string     `json:"name"`
	DateOfBirth               *time.Time `json:"-"`
	Age                       int        `json:"age"`
	Sex                       string     `json:"sex"`
	Ethnicity                 string     `json:"ethnicity,omitempty"`
	Religion                  string     `json:"religion"`
	NIDNumber                 string     `json:"nidNumber,omitempty"`
	PatientMobile             string     `json:"patientMobile,omitempty"`
	SpouseMobile              string     `json:"spouseMobile,omitempty"`
	FirstDegreeRelativeMobile string     `json:"firstDegreeRelativeMobile,omitempty"`
	District                  string     `json:"district,omitempty"`
	AddressDetails            string     `json:"addressDetails,omitempty"`
	ShortHistory              string     `json:"shortHistory,omitempty"`
	SurgicalHistory           string     `json:"surgicalHistory,omitempty"`
	FamilyHistory             string     `json:"familyHistory,omitempty"`
	PastIllness               string     `json:"pastIllness,omitempty"`
	Tags                      []string   `json:"tags"`
	SpecialNotes              string     `json:"specialNotes,omitempty"`
	FinalDiagnosis            string     `json:"finalDiagnosis,omitempty"`
	CreatedAt                 time.Time  `json:"createdAt"`
	UpdatedAt                 time.Time  `json:"updatedAt"`
}

func (p *Patient) IsAdult() bool         { return p.Age >= 18 }
func (p *Patient) IsChild() bool         { return p.Age < 18 }
func (p *Patient) IsSeniorCitizen() bool { return p.Age >= 60 }

func (p *Patient) AgeCategory() string {
	switch {
	case p.Age < 2:
		return "Infant"
	case p.Age < 13:
		return "Child"
	case p.Age < 18:
		return "Adolescent"
	case p.Age < 60:
		return "Adult"
	default:
		return "Senior Citizen"
	}
}

// PrimaryContact is the first mobile number on file: the patient's own,
// then the spouse's, then the relative's.
func (p *Patient) PrimaryContact() string {
	for _, m := range []string{p.PatientMobile, p.SpouseMobile, p.FirstDegreeRelativeMobile} {
		if m != "" {
			return m
		}
	}
	return ""
}

// DOB formats the date of birth as YYYY-MM-DD, or "" when unknown.
func (p *Patient) DOB() string {
	if p.DateOfBirth == nil {
		return ""
	}
	return p.DateOfBirth.Format(dateLayout)
}

type patientAlias Patient

type patientJSON struct {
	*patientAlias
	DateOfBirth     string `json:"dateOfBirth,omitempty"`
	AgeCategory     string `json:"ageCategory"`
	IsAdult         bool   `json:"isAdult"`
	IsChild         bool   `json:"isChild"`
	IsSeniorCitizen bool   `json:"isSeniorCitizen"`
	PrimaryContact  string `json:"primaryContact,omitempty"`
}

// MarshalJSON adds the derived age and contact fields to the stored ones.
func (p Patient) MarshalJSON() ([]byte, error) {
	return json.Marshal(patientJSON{
		patientAlias:    (*patientAlias)(&p),
		DateOfBirth:     p.DOB(),
		AgeCategory:     p.AgeCategory(),
		IsAdult:         p.IsAdult(),
		IsChild:         p.IsChild(),
		IsSeniorCitizen: p.IsSeniorCitizen(),
		PrimaryContact:  p.PrimaryContact(),
	})
}

// UnmarshalJSON reads the MarshalJSON shape; derived fields are ignored.
func (p *Patient) UnmarshalJSON(data []byte) error {
	aux := patientJSON{patientAlias: (*patientAlias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.DateOfBirth = nil
	if aux.DateOfBirth != "" {
		dob, err := parseDate(aux.DateOfBirth)
		if err != nil {
			return err
		}
		p.DateOfBirth = &dob
	}
	return nil
}

// parseDate accepts YYYY-MM-DD or a full RFC 3339 timestamp and returns
// the calendar date at UTC midnight.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// CreateRequest is the body of POST /patients.
type CreateRequest struct {
	PatientID                 string   `json:"patientId"`
	Name                      string   `json:"name"`
	DateOfBirth               string   `json:"dateOfBirth"`
	Age                       *int     `json:"age"`
	Sex                       string   `json:"sex"`
	Ethnicity                 string   `json:"ethnicity"`
	Religion                  string   `json:"religion"`
	NIDNumber                 string   `json:"nidNumber"`
	PatientMobile             string   `json:"patientMobile"`
	SpouseMobile              string   `json:"spouseMobile"`
	FirstDegreeRelativeMobile string   `json:"firstDegreeRelativeMobile"`
	District                  string   `json:"district"`
	AddressDetails            string   `json:"addressDetails"`
	ShortHistory              string   `json:"shortHistory"`
	SurgicalHistory           string   `json:"surgicalHistory"`
	FamilyHistory             string   `json:"familyHistory"`
	PastIllness               string   `json:"pastIllness"`
	Tags                      []string `json:"tags"`
	SpecialNotes              string   `json:"specialNotes"`
	FinalDiagnosis            string   `json:"finalDiagnosis"`
}

// UpdateRequest is the body of PUT and PATCH /patients/:id. Nil fields are
// left unchanged; the patient code cannot be changed.
type UpdateRequest struct {
	Name                      *string   `json:"name"`
	DateOfBirth               *string   `json:"dateOfBirth"`
	Age                       *int      `json:"age"`
	Sex                       *string   `json:"sex"`
	Ethnicity                 *string   `json:"ethnicity"`
	Religion                  *string   `json:"religion"`
	NIDNumber                 *string   `json:"nidNumber"`
	PatientMobile             *string   `json:"patientMobile"`
	SpouseMobile              *string   `json:"spouseMobile"`
	FirstDegreeRelativeMobile *string   `json:"firstDegreeRelativeMobile"`
	District                  *string   `json:"district"`
	AddressDetails            *string   `json:"addressDetails"`
	ShortHistory              *string   `json:"shortHistory"`
	SurgicalHistory           *string   `json:"surgicalHistory"`
	FamilyHistory             *string   `json:"familyHistory"`
	PastIllness               *string   `json:"pastIllness"`
	Tags                      *[]string `json:"tags"`
	SpecialNotes              *string   `json:"specialNotes"`
	FinalDiagnosis            *string   `json:"finalDiagnosis"`
}
