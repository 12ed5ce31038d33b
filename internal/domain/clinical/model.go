package clinical

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/medrec/medrec/internal/domain/clinicalcalc"
)

// Entry is one set of clinical values for a patient in a section. RawValues
// holds exactly what clients submitted; Values is RawValues plus everything
// the processor derived from it.
type Entry struct {
	ID         uuid.UUID              `json:"id"`
	PatientID  uuid.UUID              `json:"patientId"`
	Section    clinicalcalc.Section   `json:"section"`
	RecordedAt time.Time              `json:"recordedAt"`
	RawValues  *clinicalcalc.ValueSet `json:"-"`
	Values     *clinicalcalc.ValueSet `json:"values"`
	Meta       json.RawMessage        `json:"meta,omitempty"`
	CreatedAt  time.Time              `json:"createdAt"`
	UpdatedAt  time.Time              `json:"updatedAt"`
}

type CreateRequest struct {
	Section    string                 `json:"section"`
	RecordedAt string                 `json:"recordedAt"`
	Values     *clinicalcalc.ValueSet `json:"values"`
	Meta       json.RawMessage        `json:"meta"`
}

// UpdateRequest changes any of recordedAt, values and meta. Values are
// merged into the stored raw values before reprocessing.
type UpdateRequest struct {
	Section    string                 `json:"section"`
	RecordedAt *string                `json:"recordedAt"`
	Values     *clinicalcalc.ValueSet `json:"values"`
	Meta       json.RawMessage        `json:"meta"`
}

// ListFilter narrows List. A zero Section lists every section.
type ListFilter struct {
	Section clinicalcalc.Section
	Limit   int
	Offset  int
}
