package image

import (
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"
)

// Image is an uploaded picture attached to a patient, or to one of the
// patient's investigations when InvestigationID is set.
type Image struct {
	ID              uuid.UUID  `json:"id"`
	PatientID       uuid.UUID  `json:"patientId"`
	InvestigationID *uuid.UUID `json:"investigationId,omitempty"`
	BlobKey         string     `json:"-"`
	ContentType     string     `json:"imageType"`
	SizeBytes       int64      `json:"size"`
	FileName        string     `json:"fileName,omitempty"`
	Description     string     `json:"description,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// ContentPath is the API path serving the image bytes.
func (img *Image) ContentPath() string {
	return "/api/v1/images/" + img.ID.String() + "/content"
}

func (img Image) MarshalJSON() ([]byte, error) {
	type alias Image
	return json.Marshal(struct {
		alias
		URL string `json:"url"`
	}{alias(img), img.ContentPath()})
}

// Upload is one incoming file.
type Upload struct {
	FileName    string
	ContentType string
	Description string
	Body        io.Reader
}
