package image

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medrec/medrec/internal/platform/apperr"
	"github.com/medrec/medrec/internal/platform/auth"
	"github.com/medrec/medrec/internal/platform/blobstore"
)

// -- Mocks --

type mockRepo struct {
	images  map[uuid.UUID]*Image
	failAdd bool
}

func (m *mockRepo) Create(_ context.Context, img *Image) error {
	if m.failAdd {
		return errors.New("insert failed")
	}
	img.ID = uuid.New()
	img.CreatedAt = time.Now()
	cp := *img
	m.images[img.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Image, error) {
	img, ok := m.images[id]
	if !ok {
		return nil, apperr.NotFound("image")
	}
	cp := *img
	return &cp, nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Image, error) {
	out := []*Image{}
	for _, img := range m.images {
		if img.PatientID == patientID && img.InvestigationID == nil {
			out = append(out, img)
		}
	}
	return out, nil
}

func (m *mockRepo) ListByInvestigation(_ context.Context, investigationID uuid.UUID) ([]*Image, error) {
	out := []*Image{}
	for _, img := range m.images {
		if img.InvestigationID != nil && *img.InvestigationID == investigationID {
			out = append(out, img)
		}
	}
	return out, nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.images[id]; !ok {
		return apperr.NotFound("image")
	}
	delete(m.images, id)
	return nil
}

type owners struct {
	patients       map[uuid.UUID]uuid.UUID
	investigations map[uuid.UUID]uuid.UUID
}

func (o *owners) Exists(_ context.Context, ownerID, patientID uuid.UUID) error {
	if owner, ok := o.patients[patientID]; !ok || owner != ownerID {
		return apperr.NotFound("patient")
	}
	return nil
}

func (o *owners) PatientOf(ctx context.Context, ownerID, investigationID uuid.UUID) (uuid.UUID, error) {
	pid, ok := o.investigations[investigationID]
	if !ok {
		return uuid.Nil, apperr.NotFound("investigation")
	}
	if err := o.Exists(ctx, ownerID, pid); err != nil {
		return uuid.Nil, apperr.NotFound("investigation")
	}
	return pid, nil
}

type fixture struct {
	svc           *Service
	repo          *mockRepo
	store         *blobstore.InMemoryBlobStore
	owner         uuid.UUID
	patient       uuid.UUID
	investigation uuid.UUID
}

func newFixture() *fixture {
	owner, pid, inv := uuid.New(), uuid.New(), uuid.New()
	repo := &mockRepo{images: make(map[uuid.UUID]*Image)}
	store := blobstore.NewInMemoryBlobStore()
	o := &owners{
		patients:       map[uuid.UUID]uuid.UUID{pid: owner},
		investigations: map[uuid.UUID]uuid.UUID{inv: pid},
	}
	svc := NewService(repo, store, o, o, 1024, zerolog.Nop())
	return &fixture{svc: svc, repo: repo, store: store, owner: owner, patient: pid, investigation: inv}
}

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

func pngUpload() Upload {
	return Upload{FileName: "../scan.png", ContentType: "image/png", Description: " chest ", Body: bytes.NewReader(pngBytes)}
}

// -- Tests --

func TestUploadForPatient(t *testing.T) {
	f := newFixture()
	img, err := f.svc.UploadForPatient(context.Background(), f.owner, f.patient, pngUpload())
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if img.ContentType != "image/png" || img.SizeBytes != int64(len(pngBytes)) {
		t.Errorf("unexpected image %+v", img)
	}
	if !strings.HasPrefix(img.BlobKey, "patients/") || !strings.HasSuffix(img.BlobKey, ".png") {
		t.Errorf("unexpected key %q", img.BlobKey)
	}
	if img.FileName != "scan.png" || img.Description != "chest" {
		t.Errorf("unexpected file name %q / description %q", img.FileName, img.Description)
	}
	if f.store.Len() != 1 {
		t.Errorf("expected one blob, got %d", f.store.Len())
	}
}

func TestUploadForInvestigation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	img, err := f.svc.UploadForInvestigation(ctx, f.owner, f.investigation, pngUpload())
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if img.PatientID != f.patient || img.InvestigationID == nil || *img.InvestigationID != f.investigation {
		t.Errorf("unexpected links %+v", img)
	}
	if !strings.HasPrefix(img.BlobKey, "investigations/") {
		t.Errorf("unexpected key %q", img.BlobKey)
	}

	own, _ := f.svc.ListForPatient(ctx, f.owner, f.patient)
	if len(own) != 0 {
		t.Error("investigation images should not be listed as patient images")
	}
	list, err := f.svc.ListForInvestigation(ctx, f.owner, f.investigation)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one investigation image, got %d, %v", len(list), err)
	}
}

func TestUpload_Rejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tests := []struct {
		name string
		up   Upload
		want error
	}{
		{"not an image", Upload{Body: strings.NewReader("%PDF-1.7 hello")}, apperr.ErrValidation},
		{"empty", Upload{Body: strings.NewReader("")}, apperr.ErrValidation},
		{"missing", Upload{}, apperr.ErrValidation},
		{"too large", Upload{Body: io.MultiReader(bytes.NewReader(pngBytes), bytes.NewReader(make([]byte, 2048)))}, blobstore.ErrFileTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.UploadForPatient(ctx, f.owner, f.patient, tt.up)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if f.store.Len() != 0 || len(f.repo.images) != 0 {
		t.Error("rejected uploads must not leave anything behind")
	}

	if _, err := f.svc.UploadForPatient(ctx, uuid.New(), f.patient, pngUpload()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("stranger: expected not found, got %v", err)
	}
}

func TestUpload_MetadataFailureRemovesBlob(t *testing.T) {
	f := newFixture()
	f.repo.failAdd = true
	if _, err := f.svc.UploadForPatient(context.Background(), f.owner, f.patient, pngUpload()); err == nil {
		t.Fatal("expected error")
	}
	if f.store.Len() != 0 {
		t.Error("blob should be removed when metadata cannot be stored")
	}
}

func TestOpenAndDelete(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	img, _ := f.svc.UploadForPatient(ctx, f.owner, f.patient, pngUpload())

	if _, _, err := f.svc.Open(ctx, uuid.New(), img.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("stranger open: expected not found, got %v", err)
	}
	_, rc, err := f.svc.Open(ctx, f.owner, img.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if !bytes.Equal(data, pngBytes) {
		t.Error("content differs from upload")
	}

	if err := f.svc.Delete(ctx, f.owner, img.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if f.store.Len() != 0 || len(f.repo.images) != 0 {
		t.Error("delete should remove blob and metadata")
	}
}

func TestImage_JSONIncludesURL(t *testing.T) {
	img := Image{ID: uuid.New(), ContentType: "image/png", BlobKey: "patients/x.png"}
	b, err := json.Marshal(img)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]interface{}
	json.Unmarshal(b, &m)
	if m["url"] != "/api/v1/images/"+img.ID.String()+"/content" {
		t.Errorf("unexpected url %v", m["url"])
	}
	if _, ok := m["BlobKey"]; ok {
		t.Error("blob key must not be exposed")
	}
}

// -- Handler --

func multipartRequest(t *testing.T, owner uuid.UUID, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", "scan.png")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(content)
	w.WriteField("description", "follow-up")
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	ctx := auth.WithIdentity(context.Background(), owner.String(), "doctor", []string{auth.RoleUser})
	return req.WithContext(ctx)
}

func TestHandler_UploadAndContent(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(multipartRequest(t, f.owner, pngBytes), rec)
	c.SetParamNames("id")
	c.SetParamValues(f.patient.String())
	if err := h.UploadForPatient(c); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var body struct {
		ID          string `json:"id"`
		Description string `json:"description"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Description != "follow-up" {
		t.Errorf("unexpected description %q", body.Description)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auth.WithIdentity(context.Background(), f.owner.String(), "doctor", []string{auth.RoleUser}))
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(body.ID)
	if err := h.Content(c); err != nil {
		t.Fatalf("content: %v", err)
	}
	if rec.Header().Get(echo.HeaderContentType) != "image/png" {
		t.Errorf("unexpected content type %q", rec.Header().Get(echo.HeaderContentType))
	}
	if !bytes.Equal(rec.Body.Bytes(), pngBytes) {
		t.Error("served bytes differ from upload")
	}
}

func TestHandler_UploadTooLarge(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()

	content := append(append([]byte{}, pngBytes...), make([]byte, 4096)...)
	c := e.NewContext(multipartRequest(t, f.owner, content), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(f.patient.String())
	err := h.UploadForPatient(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %v", err)
	}
}

func TestHandler_MissingFile(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithIdentity(context.Background(), f.owner.String(), "doctor", []string{auth.RoleUser}))
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(f.patient.String())
	err := h.UploadForPatient(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
