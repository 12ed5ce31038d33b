package image

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medrec/medrec/internal/platform/apperr"
	"github.com/medrec/medrec/internal/platform/blobstore"
	"github.com/medrec/medrec/internal/platform/middleware"
)

const (
	patientPrefix       = "patients"
	investigationPrefix = "investigations"
	maxDescriptionLen   = 1000
	sniffLen            = 512
)

// PatientChecker confirms a patient exists and belongs to the caller.
type PatientChecker interface {
	Exists(ctx context.Context, ownerID, patientID uuid.UUID) error
}

// InvestigationResolver returns the patient of an investigation owned by the
// caller.
type InvestigationResolver interface {
	PatientOf(ctx context.Context, ownerID, investigationID uuid.UUID) (uuid.UUID, error)
}

type Service struct {
	repo           Repository
	store          blobstore.BlobStore
	patients       PatientChecker
	investigations InvestigationResolver
	maxBytes       int64
	logger         zerolog.Logger
}

func NewService(repo Repository, store blobstore.BlobStore, patients PatientChecker,
	investigations InvestigationResolver, maxBytes int64, logger zerolog.Logger) *Service {
	return &Service{
		repo:           repo,
		store:          store,
		patients:       patients,
		investigations: investigations,
		maxBytes:       maxBytes,
		logger:         logger.With().Str("component", "image").Logger(),
	}
}

// MaxBytes is the largest accepted upload.
func (s *Service) MaxBytes() int64 { return s.maxBytes }

func (s *Service) UploadForPatient(ctx context.Context, ownerID, patientID uuid.UUID, up Upload) (*Image, error) {
	if err := s.patients.Exists(ctx, ownerID, patientID); err != nil {
		return nil, err
	}
	return s.save(ctx, &Image{PatientID: patientID}, patientPrefix, up)
}

func (s *Service) UploadForInvestigation(ctx context.Context, ownerID, investigationID uuid.UUID, up Upload) (*Image, error) {
	patientID, err := s.investigations.PatientOf(ctx, ownerID, investigationID)
	if err != nil {
		return nil, err
	}
	return s.save(ctx, &Image{PatientID: patientID, InvestigationID: &investigationID}, investigationPrefix, up)
}

// save sniffs the content type from the leading bytes, stores the blob and
// then the metadata. The blob is removed again if the metadata insert fails.
func (s *Service) save(ctx context.Context, img *Image, prefix string, up Upload) (*Image, error) {
	if up.Body == nil {
		return nil, apperr.Invalid("image file is required")
	}
	img.Description = middleware.SanitizeString(up.Description)
	if utf8.RuneCountInString(img.Description) > maxDescriptionLen {
		return nil, apperr.Invalid("description must be at most %d characters", maxDescriptionLen)
	}
	img.FileName = filepath.Base(middleware.SanitizeString(up.FileName))
	if img.FileName == "." || img.FileName == "/" {
		img.FileName = ""
	}

	br := bufio.NewReaderSize(up.Body, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(head) == 0 {
		return nil, apperr.Invalid("image file is empty")
	}
	sniffed := http.DetectContentType(head)
	ext, err := blobstore.ExtensionFor(sniffed)
	if err != nil {
		return nil, apperr.Invalid("only png, jpeg, gif and webp images are allowed")
	}
	if up.ContentType != "" && up.ContentType != sniffed {
		s.logger.Debug().Str("declared", up.ContentType).Str("sniffed", sniffed).Msg("upload content type differs from declared")
	}
	img.ContentType = sniffed

	img.BlobKey = blobstore.NewKey(prefix, ext)
	obj, err := s.store.Put(ctx, img.BlobKey, br, s.maxBytes)
	if err != nil {
		return nil, err
	}
	img.SizeBytes = obj.Size

	if err := s.repo.Create(ctx, img); err != nil {
		if derr := s.store.Delete(ctx, img.BlobKey); derr != nil {
			s.logger.Warn().Err(derr).Str("key", img.BlobKey).Msg("orphaned image blob")
		}
		return nil, err
	}
	s.logger.Info().
		Str("image_id", img.ID.String()).
		Str("patient_id", img.PatientID.String()).
		Str("content_type", img.ContentType).
		Int64("size", img.SizeBytes).
		Msg("image uploaded")
	return img, nil
}

func (s *Service) ListForPatient(ctx context.Context, ownerID, patientID uuid.UUID) ([]*Image, error) {
	if err := s.patients.Exists(ctx, ownerID, patientID); err != nil {
		return nil, err
	}
	return s.repo.ListByPatient(ctx, patientID)
}

func (s *Service) ListForInvestigation(ctx context.Context, ownerID, investigationID uuid.UUID) ([]*Image, error) {
	if _, err := s.investigations.PatientOf(ctx, ownerID, investigationID); err != nil {
		return nil, err
	}
	return s.repo.ListByInvestigation(ctx, investigationID)
}

// Get returns an image the caller owns through its patient.
func (s *Service) Get(ctx context.Context, ownerID, id uuid.UUID) (*Image, error) {
	img, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.patients.Exists(ctx, ownerID, img.PatientID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound("image")
		}
		return nil, err
	}
	return img, nil
}

// Open returns the image with a reader over its bytes. Callers close it.
func (s *Service) Open(ctx context.Context, ownerID, id uuid.UUID) (*Image, io.ReadCloser, error) {
	img, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.store.Open(ctx, img.BlobKey)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, nil, apperr.NotFound("image content")
	}
	if err != nil {
		return nil, nil, err
	}
	return img, rc, nil
}

// Delete removes the metadata, then the blob. A missing blob is only logged.
func (s *Service) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	img, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, img.BlobKey); err != nil {
		s.logger.Warn().Err(err).Str("key", img.BlobKey).Msg("image blob not removed")
	}
	s.logger.Info().Str("image_id", id.String()).Msg("image deleted")
	return nil
}
