package casepaper

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/opd-hims/casepaper/internal/platform/blobstore"
)

// ErrInvalidInput marks caller-input errors rejected before the pipeline
// starts. No UploadRecord exists for these.
var ErrInvalidInput = errors.New("invalid input")

// Service is the public surface of the case-paper subsystem: one entry point
// that runs the pipeline, plus read access to history and stored scans.
type Service struct {
	orch           *Orchestrator
	uploads        UploadRecordRepository
	results        ExtractionResultRepository
	blobs          blobstore.Store
	maxUploadBytes int64
}

func NewService(orch *Orchestrator, uploads UploadRecordRepository, results ExtractionResultRepository, blobs blobstore.Store, maxUploadBytes int64) *Service {
	return &Service{
		orch:           orch,
		uploads:        uploads,
		results:        results,
		blobs:          blobs,
		maxUploadBytes: maxUploadBytes,
	}
}

// ProcessDocument validates the submission and runs the full pipeline. Once
// validation passes and the ledger entry exists, the caller always gets a
// structurally valid ExtractionResult, degraded or not.
func (s *Service) ProcessDocument(ctx context.Context, in ProcessInput) (*ExtractionResult, error) {
	if in.FileName == "" {
		return nil, fmt.Errorf("%w: file name is required", ErrInvalidInput)
	}
	if len(in.Content) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrInvalidInput)
	}
	if s.maxUploadBytes > 0 && int64(len(in.Content)) > s.maxUploadBytes {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidInput, s.maxUploadBytes)
	}
	if !blobstore.AllowedContentTypes[in.ContentType] {
		return nil, fmt.Errorf("%w: unsupported content type %s", ErrInvalidInput, in.ContentType)
	}
	if in.SubmittedBy == "" {
		return nil, fmt.Errorf("%w: submitting actor is required", ErrInvalidInput)
	}

	return s.orch.Run(ctx, in)
}

// GetHistory returns extraction results ordered by recency.
func (s *Service) GetHistory(ctx context.Context, limit, offset int) ([]*ExtractionResult, int, error) {
	return s.results.List(ctx, limit, offset)
}

// GetResult returns a single extraction result by its id.
func (s *Service) GetResult(ctx context.Context, id uuid.UUID) (*ExtractionResult, error) {
	return s.results.GetByID(ctx, id)
}

// GetUploadRecord returns the ledger entry for an attempt.
func (s *Service) GetUploadRecord(ctx context.Context, id uuid.UUID) (*UploadRecord, error) {
	return s.uploads.GetByID(ctx, id)
}

// ListUploadRecords returns ledger entries ordered by recency.
func (s *Service) ListUploadRecords(ctx context.Context, limit, offset int) ([]*UploadRecord, int, error) {
	return s.uploads.List(ctx, limit, offset)
}

// FetchFile returns the original scan for an upload record, for re-display.
func (s *Service) FetchFile(ctx context.Context, uploadRecordID uuid.UUID) ([]byte, *blobstore.Metadata, error) {
	rec, err := s.uploads.GetByID(ctx, uploadRecordID)
	if err != nil {
		return nil, nil, err
	}
	return s.blobs.Fetch(ctx, rec.FileURL)
}
