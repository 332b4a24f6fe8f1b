package casepaper

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a record or result does not exist.
var ErrNotFound = errors.New("not found")

// UploadRecordRepository is the audit ledger. Create sets status=processing;
// the two Mark methods are the only way to a terminal status and are
// idempotent no-ops once the record is terminal.
type UploadRecordRepository interface {
	Create(ctx context.Context, rec *UploadRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*UploadRecord, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	List(ctx context.Context, limit, offset int) ([]*UploadRecord, int, error)
}

// ExtractionResultRepository is the result store. Results are written once
// per terminal outcome and never updated.
type ExtractionResultRepository interface {
	Create(ctx context.Context, res *ExtractionResult) error
	GetByID(ctx context.Context, id uuid.UUID) (*ExtractionResult, error)
	GetByUploadRecordID(ctx context.Context, uploadRecordID uuid.UUID) (*ExtractionResult, error)
	List(ctx context.Context, limit, offset int) ([]*ExtractionResult, int, error)
}
