package casepaper

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/opd-hims/casepaper/internal/platform/blobstore"
)

// Stage contracts. Each stage is injected so unit tests can substitute fakes.
type (
	// TextExtractor turns image bytes into raw unstructured text.
	TextExtractor interface {
		ExtractText(ctx context.Context, image []byte, mimeType string) (string, error)
	}
	// Normalizer strips non-clinical content from raw OCR text.
	Normalizer interface {
		Normalize(ctx context.Context, rawText string) (string, error)
	}
	// FieldExtractor parses normalized text into structured encounter data.
	FieldExtractor interface {
		Extract(ctx context.Context, normalizedText string) (StructuredData, error)
	}
	// Refiner cross-checks structured data against the source texts.
	Refiner interface {
		Refine(ctx context.Context, data StructuredData, rawText, normalizedText string) (StructuredData, *ValidationReport, error)
	}
)

// Advisory messages carried in a degraded result's advice field.
const (
	adviceUnreadable       = "Could not read any text from the uploaded document. Please enter the case paper details manually."
	adviceNoClinicalText   = "No usable clinical text could be recovered from the document. Please enter the details manually."
	adviceExtractionFailed = "Automatic structuring of the document failed. The transcribed text is available for manual review."
)

// ProcessInput is one submission: the scan bytes plus its linkage and actor.
type ProcessInput struct {
	FileName    string
	ContentType string
	Content     []byte
	PatientID   *uuid.UUID
	VisitID     *uuid.UUID
	SubmittedBy string
	ClinicID    string
}

// Orchestrator sequences the pipeline stages and owns the failure contract:
// storage errors happen before any ledger entry exists and surface as plain
// errors; once a ledger entry exists every run ends with a persisted,
// structurally valid ExtractionResult, degraded or not. Validator failure is
// the one non-fatal stage failure.
type Orchestrator struct {
	blobs        blobstore.Store
	uploads      UploadRecordRepository
	results      ExtractionResultRepository
	ocr          TextExtractor
	normalizer   Normalizer
	extractor    FieldExtractor
	refiner      Refiner
	log          zerolog.Logger
	stageTimeout time.Duration
}

func NewOrchestrator(
	blobs blobstore.Store,
	uploads UploadRecordRepository,
	results ExtractionResultRepository,
	ocr TextExtractor,
	normalizer Normalizer,
	extractor FieldExtractor,
	refiner Refiner,
	log zerolog.Logger,
	stageTimeout time.Duration,
) *Orchestrator {
	return &Orchestrator{
		blobs:        blobs,
		uploads:      uploads,
		results:      results,
		ocr:          ocr,
		normalizer:   normalizer,
		extractor:    extractor,
		refiner:      refiner,
		log:          log,
		stageTimeout: stageTimeout,
	}
}

// Run executes one full pipeline pass. The returned error is non-nil only
// when no audit trail exists for the attempt (storage or ledger-creation
// failure) or when the terminal result could not be persisted.
func (o *Orchestrator) Run(ctx context.Context, in ProcessInput) (*ExtractionResult, error) {
	stored, err := o.blobs.Save(ctx, blobstore.Metadata{
		FileName:    in.FileName,
		ContentType: in.ContentType,
		ClinicID:    in.ClinicID,
		UploadedBy:  in.SubmittedBy,
	}, bytes.NewReader(in.Content))
	if err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}

	rec := &UploadRecord{
		PatientID:   in.PatientID,
		VisitID:     in.VisitID,
		FileName:    in.FileName,
		FileSize:    stored.Size,
		MIMEType:    in.ContentType,
		FileURL:     stored.URL,
		SubmittedBy: in.SubmittedBy,
	}
	if err := o.uploads.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create upload record: %w", err)
	}

	start := time.Now()
	o.log.Info().
		Str("upload_record_id", rec.ID.String()).
		Str("file_name", rec.FileName).
		Int64("file_size", rec.FileSize).
		Msg("pipeline start")

	rawText, err := o.extractText(ctx, in.Content, in.ContentType)
	if err != nil {
		return o.finishDegraded(ctx, rec, "", "", adviceUnreadable, start, err)
	}

	normalizedText, err := o.normalizeText(ctx, rawText)
	if err != nil {
		return o.finishDegraded(ctx, rec, rawText, "", adviceNoClinicalText, start, err)
	}

	data, err := o.extractFields(ctx, normalizedText)
	if err != nil {
		return o.finishDegraded(ctx, rec, rawText, normalizedText, adviceExtractionFailed, start, err)
	}

	refined, report, err := o.refineFields(ctx, data, rawText, normalizedText)
	if err != nil {
		// Non-fatal: keep the pre-validation data, drop the report.
		o.log.Warn().
			Err(err).
			Str("upload_record_id", rec.ID.String()).
			Msg("validation failed, keeping unrefined extraction")
		report = nil
	} else {
		data = refined
	}

	res := &ExtractionResult{
		UploadRecordID:   rec.ID,
		RawText:          rawText,
		NormalizedText:   normalizedText,
		Data:             data,
		Confidence:       NominalConfidence,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
		Report:           report,
	}
	if err := o.results.Create(ctx, res); err != nil {
		if mErr := o.uploads.MarkFailed(ctx, rec.ID, "failed to persist result"); mErr != nil {
			o.log.Error().Err(mErr).Str("upload_record_id", rec.ID.String()).Msg("mark failed")
		}
		return nil, fmt.Errorf("persist result: %w", err)
	}
	if err := o.uploads.MarkCompleted(ctx, rec.ID); err != nil {
		o.log.Error().Err(err).Str("upload_record_id", rec.ID.String()).Msg("mark completed")
	}

	o.log.Info().
		Str("upload_record_id", rec.ID.String()).
		Str("result_id", res.ID.String()).
		Int64("processing_time_ms", res.ProcessingTimeMS).
		Int("diagnoses", len(res.Data.Diagnoses)).
		Int("prescriptions", len(res.Data.Prescriptions)).
		Msg("pipeline completed")
	return res, nil
}

// finishDegraded closes out a run after a fatal stage failure: persist a
// structurally valid degraded result, mark the ledger failed, and hand the
// result back to the caller instead of an error.
func (o *Orchestrator) finishDegraded(ctx context.Context, rec *UploadRecord, rawText, normalizedText, advisory string, start time.Time, cause error) (*ExtractionResult, error) {
	o.log.Warn().
		Err(cause).
		Str("upload_record_id", rec.ID.String()).
		Msg("pipeline degraded")

	res := &ExtractionResult{
		UploadRecordID:   rec.ID,
		RawText:          rawText,
		NormalizedText:   normalizedText,
		Data:             NewDegradedData(advisory),
		Confidence:       0,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
	}
	if err := o.results.Create(ctx, res); err != nil {
		if mErr := o.uploads.MarkFailed(ctx, rec.ID, "failed to persist degraded result"); mErr != nil {
			o.log.Error().Err(mErr).Str("upload_record_id", rec.ID.String()).Msg("mark failed")
		}
		return nil, fmt.Errorf("persist degraded result: %w", err)
	}
	if err := o.uploads.MarkFailed(ctx, rec.ID, cause.Error()); err != nil {
		o.log.Error().Err(err).Str("upload_record_id", rec.ID.String()).Msg("mark failed")
	}
	return res, nil
}

// Every external call gets its own deadline so a hung provider fails the
// stage instead of stalling the run.
func (o *Orchestrator) stageCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.stageTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, o.stageTimeout)
}

func (o *Orchestrator) extractText(ctx context.Context, image []byte, mimeType string) (string, error) {
	sctx, cancel := o.stageCtx(ctx)
	defer cancel()
	return o.ocr.ExtractText(sctx, image, mimeType)
}

func (o *Orchestrator) normalizeText(ctx context.Context, rawText string) (string, error) {
	sctx, cancel := o.stageCtx(ctx)
	defer cancel()
	return o.normalizer.Normalize(sctx, rawText)
}

func (o *Orchestrator) extractFields(ctx context.Context, normalizedText string) (StructuredData, error) {
	sctx, cancel := o.stageCtx(ctx)
	defer cancel()
	return o.extractor.Extract(sctx, normalizedText)
}

func (o *Orchestrator) refineFields(ctx context.Context, data StructuredData, rawText, normalizedText string) (StructuredData, *ValidationReport, error) {
	sctx, cancel := o.stageCtx(ctx)
	defer cancel()
	return o.refiner.Refine(sctx, data, rawText, normalizedText)
}
