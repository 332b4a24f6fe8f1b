package casepaper

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opd-hims/casepaper/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Upload Record Repository ===========

type uploadRecordRepoPG struct{ pool *pgxpool.Pool }

func NewUploadRecordRepoPG(pool *pgxpool.Pool) UploadRecordRepository {
	return &uploadRecordRepoPG{pool: pool}
}

func (r *uploadRecordRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const uploadRecordCols = `id, patient_id, visit_id, file_name, file_size, mime_type, file_url,
	status, submitted_by, error_message, created_at, processed_at`

func (r *uploadRecordRepoPG) scanRecord(row pgx.Row) (*UploadRecord, error) {
	var rec UploadRecord
	err := row.Scan(&rec.ID, &rec.PatientID, &rec.VisitID, &rec.FileName, &rec.FileSize,
		&rec.MIMEType, &rec.FileURL, &rec.Status, &rec.SubmittedBy, &rec.ErrorMessage,
		&rec.CreatedAt, &rec.ProcessedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	return &rec, err
}

func (r *uploadRecordRepoPG) Create(ctx context.Context, rec *UploadRecord) error {
	rec.ID = uuid.New()
	rec.Status = StatusProcessing
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO upload_record (id, patient_id, visit_id, file_name, file_size, mime_type,
			file_url, status, submitted_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at`,
		rec.ID, rec.PatientID, rec.VisitID, rec.FileName, rec.FileSize, rec.MIMEType,
		rec.FileURL, rec.Status, rec.SubmittedBy).Scan(&rec.CreatedAt)
}

func (r *uploadRecordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*UploadRecord, error) {
	return r.scanRecord(r.conn(ctx).QueryRow(ctx,
		`SELECT `+uploadRecordCols+` FROM upload_record WHERE id = $1`, id))
}

// MarkCompleted transitions processing -> completed. The status guard makes
// the call a no-op when the record is already terminal.
func (r *uploadRecordRepoPG) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE upload_record SET status = $1, processed_at = NOW()
		WHERE id = $2 AND status = $3`,
		StatusCompleted, id, StatusProcessing)
	return err
}

// MarkFailed transitions processing -> failed, recording the error message.
func (r *uploadRecordRepoPG) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	var msg *string
	if errMsg != "" {
		msg = &errMsg
	}
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE upload_record SET status = $1, processed_at = NOW(), error_message = $2
		WHERE id = $3 AND status = $4`,
		StatusFailed, msg, id, StatusProcessing)
	return err
}

func (r *uploadRecordRepoPG) List(ctx context.Context, limit, offset int) ([]*UploadRecord, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM upload_record`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+uploadRecordCols+` FROM upload_record
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []*UploadRecord
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

// =========== Extraction Result Repository ===========

type extractionResultRepoPG struct{ pool *pgxpool.Pool }

func NewExtractionResultRepoPG(pool *pgxpool.Pool) ExtractionResultRepository {
	return &extractionResultRepoPG{pool: pool}
}

func (r *extractionResultRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const extractionResultCols = `id, upload_record_id, raw_text, normalized_text, structured_data,
	confidence, processing_time_ms, validation_report, created_at`

func (r *extractionResultRepoPG) scanResult(row pgx.Row) (*ExtractionResult, error) {
	var res ExtractionResult
	var data []byte
	var report []byte
	err := row.Scan(&res.ID, &res.UploadRecordID, &res.RawText, &res.NormalizedText, &data,
		&res.Confidence, &res.ProcessingTimeMS, &report, &res.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &res.Data); err != nil {
		return nil, fmt.Errorf("unmarshal structured data: %w", err)
	}
	res.Data.EnsureInit()
	if report != nil {
		res.Report = &ValidationReport{}
		if err := json.Unmarshal(report, res.Report); err != nil {
			return nil, fmt.Errorf("unmarshal validation report: %w", err)
		}
	}
	return &res, nil
}

func (r *extractionResultRepoPG) Create(ctx context.Context, res *ExtractionResult) error {
	res.ID = uuid.New()
	res.Data.EnsureInit()

	data, err := json.Marshal(res.Data)
	if err != nil {
		return fmt.Errorf("marshal structured data: %w", err)
	}
	var report []byte
	if res.Report != nil {
		if report, err = json.Marshal(res.Report); err != nil {
			return fmt.Errorf("marshal validation report: %w", err)
		}
	}

	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO extraction_result (id, upload_record_id, raw_text, normalized_text,
			structured_data, confidence, processing_time_ms, validation_report)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		res.ID, res.UploadRecordID, res.RawText, res.NormalizedText, data,
		res.Confidence, res.ProcessingTimeMS, report).Scan(&res.CreatedAt)
}

func (r *extractionResultRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ExtractionResult, error) {
	return r.scanResult(r.conn(ctx).QueryRow(ctx,
		`SELECT `+extractionResultCols+` FROM extraction_result WHERE id = $1`, id))
}

func (r *extractionResultRepoPG) GetByUploadRecordID(ctx context.Context, uploadRecordID uuid.UUID) (*ExtractionResult, error) {
	return r.scanResult(r.conn(ctx).QueryRow(ctx,
		`SELECT `+extractionResultCols+` FROM extraction_result WHERE upload_record_id = $1`, uploadRecordID))
}

func (r *extractionResultRepoPG) List(ctx context.Context, limit, offset int) ([]*ExtractionResult, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM extraction_result`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+extractionResultCols+` FROM extraction_result
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []*ExtractionResult
	for rows.Next() {
		res, err := r.scanResult(rows)
		if err != nil {
			return nil, 0, err
		}
		results = append(results, res)
	}
	return results, total, rows.Err()
}
