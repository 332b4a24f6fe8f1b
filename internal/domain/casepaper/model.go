package casepaper

import (
	"time"

	"github.com/google/uuid"
)

// Upload record status values. Transitions are monotonic: processing moves to
// exactly one of completed/failed and never back.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Confidence assigned to a fully successful run. Per-field confidence scoring
// is deliberately not implemented; degraded runs report 0.
const NominalConfidence = 0.85

// UploadRecord maps to the upload_record table, one row per submitted
// case paper. It is the audit ledger entry for a processing attempt.
type UploadRecord struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PatientID    *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	VisitID      *uuid.UUID `db:"visit_id" json:"visit_id,omitempty"`
	FileName     string     `db:"file_name" json:"file_name"`
	FileSize     int64      `db:"file_size" json:"file_size"`
	MIMEType     string     `db:"mime_type" json:"mime_type"`
	FileURL      string     `db:"file_url" json:"file_url"`
	Status       string     `db:"status" json:"status"`
	SubmittedBy  string     `db:"submitted_by" json:"submitted_by"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time `db:"processed_at" json:"processed_at,omitempty"`
}

// IsTerminal reports whether the record has reached a final status.
func (r *UploadRecord) IsTerminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// ExtractionResult maps to the extraction_result table, one row per upload
// record that reached a terminal outcome. Immutable once written.
type ExtractionResult struct {
	ID               uuid.UUID         `db:"id" json:"id"`
	UploadRecordID   uuid.UUID         `db:"upload_record_id" json:"upload_record_id"`
	RawText          string            `db:"raw_text" json:"raw_text"`
	NormalizedText   string            `db:"normalized_text" json:"normalized_text"`
	Data             StructuredData    `db:"structured_data" json:"structured_data"`
	Confidence       float64           `db:"confidence" json:"confidence"`
	ProcessingTimeMS int64             `db:"processing_time_ms" json:"processing_time_ms"`
	Report           *ValidationReport `db:"validation_report" json:"validation_report,omitempty"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
}

// StructuredData is the typed encounter extraction. All containers are always
// present so EMR-entry code can bind to any field without nil checks. The
// JSON field names are the wire shape the extraction model is asked to emit.
type StructuredData struct {
	Symptoms      []string       `json:"symptoms"`
	Vitals        Vitals         `json:"vitals"`
	Diagnoses     []string       `json:"diagnoses"`
	Prescriptions []Prescription `json:"prescriptions"`
	TestsOrdered  []string       `json:"testsOrdered"`
	Advice        []string       `json:"advice"`
}

// Vitals holds named measurements as free-text values exactly as written on
// the case paper ("101F", "120/80"). No unit conversion happens anywhere in
// the pipeline.
type Vitals struct {
	Temperature   string `json:"temperature"`
	BloodPressure string `json:"bloodPressure"`
	Pulse         string `json:"pulse"`
	Weight        string `json:"weight"`
	Height        string `json:"height"`
}

// Prescription is one prescribed medicine line.
type Prescription struct {
	Medicine     string `json:"medicine"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	Duration     string `json:"duration"`
	Instructions string `json:"instructions"`
}

// EnsureInit replaces nil slices with empty ones. Model output and JSON
// decoding can both leave slices nil; results handed to callers never are.
func (d *StructuredData) EnsureInit() {
	if d.Symptoms == nil {
		d.Symptoms = []string{}
	}
	if d.Diagnoses == nil {
		d.Diagnoses = []string{}
	}
	if d.Prescriptions == nil {
		d.Prescriptions = []Prescription{}
	}
	if d.TestsOrdered == nil {
		d.TestsOrdered = []string{}
	}
	if d.Advice == nil {
		d.Advice = []string{}
	}
}

// NewDegradedData builds the structured payload for a degraded terminal
// result: empty containers plus a single advisory entry in advice.
func NewDegradedData(advisory string) StructuredData {
	d := StructuredData{Advice: []string{advisory}}
	d.EnsureInit()
	return d
}

// ValidationReport describes the corrections the refiner applied.
type ValidationReport struct {
	Notes []ValidationNote `json:"notes"`
}

// ValidationNote is one field-level correction.
type ValidationNote struct {
	Field     string `json:"field"`
	Original  string `json:"original"`
	Corrected string `json:"corrected"`
	Reason    string `json:"reason"`
}
