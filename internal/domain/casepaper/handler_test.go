package casepaper

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/opd-hims/casepaper/internal/platform/auth"
)

func multipartBody(t *testing.T, fileName, contentType string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	hdr := make(map[string][]string)
	hdr["Content-Disposition"] = []string{`form-data; name="file"; filename="` + fileName + `"`}
	hdr["Content-Type"] = []string{contentType}
	part, err := w.CreatePart(hdr)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	part.Write(content)

	for k, v := range fields {
		w.WriteField(k, v)
	}
	w.Close()
	return buf, w.FormDataContentType()
}

func newHandlerContext(t *testing.T, method, target string, body *bytes.Buffer, contentType string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, body)
		req.Header.Set(echo.HeaderContentType, contentType)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}

	// Simulate the auth middleware having run.
	ctx := context.WithValue(req.Context(), auth.UserIDKey, "dr-mehta")
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("clinic_id", "default")
	return c, rec
}

func TestHandlerProcessDocument(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)

	patientID := uuid.New()
	body, ct := multipartBody(t, "scan.jpg", "image/jpeg", []byte("fake scan"),
		map[string]string{"patient_id": patientID.String()})
	c, rec := newHandlerContext(t, http.MethodPost, "/api/v1/case-papers", body, ct)

	if err := h.ProcessDocument(c); err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}

	var res ExtractionResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(res.Data.Diagnoses) != 1 || res.Data.Diagnoses[0] != "Viral fever" {
		t.Errorf("Diagnoses = %v", res.Data.Diagnoses)
	}

	stored, err := svc.GetUploadRecord(c.Request().Context(), res.UploadRecordID)
	if err != nil {
		t.Fatalf("GetUploadRecord: %v", err)
	}
	if stored.PatientID == nil || *stored.PatientID != patientID {
		t.Errorf("PatientID = %v, want %s", stored.PatientID, patientID)
	}
	if stored.SubmittedBy != "dr-mehta" {
		t.Errorf("SubmittedBy = %q", stored.SubmittedBy)
	}
}

func TestHandlerProcessDocumentMissingFile(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)

	// A form with fields but no file part.
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	w.WriteField("patient_id", uuid.New().String())
	w.Close()

	c, _ := newHandlerContext(t, http.MethodPost, "/api/v1/case-papers", buf, w.FormDataContentType())
	err := h.ProcessDocument(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandlerProcessDocumentBadPatientID(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)

	body, ct := multipartBody(t, "scan.jpg", "image/jpeg", []byte("scan"),
		map[string]string{"patient_id": "not-a-uuid"})
	c, _ := newHandlerContext(t, http.MethodPost, "/api/v1/case-papers", body, ct)

	err := h.ProcessDocument(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandlerProcessDocumentBadContentType(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)

	body, ct := multipartBody(t, "notes.html", "text/html", []byte("<html>"), nil)
	c, _ := newHandlerContext(t, http.MethodPost, "/api/v1/case-papers", body, ct)

	err := h.ProcessDocument(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandlerListResults(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)

	if _, err := svc.ProcessDocument(context.Background(), testInput()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	c, rec := newHandlerContext(t, http.MethodGet, "/api/v1/case-papers?limit=10", nil, "")
	if err := h.ListResults(c); err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Data  []ExtractionResult `json:"data"`
		Total int                `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || len(resp.Data) != 1 {
		t.Errorf("total = %d, len = %d, want 1/1", resp.Total, len(resp.Data))
	}
}

func TestHandlerGetResult(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)

	seeded, err := svc.ProcessDocument(context.Background(), testInput())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	c, rec := newHandlerContext(t, http.MethodGet, "/", nil, "")
	c.SetParamNames("id")
	c.SetParamValues(seeded.ID.String())

	if err := h.GetResult(c); err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandlerGetResultNotFound(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)

	c, _ := newHandlerContext(t, http.MethodGet, "/", nil, "")
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.GetResult(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestHandlerGetFile(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)

	seeded, err := svc.ProcessDocument(context.Background(), testInput())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	c, rec := newHandlerContext(t, http.MethodGet, "/", nil, "")
	c.SetParamNames("id")
	c.SetParamValues(seeded.UploadRecordID.String())

	if err := h.GetFile(c); err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get(echo.HeaderContentType); got != "image/jpeg" {
		t.Errorf("content type = %q", got)
	}
	if rec.Body.String() != "fake scan" {
		t.Errorf("body = %q", rec.Body.String())
	}
}
