package casepaper

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/opd-hims/casepaper/internal/platform/auth"
	"github.com/opd-hims/casepaper/internal/platform/blobstore"
	"github.com/opd-hims/casepaper/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/case-papers", auth.RequireRole("admin", "physician", "nurse"))
	g.POST("", h.ProcessDocument)
	g.GET("", h.ListResults)
	g.GET("/uploads", h.ListUploads)
	g.GET("/:id", h.GetResult)
	g.GET("/:id/file", h.GetFile)
}

// ProcessDocument accepts a multipart upload (file, optional patient_id and
// visit_id) and runs the pipeline synchronously.
func (h *Handler) ProcessDocument(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}

	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read file")
	}
	defer src.Close()
	content, err := io.ReadAll(src)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read file")
	}

	in := ProcessInput{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Content:     content,
		SubmittedBy: auth.UserIDFromContext(c.Request().Context()),
	}
	if cid, ok := c.Get("clinic_id").(string); ok {
		in.ClinicID = cid
	}
	if v := c.FormValue("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		in.PatientID = &id
	}
	if v := c.FormValue("visit_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid visit_id")
		}
		in.VisitID = &id
	}

	res, err := h.svc.ProcessDocument(c.Request().Context(), in)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) ||
			errors.Is(err, blobstore.ErrFileTooLarge) ||
			errors.Is(err, blobstore.ErrInvalidContentType) ||
			errors.Is(err, blobstore.ErrMissingFileName) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "document processing failed")
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) ListResults(c echo.Context) error {
	p := pagination.FromContext(c)
	results, total, err := h.svc.GetHistory(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list results")
	}
	if results == nil {
		results = []*ExtractionResult{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(results, total, p.Limit, p.Offset))
}

func (h *Handler) ListUploads(c echo.Context) error {
	p := pagination.FromContext(c)
	records, total, err := h.svc.ListUploadRecords(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list uploads")
	}
	if records == nil {
		records = []*UploadRecord{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(records, total, p.Limit, p.Offset))
}

func (h *Handler) GetResult(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	res, err := h.svc.GetResult(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "result not found")
	}
	return c.JSON(http.StatusOK, res)
}

// GetFile serves the original scan for an upload record id.
func (h *Handler) GetFile(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	data, meta, err := h.svc.FetchFile(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "file not found")
	}
	return c.Blob(http.StatusOK, meta.ContentType, data)
}
