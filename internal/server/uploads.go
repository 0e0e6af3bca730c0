package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/actuarial-tools/asopd/internal/extract"
	"github.com/actuarial-tools/asopd/internal/ingest"
	"github.com/actuarial-tools/asopd/internal/store"
	"github.com/actuarial-tools/asopd/provider"
)

// Reader is the subset of the store used by the retrieval endpoints.
type Reader interface {
	ListUploads(ctx context.Context) ([]store.UploadSummary, error)
	GetUpload(ctx context.Context, id int64) (store.UploadRecord, error)
}

// IngestService runs the upload pipeline for one file.
type IngestService interface {
	Ingest(ctx context.Context, filename string, data []byte) (store.UploadRecord, error)
}

type UploadsHandler struct {
	Store        Reader
	Ingest       IngestService
	MaxFileBytes int64
}

func (h *UploadsHandler) Register(e *echo.Echo) {
	e.POST("/upload/", h.upload)
	e.GET("/documents/", h.list)
	e.GET("/documents/:id", h.get)
}

func (h *UploadsHandler) upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return httpError(http.StatusBadRequest, "bad_request", "multipart field 'file' required")
	}
	if !strings.HasSuffix(strings.ToLower(fh.Filename), ".pdf") {
		return httpError(http.StatusBadRequest, "bad_request", "only PDF files are allowed")
	}
	if h.MaxFileBytes > 0 && fh.Size > h.MaxFileBytes {
		return httpError(http.StatusRequestEntityTooLarge, "file_too_large", "uploaded file exceeds size limit")
	}

	f, err := fh.Open()
	if err != nil {
		return httpError(http.StatusBadRequest, "bad_request", "could not read uploaded file")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return httpError(http.StatusBadRequest, "bad_request", "could not read uploaded file")
	}

	rec, err := h.Ingest.Ingest(c.Request().Context(), fh.Filename, data)
	if err != nil {
		return mapPipelineError(err)
	}
	return c.JSON(http.StatusCreated, store.UploadSummary{
		ID:        rec.ID,
		Filename:  rec.Filename,
		CreatedAt: rec.CreatedAt,
	})
}

func (h *UploadsHandler) list(c echo.Context) error {
	items, err := h.Store.ListUploads(c.Request().Context())
	if err != nil {
		return httpError(http.StatusInternalServerError, "store_failed", err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"documents": items})
}

func (h *UploadsHandler) get(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return httpError(http.StatusBadRequest, "bad_request", "document id must be an integer")
	}
	rec, err := h.Store.GetUpload(c.Request().Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return httpError(http.StatusNotFound, "not_found", "document not found")
	}
	if err != nil {
		return httpError(http.StatusInternalServerError, "store_failed", err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}

// mapPipelineError maps the pipeline's error taxonomy to user-visible status
// codes: extraction failures are client-caused, analysis failures are
// dependency-caused, store failures are server-caused.
func mapPipelineError(err error) *echo.HTTPError {
	var xe *extract.ExtractionError
	if errors.As(err, &xe) {
		return httpError(http.StatusBadRequest, "extraction_failed", err.Error())
	}
	if errors.Is(err, ingest.ErrInputTooLarge) {
		return httpError(http.StatusRequestEntityTooLarge, "input_too_large", err.Error())
	}
	var ae *provider.AnalysisError
	if errors.As(err, &ae) {
		if ae.Retriable {
			return httpError(http.StatusGatewayTimeout, "analysis_unavailable", err.Error())
		}
		return httpError(http.StatusBadGateway, "analysis_failed", err.Error())
	}
	var se *store.StoreError
	if errors.As(err, &se) {
		return httpError(http.StatusInternalServerError, "store_failed", err.Error())
	}
	return httpError(http.StatusInternalServerError, "internal", err.Error())
}

func httpError(code int, kind, message string) *echo.HTTPError {
	return echo.NewHTTPError(code, map[string]interface{}{
		"error_kind": kind,
		"message":    message,
	})
}
