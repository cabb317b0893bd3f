package records

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medrec/medrec/internal/extraction"
	"github.com/medrec/medrec/internal/platform/auth"
	"github.com/medrec/medrec/internal/platform/blobstore"
	"github.com/medrec/medrec/pkg/pagination"
)

const (
	documentsPath = "/api/v1/documents"
	uploadField   = "files"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireScope("documents", "read"))
	read.GET("/documents", h.ListDocuments)
	read.GET("/documents/:id", h.GetDocument)
	read.GET("/documents/:id/source", h.GetSource)

	write := api.Group("", auth.RequireScope("documents", "write"))
	write.POST("/extract", h.Extract)
	write.POST("/documents", h.UploadDocuments)
	write.DELETE("/documents/:id", h.DeleteDocument, auth.RequireRole("records_manager"))
}

type extractRequest struct {
	Text     string `json:"text"`
	Filename string `json:"filename"`
}

// Extract runs the local engine on posted text. ?debug=true returns the
// full analysis instead of the bare result.
func (h *Handler) Extract(c echo.Context) error {
	var req extractRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}
	a, err := h.svc.ExtractLocal(extraction.RawDocument{Text: req.Text, Filename: req.Filename})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if c.QueryParam("debug") == "true" {
		return c.JSON(http.StatusOK, a)
	}
	return c.JSON(http.StatusOK, a.Result)
}

// UploadDocuments ingests every multipart file under "files". It answers
// 201 when at least one file was stored and 422 when none was.
func (h *Handler) UploadDocuments(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart form required")
	}
	files := form.File[uploadField]
	if len(files) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("at least one %q file is required", uploadField))
	}

	ctx := c.Request().Context()
	user := auth.UserIDFromContext(ctx)
	uploads := make([]Upload, 0, len(files))
	for _, fh := range files {
		if fh.Size > blobstore.MaxFileSize {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("%s: %v", fh.Filename, blobstore.ErrFileTooLarge))
		}
		f, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s: %v", fh.Filename, err))
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s: %v", fh.Filename, err))
		}
		uploads = append(uploads, Upload{FileName: fh.Filename, Data: data, CreatedBy: user})
	}

	items := h.svc.IngestBatch(ctx, uploads)
	status := http.StatusUnprocessableEntity
	for _, it := range items {
		if it.Document != nil {
			status = http.StatusCreated
			break
		}
	}
	return c.JSON(status, map[string]interface{}{"documents": items})
}

func (h *Handler) ListDocuments(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg, documentsPath))
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func lookupError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	case errors.Is(err, blobstore.ErrBlobNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "source file not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) GetDocument(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	doc, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return lookupError(err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) GetSource(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rc, meta, err := h.svc.Source(c.Request().Context(), id)
	if err != nil {
		return lookupError(err)
	}
	defer rc.Close()

	contentType := meta.ContentType
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", meta.FileName))
	return c.Stream(http.StatusOK, contentType, rc)
}

func (h *Handler) DeleteDocument(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return lookupError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
