package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/chatroom/internal/domain"
	"github.com/nfrund/chatroom/internal/middleware"
	"github.com/nfrund/chatroom/internal/storage"
	"github.com/nfrund/chatroom/internal/view"
)

// UploadURLPrefix is the route uploaded files are served from.
const UploadURLPrefix = "/uploads/"

// sniffLen is how much of an upload is read to detect its type.
const sniffLen = 3072

// FileHandler handles HTTP requests related to files.
type FileHandler struct {
	fileStore        storage.Store
	maxFileSize      int64
	allowedMimeTypes []string
	now              func() time.Time
}

// NewFileHandler creates a new FileHandler.
func NewFileHandler(fileStore storage.Store, maxFileSize int64, allowedMimeTypes []string) *FileHandler {
	allowed := make([]string, 0, len(allowedMimeTypes))
	for _, mimeType := range allowedMimeTypes {
		if mimeType = strings.TrimSpace(mimeType); mimeType != "" {
			allowed = append(allowed, mimeType)
		}
	}

	return &FileHandler{
		fileStore:        fileStore,
		maxFileSize:      maxFileSize,
		allowedMimeTypes: allowed,
		now:              time.Now,
	}
}

func (h *FileHandler) allowed(detected *mimetype.MIME) bool {
	if len(h.allowedMimeTypes) == 0 {
		return true
	}
	for _, m := range h.allowedMimeTypes {
		if detected.Is(m) {
			return true
		}
	}
	return false
}

// UploadFile stores a file from a multipart form and returns where it can be
// fetched. The type is sniffed from the content, not taken from the client.
// htmx requests get an HTML fragment instead of JSON.
func (h *FileHandler) UploadFile(c echo.Context) error {
	ctx := c.Request().Context()
	logger := middleware.FromContext(ctx)

	var req UploadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format.")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, validationMessage(err))
	}

	fileHeader := req.File
	if h.maxFileSize > 0 && fileHeader.Size > h.maxFileSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("File size of %d bytes exceeds the limit of %d bytes", fileHeader.Size, h.maxFileSize))
	}

	src, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to open uploaded file")
	}
	defer src.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to read uploaded file")
	}
	head = head[:n]

	detected := mimetype.Detect(head)
	if !h.allowed(detected) {
		logger.Warn("Rejected upload with disallowed type",
			slog.String("filename", fileHeader.Filename),
			slog.String("mime_type", detected.String()))
		return echo.NewHTTPError(http.StatusUnsupportedMediaType,
			fmt.Sprintf("File type '%s' is not allowed", baseType(detected.String())))
	}

	storedName := uuid.NewString() + detected.Extension()
	var body io.Reader = io.MultiReader(bytes.NewReader(head), src)
	if h.maxFileSize > 0 {
		body = io.LimitReader(body, h.maxFileSize+1)
	}

	written, err := h.fileStore.Save(ctx, storedName, body)
	if err != nil {
		logger.Error("Failed to save file to storage", slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to save file")
	}
	if h.maxFileSize > 0 && written > h.maxFileSize {
		_ = h.fileStore.Delete(ctx, storedName)
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("File exceeds the limit of %d bytes", h.maxFileSize))
	}

	file := &domain.File{
		Filename:    displayName(req.DisplayName(), storedName),
		MIMEType:    baseType(detected.String()),
		Size:        written,
		StoragePath: storedName,
		URL:         UploadURLPrefix + storedName,
		CreatedAt:   h.now().UTC(),
	}
	if err := file.Validate(); err != nil {
		_ = h.fileStore.Delete(ctx, storedName)
		logger.Error("Stored file failed validation", slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to save file")
	}

	logger.Info("File uploaded",
		slog.String("name", file.Filename),
		slog.String("url", file.URL),
		slog.String("mime_type", file.MIMEType),
		slog.Int64("size", file.Size))

	if c.Request().Header.Get("HX-Request") == "true" {
		return c.Render(http.StatusCreated, "", view.Attachment(file.URL, file.Filename, file.MIMEType, file.Size))
	}
	return c.JSON(http.StatusCreated, NewUploadResponse(file))
}

// ServeFile streams a previously uploaded file back.
func (h *FileHandler) ServeFile(c echo.Context) error {
	ctx := c.Request().Context()
	logger := middleware.FromContext(ctx)

	name := c.Param("name")
	if name == "" || name != path.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return echo.NewHTTPError(http.StatusNotFound, "File not found")
	}

	content, err := h.fileStore.Get(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "File not found")
	}
	if err != nil {
		logger.Error("Failed to get file from storage", slog.String("name", name), slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusInternalServerError, "Could not retrieve file")
	}
	defer content.Close()

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	c.Response().Header().Set("X-Content-Type-Options", "nosniff")
	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=86400, immutable")
	return c.Stream(http.StatusOK, contentType, content)
}

// displayName is the client's file name without any directory part.
func displayName(original, fallback string) string {
	name := filepath.Base(strings.ReplaceAll(original, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return fallback
	}
	if len(name) > 255 {
		name = name[:255]
	}
	return name
}

func baseType(m string) string {
	if i := strings.IndexByte(m, ';'); i >= 0 {
		return strings.TrimSpace(m[:i])
	}
	return m
}
