package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sqltown/sqltown-server/middleware"
	"github.com/sqltown/sqltown-server/utils"
	"go.uber.org/zap"
)

// maxDirectUploadBytes bounds the multipart body accepted by the direct
// upload endpoint
const maxDirectUploadBytes = 10 << 20

// GenerateUploadURLRequest represents a request for a presigned upload URL
type GenerateUploadURLRequest struct {
	FileName string `json:"fileName" validate:"required,max=255"`
	FileType string `json:"fileType" validate:"required,max=255"`
}

// UploadURLResponse carries the presigned PUT URL and the URL the object
// will be reachable at once the client uploads it
type UploadURLResponse struct {
	UploadURL string `json:"uploadUrl"`
	FileURL   string `json:"fileUrl"`
}

// DirectUploadResponse carries the stored object's location
type DirectUploadResponse struct {
	FileURL string `json:"fileUrl"`
	Key     string `json:"key"`
}

// ObjectStorage defines the storage operations the upload handlers need
type ObjectStorage interface {
	// PresignUpload generates a presigned PUT URL for a client-side upload
	PresignUpload(fileName, fileType string) (uploadURL, fileURL string, err error)

	// Upload writes the body to storage server-side
	Upload(ctx context.Context, fileName, contentType string, body io.Reader) (fileURL, key string, err error)
}

// UploadHandler handles file upload HTTP requests
type UploadHandler struct {
	storage ObjectStorage
	logger  *zap.Logger
}

// NewUploadHandler creates a new UploadHandler
func NewUploadHandler(storage ObjectStorage, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{
		storage: storage,
		logger:  logger,
	}
}

// HandleGenerateUploadURL handles POST /api/upload-url
// Returns a presigned PUT URL the client uploads to directly, so the file
// body never passes through this server.
func (h *UploadHandler) HandleGenerateUploadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := chimiddleware.GetReqID(ctx)

	claims, ok := middleware.GetClaims(ctx)
	if !ok {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	var req GenerateUploadURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(req); err != nil {
		_ = utils.WriteBadRequest(w, "Validation failed", utils.GetValidationFields(err))
		return
	}

	if !safeFileName(req.FileName) {
		_ = utils.WriteBadRequest(w, "Invalid file name", nil)
		return
	}

	uploadURL, fileURL, err := h.storage.PresignUpload(req.FileName, req.FileType)
	if err != nil {
		h.logger.Error("failed to presign upload",
			zap.String("request_id", requestID),
			zap.String("sub", claims.Sub()),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to generate upload URL")
		return
	}

	h.logger.Info("upload URL generated",
		zap.String("request_id", requestID),
		zap.String("sub", claims.Sub()),
		zap.String("file_name", req.FileName))

	_ = utils.WriteOK(w, UploadURLResponse{
		UploadURL: uploadURL,
		FileURL:   fileURL,
	})
}

// HandleDirectUpload handles POST /api/upload
// Accepts a multipart form with a "file" part and stores it server-side,
// for clients that cannot PUT to a presigned URL.
func (h *UploadHandler) HandleDirectUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := chimiddleware.GetReqID(ctx)

	claims, ok := middleware.GetClaims(ctx)
	if !ok {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxDirectUploadBytes)
	if err := r.ParseMultipartForm(maxDirectUploadBytes); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid multipart form", nil)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		_ = utils.WriteBadRequest(w, "Missing file field", nil)
		return
	}
	defer file.Close()

	fileName := filepath.Base(header.Filename)
	if fileName == "" || !safeFileName(fileName) {
		_ = utils.WriteBadRequest(w, "Invalid file name", nil)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	fileURL, key, err := h.storage.Upload(ctx, fileName, contentType, file)
	if err != nil {
		h.logger.Error("failed to upload file",
			zap.String("request_id", requestID),
			zap.String("sub", claims.Sub()),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to upload file")
		return
	}

	h.logger.Info("file uploaded",
		zap.String("request_id", requestID),
		zap.String("sub", claims.Sub()),
		zap.String("key", key))

	_ = utils.WriteCreated(w, DirectUploadResponse{
		FileURL: fileURL,
		Key:     key,
	})
}

// safeFileName rejects names that would escape the upload prefix when
// embedded in an object key
func safeFileName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\")
}
