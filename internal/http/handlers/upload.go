package handlers

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/inkwell-notes/inkwell-backend/internal/http/response"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/apierr"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/logger"
	"github.com/inkwell-notes/inkwell-backend/internal/services"
)

// MaxUploadBytes caps PDF uploads at 15 MB.
const MaxUploadBytes = 15 << 20

type UploadHandler struct {
	log     *logger.Logger
	indexer services.Indexer
}

func NewUploadHandler(log *logger.Logger, indexer services.Indexer) *UploadHandler {
	return &UploadHandler{
		log:     log.With("handler", "UploadHandler"),
		indexer: indexer,
	}
}

func (h *UploadHandler) UploadPDF(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.RespondAPIError(c, apierr.Validation(errors.New("missing file field")))
		return
	}
	if fileHeader.Size > MaxUploadBytes {
		response.RespondAPIError(c, apierr.Validationf("file exceeds %d byte limit", MaxUploadBytes))
		return
	}
	if !isPDF(fileHeader.Filename, fileHeader.Header.Get("Content-Type")) {
		response.RespondAPIError(c, apierr.Validation(errors.New("only PDF files are accepted")))
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		response.RespondAPIError(c, apierr.Internal(fmt.Errorf("open upload: %w", err)))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxUploadBytes+1))
	if err != nil {
		response.RespondAPIError(c, apierr.Internal(fmt.Errorf("read upload: %w", err)))
		return
	}
	if len(data) > MaxUploadBytes {
		response.RespondAPIError(c, apierr.Validationf("file exceeds %d byte limit", MaxUploadBytes))
		return
	}

	note, chunks, err := h.indexer.UploadPDF(c.Request.Context(), userID, fileHeader.Filename, c.PostForm("title"), data)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"note": note, "chunks": chunks})
}

func isPDF(filename, contentType string) bool {
	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(contentType), "application/pdf")
}
