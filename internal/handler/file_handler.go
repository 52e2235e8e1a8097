package handler

import (
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	appErrors "github.com/ndrozd/studentportal-api/pkg/errors"
	"github.com/ndrozd/studentportal-api/pkg/response"
	"github.com/ndrozd/studentportal-api/pkg/storage"
)

type fileOpener interface {
	Open(filename string) (*os.File, error)
}

// FileHandler serves stored files behind signed tokens.
type FileHandler struct {
	signer *storage.SignedURLSigner
	store  fileOpener
}

// NewFileHandler creates a new handler.
func NewFileHandler(signer *storage.SignedURLSigner, store fileOpener) *FileHandler {
	return &FileHandler{signer: signer, store: store}
}

// Download godoc
// @Summary Download a file by signed token
// @Description Streams the stored file when the token signature and expiry check out
// @Tags Files
// @Produce application/octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /files/{token} [get]
func (h *FileHandler) Download(c *gin.Context) {
	_, relPath, _, err := h.signer.Parse(c.Param("token"), false)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token"))
		return
	}

	file, err := h.store.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "file not found"))
		return
	}
	defer file.Close()

	c.Header("Content-Disposition", `attachment; filename="`+filepath.Base(relPath)+`"`)
	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}
