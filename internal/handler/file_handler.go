package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/aoabd/course-api/pkg/errors"
	"github.com/aoabd/course-api/pkg/response"
	"github.com/aoabd/course-api/pkg/storage"
)

// FileHandler issues and honours signed download links for private uploads
// such as payment proofs. Public assets like cover photos are served straight
// from the store's base URL and never pass through here.
type FileHandler struct {
	signer *storage.SignedURLSigner
	store  *storage.LocalStore
}

// NewFileHandler constructs FileHandler.
func NewFileHandler(signer *storage.SignedURLSigner, store *storage.LocalStore) *FileHandler {
	return &FileHandler{signer: signer, store: store}
}

// Sign godoc
// @Summary Create a temporary download link for a stored file
// @Tags Files
// @Accept json
// @Produce json
// @Param payload body signBody true "File handle"
// @Success 200 {object} response.Envelope
// @Router /files/sign [post]
func (h *FileHandler) Sign(c *gin.Context) {
	var body signBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Handle == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "a file handle is required"))
		return
	}
	token, expiresAt, err := h.signer.Generate(body.Handle, body.Handle)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to sign download link"))
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expiresAt,
	}, nil)
}

// Download godoc
// @Summary Download a file via a signed token
// @Tags Files
// @Produce application/octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /files/download [get]
func (h *FileHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "a token is required"))
		return
	}
	_, relPath, _, err := h.signer.Parse(token, false)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download link"))
		return
	}
	c.File(h.store.Path(relPath))
}

type signBody struct {
	Handle string `json:"handle"`
}
