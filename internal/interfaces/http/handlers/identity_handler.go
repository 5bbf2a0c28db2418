package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/didagent/internal/application"
	"github.com/turtacn/didagent/pkg/errors"
	"github.com/turtacn/didagent/pkg/logger"
)

// IdentityHandler 身份管理 HTTP 处理器
type IdentityHandler struct {
	identities *application.IdentityService
	log        logger.Logger
}

// NewIdentityHandler creates an identity handler.
func NewIdentityHandler(identities *application.IdentityService, log logger.Logger) *IdentityHandler {
	return &IdentityHandler{
		identities: identities,
		log:        log.WithComponent("handlers.identities"),
	}
}

// createIdentityRequest names the signing key behind a new identity.
type createIdentityRequest struct {
	Alias string `json:"alias"`
}

// CreateIdentity 创建本地身份
// POST /api/v1/identities
func (h *IdentityHandler) CreateIdentity(c *gin.Context) {
	var req createIdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Wrap(err, errors.CodeInvalidArgument, "invalid create identity request"))
		return
	}

	identity, err := h.identities.CreateIdentity(c.Request.Context(), req.Alias)
	if err != nil {
		h.handleError(c, err, "create_identity")
		return
	}

	h.log.Info(c.Request.Context(), "Identity created", logger.String("did", identity.DID))
	c.JSON(http.StatusCreated, identity)
}

// importIdentityRequest names a remote identity to track.
type importIdentityRequest struct {
	DID string `json:"did" binding:"required"`
}

// ImportIdentity 导入远端身份并纳入同步
// POST /api/v1/identities/import
func (h *IdentityHandler) ImportIdentity(c *gin.Context) {
	var req importIdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Wrap(err, errors.CodeInvalidArgument, "invalid import identity request"))
		return
	}

	if err := h.identities.ImportIdentity(c.Request.Context(), req.DID); err != nil {
		h.handleError(c, err, "import_identity")
		return
	}
	c.JSON(http.StatusOK, gin.H{"did": req.DID})
}

// ListIdentities 列出同步身份
// GET /api/v1/identities
func (h *IdentityHandler) ListIdentities(c *gin.Context) {
	registrations, err := h.identities.ListIdentities(c.Request.Context())
	if err != nil {
		h.handleError(c, err, "list_identities")
		return
	}
	c.JSON(http.StatusOK, gin.H{"identities": registrations})
}

// Resolve 解析 DID 文档
// GET /api/v1/identities/:did
func (h *IdentityHandler) Resolve(c *gin.Context) {
	did := c.Param("did")
	doc, err := h.identities.Resolve(c.Request.Context(), did)
	if err != nil {
		h.handleError(c, err, "resolve")
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *IdentityHandler) handleError(c *gin.Context, err error, operation string) {
	h.log.Warn(c.Request.Context(), "Identity operation failed",
		logger.String("operation", operation),
		logger.String("error_code", string(errors.CodeOf(err))),
		logger.Error(err))
	respondError(c, err)
}
