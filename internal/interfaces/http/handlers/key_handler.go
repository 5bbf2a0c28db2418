package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/didagent/internal/application"
	"github.com/turtacn/didagent/internal/domain/models"
	"github.com/turtacn/didagent/internal/domain/service"
	"github.com/turtacn/didagent/pkg/errors"
	"github.com/turtacn/didagent/pkg/logger"
)

// KeyHandler 密钥管理 HTTP 处理器
type KeyHandler struct {
	keys   *application.KeyManager
	tenant string
	log    logger.Logger
}

// NewKeyHandler creates a key handler bound to the agent's tenant.
func NewKeyHandler(keys *application.KeyManager, tenant string, log logger.Logger) *KeyHandler {
	return &KeyHandler{
		keys:   keys,
		tenant: tenant,
		log:    log.WithComponent("handlers.keys"),
	}
}

// tenantOf allows callers to scope a request to another tenant.
func (h *KeyHandler) tenantOf(c *gin.Context) string {
	if t := c.GetHeader("X-Tenant-ID"); t != "" {
		return t
	}
	return h.tenant
}

// generateKeyRequest is the create-key request body.
type generateKeyRequest struct {
	Kms         string              `json:"kms"`
	Algorithm   models.KeyAlgorithm `json:"algorithm" binding:"required"`
	Usages      []models.KeyUsage   `json:"usages"`
	Alias       string              `json:"alias,omitempty"`
	Extractable bool                `json:"extractable,omitempty"`
}

// GenerateKey 生成密钥
// POST /api/v1/keys
func (h *KeyHandler) GenerateKey(c *gin.Context) {
	var req generateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Wrap(err, errors.CodeInvalidArgument, "invalid generate key request"))
		return
	}

	entry, err := h.keys.GenerateKey(c.Request.Context(), h.tenantOf(c), req.Kms, service.GenerateKeyRequest{
		Algorithm:   req.Algorithm,
		Usages:      req.Usages,
		Alias:       req.Alias,
		Extractable: req.Extractable,
	})
	if err != nil {
		h.handleError(c, err, "generate_key")
		return
	}

	h.log.Info(c.Request.Context(), "Key generated",
		logger.String("key_id", entry.ID()),
		logger.String("algorithm", req.Algorithm.Name))
	c.JSON(http.StatusCreated, entry)
}

// importKeyRequest wraps an entry with the target backend.
type importKeyRequest struct {
	Kms   string           `json:"kms"`
	Entry *models.KeyEntry `json:"entry" binding:"required"`
}

// ImportKey 导入密钥
// POST /api/v1/keys/import
func (h *KeyHandler) ImportKey(c *gin.Context) {
	var req importKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Wrap(err, errors.CodeInvalidArgument, "invalid import key request"))
		return
	}

	entry, err := h.keys.ImportKey(c.Request.Context(), h.tenantOf(c), req.Kms, req.Entry)
	if err != nil {
		h.handleError(c, err, "import_key")
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// ListKeys 列出密钥
// GET /api/v1/keys
func (h *KeyHandler) ListKeys(c *gin.Context) {
	entries, err := h.keys.ListKeys(c.Request.Context(), h.tenantOf(c))
	if err != nil {
		h.handleError(c, err, "list_keys")
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": entries})
}

// GetKey 查询密钥
// GET /api/v1/keys/:key_id
func (h *KeyHandler) GetKey(c *gin.Context) {
	entry, err := h.keys.GetKey(c.Request.Context(), h.tenantOf(c), refOf(c))
	if err != nil {
		h.handleError(c, err, "get_key")
		return
	}
	c.JSON(http.StatusOK, entry)
}

// UpdateKey 更新密钥元数据
// PATCH /api/v1/keys/:key_id
func (h *KeyHandler) UpdateKey(c *gin.Context) {
	var update service.KeyUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		respondError(c, errors.Wrap(err, errors.CodeInvalidArgument, "invalid key update"))
		return
	}

	changed, err := h.keys.UpdateKey(c.Request.Context(), h.tenantOf(c), refOf(c), update)
	if err != nil {
		h.handleError(c, err, "update_key")
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed})
}

// signRequest carries a base64 payload to sign.
type signRequest struct {
	Data []byte `json:"data" binding:"required"`
}

// Sign 签名
// POST /api/v1/keys/:key_id/sign
func (h *KeyHandler) Sign(c *gin.Context) {
	var req signRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Wrap(err, errors.CodeInvalidArgument, "invalid sign request"))
		return
	}

	signature, err := h.keys.Sign(c.Request.Context(), h.tenantOf(c), refOf(c), req.Data)
	if err != nil {
		h.handleError(c, err, "sign")
		return
	}
	c.JSON(http.StatusOK, gin.H{"signature": signature})
}

// verifyRequest carries a payload and signature, both base64.
type verifyRequest struct {
	Data      []byte `json:"data" binding:"required"`
	Signature []byte `json:"signature" binding:"required"`
}

// Verify 验签
// POST /api/v1/keys/:key_id/verify
func (h *KeyHandler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Wrap(err, errors.CodeInvalidArgument, "invalid verify request"))
		return
	}

	valid, err := h.keys.Verify(c.Request.Context(), h.tenantOf(c), refOf(c), req.Data, req.Signature)
	if err != nil {
		h.handleError(c, err, "verify")
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": valid})
}

// Encrypt 加密
// POST /api/v1/keys/:key_id/encrypt
func (h *KeyHandler) Encrypt(c *gin.Context) {
	var req signRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Wrap(err, errors.CodeInvalidArgument, "invalid encrypt request"))
		return
	}

	ciphertext, err := h.keys.Encrypt(c.Request.Context(), h.tenantOf(c), refOf(c), req.Data)
	if err != nil {
		h.handleError(c, err, "encrypt")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ciphertext": ciphertext})
}

// Decrypt 解密
// POST /api/v1/keys/:key_id/decrypt
func (h *KeyHandler) Decrypt(c *gin.Context) {
	var req signRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Wrap(err, errors.CodeInvalidArgument, "invalid decrypt request"))
		return
	}

	plaintext, err := h.keys.Decrypt(c.Request.Context(), h.tenantOf(c), refOf(c), req.Data)
	if err != nil {
		h.handleError(c, err, "decrypt")
		return
	}
	c.JSON(http.StatusOK, gin.H{"plaintext": plaintext})
}

// refOf builds a key reference from the path. The literal segment "-" plus
// an alias query parameter addresses the key by alias instead of id.
func refOf(c *gin.Context) service.KeyRef {
	if alias := c.Query("alias"); alias != "" && c.Param("key_id") == "-" {
		return service.KeyRef{Alias: alias}
	}
	return service.KeyRef{ID: c.Param("key_id")}
}

func (h *KeyHandler) handleError(c *gin.Context, err error, operation string) {
	h.log.Warn(c.Request.Context(), "Key operation failed",
		logger.String("operation", operation),
		logger.String("error_code", string(errors.CodeOf(err))),
		logger.Error(err))
	respondError(c, err)
}
