package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/didagent/internal/domain/models"
	"github.com/turtacn/didagent/internal/domain/service"
	"github.com/turtacn/didagent/internal/infrastructure/datanode"
	"github.com/turtacn/didagent/internal/infrastructure/resolver"
	"github.com/turtacn/didagent/pkg/errors"
	"github.com/turtacn/didagent/pkg/logger"
)

// NodeHandler serves the node protocol to peer agents. The routes mirror
// what the remote-node client calls on other agents.
type NodeHandler struct {
	node        service.DataNode
	requireAuth bool
	log         logger.Logger
}

// NewNodeHandler creates a node handler. With requireAuth set, peers must
// present a bearer token minted by a did:key identity.
func NewNodeHandler(node service.DataNode, requireAuth bool, log logger.Logger) *NodeHandler {
	return &NodeHandler{
		node:        node,
		requireAuth: requireAuth,
		log:         log.WithComponent("handlers.node"),
	}
}

// ProcessMessage 处理对等节点消息
// POST /node/messages
func (h *NodeHandler) ProcessMessage(c *gin.Context) {
	if !h.authorize(c) {
		return
	}
	var msg models.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		respondError(c, errors.Wrap(err, errors.CodeInvalidArgument, "invalid message"))
		return
	}

	reply, err := h.node.ProcessMessage(c.Request.Context(), &msg)
	if err != nil {
		h.handleError(c, err, "process_message")
		return
	}
	// The reply carries its own status; the transport answer is 200.
	c.JSON(http.StatusOK, reply)
}

// EventLog 返回身份事件日志
// GET /node/events/:did
func (h *NodeHandler) EventLog(c *gin.Context) {
	if !h.authorize(c) {
		return
	}
	events, err := h.node.EventLog(c.Request.Context(), c.Param("did"), c.Query("since"))
	if err != nil {
		h.handleError(c, err, "event_log")
		return
	}
	if events == nil {
		events = []models.EventEntry{}
	}
	c.JSON(http.StatusOK, events)
}

// GetMessage 按消息 ID 取回消息
// GET /node/messages/:did/:message_id
func (h *NodeHandler) GetMessage(c *gin.Context) {
	if !h.authorize(c) {
		return
	}
	msg, err := h.node.GetMessage(c.Request.Context(), c.Param("did"), c.Param("message_id"))
	if err != nil {
		h.handleError(c, err, "get_message")
		return
	}
	if msg == nil {
		c.JSON(http.StatusNotFound, errorBody{Code: "message_not_found", Message: "message is no longer held by this node"})
		return
	}
	c.JSON(http.StatusOK, msg)
}

// authorize verifies the peer's bearer token. The issuer claim names a
// did:key identity whose public key must have produced the signature.
func (h *NodeHandler) authorize(c *gin.Context) bool {
	if !h.requireAuth {
		return true
	}
	header := c.GetHeader("Authorization")
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenString == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Code: "unauthorized", Message: "bearer token required"})
		return false
	}

	issuer, err := unverifiedIssuer(tokenString)
	if err != nil {
		h.reject(c, err)
		return false
	}
	publicKey, err := resolver.PublicKeyFromDIDKey(issuer)
	if err != nil {
		h.reject(c, err)
		return false
	}
	if _, err := datanode.VerifyBearerToken(tokenString, publicKey); err != nil {
		h.reject(c, err)
		return false
	}
	return true
}

// unverifiedIssuer extracts the iss claim before signature verification so
// the verification key can be resolved from it.
func unverifiedIssuer(tokenString string) (string, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return "", errors.Wrap(err, errors.CodeInvalidArgument, "malformed bearer token")
	}
	issuer, err := claims.GetIssuer()
	if err != nil || issuer == "" {
		return "", errors.New(errors.CodeInvalidArgument, "bearer token has no issuer")
	}
	return issuer, nil
}

func (h *NodeHandler) reject(c *gin.Context, err error) {
	h.log.Warn(c.Request.Context(), "Peer authentication failed", logger.Error(err))
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Code: "unauthorized", Message: err.Error()})
}

func (h *NodeHandler) handleError(c *gin.Context, err error, operation string) {
	h.log.Warn(c.Request.Context(), "Node operation failed",
		logger.String("operation", operation),
		logger.String("error_code", string(errors.CodeOf(err))),
		logger.Error(err))
	respondError(c, err)
}
