// Package handlers implements the agent's REST surface and the node
// protocol served to peer agents.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/didagent/pkg/errors"
)

// errorBody is the uniform error response shape.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps error codes to HTTP statuses.
func statusFor(err error) int {
	switch errors.CodeOf(err) {
	case errors.CodeKeyNotFound:
		return http.StatusNotFound
	case errors.CodeAlgorithmNotSupported,
		errors.CodeInvalidArgument,
		errors.CodeInvalidKeyPairTypes,
		errors.CodePrivateKeyMismatch:
		return http.StatusBadRequest
	case errors.CodeUnknownKms:
		return http.StatusNotFound
	case errors.CodeMissingKeyMaterial:
		return http.StatusConflict
	case errors.CodeEndpointUnreachable, errors.CodeResolutionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), errorBody{
		Code:    string(errors.CodeOf(err)),
		Message: err.Error(),
	})
}
