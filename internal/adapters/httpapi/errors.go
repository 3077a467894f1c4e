package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"talentcore/pkg/domain"
)

const conflictMessage = "this application changed, please refresh"

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var statusByCode = map[string]int{
	"version_conflict":      http.StatusConflict,
	"invalid_transition":    http.StatusUnprocessableEntity,
	"forbidden":             http.StatusForbidden,
	"not_found":             http.StatusNotFound,
	"already_terminal":      http.StatusConflict,
	"duplicate_application": http.StatusConflict,
	"invalid_submission":    http.StatusUnprocessableEntity,
	"bad_request":           http.StatusBadRequest,
}

// HTTPStatus maps an error code to its response status. Unknown codes are 500.
func HTTPStatus(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	code := domain.ErrorCode(err)
	message := err.Error()
	switch code {
	case "version_conflict":
		message = conflictMessage
	case "internal", "rule_violation":
		s.logger.Error("request failed", zapRequest(c, err)...)
		code, message = "internal", "internal error"
	}
	c.AbortWithStatusJSON(HTTPStatus(code), errorResponse{Error: code, Message: message})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "bad_request", Message: message})
}
