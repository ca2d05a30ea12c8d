package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tipster-dev/jackpot-sim/internal/apperrors"
)

// ErrorResponse is the uniform error envelope: a human message plus
// the taxonomy code clients branch on.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

var codeStatus = map[string]int{
	apperrors.CodeInputValidation:             http.StatusBadRequest,
	apperrors.CodeLeagueRequired:              http.StatusBadRequest,
	apperrors.CodeSchemaMismatch:              http.StatusBadRequest,
	apperrors.CodeResolutionMissing:           http.StatusNotFound,
	apperrors.CodeNotFound:                    http.StatusNotFound,
	apperrors.CodeConflictActivation:          http.StatusConflict,
	apperrors.CodeCancelled:                   http.StatusConflict,
	apperrors.CodeRateLimited:                 http.StatusTooManyRequests,
	apperrors.CodeNoActiveModel:               http.StatusUnprocessableEntity,
	apperrors.CodeInsufficientTeamData:        http.StatusUnprocessableEntity,
	apperrors.CodeInsufficientTrainingSamples: http.StatusUnprocessableEntity,
	apperrors.CodeUpstreamUnavailable:         http.StatusBadGateway,
}

// respondError maps a taxonomy-coded error onto the HTTP surface.
// Unknown codes become opaque 500s.
func respondError(c *gin.Context, logger *logrus.Entry, err error) {
	code := apperrors.CodeOf(err)
	status, ok := codeStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		logger.WithError(err).Error("Request failed")
	} else {
		logger.WithError(err).Warn("Request rejected")
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: "Invalid request format",
		Code:  apperrors.CodeInputValidation,
		Details: map[string]string{
			"validation_error": err.Error(),
		},
	})
}
