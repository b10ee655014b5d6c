package handlers

import (
	"net/http"

	"github.com/RyanVerWey/Tech-Talk/services"
	"github.com/RyanVerWey/Tech-Talk/utils"
	"go.uber.org/zap"
)

// ErrorWriter maps domain errors to HTTP responses. With ExposeDetail set
// (development) the underlying error text of 500s is included as "error".
type ErrorWriter struct {
	Logger       *zap.Logger
	ExposeDetail bool
}

// NewErrorWriter creates an ErrorWriter
func NewErrorWriter(logger *zap.Logger, exposeDetail bool) *ErrorWriter {
	return &ErrorWriter{Logger: logger, ExposeDetail: exposeDetail}
}

// HandleServiceError maps domain errors to HTTP responses
func (e *ErrorWriter) HandleServiceError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	code := services.GetErrorCode(err)
	message := services.GetErrorMessage(err)

	var writeErr error
	switch {
	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, code, message)

	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, code, message, utils.GetValidationFields(err))

	case services.IsUnauthorizedError(err):
		writeErr = utils.WriteUnauthorized(w, code, message)

	case services.IsForbiddenError(err):
		writeErr = utils.WriteForbidden(w, code, message, nil)

	case services.IsRateLimitError(err):
		retryAfter, _ := services.GetErrorDetails(err)["retryAfter"].(int)
		writeErr = utils.WriteTooManyRequests(w, code, message, retryAfter)

	case services.IsConflictError(err):
		writeErr = utils.WriteError(w, http.StatusConflict, code, message)

	case services.IsTokenServiceError(err), services.IsInternalError(err):
		e.Logger.Error("internal server error",
			zap.String("error_type", string(services.GetErrorType(err))),
			zap.Error(err))
		writeErr = e.writeInternal(w, code, message, err)

	default:
		e.Logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = e.writeInternal(w, services.CodeInternal, "", err)
	}

	if writeErr != nil {
		e.Logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleBadRequest writes a 400 for a request that could not be parsed
func (e *ErrorWriter) HandleBadRequest(w http.ResponseWriter, message string) {
	if err := utils.WriteBadRequest(w, services.CodeValidationFailed, message, nil); err != nil {
		e.Logger.Error("failed to write bad request response", zap.Error(err))
	}
}

func (e *ErrorWriter) writeInternal(w http.ResponseWriter, code, message string, err error) error {
	if !e.ExposeDetail {
		return utils.WriteInternalServerError(w, code, "Internal server error", "")
	}
	return utils.WriteInternalServerError(w, code, message, err.Error())
}
