package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	platformerrors "odiadev-tts-server-go/internal/platform/errors"
)

// APIResponse is the JSON envelope for every non-audio response.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
	Code    int         `json:"code"`
}

func RespondSuccess(c *gin.Context, httpStatus int, data interface{}, message string) {
	if message == "" {
		message = "ok"
	}

	resp := APIResponse{
		Success: true,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	}

	c.JSON(httpStatus, resp)
}

func RespondError(c *gin.Context, httpStatus int, message string, data interface{}) {
	resp := APIResponse{
		Success: false,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	}

	c.JSON(httpStatus, resp)
}

var kindStatus = map[platformerrors.Kind]int{
	platformerrors.KindInvalidRequest:     http.StatusBadRequest,
	platformerrors.KindVoiceNotFound:      http.StatusBadRequest,
	platformerrors.KindUnauthorized:       http.StatusUnauthorized,
	platformerrors.KindConflict:           http.StatusConflict,
	platformerrors.KindQuotaExceeded:      http.StatusPaymentRequired,
	platformerrors.KindRateLimited:        http.StatusTooManyRequests,
	platformerrors.KindEngineTimeout:      http.StatusServiceUnavailable,
	platformerrors.KindEngineOverloaded:   http.StatusServiceUnavailable,
	platformerrors.KindServiceUnavailable: http.StatusServiceUnavailable,
}

// StatusFor maps an error kind to its HTTP status. Unlisted kinds are 500.
func StatusFor(kind platformerrors.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// RespondKindError writes the error envelope for err. data's entries are
// merged next to the error kind. Internal errors never expose their cause.
func RespondKindError(c *gin.Context, err error, data gin.H) {
	kind := platformerrors.KindOf(err)
	status := StatusFor(kind)

	payload := gin.H{"error": string(kind)}
	for k, v := range data {
		payload[k] = v
	}

	message := http.StatusText(status)
	var typed *platformerrors.Error
	if status != http.StatusInternalServerError && errors.As(err, &typed) {
		message = typed.Message
	}
	if status == http.StatusInternalServerError {
		payload["error"] = string(platformerrors.KindInternal)
	}
	if status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable {
		c.Header("Retry-After", "1")
	}

	_ = c.Error(err)
	RespondError(c, status, message, payload)
}
