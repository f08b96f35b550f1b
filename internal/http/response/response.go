package response

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/inkwell-notes/inkwell-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondAPIError maps a classified error onto the wire format. Quota
// errors carry a Retry-After header; internal failures hide their cause in
// release mode.
func RespondAPIError(c *gin.Context, err error) {
	ae := apierr.From(err)
	if ae == nil {
		ae = apierr.Internal(nil)
	}

	if ae.Kind == apierr.KindQuotaExceeded && ae.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(ae.RetryAfter.Seconds())))
	}

	msg := ae.Error()
	if ae.Status >= http.StatusInternalServerError && gin.Mode() == gin.ReleaseMode {
		msg = "internal error"
	}

	c.JSON(ae.Status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    string(ae.Kind),
		},
	})
}
