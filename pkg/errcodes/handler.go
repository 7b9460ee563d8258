package errcodes

import (
	"fmt"
	"net/http"

	"github.com/iancoleman/strcase"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/errutils"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// Handle is an echo.HTTPErrorHandler. Known errors keep their status code; anything else is
// logged and reported as a 500.
func (h *Handler) Handle(err error, c echo.Context) {
	log := logger.FromEchoContext(c)
	if errutils.IsIgnorableErr(err) {
		log.Err(err).Warn("broken pipe")
		return
	}

	httpCode, code, msg := classify(err)
	if httpCode == http.StatusInternalServerError {
		log.Err(err).Error("server error")
	}

	payload := map[string]interface{}{
		"error": map[string]interface{}{
			"code":        code,
			"message":     msg,
			"status_code": httpCode,
		},
	}
	if err := c.JSON(httpCode, payload); err != nil {
		log.Err(errors.WithStack(err)).Error("error handler json error")
	}
}

func classify(err error) (int, string, string) {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPCode, e.Code, e.Message
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := fmt.Sprint(he.Message)
		return he.Code, strcase.ToSnake(msg), msg
	}

	return http.StatusInternalServerError, "internal_server_error", "Internal Server Error"
}
