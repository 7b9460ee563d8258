package errcodes

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorIs(t *testing.T) {
	err := errors.Wrap(NotFound("File"), "lookup")

	assert.ErrorIs(t, err, NotFound("File"))
	assert.NotErrorIs(t, err, NotFound("Book"))
	assert.NotErrorIs(t, err, Conflict("File not found."))
}

func TestHandle(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		status   int
		contains string
	}{
		{"custom error", errors.WithStack(NotFound("Library")), http.StatusNotFound, `"code":"not_found"`},
		{"echo error", echo.NewHTTPError(http.StatusMethodNotAllowed, "Method Not Allowed"), http.StatusMethodNotAllowed, `"code":"method_not_allowed"`},
		{"generic error", errors.New("boom"), http.StatusInternalServerError, `"message":"Internal Server Error"`},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			NewHandler().Handle(tt.err, c)

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.contains)
		})
	}
}
