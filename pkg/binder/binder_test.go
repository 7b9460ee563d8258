package binder

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type libraryParams struct {
	Name  string   `json:"name" mod:"trim" validate:"required,max=9"`
	Paths []string `json:"paths" validate:"required,min=1,dive,abspath"`
}

type listParams struct {
	Limit  int `query:"limit" default:"25" validate:"min=1,max=50"`
	Offset int `query:"offset"`
}

func TestBind(t *testing.T) {
	t.Parallel()
	b, err := New()
	require.NoError(t, err)

	t.Run("rejects non-json bodies", func(t *testing.T) {
		c := newContext(echo.POST, "/", `<name/>`, echo.MIMEApplicationXML)
		err := b.Bind(&libraryParams{}, c)
		assert.Contains(t, err.Error(), "Unsupported Media Type")
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		c := newContext(echo.POST, "/", `{"name":"books","paths":["/lib"],"foo":1}`, echo.MIMEApplicationJSON)
		err := b.Bind(&libraryParams{}, c)
		assert.Contains(t, err.Error(), `Unknown Parameter "foo"`)
	})

	t.Run("reports type errors", func(t *testing.T) {
		c := newContext(echo.POST, "/", `{"name":123}`, echo.MIMEApplicationJSON)
		err := b.Bind(&libraryParams{}, c)
		assert.Contains(t, err.Error(), `"name" should be of type string`)
	})

	t.Run("trims and validates", func(t *testing.T) {
		c := newContext(echo.POST, "/", `{"name":" books ","paths":["/lib"]}`, echo.MIMEApplicationJSON)
		p := libraryParams{}
		require.NoError(t, b.Bind(&p, c))
		assert.Equal(t, "books", p.Name)
	})

	t.Run("rejects relative library paths", func(t *testing.T) {
		c := newContext(echo.POST, "/", `{"name":"books","paths":["lib/books"]}`, echo.MIMEApplicationJSON)
		err := b.Bind(&libraryParams{}, c)
		assert.Contains(t, err.Error(), "must be an absolute, clean path")
	})

	t.Run("rejects empty post bodies", func(t *testing.T) {
		c := newContext(echo.POST, "/", "", echo.MIMEApplicationJSON)
		err := b.Bind(&libraryParams{}, c)
		assert.Contains(t, err.Error(), "Request body can't be empty.")
	})

	t.Run("decodes query params with defaults", func(t *testing.T) {
		c := newContext(echo.GET, "/?offset=5", "", "")
		p := listParams{}
		require.NoError(t, b.Bind(&p, c))
		assert.Equal(t, 25, p.Limit)
		assert.Equal(t, 5, p.Offset)
	})

	t.Run("reports query conversion errors", func(t *testing.T) {
		c := newContext(echo.GET, "/?limit=lots", "", "")
		err := b.Bind(&listParams{}, c)
		assert.Contains(t, err.Error(), `"limit" should be of type int`)
	})
}

func newContext(method, target, payload, mime string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(payload))
	if mime != "" {
		req.Header.Set(echo.HeaderContentType, mime)
	}
	rr := httptest.NewRecorder()
	return e.NewContext(req, rr)
}
