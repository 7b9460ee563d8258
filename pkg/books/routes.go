package books

import (
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

func RegisterRoutes(e *echo.Echo, db *bun.DB) {
	h := &handler{
		bookService: NewService(db),
	}

	e.GET("/books", h.list)
	e.GET("/books/:id", h.retrieve)
}
