package libraries

import (
	"github.com/labstack/echo/v4"
	"github.com/shishobooks/shelfwatch/pkg/jobs"
	"github.com/uptrace/bun"
)

func RegisterRoutes(e *echo.Echo, db *bun.DB) {
	h := &handler{
		libraryService: NewService(db),
		jobService:     jobs.NewService(db),
	}

	e.POST("/libraries", h.create)
	e.GET("/libraries/:id", h.retrieve)
	e.POST("/libraries/:id/rescan", h.rescan)
	e.GET("/libraries", h.list)
}
