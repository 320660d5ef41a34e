package synchronizations

import (
	"github.com/labstack/echo/v4"
	"github.com/syncbridge/syncbridge/pkg/jobs"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers synchronization routes on a
// pre-configured group.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB) {
	synchronizationsService := NewService(db)
	jobsService := jobs.NewService(db)

	h := &handler{
		synchronizationsService: synchronizationsService,
		jobsService:             jobsService,
	}

	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:id", h.retrieve)
	g.PATCH("/:id", h.update)
	g.DELETE("/:id", h.delete)

	g.POST("/:id/run", h.run)

	g.GET("/:id/rules", h.listRules)
	g.POST("/:id/rules", h.createRule)
	g.PATCH("/:id/rules/:ruleId", h.updateRule)
	g.DELETE("/:id/rules/:ruleId", h.deleteRule)
}
