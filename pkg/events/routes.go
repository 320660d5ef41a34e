package events

import (
	"github.com/labstack/echo/v4"
	"github.com/robinjoseph08/golib/logger"
	"github.com/syncbridge/syncbridge/pkg/reconcile"
	"github.com/syncbridge/syncbridge/pkg/synchronizations"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers the webhook route on a pre-configured
// group.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB, reconcileService *reconcile.Service) {
	h := &handler{
		synchronizationsService: synchronizations.NewService(db),
		reconcileService:        reconcileService,
		log:                     logger.New(),
	}

	g.POST("", h.receive)
}
