package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/syncbridge/syncbridge/pkg/auth"
	"github.com/syncbridge/syncbridge/pkg/binder"
	"github.com/syncbridge/syncbridge/pkg/config"
	"github.com/syncbridge/syncbridge/pkg/errcodes"
	"github.com/syncbridge/syncbridge/pkg/events"
	"github.com/syncbridge/syncbridge/pkg/jobs"
	"github.com/syncbridge/syncbridge/pkg/mappings"
	"github.com/syncbridge/syncbridge/pkg/reconcile"
	"github.com/syncbridge/syncbridge/pkg/synchronizations"
	"github.com/syncbridge/syncbridge/pkg/synclogs"
	"github.com/uptrace/bun"
)

func New(cfg *config.Config, db *bun.DB, reconcileService *reconcile.Service) (*http.Server, error) {
	e := echo.New()

	b, err := binder.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	e.Binder = b

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(middleware.CORS())

	health.RegisterRoutes(e)

	authService := auth.NewService(cfg.JWTSecret)
	authMiddleware := auth.NewMiddleware(authService)

	registerProtectedRoutes(e, db, cfg, reconcileService, authMiddleware)

	echo.NotFoundHandler = notFoundHandler
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return srv, nil
}

// registerProtectedRoutes registers all API routes behind bearer-token
// authentication.
func registerProtectedRoutes(e *echo.Echo, db *bun.DB, cfg *config.Config, reconcileService *reconcile.Service, authMiddleware *auth.Middleware) {
	// Synchronizations routes
	syncsGroup := e.Group("/synchronizations")
	syncsGroup.Use(authMiddleware.Authenticate)
	synchronizations.RegisterRoutesWithGroup(syncsGroup, db)

	// Mappings routes
	mappingsGroup := e.Group("/mappings")
	mappingsGroup.Use(authMiddleware.Authenticate)
	mappings.RegisterRoutesWithGroup(mappingsGroup, db)

	// Jobs routes
	jobsGroup := e.Group("/jobs")
	jobsGroup.Use(authMiddleware.Authenticate)
	jobs.RegisterRoutesWithGroup(jobsGroup, db)

	// Event webhook
	eventsGroup := e.Group("/events")
	eventsGroup.Use(authMiddleware.Authenticate)
	events.RegisterRoutesWithGroup(eventsGroup, db, reconcileService)

	// Log listing routes hang off the synchronizations and contracts groups
	contractsGroup := e.Group("/contracts")
	contractsGroup.Use(authMiddleware.Authenticate)
	synclogs.RegisterRoutes(syncsGroup, contractsGroup, db, cfg.LogRetention, cfg.SnapshotByteCap)
}

func notFoundHandler(c echo.Context) error {
	c.SetPath("/:path")
	return errcodes.NotFound("Page")
}
