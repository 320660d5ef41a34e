package synclogs

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/syncbridge/syncbridge/pkg/contracts"
	"github.com/uptrace/bun"
)

// RegisterRoutes registers log listing routes. Run logs hang off the
// synchronizations group, contract logs off the contracts group.
func RegisterRoutes(syncsGroup, contractsGroup *echo.Group, db *bun.DB, retention time.Duration, snapshotCap int) {
	logsService := NewService(db, retention, snapshotCap)
	contractsService := contracts.NewService(db)

	h := &handler{
		logsService:      logsService,
		contractsService: contractsService,
	}

	syncsGroup.GET("/:id/logs", h.listRunLogs)
	contractsGroup.GET("/:id/logs", h.listContractLogs)
}
