// Package events translates inbound source-side change notifications into
// synchronous single-object reconciliations. The webhook is fire-per-object:
// each matching synchronization reconciles independently, and one failing
// doesn't block the rest.
package events

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/syncbridge/syncbridge/pkg/reconcile"
	"github.com/syncbridge/syncbridge/pkg/synchronizations"
)

type handler struct {
	synchronizationsService *synchronizations.Service
	reconcileService        *reconcile.Service
	log                     logger.Logger
}

type eventResult struct {
	SynchronizationID int    `json:"synchronization_id"`
	Result            string `json:"result,omitempty"`
	Error             string `json:"error,omitempty"`
}

func (h *handler) receive(c echo.Context) error {
	ctx := c.Request().Context()

	params := EventPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	syncs, err := h.synchronizationsService.FindBySource(ctx, params.RegisterRef, params.SchemaRef)
	if err != nil {
		return errors.WithStack(err)
	}

	results := make([]eventResult, 0, len(syncs))
	for _, sync := range syncs {
		// Events are explicit change notifications, so the hash
		// short-circuits are bypassed.
		entry, err := h.reconcileService.ReconcileOne(ctx, sync.ID, params.ObjectID, params.Mutation, reconcile.Options{Force: true})
		if err != nil {
			h.log.Err(err).Error("event reconciliation error", logger.Data{
				"synchronization_id": sync.ID,
				"origin_id":          params.ObjectID,
				"mutation":           params.Mutation,
			})
			results = append(results, eventResult{SynchronizationID: sync.ID, Error: err.Error()})
			continue
		}

		result := ""
		if entry != nil {
			result = entry.TargetResult
		}
		results = append(results, eventResult{SynchronizationID: sync.ID, Result: result})
	}

	return errors.WithStack(c.JSON(http.StatusOK, echo.Map{"results": results}))
}
