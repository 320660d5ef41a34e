package synclogs

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/syncbridge/syncbridge/pkg/contracts"
	"github.com/syncbridge/syncbridge/pkg/errcodes"
)

type handler struct {
	logsService      *Service
	contractsService *contracts.Service
}

// listRunLogs serves the run history for one synchronization, newest first.
// GET /api/synchronizations/:id/logs.
func (h *handler) listRunLogs(c echo.Context) error {
	ctx := c.Request().Context()

	syncID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Synchronization")
	}

	params := ListRunLogsQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	logs, err := h.logsService.ListRunLogs(ctx, ListRunLogsOptions{
		SynchronizationID: syncID,
		Limit:             &params.Limit,
		Offset:            &params.Offset,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, echo.Map{"logs": logs}))
}

// listContractLogs serves the per-object history for one contract.
// GET /api/contracts/:id/logs.
func (h *handler) listContractLogs(c echo.Context) error {
	ctx := c.Request().Context()

	contractID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Synchronization Contract")
	}

	contract, err := h.contractsService.RetrieveContract(ctx, contracts.RetrieveContractOptions{ID: &contractID})
	if err != nil {
		return errors.WithStack(err)
	}

	params := ListContractLogsQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	logs, err := h.logsService.ListContractLogs(ctx, ListContractLogsOptions{
		SynchronizationContractID: &contractID,
		SynchronizationLogID:      params.SynchronizationLogID,
		AfterID:                   params.AfterID,
		Limit:                     &params.Limit,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Logs     interface{} `json:"logs"`
		Contract interface{} `json:"contract"`
	}{logs, contract}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}
