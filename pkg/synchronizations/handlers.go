package synchronizations

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/syncbridge/syncbridge/pkg/errcodes"
	"github.com/syncbridge/syncbridge/pkg/jobs"
	"github.com/syncbridge/syncbridge/pkg/models"
)

type handler struct {
	synchronizationsService *Service
	jobsService             *jobs.Service
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := ListSynchronizationsQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	syncs, total, err := h.synchronizationsService.ListSynchronizationsWithTotal(ctx, ListSynchronizationsOptions{
		RegisterRef: params.RegisterRef,
		SchemaRef:   params.SchemaRef,
		Limit:       &params.Limit,
		Offset:      &params.Offset,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, echo.Map{
		"synchronizations": syncs,
		"total":            total,
	}))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Synchronization")
	}

	sync, err := h.synchronizationsService.RetrieveSynchronization(ctx, RetrieveSynchronizationOptions{
		ID:            &id,
		WithRelations: true,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, sync))
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()

	params := CreateSynchronizationPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	condition := ""
	if params.Condition != nil {
		condition = *params.Condition
	}

	sync, err := h.synchronizationsService.CreateSynchronization(ctx, CreateSynchronizationOptions{
		Name:                  params.Name,
		SourceRef:             params.SourceRef,
		SourceType:            params.SourceType,
		TargetRef:             params.TargetRef,
		TargetType:            params.TargetType,
		RegisterRef:           params.RegisterRef,
		SchemaRef:             params.SchemaRef,
		SourceTargetMappingID: params.SourceTargetMappingID,
		TargetSourceMappingID: params.TargetSourceMappingID,
		Condition:             condition,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusCreated, sync))
}

func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Synchronization")
	}

	params := UpdateSynchronizationPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	sync, err := h.synchronizationsService.RetrieveSynchronization(ctx, RetrieveSynchronizationOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	columns := []string{}
	if params.Name != nil {
		sync.Name = *params.Name
		columns = append(columns, "name")
	}
	if params.SourceRef != nil {
		sync.SourceRef = *params.SourceRef
		columns = append(columns, "source_ref")
	}
	if params.SourceType != nil {
		sync.SourceType = *params.SourceType
		columns = append(columns, "source_type")
	}
	if params.TargetRef != nil {
		sync.TargetRef = *params.TargetRef
		columns = append(columns, "target_ref")
	}
	if params.TargetType != nil {
		sync.TargetType = *params.TargetType
		columns = append(columns, "target_type")
	}
	if params.RegisterRef != nil {
		sync.RegisterRef = *params.RegisterRef
		columns = append(columns, "register_ref")
	}
	if params.SchemaRef != nil {
		sync.SchemaRef = *params.SchemaRef
		columns = append(columns, "schema_ref")
	}
	if params.SourceTargetMappingID != nil {
		sync.SourceTargetMappingID = params.SourceTargetMappingID
		columns = append(columns, "source_target_mapping_id")
	}
	if params.TargetSourceMappingID != nil {
		sync.TargetSourceMappingID = params.TargetSourceMappingID
		columns = append(columns, "target_source_mapping_id")
	}
	if params.Condition != nil {
		sync.Condition = *params.Condition
		columns = append(columns, "condition")
	}

	if err := h.synchronizationsService.UpdateSynchronization(ctx, sync, UpdateSynchronizationOptions{Columns: columns}); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, sync))
}

func (h *handler) delete(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Synchronization")
	}

	if err := h.synchronizationsService.DeleteSynchronization(ctx, id); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.NoContent(http.StatusNoContent))
}

// run enqueues a reconciliation job for the worker to pick up.
func (h *handler) run(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Synchronization")
	}

	params := RunSynchronizationPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	if _, err := h.synchronizationsService.RetrieveSynchronization(ctx, RetrieveSynchronizationOptions{ID: &id}); err != nil {
		return errors.WithStack(err)
	}

	job := &models.Job{
		Type:   models.JobTypeSynchronization,
		Status: models.JobStatusPending,
		DataParsed: &models.JobSynchronizationData{
			SynchronizationID: id,
			Force:             params.Force,
			Test:              params.Test,
		},
	}
	if err := h.jobsService.CreateJob(ctx, job); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusAccepted, job))
}

func (h *handler) listRules(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Synchronization")
	}

	rules, err := h.synchronizationsService.ListRules(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, echo.Map{"rules": rules}))
}

func (h *handler) createRule(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Synchronization")
	}

	params := CreateRulePayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	if _, err := h.synchronizationsService.RetrieveSynchronization(ctx, RetrieveSynchronizationOptions{ID: &id}); err != nil {
		return errors.WithStack(err)
	}

	condition := ""
	if params.Condition != nil {
		condition = *params.Condition
	}
	configuration := params.Configuration
	if configuration == nil {
		configuration = map[string]interface{}{}
	}

	rule, err := h.synchronizationsService.CreateRule(ctx, CreateRuleOptions{
		SynchronizationID: id,
		Name:              params.Name,
		Timing:            params.Timing,
		Type:              params.Type,
		Condition:         condition,
		Configuration:     configuration,
		Order:             params.Order,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusCreated, rule))
}

func (h *handler) updateRule(c echo.Context) error {
	ctx := c.Request().Context()

	ruleID, err := strconv.Atoi(c.Param("ruleId"))
	if err != nil {
		return errcodes.NotFound("Rule")
	}

	params := UpdateRulePayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	rule, err := h.synchronizationsService.RetrieveRule(ctx, ruleID)
	if err != nil {
		return errors.WithStack(err)
	}

	columns := []string{}
	if params.Name != nil {
		rule.Name = *params.Name
		columns = append(columns, "name")
	}
	if params.Timing != nil {
		rule.Timing = *params.Timing
		columns = append(columns, "timing")
	}
	if params.Type != nil {
		rule.Type = *params.Type
		columns = append(columns, "type")
	}
	if params.Condition != nil {
		rule.Condition = *params.Condition
		columns = append(columns, "condition")
	}
	if params.Configuration != nil {
		rule.ConfigurationParsed = params.Configuration
		columns = append(columns, "configuration")
	}
	if params.Order != nil {
		rule.Order = *params.Order
		columns = append(columns, "rule_order")
	}

	if err := h.synchronizationsService.UpdateRule(ctx, rule, UpdateRuleOptions{Columns: columns}); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, rule))
}

func (h *handler) deleteRule(c echo.Context) error {
	ctx := c.Request().Context()

	ruleID, err := strconv.Atoi(c.Param("ruleId"))
	if err != nil {
		return errcodes.NotFound("Rule")
	}

	if err := h.synchronizationsService.DeleteRule(ctx, ruleID); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.NoContent(http.StatusNoContent))
}
