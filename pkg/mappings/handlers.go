package mappings

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/syncbridge/syncbridge/pkg/errcodes"
	"github.com/syncbridge/syncbridge/pkg/models"
)

type handler struct {
	mappingsService *Service
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := ListMappingsQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	mappings, total, err := h.mappingsService.ListMappingsWithTotal(ctx, ListMappingsOptions{
		Limit:  &params.Limit,
		Offset: &params.Offset,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, echo.Map{
		"mappings": mappings,
		"total":    total,
	}))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Mapping")
	}

	mapping, err := h.mappingsService.RetrieveMapping(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, mapping))
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()

	params := CreateMappingPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	mapping, err := h.mappingsService.CreateMapping(ctx, CreateMappingOptions{
		Name:        params.Name,
		Pairs:       params.pairs(),
		Unset:       params.Unset,
		Cast:        params.casts(),
		PassThrough: params.PassThrough,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusCreated, mapping))
}

func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Mapping")
	}

	params := UpdateMappingPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	mapping, err := h.mappingsService.RetrieveMapping(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	columns := []string{}
	if params.Name != nil {
		mapping.Name = *params.Name
		columns = append(columns, "name")
	}
	if params.Pairs != nil {
		mapping.PairsParsed = make([]models.MappingPair, 0, len(params.Pairs))
		for _, pair := range params.Pairs {
			mapping.PairsParsed = append(mapping.PairsParsed, models.MappingPair{Source: pair.Source, Target: pair.Target})
		}
		columns = append(columns, "pairs")
	}
	if params.Unset != nil {
		mapping.UnsetParsed = params.Unset
		columns = append(columns, "unset")
	}
	if params.Cast != nil {
		mapping.CastParsed = make([]models.MappingCast, 0, len(params.Cast))
		for _, cast := range params.Cast {
			mapping.CastParsed = append(mapping.CastParsed, models.MappingCast{Path: cast.Path, Type: cast.Type})
		}
		columns = append(columns, "cast")
	}
	if params.PassThrough != nil {
		mapping.PassThrough = *params.PassThrough
		columns = append(columns, "pass_through")
	}

	if err := h.mappingsService.UpdateMapping(ctx, mapping, UpdateMappingOptions{Columns: columns}); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, mapping))
}

func (h *handler) delete(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Mapping")
	}

	if err := h.mappingsService.DeleteMapping(ctx, id); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.NoContent(http.StatusNoContent))
}
