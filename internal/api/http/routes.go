package httpapi

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/PKA-OpenDynamics/CityLens-sub001/internal/registry"
	"github.com/PKA-OpenDynamics/CityLens-sub001/internal/telemetry"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *telemetry.Service, reg *registry.Registry) {
	v1 := app.Group("/api/v1")

	v1.Get("/telemetry/realtime/:id", func(c *fiber.Ctx) error {
		view, err := service.GetRealtime(c.Context(), c.Params("id"))
		if err != nil {
			return mapServiceError(err)
		}
		return c.JSON(view)
	})

	v1.Get("/telemetry/summary", func(c *fiber.Ctx) error {
		activeOnly := c.QueryBool("active_only", true)

		summary, err := service.GetSummary(c.Context(), activeOnly)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to build summary")
		}
		return c.JSON(summary)
	})

	v1.Get("/telemetry/forecast/:id", func(c *fiber.Ctx) error {
		var req forecastQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		forecast, err := service.GetForecast(c.Context(), c.Params("id"), req.Days)
		if err != nil {
			return mapServiceError(err)
		}
		return c.JSON(forecast)
	})

	v1.Get("/locations", func(c *fiber.Ctx) error {
		activeOnly := c.QueryBool("active_only", false)
		return c.JSON(fiber.Map{
			"locations": reg.List(activeOnly),
		})
	})

	v1.Patch("/locations/:id/active", func(c *fiber.Ctx) error {
		var req activePatch
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := reg.SetActive(c.Params("id"), *req.Active); err != nil {
			return mapServiceError(err)
		}
		return c.JSON(fiber.Map{"id": c.Params("id"), "active": *req.Active})
	})
}

func mapServiceError(err error) error {
	switch {
	case errors.Is(err, telemetry.ErrUnknownLocation):
		return fiber.NewError(fiber.StatusNotFound, "unknown location")
	case errors.Is(err, telemetry.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "no telemetry data for requested location")
	case errors.Is(err, telemetry.ErrInvalidForecastDays):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch telemetry data")
	}
}

// forecastQuery holds query parameters for the forecast endpoint.
type forecastQuery struct {
	Days int `validate:"required,min=1,max=5"`
}

func (q *forecastQuery) bind(c *fiber.Ctx) error {
	daysStr := c.Query("days")
	if daysStr == "" {
		return errors.New("days query parameter is required")
	}
	days, err := strconv.Atoi(daysStr)
	if err != nil {
		return errors.New("days must be an integer")
	}
	q.Days = days
	return nil
}

// activePatch is the body of the location activation toggle.
type activePatch struct {
	Active *bool `json:"active" validate:"required"`
}
