package httpapi

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/trail-status/internal/aggregate"
	"github.com/i474232898/trail-status/internal/trail"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *aggregate.Service) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "trail-status",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v1 := app.Group("/api/v1")

	// Full cycle: always 200, failures are reported in the body with a short cache.
	v1.Get("/statuses", func(c *fiber.Ctx) error {
		res := service.Run(c.UserContext())
		c.Set(fiber.HeaderCacheControl, res.CacheControl())
		return c.JSON(res.Response)
	})

	v1.Get("/statuses/latest", func(c *fiber.Ctx) error {
		res, err := service.Latest()
		if err != nil {
			if errors.Is(err, aggregate.ErrNoSnapshot) {
				return fiber.NewError(fiber.StatusNotFound, "no trail statuses collected yet")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read trail statuses")
		}
		c.Set(fiber.HeaderCacheControl, res.CacheControl())
		return c.JSON(res.Response)
	})

	v1.Get("/trails", func(c *fiber.Ctx) error {
		trails := service.Trails()
		out := make([]trailView, 0, len(trails))
		for _, t := range trails {
			out = append(out, newTrailView(t))
		}
		return c.JSON(fiber.Map{"trails": out})
	})

	v1.Get("/trails/:id", func(c *fiber.Ctx) error {
		req := trailPath{ID: c.Params("id")}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid trail id")
		}

		entry, err := service.RunTrail(c.UserContext(), req.ID)
		if err != nil {
			if errors.Is(err, aggregate.ErrUnknownTrail) {
				return fiber.NewError(fiber.StatusNotFound, "unknown trail: "+req.ID)
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch trail status")
		}
		return c.JSON(entry)
	})
}

// ErrorHandler renders every handler error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

type trailPath struct {
	ID string `validate:"required,alphanum,lowercase"`
}

type trailView struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Kind       trail.SourceKind  `json:"kind"`
	Coordinate trail.Coordinate  `json:"coordinate"`
	Trailheads []trail.Trailhead `json:"trailheads"`
}

func newTrailView(t trail.Config) trailView {
	heads := t.Trailheads
	if heads == nil {
		heads = []trail.Trailhead{}
	}
	return trailView{
		ID:         t.ID,
		Name:       t.Name,
		Kind:       t.Kind,
		Coordinate: t.Coordinate,
		Trailheads: heads,
	}
}
