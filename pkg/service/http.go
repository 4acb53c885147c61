package service

import (
	stderrors "errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/theapemachine/engram/pkg/config"
	"github.com/theapemachine/engram/pkg/errors"
	"github.com/theapemachine/engram/pkg/query"
	"github.com/theapemachine/engram/pkg/stores"
	"github.com/theapemachine/engram/pkg/sync"
)

/*
HTTPServer exposes the entity store over REST. Reads are served straight from
storage; queries and syncs arrive as JSON bodies with the same field names
the MCP tools use.
*/
type HTTPServer struct {
	app     *fiber.App
	storage stores.Storage
	config  *config.Config
	engine  *sync.Engine
}

// SyncRequest is the body of POST /sync. An empty strategy falls back to the
// configured one.
type SyncRequest struct {
	Agents   []string `json:"agents"`
	Strategy string   `json:"strategy,omitempty"`
	DryRun   bool     `json:"dry_run,omitempty"`
}

func NewHTTPServer(storage stores.Storage, cfg *config.Config) (*HTTPServer, error) {
	if storage == nil {
		return nil, errors.NewError(errors.ErrMissingStorage{})
	}

	if cfg == nil {
		return nil, errors.NewError(errors.ErrMissingConfig{})
	}

	srv := &HTTPServer{
		app: fiber.New(fiber.Config{
			AppName:      "engram",
			ServerHeader: "Engram-Server",
		}),
		storage: storage,
		config:  cfg,
		engine:  sync.NewEngine(storage),
	}

	srv.routes()
	return srv, nil
}

func (srv *HTTPServer) routes() {
	srv.app.Use(logger.New(logger.Config{
		// Skip logging for health and probe endpoints to reduce noise
		Next: func(c fiber.Ctx) bool {
			switch c.Path() {
			case "/health", "/livez", "/readyz":
				return true
			}
			return false
		},
	}))

	srv.app.Get("/livez", healthcheck.NewHealthChecker())
	srv.app.Get("/readyz", healthcheck.NewHealthChecker(healthcheck.Config{
		// Not ready until the journal is reachable.
		Probe: func(ctx fiber.Ctx) bool {
			_, err := srv.storage.CurrentBranch(ctx.Context())
			return err == nil
		},
	}))

	srv.app.Get("/health", srv.handleHealth)
	srv.app.Get("/stats", srv.handleStats)
	srv.app.Get("/entities/:type", srv.handleListEntities)
	srv.app.Get("/entities/:type/:id", srv.handleGetEntity)
	srv.app.Post("/query", srv.handleQuery)
	srv.app.Post("/sync", srv.handleSync)
}

// Start blocks serving HTTP on addr.
func (srv *HTTPServer) Start(addr string) error {
	return srv.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

func (srv *HTTPServer) handleHealth(ctx fiber.Ctx) error {
	branch, err := srv.storage.CurrentBranch(ctx.Context())
	if err != nil {
		return srv.fail(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"status":    "ok",
		"workspace": srv.config.Workspace.Name,
		"agent":     srv.storage.Agent(),
		"branch":    branch,
	})
}

func (srv *HTTPServer) handleStats(ctx fiber.Ctx) error {
	stats, err := srv.storage.Stats(ctx.Context())
	if err != nil {
		return srv.fail(ctx, err)
	}

	relStats, err := srv.storage.RelationshipStats(ctx.Context())
	if err != nil {
		return srv.fail(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"agent":   srv.storage.Agent(),
		"storage": stats,
		"graph":   relStats,
	})
}

func (srv *HTTPServer) handleListEntities(ctx fiber.Ctx) error {
	entities, err := srv.storage.GetAll(ctx.Context(), ctx.Params("type"))
	if err != nil {
		return srv.fail(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"entities": entities,
		"count":    len(entities),
	})
}

func (srv *HTTPServer) handleGetEntity(ctx fiber.Ctx) error {
	id := ctx.Params("id")
	entityType := ctx.Params("type")

	record, err := srv.storage.Get(ctx.Context(), id, entityType)
	if err != nil {
		return srv.fail(ctx, err)
	}

	if record == nil {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": fmt.Sprintf("entity %s of type %s not found", id, entityType),
		})
	}

	return ctx.JSON(record)
}

func (srv *HTTPServer) handleQuery(ctx fiber.Ctx) error {
	var filter query.Filter

	if err := ctx.Bind().Body(&filter); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid query body: " + err.Error(),
		})
	}

	result, err := srv.storage.Query(ctx.Context(), &filter)
	if err != nil {
		return srv.fail(ctx, err)
	}

	return ctx.JSON(result)
}

func (srv *HTTPServer) handleSync(ctx fiber.Ctx) error {
	var request SyncRequest

	if err := ctx.Bind().Body(&request); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid sync body: " + err.Error(),
		})
	}

	var strategy sync.Strategy
	var err error
	if request.Strategy != "" {
		strategy, err = sync.ParseStrategy(request.Strategy)
	} else {
		strategy, err = srv.config.Strategy()
	}
	if err != nil {
		return srv.fail(ctx, err)
	}

	result, err := srv.engine.Sync(ctx.Context(), request.Agents, strategy, request.DryRun)
	if err != nil {
		return srv.fail(ctx, err)
	}

	return ctx.JSON(result)
}

// fail renders an error response with the status its kind maps to.
func (srv *HTTPServer) fail(ctx fiber.Ctx, err error) error {
	return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
}

// statusFor maps storage error kinds onto HTTP statuses: absence is 404,
// rejected input is 400, everything else is a 500.
func statusFor(err error) int {
	switch {
	case stderrors.Is(err, errors.ErrEntityNotFound),
		stderrors.Is(err, errors.ErrNotFound),
		stderrors.Is(err, errors.ErrRepositoryNotFound):
		return fiber.StatusNotFound
	case stderrors.Is(err, errors.ErrValidation):
		return fiber.StatusBadRequest
	}

	return fiber.StatusInternalServerError
}
