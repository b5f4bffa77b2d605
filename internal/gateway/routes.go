package gateway

import (
	"github.com/gofiber/fiber/v2"

	"github.com/go-arcade/cadflight/internal/workerdemo"
	"github.com/go-arcade/cadflight/pkg/http"
)

// Register installs the three logical build-stream routes and the
// ambient /health liveness probe onto app. Middleware (request id, CORS,
// panic recovery, access log) is installed by the caller before Register,
// the same way the teacher's router composes its handler chain.
func (gw *Gateway) Register(app *fiber.App) {
	app.Get("/health", gw.handleHealth)

	app.Get("/visualize/:assembly/stream", gw.handleVisualize)
	app.Get("/cncOverview/stream", gw.handleStream(string(workerdemo.CNCOverview), "", gw.workers[workerdemo.CNCOverview]))
	app.Get("/dimensionTables/stream", gw.handleStream(string(workerdemo.DimensionTables), "", gw.workers[workerdemo.DimensionTables]))

	gw.registerAdminRoutes(app)
}

// handleHealth reports 503 while the gateway is draining for shutdown, so
// a load balancer stops routing new observers to it before the process
// actually exits.
func (gw *Gateway) handleHealth(c *fiber.Ctx) error {
	if gw.shutdown.IsShuttingDown() {
		c.Status(fiber.StatusServiceUnavailable)
		return http.WithRepDetail(c, http.Failed.Code, "shutting down", nil)
	}
	return http.WithRepJSON(c, fiber.Map{"status": "ok"})
}

// handleVisualize validates the bounded {assembly} path enumeration
// before delegating to the shared stream handler; an unknown assembly is
// a RequestError and never reaches the cache.
func (gw *Gateway) handleVisualize(c *fiber.Ctx) error {
	assembly := c.Params("assembly")
	if !VisualizeAssemblies[assembly] {
		return gw.writeSingleError(c, errUnknownAssembly(assembly))
	}
	return gw.handleStream(string(workerdemo.Visualize), assembly, gw.workers[workerdemo.Visualize])(c)
}
