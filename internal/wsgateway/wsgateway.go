// Package wsgateway offers the same three build streams as internal/gateway
// over a WebSocket connection instead of SSE, for clients (the teacher's own
// browser console among them) that keep one socket open for every kind of
// server push rather than opening a dedicated SSE connection per stream.
// It joins the same shared singleflight.Cache as internal/gateway: a
// WebSocket observer and an SSE observer submitting the same fingerprint
// share one worker run and one broadcaster, exactly as two SSE observers
// would.
//
// Grounded on the teacher's pkg/http/ws/ws.go connection loop and typed
// Message envelope, generalized from its single heartbeat/log switch to
// the gateway's progress/complete/cancelled/error event set.
package wsgateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/go-arcade/cadflight/internal/appmetrics"
	"github.com/go-arcade/cadflight/internal/gateway"
	"github.com/go-arcade/cadflight/internal/taskrun"
	"github.com/go-arcade/cadflight/internal/workerdemo"
	"github.com/go-arcade/cadflight/pkg/fingerprint"
	"github.com/go-arcade/cadflight/pkg/log"
	"github.com/go-arcade/cadflight/pkg/singleflight"
)

// MessageType enumerates the frames a stream socket sends. Unlike the
// teacher's ws.Message, every type here flows server->client; the client
// never sends anything but the initial upgrade request and a periodic
// ping the fiber/websocket middleware answers without this package's
// involvement.
type MessageType string

const (
	TypeProgress  MessageType = "progress"
	TypeComplete  MessageType = "complete"
	TypeCancelled MessageType = "cancelled"
	TypeError     MessageType = "error"
)

// Message is the JSON envelope written to the socket for every event.
type Message struct {
	Type   MessageType `json:"type"`
	Detail any         `json:"detail"`
}

// Gateway streams build progress over WebSocket connections, backed by the
// same cache and worker registry as an internal/gateway.Gateway.
type Gateway struct {
	cache                 *singleflight.Cache[gateway.Key]
	workers               workerdemo.Registry
	metrics               *appmetrics.Metrics
	allowedGroups         []string
	progressQueueCapacity int
}

// New constructs a Gateway sharing cache and workers with an existing
// internal/gateway.Gateway instance.
func New(cache *singleflight.Cache[gateway.Key], workers workerdemo.Registry, metrics *appmetrics.Metrics, allowedGroups []string, progressQueueCapacity int) *Gateway {
	return &Gateway{
		cache:                 cache,
		workers:               workers,
		metrics:               metrics,
		allowedGroups:         allowedGroups,
		progressQueueCapacity: progressQueueCapacity,
	}
}

// Register installs the WebSocket upgrade routes, mirroring the path shape
// of internal/gateway's SSE routes with a /ws suffix so both transports can
// coexist under the same router. Fingerprint parsing happens in a plain
// fiber.Handler that runs before the upgrade — the same place any other
// request-validation middleware would run — so a malformed query string is
// answered as an ordinary HTTP error instead of a websocket frame; only a
// request that parses cleanly reaches websocket.New and becomes a socket.
func (gw *Gateway) Register(app *fiber.App) {
	app.Get("/visualize/:assembly/ws", gw.prepareKey(string(workerdemo.Visualize), true), websocket.New(func(c *websocket.Conn) {
		gw.stream(c, gw.workers[workerdemo.Visualize])
	}))
	app.Get("/cncOverview/ws", gw.prepareKey(string(workerdemo.CNCOverview), false), websocket.New(func(c *websocket.Conn) {
		gw.stream(c, gw.workers[workerdemo.CNCOverview])
	}))
	app.Get("/dimensionTables/ws", gw.prepareKey(string(workerdemo.DimensionTables), false), websocket.New(func(c *websocket.Conn) {
		gw.stream(c, gw.workers[workerdemo.DimensionTables])
	}))
}

const keyLocal = "wsgateway_key"
const endpointLocal = "wsgateway_endpoint"

// prepareKey canonicalizes the request's query string into a gateway.Key
// and stashes it under keyLocal for the websocket.New handler that follows
// it in the chain; requireAssembly additionally validates the bounded
// {assembly} path enumeration the way internal/gateway's handleVisualize
// does for its SSE counterpart.
func (gw *Gateway) prepareKey(endpoint string, requireAssembly bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		assembly := ""
		if requireAssembly {
			assembly = c.Params("assembly")
			if !gateway.VisualizeAssemblies[assembly] {
				return fiber.NewError(fiber.StatusBadRequest, "unknown assembly: "+assembly)
			}
		}
		canonical, err := fingerprint.Parse(c.Queries(), gw.allowedGroups)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		digest, err := fingerprint.Digest(canonical)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		c.Locals(keyLocal, gateway.Key{Endpoint: endpoint, Assembly: assembly, Params: digest})
		c.Locals(endpointLocal, endpoint)
		return c.Next()
	}
}

// stream owns one socket's full lifecycle: retrieve the gateway.Key
// prepareKey computed before the upgrade, submit to the shared cache, and
// relay every progress callback and the terminal outcome as a Message
// frame.
func (gw *Gateway) stream(c *websocket.Conn, worker singleflight.Worker) {
	defer func() {
		if err := c.Close(); err != nil {
			log.Debugw("wsgateway: close error", "error", err)
		}
	}()

	key, _ := c.Locals(keyLocal).(gateway.Key)
	endpoint, _ := c.Locals(endpointLocal).(string)

	capacity := gw.progressQueueCapacity
	if capacity <= 0 {
		capacity = 64
	}
	frames := make(chan Message, capacity)
	progressCB := func(message string, percent int) {
		select {
		case frames <- Message{Type: TypeProgress, Detail: fiber.Map{"message": message, "progress": percent}}:
		default:
			// Drop-oldest would need a ring buffer here; a full channel
			// means the writer goroutine below is stalled, in which case
			// the connection is already on its way out via its own read
			// error, so a dropped progress frame is immaterial.
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resultCh := make(chan struct {
		result any
		err    error
	}, 1)
	taskrun.Go(ctx, func(ctx context.Context) {
		result, err := gw.cache.Submit(ctx, key, worker, progressCB)
		resultCh <- struct {
			result any
			err    error
		}{result, err}
	})

	// A background reader drains (and discards) client frames so the
	// socket's read buffer never backs up; its only side effect is
	// detecting disconnect, which cancels ctx and unblocks the select
	// below, the same role internal/gateway's Flush-error check plays.
	go func() {
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	startedAt := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-frames:
			if gw.write(c, frame) != nil {
				return
			}
		case outcome := <-resultCh:
			gw.finish(c, outcome.result, outcome.err, endpoint, startedAt)
			return
		}
	}
}

func (gw *Gateway) finish(c *websocket.Conn, result any, err error, endpoint string, startedAt time.Time) {
	elapsed := time.Since(startedAt)
	switch {
	case err == nil:
		gw.metrics.BuildDurationSecs.WithLabelValues(endpoint).Observe(elapsed.Seconds())
		gw.metrics.BuildsCompleted.WithLabelValues(endpoint, appmetrics.OutcomeComplete).Inc()
		_ = gw.write(c, Message{Type: TypeComplete, Detail: result})
	case errors.Is(err, singleflight.ErrCancelled):
		gw.metrics.BuildsCompleted.WithLabelValues(endpoint, appmetrics.OutcomeCancelled).Inc()
		_ = gw.write(c, Message{Type: TypeCancelled, Detail: fiber.Map{"message": "build was superseded by a newer request"}})
	default:
		msg := err.Error()
		var we *singleflight.WorkerError
		if errors.As(err, &we) {
			msg = we.Err.Error()
		}
		gw.metrics.BuildsCompleted.WithLabelValues(endpoint, appmetrics.OutcomeError).Inc()
		_ = gw.write(c, Message{Type: TypeError, Detail: fiber.Map{"error": msg}})
	}
}

func (gw *Gateway) write(c *websocket.Conn, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, data)
}
