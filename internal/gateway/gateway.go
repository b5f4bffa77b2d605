// Package gateway translates each HTTP request into one subscription to
// the singleflight cache and streams a typed SSE event sequence back,
// grounded on the teacher's pkg/ws connection-handling shape but built on
// Fiber's chunked-body streaming instead of a websocket upgrade.
package gateway

import (
	"bufio"
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/go-arcade/cadflight/internal/appmetrics"
	"github.com/go-arcade/cadflight/internal/buildlog"
	"github.com/go-arcade/cadflight/internal/pubsub"
	"github.com/go-arcade/cadflight/internal/taskrun"
	"github.com/go-arcade/cadflight/internal/webhook"
	"github.com/go-arcade/cadflight/internal/workerdemo"
	"github.com/go-arcade/cadflight/pkg/fingerprint"
	"github.com/go-arcade/cadflight/pkg/id"
	"github.com/go-arcade/cadflight/pkg/log"
	"github.com/go-arcade/cadflight/pkg/shutdown"
	"github.com/go-arcade/cadflight/pkg/singleflight"
)

// Config is the subset of the gateway's configuration surface from
// spec.md §6: the progress queue's bound, the disconnect-watcher cadence,
// and the exhaustive set of legal dotted-key group prefixes.
type Config struct {
	ProgressQueueCapacity    int
	DisconnectPollIntervalMs int
	AllowedGroups            []string
}

// VisualizeAssemblies enumerates the bounded set of legal {assembly} path
// values for the visualize endpoint; it is part of the fingerprint.
var VisualizeAssemblies = map[string]bool{
	"rotor":   true,
	"stator":  true,
	"nacelle": true,
}

// Gateway owns the single system-wide singleflight cache shared by all
// three logical endpoints and the demo worker registry it dispatches to.
type Gateway struct {
	cfg      Config
	cache    *singleflight.Cache[Key]
	workers  workerdemo.Registry
	metrics  *appmetrics.Metrics
	shutdown *shutdown.Manager

	// The following are all optional side channels: a nil value disables
	// the corresponding feature without changing any other behavior.
	pubsub   *pubsub.Publisher
	buildlog *buildlog.Store
	webhook  *webhook.Notifier
	admin    *adminAuth
}

// Deps bundles the optional side channels New wires onto every Gateway
// operation. Every field may be left nil to disable that feature.
type Deps struct {
	Pubsub   *pubsub.Publisher
	Buildlog *buildlog.Store
	Webhook  *webhook.Notifier
	Admin    AdminConfig
}

// New constructs a Gateway and wires its cache's hit/miss counters onto
// metrics and deps' optional side channels.
func New(cfg Config, workers workerdemo.Registry, metrics *appmetrics.Metrics, deps Deps) *Gateway {
	gw := &Gateway{
		cfg:      cfg,
		workers:  workers,
		metrics:  metrics,
		shutdown: shutdown.NewManager(),
		pubsub:   deps.Pubsub,
		buildlog: deps.Buildlog,
		webhook:  deps.Webhook,
		admin:    newAdminAuth(deps.Admin),
	}

	cache := singleflight.New[Key]()
	cache.OnHit = func(k Key) {
		metrics.CacheHits.Inc()
		gw.pubsub.Publish(pubsub.Event{Kind: "hit", Endpoint: k.Endpoint, Assembly: k.Assembly, Key: k.Params.String(), Timestamp: time.Now().Unix()})
	}
	cache.OnMiss = func(k Key) {
		metrics.CacheMisses.Inc()
		metrics.BuildsStarted.WithLabelValues(k.Endpoint).Inc()
		gw.pubsub.Publish(pubsub.Event{Kind: "miss", Endpoint: k.Endpoint, Assembly: k.Assembly, Key: k.Params.String(), Timestamp: time.Now().Unix()})
	}
	gw.cache = cache
	return gw
}

// Cache exposes the gateway's shared singleflight.Cache so a sibling
// transport (internal/wsgateway) can join the same entries SSE observers
// join, rather than keeping a second, disjoint cache.
func (gw *Gateway) Cache() *singleflight.Cache[Key] {
	return gw.cache
}

// Shutdown marks the gateway as draining so /health starts failing and a
// load balancer stops routing new observers to it. It does not itself
// close any connection; pkg/http's own signal hook drives the actual
// server shutdown.
func (gw *Gateway) Shutdown() bool {
	return gw.shutdown.Shutdown()
}

// submitOutcome carries the result of a singleflight.Cache.Submit call
// from the background goroutine that issues it back to the drain loop.
type submitOutcome struct {
	result any
	err    error
}

// handleStream parses the request into a Key, picks the worker for
// endpoint, and streams the resulting SSE sequence.
func (gw *Gateway) handleStream(endpoint, assemblyLabel string, worker singleflight.Worker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		query := c.Queries()
		canonical, err := fingerprint.Parse(query, gw.cfg.AllowedGroups)
		if err != nil {
			return gw.writeSingleError(c, err)
		}
		digest, err := fingerprint.Digest(canonical)
		if err != nil {
			return gw.writeSingleError(c, err)
		}

		key := Key{Endpoint: endpoint, Assembly: assemblyLabel, Params: digest}
		connID := id.Short()

		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set("Connection", "keep-alive")

		gw.metrics.SSEConnections.Inc()
		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			defer gw.metrics.SSEConnections.Dec()
			gw.stream(w, key, worker, endpoint, assemblyLabel, connID)
		})
		return nil
	}
}

// writeSingleError answers a RequestError (invalid parameters) as a
// one-shot SSE stream carrying only the error terminal event, since a
// RequestError never reaches the cache per spec.md §7.
func (gw *Gateway) writeSingleError(c *fiber.Ctx, err error) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		_ = writeEvent(w, "error", errorPayload{Error: err.Error()})
	})
	return nil
}

// stream drives one observer's full lifecycle: submit, drain progress
// into SSE records, write exactly one terminal event, and return.
func (gw *Gateway) stream(w *bufio.Writer, key Key, worker singleflight.Worker, endpoint, assemblyLabel, connID string) {
	queue := newProgressQueue(gw.cfg.ProgressQueueCapacity)
	progressCB := func(message string, percent int) { queue.push(progressEvent{message, percent}) }

	// This ctx models only this observer's own connection. Cancelling it
	// stops this observer's join, never the shared worker — that only
	// happens when a different key is submitted.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resultCh := make(chan submitOutcome, 1)
	taskrun.Go(ctx, func(ctx context.Context) {
		result, err := gw.cache.Submit(ctx, key, worker, progressCB)
		resultCh <- submitOutcome{result, err}
	})

	pollInterval := time.Duration(gw.cfg.DisconnectPollIntervalMs) * time.Millisecond
	if pollInterval <= 0 {
		pollInterval = 150 * time.Millisecond
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	startedAt := time.Now()
	log.Debugw("observer connected", "conn", connID, "endpoint", endpoint, "assembly", assemblyLabel)

	for {
		if err := gw.drainQueue(w, queue); err != nil {
			gw.disconnect(queue, cancel, endpoint, connID)
			return
		}

		select {
		case outcome := <-resultCh:
			_ = gw.drainQueue(w, queue)
			gw.finish(w, outcome, key, endpoint, assemblyLabel, connID, startedAt)
			return
		case <-queue.notify:
			continue
		case <-ticker.C:
			if err := writeComment(w, "keepalive"); err != nil {
				gw.disconnect(queue, cancel, endpoint, connID)
				return
			}
		}
	}
}

func (gw *Gateway) drainQueue(w *bufio.Writer, queue *progressQueue) error {
	for {
		ev, ok := queue.pop()
		if !ok {
			return nil
		}
		if err := writeEvent(w, "progress", progressPayload{Message: ev.message, Progress: ev.percent}); err != nil {
			return err
		}
	}
}

// disconnect drops this observer's subscription without touching the
// shared cache entry: the worker and any other observers are unaffected.
func (gw *Gateway) disconnect(queue *progressQueue, cancel context.CancelFunc, endpoint, connID string) {
	queue.close()
	cancel()
	log.Debugw("observer disconnected", "conn", connID, "endpoint", endpoint)
}

func (gw *Gateway) finish(w *bufio.Writer, outcome submitOutcome, key Key, endpoint, assemblyLabel, connID string, startedAt time.Time) {
	elapsed := time.Since(startedAt)
	gw.metrics.BuildDurationSecs.WithLabelValues(endpoint).Observe(elapsed.Seconds())

	rec := buildlog.Record{
		Endpoint:       endpoint,
		Assembly:       assemblyLabel,
		FingerprintKey: key.Params.String(),
		StartedAt:      startedAt,
		FinishedAt:     time.Now(),
		DurationMs:     elapsed.Milliseconds(),
	}
	wh := webhook.Payload{
		Endpoint:  endpoint,
		Assembly:  assemblyLabel,
		Key:       key.Params.String(),
		Timestamp: time.Now().Unix(),
	}

	switch {
	case outcome.err == nil:
		_ = writeEvent(w, "complete", outcome.result)
		gw.metrics.BuildsCompleted.WithLabelValues(endpoint, appmetrics.OutcomeComplete).Inc()
		rec.Outcome, wh.Outcome = appmetrics.OutcomeComplete, appmetrics.OutcomeComplete
	case errors.Is(outcome.err, singleflight.ErrCancelled):
		_ = writeEvent(w, "cancelled", cancelledPayload{Message: "build was superseded by a newer request"})
		rec.Outcome, wh.Outcome = appmetrics.OutcomeCancelled, appmetrics.OutcomeCancelled
		gw.metrics.BuildsCompleted.WithLabelValues(endpoint, appmetrics.OutcomeCancelled).Inc()
	default:
		msg := outcome.err.Error()
		var we *singleflight.WorkerError
		if errors.As(outcome.err, &we) {
			msg = we.Err.Error()
		}
		_ = writeEvent(w, "error", errorPayload{Error: msg})
		gw.metrics.BuildsCompleted.WithLabelValues(endpoint, appmetrics.OutcomeError).Inc()
		rec.Outcome, wh.Outcome = appmetrics.OutcomeError, appmetrics.OutcomeError
		rec.ErrorMessage, wh.Error = msg, msg
	}

	log.Debugw("observer finished", "conn", connID, "endpoint", endpoint, "outcome", rec.Outcome, "elapsed", elapsed)
	gw.buildlog.Record(rec)
	gw.webhook.Notify(wh)
	gw.pubsub.Publish(pubsub.Event{Kind: rec.Outcome, Endpoint: endpoint, Assembly: assemblyLabel, Key: key.Params.String(), Timestamp: wh.Timestamp})
}
