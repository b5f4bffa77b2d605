package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"github.com/go-arcade/cadflight/internal/appmetrics"
	"github.com/go-arcade/cadflight/internal/buildlog"
	"github.com/go-arcade/cadflight/internal/conf"
	"github.com/go-arcade/cadflight/internal/gateway"
	"github.com/go-arcade/cadflight/internal/pubsub"
	"github.com/go-arcade/cadflight/internal/webhook"
	"github.com/go-arcade/cadflight/internal/workerdemo"
	"github.com/go-arcade/cadflight/internal/wsgateway"
	"github.com/go-arcade/cadflight/pkg/http"
	"github.com/go-arcade/cadflight/pkg/http/middleware"
	"github.com/go-arcade/cadflight/pkg/log"
	"github.com/go-arcade/cadflight/pkg/metrics"
	"github.com/go-arcade/cadflight/pkg/orm"
	"github.com/go-arcade/cadflight/pkg/runner"
	"github.com/go-arcade/cadflight/pkg/version"
)

var confDir string

var rootCmd = &cobra.Command{
	Use:   "cadflight-gateway",
	Short: "cadflight-gateway serves CAD build progress over SSE",
	Long:  "cadflight-gateway is the singleflight build cache and SSE gateway for visualize/cncOverview/dimensionTables.",
	Run: func(cmd *cobra.Command, args []string) {
		serve()
	},
}

func init() {
	rootCmd.Flags().StringVar(&confDir, "conf", "conf.d", "conf directory path, e.g. --conf ./conf.d")
	rootCmd.AddCommand(version.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}

func printRunner() {
	fmt.Println("runner.pwd:", runner.Pwd)
	fmt.Println("runner.hostname:", runner.Hostname)
}

func serve() {
	printRunner()

	appCfg, err := conf.Load(confDir)
	if err != nil {
		fmt.Println("warning: falling back to default configuration:", err)
	}

	log.MustInit(&appCfg.Log)

	appMetrics := appmetrics.New()
	metricsSrv := metrics.NewServer(appCfg.Metrics)
	appMetrics.MustRegister(metricsSrv.GetRegistry())
	if err := metricsSrv.Start(); err != nil {
		log.Fatalf("failed to start metrics server: %v", err)
	}

	deps, stopBackground := buildDeps(appCfg)
	defer stopBackground()

	workers := workerdemo.New()
	gw := gateway.New(gateway.Config{
		ProgressQueueCapacity:    appCfg.Gateway.ProgressQueueCapacity,
		DisconnectPollIntervalMs: appCfg.Gateway.DisconnectPollIntervalMs,
		AllowedGroups:            appCfg.Gateway.AllowedGroups,
	}, workers, appMetrics, deps)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Use(middleware.RequestMiddleware())
	app.Use(middleware.RealIPMiddleware())
	app.Use(middleware.CorsMiddleware())
	app.Use(middleware.ExceptionMiddleware)
	app.Use(middleware.AccessLogMiddleware(&appCfg.Http))

	gw.Register(app)
	if appCfg.Gateway.EnableWebSocket {
		wsgateway.New(gw.Cache(), workers, appMetrics, appCfg.Gateway.AllowedGroups, appCfg.Gateway.ProgressQueueCapacity).Register(app)
	}

	watchShutdownSignal(gw)

	httpClean := http.NewHttp(appCfg.Http, app)
	httpClean()
}

// buildDeps constructs every optional side channel wired into the gateway:
// the MySQL audit log, the Redis lifecycle-event publisher, the webhook
// notifier, and the admin auth config. Each is entirely optional — a
// disabled or unreachable backend degrades to a nil dependency rather than
// a startup failure, since none of them sit on the SSE hot path. The
// returned func cancels the buildlog retention sweep's background context.
func buildDeps(appCfg conf.AppConfig) (gateway.Deps, func()) {
	ctx, cancel := context.WithCancel(context.Background())

	var store *buildlog.Store
	if appCfg.BuildLog.Database.Enable {
		db, err := orm.New(appCfg.BuildLog.Database)
		if err != nil {
			log.Errorw("buildlog: failed to connect, audit logging disabled", "error", err)
		} else if store, err = buildlog.New(db); err != nil {
			log.Errorw("buildlog: failed to migrate, audit logging disabled", "error", err)
			store = nil
		} else {
			interval := time.Duration(appCfg.BuildLog.SweepIntervalHour) * time.Hour
			if interval <= 0 {
				interval = 24 * time.Hour
			}
			go store.RunRetentionSweep(ctx, appCfg.BuildLog.RetentionDays, interval)
		}
	}

	publisher, err := pubsub.New(appCfg.Pubsub)
	if err != nil {
		log.Errorw("pubsub: failed to connect, lifecycle events disabled", "error", err)
		publisher = nil
	}

	notifier := webhook.New(appCfg.Webhook)

	return gateway.Deps{
		Pubsub:   publisher,
		Buildlog: store,
		Webhook:  notifier,
		Admin:    appCfg.Admin.ToGatewayAdmin(),
	}, cancel
}

// watchShutdownSignal marks the gateway as draining as soon as a shutdown
// signal arrives, ahead of pkg/http's own signal hook actually closing the
// listener, so /health has already started failing once the process stops
// accepting new connections.
func watchShutdownSignal(gw *gateway.Gateway) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		gw.Shutdown()
	}()
}
