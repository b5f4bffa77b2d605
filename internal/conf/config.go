// Package conf assembles the gateway's AppConfig from a TOML file via
// viper, following the teacher's internal/engine/conf.AppConfig: one
// struct of structs, each owned by the pkg/ package it configures, loaded
// through pkg/conf.LoadConfigFile, which also watches the file via fsnotify.
package conf

import (
	"time"

	"github.com/go-arcade/cadflight/internal/gateway"
	"github.com/go-arcade/cadflight/internal/pubsub"
	"github.com/go-arcade/cadflight/internal/webhook"
	"github.com/go-arcade/cadflight/pkg/conf"
	"github.com/go-arcade/cadflight/pkg/http"
	"github.com/go-arcade/cadflight/pkg/log"
	"github.com/go-arcade/cadflight/pkg/metrics"
	"github.com/go-arcade/cadflight/pkg/orm"
)

// Gateway holds the configuration keys enumerated in spec.md §6: the
// progress queue's bound, the disconnect-watcher cadence, and the
// exhaustive set of legal dotted-key group prefixes. EnableWebSocket turns
// on the parallel internal/wsgateway transport alongside SSE.
type Gateway struct {
	ProgressQueueCapacity    int
	DisconnectPollIntervalMs int
	AllowedGroups            []string
	EnableWebSocket          bool
}

// Admin configures the gateway's operator-facing /admin surface. See
// internal/gateway.AdminConfig for field semantics; this struct exists
// separately so viper's TOML binding stays in internal/conf, same as every
// other section.
type Admin struct {
	Enable         bool
	Username       string
	PasswordHash   string
	SecretKey      string
	TokenTTLMinute int
}

// BuildLog configures the optional MySQL audit trail and its retention
// sweep.
type BuildLog struct {
	Database          orm.Database
	RetentionDays     int
	SweepIntervalHour int
}

// AppConfig is the root configuration for cmd/gateway.
type AppConfig struct {
	Http     http.Http
	Log      log.Conf
	Metrics  metrics.MetricsConfig
	Gateway  Gateway
	Admin    Admin
	BuildLog BuildLog
	Pubsub   pubsub.Config
	Webhook  webhook.Config
}

// ToGatewayAdmin converts the TOML-bound Admin section into the
// internal/gateway.AdminConfig New expects.
func (a Admin) ToGatewayAdmin() gateway.AdminConfig {
	ttl := time.Duration(a.TokenTTLMinute) * time.Minute
	return gateway.AdminConfig{
		Enable:       a.Enable,
		Username:     a.Username,
		PasswordHash: a.PasswordHash,
		SecretKey:    a.SecretKey,
		TokenTTL:     ttl,
	}
}

// Defaults returns the configuration the teacher's config.toml would ship
// with a fresh deploy: matches SPEC_FULL.md's documented TOML schema.
func Defaults() AppConfig {
	return AppConfig{
		Http: http.Http{
			Host:            "0.0.0.0",
			Port:            8080,
			AccessLog:       true,
			ReadTimeout:     30,
			WriteTimeout:    0, // SSE responses must never hit a write deadline
			ShutdownTimeout: 10,
		},
		Log: log.Conf{
			Output: "stdout",
			Level:  "info",
		},
		Metrics: metrics.MetricsConfig{
			Host:   "0.0.0.0",
			Port:   9090,
			Enable: true,
		},
		Gateway: Gateway{
			ProgressQueueCapacity:    64,
			DisconnectPollIntervalMs: 150,
			AllowedGroups:            []string{"magnafpm", "furling", "user"},
			EnableWebSocket:          false,
		},
		Admin: Admin{
			Enable:         false,
			Username:       "admin",
			TokenTTLMinute: 60,
		},
		BuildLog: BuildLog{
			Database: orm.Database{
				Enable:       false,
				Port:         "3306",
				MaxOpenConns: 10,
				MaxIdleConns: 5,
				MaxLifetime:  3600,
				MaxIdleTime:  600,
			},
			RetentionDays:     30,
			SweepIntervalHour: 24,
		},
		Pubsub: pubsub.Config{
			Enable:       false,
			DialTimeout:  5 * time.Second,
			WriteTimeout: 3 * time.Second,
			Channel:      "cadflight:builds",
		},
		Webhook: webhook.Config{
			Timeout: 5 * time.Second,
		},
	}
}

// Load reads config.toml from confDir over the defaults and watches it for
// changes. It never returns a zero AppConfig: on read failure it returns
// Defaults() alongside the error so callers may choose to proceed.
// Load returns a copy: changes re-read from the file after Load returns
// do not reach the AppConfig the caller holds.
func Load(confDir string) (AppConfig, error) {
	appCfg := Defaults()
	if _, err := conf.LoadConfigFile(confDir, &appCfg); err != nil {
		return Defaults(), err
	}
	return appCfg, nil
}
