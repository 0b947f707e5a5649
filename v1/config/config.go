// Package config holds the explicit configuration struct ServiceCore (and
// the broker/store layers beneath it) are constructed from: a value
// threaded explicitly through the composition root rather than a
// module-level default-settings singleton, keeping connection config out
// of code.
package config

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"time"
)

// AMQP carries everything the brokers package needs to declare exchanges,
// queues and bindings. Field names mirror the call sites in
// v1/brokers/amqp.go (b.cnf.AMQP.Exchange, b.cnf.AMQP.ExchangeType, ...).
type AMQP struct {
	Host     string
	Port     int
	VHost    string
	User     string
	Password string

	Heartbeat               time.Duration
	BlockedConnectionTimeout time.Duration

	Exchange               string
	ExchangeType           string
	BindingKey             string
	QueueBindingArgs       map[string]interface{}
	PrefetchCount          int
	DropUnregisteredTasks  bool
}

// URI builds the amqp:// connection string from the discrete fields, so
// host/port/vhost/credentials stay individually env-overridable instead
// of forcing callers to hand-assemble a DSN.
func (a AMQP) URI() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s", a.User, a.Password, a.Host, a.Port, a.VHost)
}

// Store configures the embedded relational TaskStore.
type Store struct {
	// Path is a sqlite3 DSN, e.g. "file:schedulergodx.db?_busy_timeout=5000".
	Path string
}

// Hard configures the container-isolated executor.
type Hard struct {
	// Image is expected to embed this module's cmd/taskworker entrypoint.
	Image       string
	NetworkMode string
	MemoryMB    int64
}

// Config is the single composition-root value ServiceCore, the brokers
// package and the store package are all constructed from.
type Config struct {
	AMQP  AMQP
	Store Store
	Hard  Hard

	// DefaultQueue is the queue the service consumes from (client-service);
	// ReplyQueue is the queue replies are published to (service-client).
	DefaultQueue string
	ReplyQueue   string

	TLSConfig *tls.Config
}

// Default returns the baseline configuration, matching the original's
// rmq_default_settings (localhost:5672, vhost "/", guest/guest, 600s
// heartbeat, 300s blocked-connection timeout) with the two fixed queue
// names the wire protocol expects.
func Default() *Config {
	return &Config{
		AMQP: AMQP{
			Host:                     "localhost",
			Port:                     5672,
			VHost:                    "/",
			User:                     "guest",
			Password:                 "guest",
			Heartbeat:                600 * time.Second,
			BlockedConnectionTimeout: 300 * time.Second,
			Exchange:                 "schedulergodx",
			ExchangeType:             "direct",
			BindingKey:               "schedulergodx",
			PrefetchCount:            1,
			DropUnregisteredTasks:    false,
		},
		Store: Store{
			Path: "file:schedulergodx.db?_busy_timeout=5000&_foreign_keys=on",
		},
		Hard: Hard{
			Image:       "schedulergodx-taskworker:latest",
			NetworkMode: "none",
			MemoryMB:    256,
		},
		DefaultQueue: "client-service",
		ReplyQueue:   "service-client",
	}
}

// FromEnv overlays process environment variables onto Default(), matching
// the "env-overridable" broker connection parameters.
func FromEnv() *Config {
	cfg := Default()

	if v := os.Getenv("SCHEDULERGODX_AMQP_HOST"); v != "" {
		cfg.AMQP.Host = v
	}
	if v := os.Getenv("SCHEDULERGODX_AMQP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.AMQP.Port = p
		}
	}
	if v := os.Getenv("SCHEDULERGODX_AMQP_VHOST"); v != "" {
		cfg.AMQP.VHost = v
	}
	if v := os.Getenv("SCHEDULERGODX_AMQP_USER"); v != "" {
		cfg.AMQP.User = v
	}
	if v := os.Getenv("SCHEDULERGODX_AMQP_PASSWORD"); v != "" {
		cfg.AMQP.Password = v
	}
	if v := os.Getenv("SCHEDULERGODX_AMQP_HEARTBEAT_SECONDS"); v != "" {
		if s, err := strconv.Atoi(v); err == nil {
			cfg.AMQP.Heartbeat = time.Duration(s) * time.Second
		}
	}
	if v := os.Getenv("SCHEDULERGODX_AMQP_BLOCKED_TIMEOUT_SECONDS"); v != "" {
		if s, err := strconv.Atoi(v); err == nil {
			cfg.AMQP.BlockedConnectionTimeout = time.Duration(s) * time.Second
		}
	}
	if v := os.Getenv("SCHEDULERGODX_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("SCHEDULERGODX_HARD_IMAGE"); v != "" {
		cfg.Hard.Image = v
	}

	return cfg
}
