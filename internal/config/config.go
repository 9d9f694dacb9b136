// Package config loads the demo gateway's YAML configuration: the
// session defaults, the HTTP transport's listen address, membership
// ensemble and per-group replica hints, and logger setup, mirroring
// this codebase's own yaml+validate tag convention.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"elliptics-go/pkg/predicate"
)

// Config is the gateway process's root configuration.
type Config struct {
	Logger     LoggerConfig     `yaml:"logger" validate:"required"`
	Server     ServerConfig     `yaml:"http-server" validate:"required"`
	Session    SessionConfig    `yaml:"session" validate:"required"`
	Cluster    ClusterConfig    `yaml:"cluster" validate:"required"`
	Membership MembershipConfig `yaml:"membership"`
}

// LoggerConfig controls the global slog handler.
type LoggerConfig struct {
	Level string `yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// ServerConfig is the demo gateway's own HTTP listen address, distinct
// from the httptransport.Server addresses of the backing storage
// nodes.
type ServerConfig struct {
	Port              int           `yaml:"port" validate:"required,min=1,max=65535"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
}

// SessionConfig seeds the defaults a freshly constructed session
// carries before a request handler overrides them per call, per
// spec.md 4.3.
type SessionConfig struct {
	Groups    []int32       `yaml:"groups" validate:"required,min=1"`
	Namespace string        `yaml:"namespace"`
	Timeout   time.Duration `yaml:"timeout" validate:"required"`
	Filter    string        `yaml:"filter" validate:"required,oneof=positive negative all all_with_ack"`
	Checker   string        `yaml:"checker" validate:"required,oneof=at_least_one all_ok quorum no_check"`
}

// ClusterConfig lists the storage nodes this gateway talks to and the
// consistent-hash ring's replica count.
type ClusterConfig struct {
	Nodes    []string `yaml:"nodes" validate:"required,min=1"`
	Replicas int      `yaml:"replicas" validate:"required,min=1"`
}

// MembershipConfig points at a ZooKeeper ensemble that can keep
// pkg/routing.Router's rosters live. The gateway does not read it: it
// always routes over the static Cluster.Nodes list.
type MembershipConfig struct {
	ZKServers []string `yaml:"zk_servers"`
	RootPath  string   `yaml:"root_path"`
}

// Default returns a baseline single-node development config.
func Default() Config {
	return Config{
		Logger: LoggerConfig{Level: "INFO"},
		Server: ServerConfig{Port: 8090, ReadHeaderTimeout: time.Second},
		Session: SessionConfig{
			Groups:  []int32{1},
			Timeout: 30 * time.Second,
			Filter:  predicate.DefaultFilter,
			Checker: predicate.DefaultChecker,
		},
		Cluster: ClusterConfig{
			Nodes:    []string{"http://localhost:8080"},
			Replicas: 100,
		},
	}
}

// Load reads and parses path, falling back to Default when the file
// does not exist.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("config file not found, using default config", "path", path)
			return Default(), nil
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// FilterFunc resolves the configured filter name to its predicate.
func (c SessionConfig) FilterFunc() predicate.Filter {
	switch c.Filter {
	case "negative":
		return predicate.Negative
	case "all":
		return predicate.All
	case "all_with_ack":
		return predicate.AllWithAck
	default:
		return predicate.Positive
	}
}

// CheckerFunc resolves the configured checker name to its predicate.
func (c SessionConfig) CheckerFunc() predicate.Checker {
	switch c.Checker {
	case "all_ok":
		return predicate.AllOK
	case "quorum":
		return predicate.Quorum
	case "no_check":
		return predicate.NoCheck
	default:
		return predicate.AtLeastOne
	}
}

// InitLogger configures the global slog default handler.
func InitLogger(cfg LoggerConfig) {
	opts := &slog.HandlerOptions{}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err == nil {
		opts.Level = level
	}
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
