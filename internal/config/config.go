// Package config parses the etcdstat command line and its INI configuration.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/thingswise/etcdstat/internal/exit"
	"github.com/thingswise/etcdstat/internal/kv"
	"github.com/thingswise/etcdstat/internal/logging"
)

const (
	DefaultConfigFile = "/etc/etcdstat.cfg"
	DefaultInterval   = 10 * time.Second
	DefaultTreeRoot   = "/"
)

// Version is reported by -version. Release builds set it with -ldflags.
var Version = "dev"

var (
	ErrNoArguments     = errors.New("no arguments provided")
	ErrMissingURL      = errors.New("store URL is required")
	ErrTooManyArgs     = errors.New("too many arguments")
	ErrInvalidURL      = errors.New("invalid store URL")
	ErrInvalidInterval = errors.New("interval must be positive")
	ErrInvalidRate     = errors.New("rate limit must not be negative")
)

// Config is the agent configuration taken from the command line.
type Config struct {
	URL         string
	ConfigFile  string
	Interval    time.Duration
	DialTimeout time.Duration
	RateLimit   float64 // writes per second, 0 = unlimited
	LogLevel    logging.Level
	LogFormat   logging.Format
	Once        bool
	TreeRoot    string
}

// TTL is the lifetime of every published key: two update intervals, so a
// stopped agent's keys disappear after missing two updates.
func (c *Config) TTL() time.Duration {
	return 2 * c.Interval
}

// Validate checks values flag parsing cannot check on its own.
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrMissingURL
	}
	u, err := url.Parse(c.URL)
	if err != nil || u.Scheme == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, c.URL)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w, got: %s", ErrInvalidInterval, c.Interval)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w, got: %g", ErrInvalidRate, c.RateLimit)
	}
	return nil
}

// Parse parses command-line arguments and returns a validated Config.
// If parsing fails or help or version is requested, it returns a nil config
// and the exit result to print.
func Parse(args []string) (*Config, *exit.Result) {
	if len(args) == 0 {
		return nil, exit.Usagef("Error: %v\n\n%s\n", ErrNoArguments, Usage())
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.Usage = func() {}
	fs.SetOutput(io.Discard)

	var (
		configFile  = fs.String("config", DefaultConfigFile, "Configuration file")
		interval    = fs.Duration("interval", DefaultInterval, "Update interval")
		dialTimeout = fs.Duration("dial-timeout", kv.DefaultDialTimeout, "Store connection timeout")
		rateLimit   = fs.Float64("rate-limit", 0, "Maximum store writes per second (0 for unlimited)")
		logLevel    = fs.String("log-level", "info", "Log level: debug, info, warn or error")
		logFormat   = fs.String("log-format", "text", "Log format: text or json")
		once        = fs.Bool("once", false, "Run a single update and exit")
		treeRoot    = fs.String("tree-root", DefaultTreeRoot, "Store prefix that tree templates are rendered against")
		version     = fs.Bool("version", false, "Print version and exit")
	)

	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, exit.Success(Usage() + "\n")
		}
		return nil, exit.Usagef("Error: failed to parse arguments: %v\n\n%s\n", err, Usage())
	}

	if *version {
		return nil, exit.Success("etcdstat " + Version + "\n")
	}

	positional := fs.Args()
	if len(positional) > 1 {
		return nil, exit.Usagef("Error: %v: %s\n\n%s\n", ErrTooManyArgs, strings.Join(positional[1:], " "), Usage())
	}

	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		return nil, exit.Usagef("Error: %v\n\n%s\n", err, Usage())
	}
	format, err := logging.ParseFormat(*logFormat)
	if err != nil {
		return nil, exit.Usagef("Error: %v\n\n%s\n", err, Usage())
	}

	cfg := &Config{
		ConfigFile:  *configFile,
		Interval:    *interval,
		DialTimeout: *dialTimeout,
		RateLimit:   *rateLimit,
		LogLevel:    level,
		LogFormat:   format,
		Once:        *once,
		TreeRoot:    *treeRoot,
	}
	if len(positional) == 1 {
		cfg.URL = positional[0]
	}

	if err := cfg.Validate(); err != nil {
		return nil, exit.Usagef("Error: %v\n\n%s\n", err, Usage())
	}
	return cfg, nil
}

// Usage returns a usage string for the agent.
func Usage() string {
	return `etcdstat - publish host and service metrics to a key-value store

Usage: etcdstat [options] URL

URL selects the store:
  http://host:2379[,host2:2379]   etcd (also https://, etcd://)
  mqtt://broker:1883              MQTT broker, retained messages (also tcp://, ssl://)
  stdout://                       print "key = value" lines
  memory://                       in-process store, for testing

Options:
  -config FILE          Configuration file (default: /etc/etcdstat.cfg)
  -interval DURATION    Update interval; keys expire after two intervals (default: 10s)
  -dial-timeout D       Store connection timeout (default: 5s)
  -rate-limit N         Maximum store writes per second (0 for unlimited)
  -log-level LEVEL      debug, info, warn or error (default: info)
  -log-format FORMAT    text or json (default: text)
  -once                 Run a single update and exit
  -tree-root PREFIX     Store prefix tree templates are rendered against (default: /)
  -h, -help             Show this help message
  -version              Show version information

Examples:
  etcdstat http://localhost:2379
  etcdstat -interval 30s -config ./etcdstat.cfg http://etcd1:2379,etcd2:2379
  etcdstat -once stdout://`
}
