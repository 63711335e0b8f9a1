package render

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/thingswise/etcdstat/internal/kv"
)

var (
	ErrNoArguments    = errors.New("no arguments provided")
	ErrHelp           = errors.New("help requested")
	ErrMissingTmpl    = errors.New("TEMPLATE is required")
	ErrMissingInput   = errors.New("INPUT or -store is required")
	ErrInputAndStore  = errors.New("INPUT and -store are mutually exclusive")
	ErrWatchNeedStore = errors.New("-watch requires -store")
	ErrSelectNoInput  = errors.New("-select requires INPUT")
	ErrInvalidFormat  = errors.New("-format must be one of: json, yaml")
)

// Format is the output encoding of the rendered result.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Config defines CLI options for treerender.
type Config struct {
	TemplateFile string
	InputFile    string // "-" reads standard input
	Select       string
	StoreURL     string
	Prefix       string
	DialTimeout  time.Duration
	Format       Format
	Watch        bool
	Quiet        bool
}

// Parse parses and validates CLI arguments.
func Parse(args []string) (*Config, error) {
	if len(args) == 0 {
		return nil, ErrNoArguments
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}

	sel := fs.String("select", "", "JSONPath applied to INPUT before rendering")
	store := fs.String("store", "", "Render against a snapshot of this store URL")
	prefix := fs.String("prefix", "/", "Store prefix that becomes the document root")
	dialTimeout := fs.Duration("dial-timeout", kv.DefaultDialTimeout, "Store connection timeout")
	format := fs.String("format", "json", "Output format: json or yaml")
	watch := fs.Bool("watch", false, "Re-render on every store change")
	quiet := fs.Bool("quiet", false, "Print only the encoded result")

	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, ErrHelp
		}
		return nil, fmt.Errorf("parse arguments: %w", err)
	}

	positional := fs.Args()
	if len(positional) == 0 {
		return nil, ErrMissingTmpl
	}
	if len(positional) > 2 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(positional[2:], " "))
	}

	cfg := &Config{
		TemplateFile: positional[0],
		Select:       *sel,
		StoreURL:     *store,
		Prefix:       *prefix,
		DialTimeout:  *dialTimeout,
		Watch:        *watch,
		Quiet:        *quiet,
	}
	if len(positional) == 2 {
		cfg.InputFile = positional[1]
	}

	switch {
	case cfg.InputFile == "" && cfg.StoreURL == "":
		return nil, ErrMissingInput
	case cfg.InputFile != "" && cfg.StoreURL != "":
		return nil, ErrInputAndStore
	case cfg.Watch && cfg.StoreURL == "":
		return nil, ErrWatchNeedStore
	case cfg.Select != "" && cfg.InputFile == "":
		return nil, ErrSelectNoInput
	}

	f, err := parseFormat(*format)
	if err != nil {
		return nil, err
	}
	cfg.Format = f

	return cfg, nil
}

func parseFormat(input string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "", string(FormatJSON):
		return FormatJSON, nil
	case string(FormatYAML):
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w, got: %s", ErrInvalidFormat, input)
	}
}

// Usage returns command usage text.
func Usage() string {
	return `treerender - render a tree template against a document

Usage:
  treerender [options] TEMPLATE INPUT
  treerender [options] -store URL [-prefix P] [-watch] TEMPLATE

TEMPLATE and INPUT are YAML or JSON files; INPUT "-" reads standard input.

Options:
  -select EXPR        JSONPath applied to INPUT before rendering
  -store URL          Render against a snapshot of a store (etcd, memory)
  -prefix P           Store prefix that becomes the document root (default: /)
  -dial-timeout D     Store connection timeout (default: 5s)
  -format FORMAT      Output format: json or yaml (default: json)
  -watch              Re-render on every change below -prefix
  -quiet              Print only the encoded result
  -h, --help          Show this help message`
}
