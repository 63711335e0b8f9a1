package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/thingswise/etcdstat/internal/logging"
	"github.com/thingswise/etcdstat/internal/render"
)

func main() {
	os.Exit(run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := render.Parse(args)
	if err != nil {
		if errors.Is(err, render.ErrHelp) {
			fmt.Fprintln(stdout, render.Usage())
			return 0
		}

		fmt.Fprintf(stderr, "Error: %v\n\n%s\n", err, render.Usage())
		return 1
	}

	logger := logging.New(logging.Config{Level: logging.LevelWarn, Output: stderr})

	r, err := render.New(*cfg, stdout, stdin, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := r.Run(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
