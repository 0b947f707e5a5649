// Command taskworker is the entrypoint baked into the hard-mode executor's
// container image. It reads the job
// description from environment variables set by v1/executor.Hard, looks
// the named handler up in the shared registry, runs it to completion (the
// container's own deadline/SIGKILL is what bounds it, not an in-process
// timeout), and writes a single JSON result line to stdout.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/EliseyGodX/SchedulerGodX/v1/handlers"
)

type result struct {
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func main() {
	if err := run(); err != nil {
		emit(result{Error: err.Error()})
		os.Exit(1)
	}
}

func run() error {
	name := os.Getenv("SCHEDULERGODX_HANDLER")
	if name == "" {
		return fmt.Errorf("taskworker: SCHEDULERGODX_HANDLER not set")
	}
	args, err := base64.StdEncoding.DecodeString(os.Getenv("SCHEDULERGODX_ARGS"))
	if err != nil {
		return fmt.Errorf("taskworker: decode args: %w", err)
	}
	kwargs, err := base64.StdEncoding.DecodeString(os.Getenv("SCHEDULERGODX_KWARGS"))
	if err != nil {
		return fmt.Errorf("taskworker: decode kwargs: %w", err)
	}

	registry := handlers.NewRegistry()
	handlers.RegisterBuiltins(registry)

	fn, err := registry.Lookup(name)
	if err != nil {
		return fmt.Errorf("taskworker: %w", err)
	}

	out, err := fn(context.Background(), json.RawMessage(args), json.RawMessage(kwargs))
	if err != nil {
		return err
	}
	emit(result{Output: out})
	return nil
}

func emit(r result) {
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(r)
}
