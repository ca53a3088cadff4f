// Command lookup runs a single weather lookup and prints the resulting state
// as JSON.
//
// Usage:
//
//	go run ./cmd/lookup -city "Boston"
//	go run ./cmd/lookup -here
//	go run ./cmd/lookup -restore
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/weather-lookup-service/internal/app"
	"github.com/couchcryptid/weather-lookup-service/internal/config"
	"github.com/couchcryptid/weather-lookup-service/internal/observability"
	"github.com/couchcryptid/weather-lookup-service/internal/state"
)

func main() {
	city := flag.String("city", "", "city or place to look up")
	here := flag.Bool("here", false, "look up the configured device location")
	restore := flag.Bool("restore", false, "restore the last searched location")
	flag.Parse()

	if err := run(*city, *here, *restore); err != nil {
		fmt.Fprintln(os.Stderr, "lookup:", err)
		os.Exit(1)
	}
}

func run(city string, here, restore bool) error {
	modes := 0
	for _, set := range []bool{city != "", here, restore} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		return errors.New("exactly one of -city, -here or -restore is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLoggerTo(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, observability.NewMetrics())
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck // process exits right after

	switch {
	case here:
		a.Machine.UseDeviceLocation()
	case restore:
		a.Machine.Reinitialize(a.Device.PermissionGranted())
	default:
		a.Machine.SearchByText(city)
	}

	done := make(chan struct{})
	go func() {
		a.Machine.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	final := a.Machine.State()
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(final); err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if final.Kind == state.KindError {
		return fmt.Errorf("%s: %s", final.Error.Kind, final.Error.Message)
	}
	return nil
}
