package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/opsconsole"
	"github.com/jpalmerr/opsconsole/example/mockbackend"
)

func main() {
	// start mock backend (see mockbackend)
	backend := mockbackend.New(slog.Default())
	go func() {
		if err := backend.ListenAndServe(":9999"); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mock backend error", "error", err)
			os.Exit(1)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	console, err := opsconsole.New(
		opsconsole.WithBaseURL("http://localhost:9999"),
		opsconsole.WithPollingInterval(2*time.Second),
		opsconsole.WithFetchTimeout(time.Second),
		opsconsole.WithMemoryHistory(500),
		opsconsole.WithPort(8080),
		opsconsole.WithTitle("Ops Console Demo"),
		opsconsole.WithStateCallback(func(st opsconsole.State) {
			if v := opsconsole.NewView(st); v.Summary != nil && v.Summary.System == opsconsole.StatusError {
				slog.Warn("backend under pressure", "cpu", v.Summary.CPU, "memory", v.Summary.Memory)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create console", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  Ops Console Demo")
	fmt.Println()
	fmt.Println("  Open http://localhost:8080 in your browser")
	fmt.Println("  Mock backend on http://localhost:9999 (password: admin)")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := console.Start(ctx); err != nil {
		slog.Error("console error", "error", err)
		os.Exit(1)
	}
}
