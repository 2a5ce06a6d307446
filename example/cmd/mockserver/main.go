// Standalone mock backend for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/opsconsole login -c example/config.yaml --id admin --password admin
//	go run ./cmd/opsconsole serve -c example/config.yaml
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/jpalmerr/opsconsole/example/mockbackend"
)

func main() {
	addr := flag.String("addr", ":9999", "listen address")
	flag.Parse()

	fmt.Printf("Mock backend starting on %s\n", *addr)
	fmt.Println("Metrics drift on every scrape; log in with password \"admin\"")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := mockbackend.New(logger).ListenAndServe(*addr); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
