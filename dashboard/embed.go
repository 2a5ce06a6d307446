// Package dashboard holds the embedded web UI of the console.
//
// The page is compiled into the binary, so a single executable serves
// everything. The server package serves it at "/" after substituting the
// configured title; library users do not need this package directly.
package dashboard

import "embed"

// Assets contains assets/index.html, a single page with inline CSS and
// JavaScript that follows /api/sse.
//
//go:embed assets/*
var Assets embed.FS
