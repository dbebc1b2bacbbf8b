// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the assistant hub as a JSON HTTP API.
//
// # Endpoints
//
//   - GET    /health
//   - GET    /stats
//   - GET    /v1/surfaces
//   - GET    /v1/surfaces/{surface}/conversations?q=
//   - POST   /v1/surfaces/{surface}/conversations
//   - GET    /v1/surfaces/{surface}/conversations/{id}
//   - POST   /v1/surfaces/{surface}/conversations/{id}/select
//   - DELETE /v1/surfaces/{surface}/conversations/{id}
//   - POST   /v1/surfaces/{surface}/conversations/{id}/messages
//
// Posting a message returns 202 with the user turn as soon as it is
// appended; the assistant reply arrives later and is visible via GET.
// Blank messages return 204 and change nothing.
//
// # Middleware
//
// Requests pass through panic recovery, zap request logging, security
// headers, per-IP token bucket rate limiting and a request body cap.
//
// # Usage
//
//	srv := server.New(hub, cfg.Server, logger)
//	go srv.ListenAndServe()
//	defer srv.Shutdown(ctx)
package server
