// Package ws implements the WebSocket calculator endpoint for poolchem-server.
//
// Hub manages a set of connected clients. Each client is a calculator session:
// it sends calculation requests and receives one reply per request. When the
// configuration is reloaded, every client is pushed the new catalog.
//
// New(svc, metrics, pingPeriod) creates a Hub and subscribes it to reloads.
// Hub.Run(ctx) forwards catalog updates and blocks until ctx is cancelled,
// then closes all active connections.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket and sends the current
// catalog immediately on connect.
//
// Client request:
//
//	{"id": "1", "request": { /* same schema as POST /api/v1/calculate */ }}
//
// Server messages:
//
//	{"event": "catalog", "data": { /* same schema as GET /api/v1/products */ }}
//	{"event": "result",  "id": "1", "data": { /* calculation response */ }}
//	{"event": "error",   "id": "1", "error": "..."}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. The endpoint is mounted at /ws/calc by the server.
package ws
