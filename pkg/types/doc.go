// Package types defines the value records shared by the dosing engine, the
// strip reader and every front-end (HTTP API, WebSocket, Telegram bot, CLI).
// None of them is persisted; each lives for a single calculation.
package types
