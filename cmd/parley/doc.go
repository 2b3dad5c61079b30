// Command parley runs the conversation service: a manager hosting
// scripted two-party conversations, an HTTP API for starting and
// steering them, an observer WebSocket stream, and Prometheus metrics.
package main
