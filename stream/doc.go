// Package stream fans conversation events out to live observers.
//
// The broadcaster receives utterance and termination events from the
// turn engine (it implements orchestrator.EventSink) and forwards them
// to subscribers over buffered channels. Delivery is best-effort: a
// slow observer loses events rather than stalling the conversation.
// The WebSocket handler adapts a subscription to a JSON event stream
// for the monitoring UI.
package stream
