/*
Package events provides an in-memory event broker for repository lifecycle
notifications.

The events package implements a lightweight pub/sub bus broadcasting
repository-generation and snapshot-lifecycle events to interested
subscribers (CLI status watchers, metrics collectors, test harnesses),
with non-blocking publish and per-subscriber buffering so a slow
subscriber cannot stall the engine.

# Architecture

	Publisher -> Event Channel (buffer: 100) -> Broadcast Loop -> Subscriber Channels (buffer: 50 each)

A full subscriber channel drops the event for that subscriber rather than
blocking the broadcast loop.
*/
package events
