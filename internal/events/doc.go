// Package events carries job state transitions from the job engine to
// whoever is listening.
//
// The engine publishes a JobEvent through an EventEmitter after every write
// that changes a job's status. InMemoryEventEmitter fans the event out to
// registered EventHandlers: the in-process Hub behind the websocket endpoint
// and, when configured, the NATS and Redis publishers. Delivery is at least
// once and best effort; a failing handler never blocks the others.
package events
