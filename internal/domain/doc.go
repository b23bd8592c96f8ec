// Package domain contains the job entity, its state machine, and the typed
// payload and result encodings keyed by job kind. It is independent of any
// storage or transport.
package domain
