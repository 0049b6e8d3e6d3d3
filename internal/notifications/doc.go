// Package notifications pushes cycle and task outcomes to an ntfy topic.
//
// NewService returns a noop implementation when no topic is configured so
// callers never need nil checks. Delivery failures are returned to the
// caller, which logs them; they never affect task state.
package notifications
