// Package redis provides a Redis backed domain.StateStore for deployments
// that want the task list and topic to survive a restart. Every command runs
// through a circuit breaker hook so a dead Redis fails fast.
package redis
