/*
Package observability exports Prometheus metrics for the warm transfer coordinator.

Metrics attach to the service through domain.LifecycleHooks, so the core never
imports the Prometheus client.
*/
package observability
