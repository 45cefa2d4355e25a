// Package metrics defines the sinks that record booking and dispatch
// activity. PromSink and InfluxSink live in infra/metrics and register
// themselves with the factory here; NewMetricsSink returns a MultiSink when
// several sinks are configured. An event collector feeds the sinks from the
// domain event bus.
package metrics
