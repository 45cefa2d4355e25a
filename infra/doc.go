// Package infra contains technical adapters: the SQL store, MQTT and
// RabbitMQ messengers, Prometheus and InfluxDB sinks, Sentry monitoring
// and the zerolog setup. These packages should depend only on the
// interfaces defined in the core packages.
package infra
