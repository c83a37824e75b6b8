// Package tracing exports spans for batch production and availability
// probes through OpenTelemetry.
package tracing
