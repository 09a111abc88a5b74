// Package otel binds passgate engine metrics to an OpenTelemetry Meter.
//
// [NewExporter] registers an Int64ObservableCounter per engine counter and an
// Int64ObservableGauge per histogram bucket, all fed by a single callback
// that reads the engine snapshot. Callers own the MeterProvider.
package otel
