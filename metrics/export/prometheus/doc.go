// Package prometheus renders passgate engine metrics in Prometheus text
// exposition format. Counters are named passgate_*_total; the one histogram
// is passgate_login_latency_seconds.
//
// Callers mount [Exporter.Handler] themselves; nothing is registered
// globally.
package prometheus
