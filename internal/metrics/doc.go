// Package metrics declares the Prometheus instruments for the live feed
// pipeline and the store transport.
//
// Instruments are registered on the default registry at init time through
// promauto; Handler exposes them over HTTP.
package metrics
