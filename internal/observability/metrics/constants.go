// Package metrics provides custom Prometheus metrics for the dtmfin pipeline.
package metrics

import "time"

// Label values.
const (
	LabelOSC = "osc"
	LabelRaw = "raw"
)

// Histogram bucket configuration.
const (
	BucketStart100us = 0.0001
	BucketStart1ms   = 0.001
	BucketStart64B   = 64.0
	BucketFactor2    = 2
	BucketCount10    = 10
)

// ShutdownTimeout is the timeout for graceful shutdown of the metrics server.
const ShutdownTimeout = 5 * time.Second
