// Package metrics instruments the pool/validator/bundler with
// OpenTelemetry counters and histograms — pool size, validation
// latency, bundle submissions, reputation transitions — exported over
// OTLP/gRPC, as `original_source/crates/metrics` does for the system
// this module reimplements.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Recorder is the narrow instrumentation surface uopool, validate and
// bundler hold onto; it is safe to leave unset (every method becomes a
// no-op) so those packages never have to special-case "metrics off".
type Recorder struct {
	poolSize            metric.Int64UpDownCounter
	opsAdmitted         metric.Int64Counter
	opsRejected         metric.Int64Counter
	validationLatency   metric.Float64Histogram
	bundlesSubmitted    metric.Int64Counter
	bundleSubmitFailure metric.Int64Counter
	bundleOpsIncluded   metric.Int64Counter
	reputationTransition metric.Int64Counter
}

// New builds a Recorder against meter, naming every instrument under
// the "aabundler" prefix.
func New(meter metric.Meter) (*Recorder, error) {
	r := &Recorder{}
	var err error

	if r.poolSize, err = meter.Int64UpDownCounter("aabundler.pool.size",
		metric.WithDescription("number of user operations currently in the mempool")); err != nil {
		return nil, fmt.Errorf("metrics: pool.size: %w", err)
	}
	if r.opsAdmitted, err = meter.Int64Counter("aabundler.pool.ops_admitted",
		metric.WithDescription("user operations accepted into the mempool")); err != nil {
		return nil, fmt.Errorf("metrics: pool.ops_admitted: %w", err)
	}
	if r.opsRejected, err = meter.Int64Counter("aabundler.pool.ops_rejected",
		metric.WithDescription("user operations rejected by validation")); err != nil {
		return nil, fmt.Errorf("metrics: pool.ops_rejected: %w", err)
	}
	if r.validationLatency, err = meter.Float64Histogram("aabundler.validate.latency_ms",
		metric.WithDescription("time spent validating one user operation"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("metrics: validate.latency_ms: %w", err)
	}
	if r.bundlesSubmitted, err = meter.Int64Counter("aabundler.bundler.bundles_submitted",
		metric.WithDescription("handleOps bundles submitted to a transport")); err != nil {
		return nil, fmt.Errorf("metrics: bundler.bundles_submitted: %w", err)
	}
	if r.bundleSubmitFailure, err = meter.Int64Counter("aabundler.bundler.submit_failures",
		metric.WithDescription("bundle submissions rejected by the transport or reverted")); err != nil {
		return nil, fmt.Errorf("metrics: bundler.submit_failures: %w", err)
	}
	if r.bundleOpsIncluded, err = meter.Int64Counter("aabundler.bundler.ops_included",
		metric.WithDescription("user operations included across submitted bundles")); err != nil {
		return nil, fmt.Errorf("metrics: bundler.ops_included: %w", err)
	}
	if r.reputationTransition, err = meter.Int64Counter("aabundler.reputation.transitions",
		metric.WithDescription("entity reputation status transitions, labeled by resulting status")); err != nil {
		return nil, fmt.Errorf("metrics: reputation.transitions: %w", err)
	}
	return r, nil
}

// SetPoolSize adds delta (positive on admission, negative on removal)
// to the mempool-size up/down counter.
func (r *Recorder) SetPoolSize(ctx context.Context, delta int64) {
	if r == nil {
		return
	}
	r.poolSize.Add(ctx, delta)
}

// AdmitSucceeded records one operation accepted into the mempool.
func (r *Recorder) AdmitSucceeded(ctx context.Context) {
	if r == nil {
		return
	}
	r.opsAdmitted.Add(ctx, 1)
}

// AdmitRejected records one operation rejected by validation, labeled
// by the failing check's name (e.g. "sanity", "simulation", "trace").
func (r *Recorder) AdmitRejected(ctx context.Context, reason string) {
	if r == nil {
		return
	}
	r.opsRejected.Add(ctx, 1, metric.WithAttributes(reasonAttr(reason)))
}

// ObserveValidation records how long one Validate call took.
func (r *Recorder) ObserveValidation(ctx context.Context, d time.Duration) {
	if r == nil {
		return
	}
	r.validationLatency.Record(ctx, float64(d.Microseconds())/1000.0)
}

// BundleSubmitted records one successful bundle submission and its op count.
func (r *Recorder) BundleSubmitted(ctx context.Context, opCount int) {
	if r == nil {
		return
	}
	r.bundlesSubmitted.Add(ctx, 1)
	r.bundleOpsIncluded.Add(ctx, int64(opCount))
}

// BundleSubmitFailed records one failed bundle submission.
func (r *Recorder) BundleSubmitFailed(ctx context.Context) {
	if r == nil {
		return
	}
	r.bundleSubmitFailure.Add(ctx, 1)
}

// ReputationTransition records an entity moving to newStatus.
func (r *Recorder) ReputationTransition(ctx context.Context, newStatus string) {
	if r == nil {
		return
	}
	r.reputationTransition.Add(ctx, 1, metric.WithAttributes(statusAttr(newStatus)))
}
