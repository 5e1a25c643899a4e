// Package metrics exposes the driver's Prometheus instruments. Callers use
// the Record*/Set*/Observe* helpers; label values are normalized so a bad
// caller cannot explode cardinality.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mediahal"

var (
	framesSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "frames_submitted_total",
		Help:      "Frames handed to the hardware, by codec and decode mode",
	}, []string{"codec", "mode"})

	framesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "frames_completed_total",
		Help:      "Frames retired by the status queue, by outcome",
	}, []string{"outcome"})

	framesAborted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "frames_aborted_total",
		Help:      "Frames abandoned before submission, by error code",
	}, []string{"code"})

	commandBufferBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "command_buffer_bytes",
		Help:      "Bytes written per submitted command buffer",
		Buckets:   prometheus.ExponentialBuckets(256, 2, 10),
	}, []string{"engine"})

	scalabilityDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scalability",
		Name:      "decisions_total",
		Help:      "Scalability decisions by mode and reason",
	}, []string{"mode", "reason"})

	optionCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scalability",
		Name:      "option_cache_total",
		Help:      "Per-frame option reuse (hit) versus recompute (miss)",
	}, []string{"result"})

	statusDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "status",
		Name:      "queue_depth",
		Help:      "Occupied status report slots",
	})

	backpressureWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "status",
		Name:      "backpressure_wait_seconds",
		Help:      "Time a submitter waited for a free status slot",
		Buckets:   []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	authChecks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "firmware",
		Name:      "auth_checks_total",
		Help:      "Firmware authentication check loops emitted",
	})

	syncTokensInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "tokens_in_use",
		Help:      "Sync tokens acquired and not yet released",
	})

	deviceResets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "device",
		Name:      "resets_total",
		Help:      "Engine resets observed through fences, by engine",
	}, []string{"engine"})

	allocationsOutstanding = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "resource",
		Name:      "allocations_outstanding",
		Help:      "GPU resources allocated and not yet freed",
	})
)

// RecordFrameSubmitted counts one submitted frame.
func RecordFrameSubmitted(codec, mode string) {
	framesSubmitted.WithLabelValues(normalizeCodec(codec), normalizeMode(mode)).Inc()
}

// RecordFrameCompleted counts one retired frame. outcome is "completed" or
// an error code label.
func RecordFrameCompleted(outcome string) {
	framesCompleted.WithLabelValues(normalizeOutcome(outcome)).Inc()
}

// RecordFrameAborted counts a frame abandoned on the CPU side.
func RecordFrameAborted(code string) {
	framesAborted.WithLabelValues(normalizeCode(code)).Inc()
}

// ObserveCommandBuffer records the size of one submitted buffer.
func ObserveCommandBuffer(engine string, bytes int) {
	commandBufferBytes.WithLabelValues(normalizeEngine(engine)).Observe(float64(bytes))
}

// RecordScalabilityDecision counts one computed option.
func RecordScalabilityDecision(mode, reason string) {
	scalabilityDecisions.WithLabelValues(normalizeMode(mode), normalizeReason(reason)).Inc()
}

// RecordOptionCache counts an option reuse (hit=true) or recompute.
func RecordOptionCache(hit bool) {
	if hit {
		optionCache.WithLabelValues("hit").Inc()
		return
	}
	optionCache.WithLabelValues("miss").Inc()
}

// SetStatusDepth publishes the number of occupied status slots.
func SetStatusDepth(n int) { statusDepth.Set(float64(n)) }

// ObserveBackpressure records time spent waiting for a status slot.
func ObserveBackpressure(d time.Duration) { backpressureWait.Observe(d.Seconds()) }

// RecordAuthCheck counts one emitted firmware authentication loop.
func RecordAuthCheck() { authChecks.Inc() }

// SetSyncTokensInUse publishes the number of live sync tokens.
func SetSyncTokensInUse(n int) { syncTokensInUse.Set(float64(n)) }

// RecordDeviceReset counts an engine reset seen through a fence.
func RecordDeviceReset(engine string) {
	deviceResets.WithLabelValues(normalizeEngine(engine)).Inc()
}

// SetAllocationsOutstanding publishes the live allocation count.
func SetAllocationsOutstanding(n int) { allocationsOutstanding.Set(float64(n)) }

func normalize(v string, allowed ...string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return "unknown"
}

func normalizeCodec(v string) string {
	return normalize(v, "hevc", "avc", "vp9", "av1")
}

func normalizeMode(v string) string {
	return normalize(v, "single", "virtual_tile", "real_tile")
}

func normalizeEngine(v string) string {
	return normalize(v, "vdbox", "huc", "vebox")
}

func normalizeReason(v string) string {
	return normalize(v,
		"single_pipe_platform", "user_disabled", "screen_content", "real_tile",
		"large_resolution", "typical_resolution", "small_resolution", "user_forced",
	)
}

func normalizeCode(v string) string {
	return normalize(v,
		"invalid_parameter", "not_found", "already_registered", "no_space",
		"device_timeout", "unimplemented", "hardware_fault",
	)
}

func normalizeOutcome(v string) string {
	if strings.EqualFold(strings.TrimSpace(v), "completed") {
		return "completed"
	}
	return normalizeCode(v)
}
