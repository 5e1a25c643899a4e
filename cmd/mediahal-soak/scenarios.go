package main

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/mediahal/internal/codec"
	"github.com/ManuGH/mediahal/internal/config"
	"github.com/ManuGH/mediahal/internal/errs"
	"github.com/ManuGH/mediahal/internal/mhw"
	"github.com/ManuGH/mediahal/internal/mos"
	"github.com/ManuGH/mediahal/internal/pipeline"
	"github.com/ManuGH/mediahal/internal/scalability"
	"github.com/ManuGH/mediahal/internal/statusreport"
	"github.com/ManuGH/mediahal/internal/workload"
)

type scenarioFunc func(ctx context.Context, e *env) ScenarioResult

var scenarios = map[string]scenarioFunc{
	"modes":        runModes,
	"auth_retry":   runAuthRetry,
	"backpressure": runBackpressure,
	"chaos":        runChaos,
}

const frameTimeout = 10 * time.Second

// frameShapes cover every decode mode on a two-pipe platform.
var frameShapes = []workload.Spec{
	{Width: 1920, Height: 1080, Slices: 2},
	{Width: 4096, Height: 2160, Slices: 4},
	{Width: 7680, Height: 4320, Slices: 8},
	{Width: 3840, Height: 2160, TileColumns: 2},
	{Width: 3840, Height: 2160, TileColumns: 5},
	{Width: 3840, Height: 2160, TileColumns: 2, DownSample: true},
	{Width: 7680, Height: 4320, Slices: 2, ScreenContent: true},
}

func newResult(name string) ScenarioResult {
	return ScenarioResult{Name: name, Pass: true, Observations: make(map[string]int64), Failures: []Failure{}}
}

func (r *ScenarioResult) fail(rule string, frame uint64, format string, args ...any) {
	r.Pass = false
	r.Failures = append(r.Failures, Failure{Time: time.Now(), RuleID: rule, Frame: frame, Message: fmt.Sprintf(format, args...)})
}

// finish stops the harness and records leaks or poller errors.
func (r *ScenarioResult) finish(ctx context.Context, h *harness) {
	if err := h.stop(ctx); err != nil {
		r.fail("TEARDOWN", 0, "%v", err)
	}
}

func sliceBytes(req *codec.FrameRequest) uint32 {
	var n uint32
	for _, s := range req.Slices {
		n += s.Size
	}
	return n
}

func decodeOne(ctx context.Context, h *harness, spec workload.Spec) (statusreport.Status, *codec.FrameRequest, error) {
	fctx, cancel := context.WithTimeout(ctx, frameTimeout)
	defer cancel()
	return h.decode(fctx, spec)
}

// runModes decodes randomly shaped frames and checks each completes with
// every slice byte accounted for under a decision the platform allows.
func runModes(ctx context.Context, e *env) ScenarioResult {
	r := newResult("modes")
	h, err := startHarness(ctx, e, nil, nil)
	if err != nil {
		r.fail("SETUP", 0, "%v", err)
		return r
	}
	defer r.finish(ctx, h)

	submitted := e.metrics.Delta("mediahal_pipeline_frames_submitted_total", map[string]string{"codec": "hevc"})
	for i := 1; i <= e.cfg.Frames; i++ {
		spec := frameShapes[e.rng.IntN(len(frameShapes))]
		spec.Frame = uint64(i)
		st, req, err := decodeOne(ctx, h, spec)
		if err != nil {
			r.fail("DECODE_ERROR", spec.Frame, "%v", err)
			continue
		}
		if st.State != statusreport.StateCompleted {
			r.fail("NOT_COMPLETED", spec.Frame, "state %s code %s: %v", st.State, st.Code, st.Err)
			continue
		}
		if want := sliceBytes(req); st.BytesDecoded != want {
			r.fail("BYTES_MISMATCH", spec.Frame, "decoded %d bytes, bitstream has %d", st.BytesDecoded, want)
		}
		d, _ := h.p.Option()
		checkDecision(&r, spec, d, h.p.HWPipes())
		r.Observations["mode_"+d.Option.Mode.String()]++
		if d.Option.FESeparate {
			r.Observations["fe_separate"]++
		}
		r.Observations["frames"]++
	}
	if got := int64(submitted()); got != r.Observations["frames"] {
		r.fail("METRIC_MISMATCH", 0, "frames_submitted_total grew by %d for %d frames", got, r.Observations["frames"])
	}
	return r
}

func checkDecision(r *ScenarioResult, spec workload.Spec, d scalability.Decision, hwPipes int) {
	opt := d.Option
	switch {
	case opt.NumPipe < 1 || opt.NumPipe > hwPipes:
		r.fail("PIPES_OUT_OF_RANGE", spec.Frame, "%d pipes on %d", opt.NumPipe, hwPipes)
	case opt.Mode == scalability.ModeSingle && opt.NumPipe != 1:
		r.fail("SINGLE_MULTI_PIPE", spec.Frame, "single mode with %d pipes", opt.NumPipe)
	case opt.Mode == scalability.ModeRealTile && spec.TileColumns < 2:
		r.fail("REAL_TILE_WITHOUT_TILES", spec.Frame, "real tile for %d columns", spec.TileColumns)
	case spec.ScreenContent && opt.Mode == scalability.ModeVirtualTile:
		r.fail("SCREEN_CONTENT_SPLIT", spec.Frame, "screen content on virtual tile")
	case opt.UsingSFC != spec.DownSample:
		r.fail("SFC_MISMATCH", spec.Frame, "using sfc %v for down-sample %v", opt.UsingSFC, spec.DownSample)
	}
}

// runAuthRetry makes the firmware report "not authenticated" a random
// number of times per frame and checks the retry loop jumps exactly that
// often before the payload runs.
func runAuthRetry(ctx context.Context, e *env) ScenarioResult {
	r := newResult("auth_retry")
	traits, err := mhw.TraitsFor(e.base.Platform.Generation)
	if err != nil {
		r.fail("SETUP", 0, "%v", err)
		return r
	}
	if !traits.AuthCheckRequired {
		r.Status = scenarioStatusSkipped
		r.Reason = fmt.Sprintf("%s has no firmware authentication check", traits.Generation)
		return r
	}

	h, err := startHarness(ctx, e, nil, nil)
	if err != nil {
		r.fail("SETUP", 0, "%v", err)
		return r
	}
	defer r.finish(ctx, h)

	checks := e.metrics.Delta("mediahal_firmware_auth_checks_total", nil)
	for i := 1; i <= e.cfg.Frames; i++ {
		misses := e.rng.IntN(4)
		seq := make([]uint32, misses, misses+1)
		seq = append(seq, mhw.HucAuthenticatedMask)
		h.dev.SetAuthSequence(seq...)

		before := h.dev.Stats()
		spec := workload.Spec{Frame: uint64(i), Width: 1920, Height: 1080, ShortFormat: true}
		st, _, err := decodeOne(ctx, h, spec)
		if err != nil {
			r.fail("DECODE_ERROR", spec.Frame, "%v", err)
			continue
		}
		if st.State != statusreport.StateCompleted {
			r.fail("NOT_COMPLETED", spec.Frame, "state %s code %s: %v", st.State, st.Code, st.Err)
			continue
		}
		after := h.dev.Stats()
		if jumps := after.ChainedJumps - before.ChainedJumps; jumps != misses {
			r.fail("RETRY_COUNT", spec.Frame, "%d chained jumps for %d misses", jumps, misses)
		}
		if runs := after.HucRuns - before.HucRuns; runs != 1 {
			r.fail("FIRMWARE_RUNS", spec.Frame, "firmware ran %d times", runs)
		}
		r.Observations["retries"] += int64(misses)
		r.Observations["frames"]++
	}
	r.Observations["auth_checks"] = int64(checks())
	return r
}

// runBackpressure submits from one goroutine and retires from another on
// a small status ring. The ring never holds more frames than its depth.
func runBackpressure(ctx context.Context, e *env) ScenarioResult {
	r := newResult("backpressure")
	depth := max(e.cfg.Depth, 1)
	h, err := startHarness(ctx, e, func(c *config.Config) { c.Platform.StatusDepth = depth }, nil)
	if err != nil {
		r.fail("SETUP", 0, "%v", err)
		return r
	}
	defer r.finish(ctx, h)

	type inflight struct {
		h   pipeline.FrameHandle
		rel *mos.Releaser
		req *codec.FrameRequest
	}
	waits := e.metrics.Delta("mediahal_status_backpressure_wait_seconds", nil)
	frames := make(chan inflight, e.cfg.Frames)
	results := make(chan ScenarioResult, 1)
	maxInFlight := 0

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(frames)
		for i := 1; i <= e.cfg.Frames; i++ {
			spec := frameShapes[e.rng.IntN(len(frameShapes))]
			spec.Codec, spec.Frame = codec.HEVC, uint64(i)
			req, rel, err := workload.Build(h.dev, spec)
			if err != nil {
				return fmt.Errorf("frame %d: %w", i, err)
			}
			fh, err := h.p.Submit(gctx, req)
			if err != nil && fh.Pipeline != h.p.ID() {
				_ = rel.Release()
				return fmt.Errorf("frame %d: %w", i, err)
			}
			maxInFlight = max(maxInFlight, h.p.InFlight())
			frames <- inflight{h: fh, rel: rel, req: req}
		}
		return nil
	})
	g.Go(func() error {
		local := newResult("backpressure")
		for f := range frames {
			wctx, cancel := context.WithTimeout(gctx, frameTimeout)
			st, err := h.p.Wait(wctx, f.h)
			cancel()
			if err == nil {
				_, err = h.p.Consume(f.h)
			}
			_ = f.rel.Release()
			switch {
			case err != nil:
				local.fail("WAIT_ERROR", f.h.Frame, "%v", err)
			case st.State != statusreport.StateCompleted:
				local.fail("NOT_COMPLETED", f.h.Frame, "state %s code %s: %v", st.State, st.Code, st.Err)
			case st.BytesDecoded != sliceBytes(f.req):
				local.fail("BYTES_MISMATCH", f.h.Frame, "decoded %d of %d bytes", st.BytesDecoded, sliceBytes(f.req))
			default:
				local.Observations["frames"]++
			}
		}
		results <- local
		return nil
	})
	if err := g.Wait(); err != nil {
		r.fail("PRODUCER", 0, "%v", err)
	}
	local := <-results
	r.Failures = append(r.Failures, local.Failures...)
	r.Pass = r.Pass && local.Pass
	r.Observations["frames"] = local.Observations["frames"]
	r.Observations["max_in_flight"] = int64(maxInFlight)
	r.Observations["backpressure_waits"] = int64(waits())
	if maxInFlight > depth {
		r.fail("RING_OVERFLOW", 0, "%d frames in flight on a ring of %d", maxInFlight, depth)
	}
	return r
}

// runChaos injects decode errors and firmware hangs into a fraction of
// the frames. Faulty frames report the matching code and the next clean
// frame decodes normally.
func runChaos(ctx context.Context, e *env) ScenarioResult {
	r := newResult("chaos")
	traits, err := mhw.TraitsFor(e.base.Platform.Generation)
	if err != nil {
		r.fail("SETUP", 0, "%v", err)
		return r
	}
	h, err := startHarness(ctx, e, nil, nil)
	if err != nil {
		r.fail("SETUP", 0, "%v", err)
		return r
	}
	defer r.finish(ctx, h)

	resets := e.metrics.Delta("mediahal_device_resets_total", nil)
	for i := 1; i <= e.cfg.Frames; i++ {
		spec := workload.Spec{Frame: uint64(i), Width: 1920, Height: 1080}
		want := errs.CodeNone
		if e.rng.Float64() < e.cfg.ChaosRate {
			if traits.AuthCheckRequired && e.rng.IntN(2) == 0 {
				h.dev.SetAuthSequence(mhw.HucNotAuthenticated)
				spec.ShortFormat = true
				want = errs.CodeDeviceTimeout
				r.Observations["injected_hangs"]++
			} else {
				h.dev.InjectDecodeError(0x100 + uint32(e.rng.IntN(0xff)))
				want = errs.CodeHardwareFault
				r.Observations["injected_decode_errors"]++
			}
		}

		st, _, err := decodeOne(ctx, h, spec)
		if want == errs.CodeDeviceTimeout {
			h.dev.SetAuthSequence()
		}
		if err != nil {
			r.fail("DECODE_ERROR", spec.Frame, "%v", err)
			continue
		}
		switch {
		case want == errs.CodeNone && st.State != statusreport.StateCompleted:
			r.fail("CLEAN_FRAME_FAILED", spec.Frame, "state %s code %s: %v", st.State, st.Code, st.Err)
		case want != errs.CodeNone && (st.State != statusreport.StateError || st.Code != want):
			r.fail("FAULT_NOT_REPORTED", spec.Frame, "want %s, got state %s code %s", want, st.State, st.Code)
		}
		r.Observations["frames"]++
	}
	r.Observations["resets_observed"] = int64(resets())
	if hangs := r.Observations["injected_hangs"]; int64(resets()) < hangs {
		r.fail("RESETS_UNCOUNTED", 0, "%d hangs injected, %.0f resets counted", hangs, resets())
	}
	return r
}
