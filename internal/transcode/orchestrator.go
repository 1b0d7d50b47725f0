package transcode

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ajaxzhan/gstfs/internal/cache"
	"github.com/ajaxzhan/gstfs/internal/logging"
	"github.com/ajaxzhan/gstfs/pkg/types"
)

// Orchestrator materializes cache entries by running the engine over
// their source file.
type Orchestrator struct {
	engine   Engine
	pipeline string
	timeout  time.Duration

	materializations atomic.Uint64
	failures         atomic.Uint64
}

// NewOrchestrator creates an orchestrator. A zero timeout lets a transcode
// run for as long as the engine takes.
func NewOrchestrator(engine Engine, pipeline string, timeout time.Duration) *Orchestrator {
	return &Orchestrator{
		engine:   engine,
		pipeline: pipeline,
		timeout:  timeout,
	}
}

// Materialize fills the entry's buffer with the transcoded source. It is a
// no-op for an entry that is already ready. A failed entry is transcoded
// again from scratch.
//
// The caller must hold the entry lock for the whole call. That is what
// keeps concurrent opens and reads of the same file waiting until the
// single transcode finishes.
//
// Cancellation of ctx is ignored: a transcode that has started runs to
// completion, failure, or the configured timeout.
func (o *Orchestrator) Materialize(ctx context.Context, e *cache.Entry) error {
	if e.Status().Servable() {
		return nil
	}

	ctx = context.WithoutCancel(ctx)
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	e.Begin()
	o.materializations.Add(1)
	start := time.Now()

	logging.Debug("transcode started",
		logging.String("path", e.Name()),
		logging.String("source", e.Source()),
		logging.String("engine", o.engine.Name()),
	)

	if err := o.engine.Transcode(ctx, o.pipeline, e.Source(), e.Append); err != nil {
		terr := &types.TranscodeError{Source: e.Source(), Engine: o.engine.Name(), Err: err}
		e.Complete(terr)
		o.failures.Add(1)
		logging.Error("transcode failed",
			logging.String("path", e.Name()),
			logging.Duration("elapsed", time.Since(start)),
			logging.Err(err),
		)
		return terr
	}

	e.Complete(nil)
	logging.Info("transcode finished",
		logging.String("path", e.Name()),
		logging.Int64("bytes", e.Len()),
		logging.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// Stats returns how many materializations were started and how many failed.
func (o *Orchestrator) Stats() (materializations, failures uint64) {
	return o.materializations.Load(), o.failures.Load()
}
