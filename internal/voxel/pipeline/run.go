package pipeline

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/banshee-data/voxel.report/internal/monitoring"
)

// FrameSource advances the cameras to their next frame and returns its
// index. It returns io.EOF when no frames remain. When a frame fails to
// load, Next returns that frame's index with the error and moves past it. l1cameras.Sequence
// satisfies it.
type FrameSource interface {
	Next(ctx context.Context) (int, error)
}

// Run processes frames from source until it is exhausted or ctx is
// cancelled. A positive interval paces frames on the reconstructor's
// clock; zero runs as fast as frames can be processed. A frame the
// source fails to load is logged and published as degenerate, and the run
// continues with the next one. Run returns the number of frames
// processed, skipped frames included.
func (r *Reconstructor) Run(ctx context.Context, source FrameSource, interval time.Duration) (int, error) {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := r.clock.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C()
	}

	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		index, err := source.Next(ctx)
		if errors.Is(err, io.EOF) {
			monitoring.Logf("sequence finished after %d frames", processed)
			return processed, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return processed, ctxErr
		}

		r.next = index
		if err != nil {
			_, err = r.SkipFrame(ctx, err)
		} else {
			_, err = r.ProcessFrame(ctx)
		}
		if err != nil {
			return processed, err
		}
		processed++

		if tick != nil {
			select {
			case <-ctx.Done():
				return processed, ctx.Err()
			case <-tick:
			}
		}
	}
}
