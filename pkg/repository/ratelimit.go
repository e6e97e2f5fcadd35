package repository

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// rateLimitedReader paces reads through limiter, one WaitN call per Read,
// implementing the upload/download rate caps of SPEC_FULL.md §6
// (max_snapshot_bytes_per_sec / max_restore_bytes_per_sec).
type rateLimitedReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

func rateLimit(ctx context.Context, r io.Reader, limiter *rate.Limiter) io.Reader {
	if limiter == nil {
		return r
	}
	return &rateLimitedReader{ctx: ctx, r: r, limiter: limiter}
}

func (rl *rateLimitedReader) Read(p []byte) (int, error) {
	n, err := rl.r.Read(p)
	if n > 0 {
		if werr := rl.limiter.WaitN(rl.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
