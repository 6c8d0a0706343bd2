package pipeline

import (
	"bytes"
	"context"
	stderrors "errors"
	"image"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/matzehuels/restyle/pkg/cache"
	"github.com/matzehuels/restyle/pkg/errors"
	"github.com/matzehuels/restyle/pkg/observability"
	"github.com/matzehuels/restyle/pkg/style"
)

const keyTypeArtifact = "artifact"

// Runner encapsulates render execution with caching.
// Both CLI and API use this to avoid duplicating caching logic.
//
// The Runner is stateless except for the cache, logger and concurrency
// limit - it doesn't store render results. Multiple goroutines can safely
// use the same Runner with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger

	sem *semaphore.Weighted
	ttl time.Duration
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMaxConcurrent bounds how many renders run at once. Callers beyond
// the limit wait, or give up when their context ends. n <= 0 means no
// limit.
func WithMaxConcurrent(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithArtifactTTL sets how long rendered artifacts stay cached. d <= 0
// keeps cache.TTLArtifact.
func WithArtifactTTL(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.ttl = d
		}
	}
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger, opts ...RunnerOption) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	r := &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
		ttl:    cache.TTLArtifact,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute renders src with the given options, consulting the cache first.
//
// Decode failures are returned as INVALID_IMAGE wrapping a
// *style.DecodeError. Context errors are returned unwrapped.
func (r *Runner) Execute(ctx context.Context, src []byte, opts Options) (*Result, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}

	s := opts.ResolvedStyle()
	result := &Result{
		Style:       s.String(),
		SourceHash:  cache.Hash(src),
		ContentType: style.ContentType,
	}
	result.Stats.InputBytes = len(src)
	key := r.Keyer.ArtifactKey(result.SourceHash, opts.ArtifactKeyOpts())

	if !opts.Refresh {
		if data, ok := r.lookup(ctx, key); ok {
			result.Artifact = data
			result.Width, result.Height = r.dimensions(data)
			result.Stats.OutputBytes = len(data)
			result.CacheInfo.RenderHit = true
			opts.Logger.Debug("artifact from cache", "style", result.Style, "bytes", len(data))
			return result, nil
		}
	}

	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	defer r.release()

	if err := r.render(ctx, src, s, opts, result); err != nil {
		return nil, err
	}

	if err := r.Cache.Set(ctx, key, result.Artifact, r.ttl); err != nil {
		opts.Logger.Warn("cache write failed", "err", err)
	} else {
		observability.Cache().OnCacheSet(ctx, keyTypeArtifact, len(result.Artifact))
	}

	opts.Logger.Info("rendered",
		"style", result.Style,
		"width", result.Width,
		"height", result.Height,
		"bytes", result.Stats.OutputBytes,
		"duration", result.Stats.Total())

	return result, nil
}

// ExecuteBatch renders src in several styles concurrently. Results are in
// the order of styles. The first failure cancels the remaining renders.
func (r *Runner) ExecuteBatch(ctx context.Context, src []byte, styles []string, opts Options) ([]*Result, error) {
	results := make([]*Result, len(styles))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range styles {
		g.Go(func() error {
			o := opts
			o.Style = name
			o.validated = false
			res, err := r.Execute(gctx, src, o)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// render runs decode, apply and encode, filling result.
func (r *Runner) render(ctx context.Context, src []byte, s style.Style, opts Options, result *Result) (err error) {
	hooks := observability.Render()
	hooks.OnRenderStart(ctx, result.Style, len(src))
	start := time.Now()
	defer func() {
		hooks.OnRenderComplete(ctx, result.Style, result.Width, result.Height, time.Since(start), err)
	}()

	t := time.Now()
	img, format, err := style.Decode(src)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidImage, err, "cannot read image")
	}
	result.Stats.DecodeTime = time.Since(t)
	opts.Logger.Debug("decoded", "format", format, "duration", result.Stats.DecodeTime)

	if err := ctx.Err(); err != nil {
		return err
	}

	t = time.Now()
	out := style.Apply(img, s)
	result.Stats.RenderTime = time.Since(t)
	result.Width, result.Height = out.Rect.Dx(), out.Rect.Dy()

	if err := ctx.Err(); err != nil {
		return err
	}

	t = time.Now()
	data, err := style.Encode(out, opts.Quality)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "cannot encode result")
	}
	result.Stats.EncodeTime = time.Since(t)
	result.Artifact = data
	result.Stats.OutputBytes = len(data)
	return nil
}

// lookup returns a cached artifact. Backend errors are logged and treated
// as misses.
func (r *Runner) lookup(ctx context.Context, key string) ([]byte, bool) {
	data, hit, err := r.Cache.Get(ctx, key)
	if err != nil {
		if !stderrors.Is(err, context.Canceled) {
			r.Logger.Warn("cache read failed", "err", err)
		}
		return nil, false
	}
	if !hit {
		observability.Cache().OnCacheMiss(ctx, keyTypeArtifact)
		return nil, false
	}
	observability.Cache().OnCacheHit(ctx, keyTypeArtifact)
	return data, true
}

// dimensions reads width and height from a cached JPEG header.
func (r *Runner) dimensions(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

func (r *Runner) acquire(ctx context.Context) error {
	if r.sem == nil {
		return ctx.Err()
	}
	return r.sem.Acquire(ctx, 1)
}

func (r *Runner) release() {
	if r.sem != nil {
		r.sem.Release(1)
	}
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}
