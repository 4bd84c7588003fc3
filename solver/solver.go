// Package solver renders a Cloudflare Turnstile widget in a real browser and
// waits for it to hand out a completion token.
//
// The target URL is never fetched: navigation to it is intercepted and
// answered with a small host page that embeds the widget, so the widget runs
// against the caller's origin without a server behind it.
package solver

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// Clock supplies timestamps for elapsed-time measurement.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Solver runs one browser session per Solve call.
type Solver struct {
	launcher Launcher
	clock    Clock
	sleeper  Sleeper
	attempts int
	interval time.Duration
}

// Option customizes a Solver.
type Option func(*Solver)

func WithClock(c Clock) Option {
	return func(s *Solver) { s.clock = c }
}

func WithSleeper(sl Sleeper) Option {
	return func(s *Solver) { s.sleeper = sl }
}

// WithAttempts overrides the polling budget.
func WithAttempts(n int) Option {
	return func(s *Solver) { s.attempts = n }
}

// WithInterval overrides the wait between attempts.
func WithInterval(d time.Duration) Option {
	return func(s *Solver) { s.interval = d }
}

func New(launcher Launcher, opts ...Option) *Solver {
	s := &Solver{
		launcher: launcher,
		clock:    systemClock{},
		attempts: DefaultAttempts,
		interval: DefaultInterval,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Solve launches a browser, serves the host page for req.URL, polls for a
// token and closes the browser on every path out. A token that never shows
// up is reported as a nil Value, not as an error.
func (s *Solver) Solve(ctx context.Context, req Request) (Result, error) {
	log := zerolog.Ctx(ctx)

	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	target := NormalizeURL(req.URL)
	doc, err := BuildHostPage(req.SiteKey, req.Action, req.CData)
	if err != nil {
		return Result{}, err
	}

	browser, err := s.launcher.Launch(ctx, req.LaunchOptions())
	if err != nil {
		return Result{}, fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if cerr := browser.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to close browser")
		}
	}()

	page, err := browser.NewPage()
	if err != nil {
		return Result{}, fmt.Errorf("open page: %w", err)
	}
	if err := Intercept(page, target, doc); err != nil {
		return Result{}, fmt.Errorf("intercept %s: %w", target, err)
	}

	start := s.clock.Now()
	if err := page.Goto(target); err != nil {
		return Result{}, fmt.Errorf("navigate to %s: %w", target, err)
	}

	poller := &Poller{
		Attempts: s.attempts,
		Interval: s.interval,
		Sleeper:  s.sleeper,
		Debug:    req.Debug,
	}
	out, err := poller.Poll(ctx, page)
	if err != nil {
		return Result{}, err
	}

	res := Result{ElapsedTime: elapsedSeconds(s.clock.Now().Sub(start))}
	if out.State == Found {
		token := out.Token
		res.Value = &token
	}
	log.Debug().
		Str("state", out.State.String()).
		Int("attempts", out.Attempts).
		Float64("elapsed_time", res.ElapsedTime).
		Msg("Poll finished")
	return res, nil
}

// elapsedSeconds rounds d to milliseconds and returns it in seconds.
func elapsedSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}
