package solver

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultAttempts is the fixed polling budget.
	DefaultAttempts = 10
	// DefaultInterval is the wait between two attempts.
	DefaultInterval = 500 * time.Millisecond

	// ResponseSelector is the hidden input the widget writes its token to.
	ResponseSelector = "[name=cf-turnstile-response]"
	// WidgetSelector is the container clicked to nudge the widget.
	WidgetSelector = "div.cf-turnstile"
)

// PollState is the state of a Poller run.
type PollState int

const (
	Polling PollState = iota
	Found
	Exhausted
)

func (s PollState) String() string {
	switch s {
	case Polling:
		return "polling"
	case Found:
		return "found"
	case Exhausted:
		return "exhausted"
	}
	return fmt.Sprintf("PollState(%d)", int(s))
}

// Sleeper waits between poll attempts.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Outcome is where a Poller run ended.
type Outcome struct {
	State    PollState
	Token    string
	Attempts int
}

// Poller reads the widget's response field until it holds a token or the
// attempt budget runs out. Zero fields take the package defaults.
type Poller struct {
	Attempts int
	Interval time.Duration
	Sleeper  Sleeper
	// Debug logs read and click failures. They are never fatal.
	Debug bool
}

func (p *Poller) budget() int {
	if p.Attempts > 0 {
		return p.Attempts
	}
	return DefaultAttempts
}

func (p *Poller) interval() time.Duration {
	if p.Interval > 0 {
		return p.Interval
	}
	return DefaultInterval
}

func (p *Poller) sleeper() Sleeper {
	if p.Sleeper != nil {
		return p.Sleeper
	}
	return timerSleeper{}
}

// Poll runs until Found or Exhausted. Exhausted is not an error; the only
// error is ctx ending during a wait.
func (p *Poller) Poll(ctx context.Context, page Page) (Outcome, error) {
	out := Outcome{State: Polling}
	for out.State == Polling {
		if err := p.step(ctx, page, &out); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (p *Poller) step(ctx context.Context, page Page, out *Outcome) error {
	log := zerolog.Ctx(ctx)
	out.Attempts++

	value, err := page.InputValue(ResponseSelector)
	if err == nil && value != "" {
		out.State = Found
		out.Token = value
		return nil
	}
	if err != nil && p.Debug {
		log.Debug().Err(err).Int("attempt", out.Attempts).Msg("Response field not readable")
	}

	if err := page.Click(WidgetSelector); err != nil && p.Debug {
		log.Debug().Err(err).Int("attempt", out.Attempts).Msg("Widget click failed")
	}

	if err := p.sleeper().Sleep(ctx, p.interval()); err != nil {
		return fmt.Errorf("wait after attempt %d: %w", out.Attempts, err)
	}
	if out.Attempts >= p.budget() {
		out.State = Exhausted
	}
	return nil
}
