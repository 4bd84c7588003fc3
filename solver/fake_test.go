package solver

import (
	"context"
	"errors"
	"time"
)

var errNotReady = errors.New("element not ready")

// fakeClock advances only when fakeSleeper sleeps.
type fakeClock struct {
	now   time.Time
	slept time.Duration
	naps  int
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.now = c.now.Add(d)
	c.slept += d
	c.naps++
	return nil
}

type fakeRoute struct {
	pattern string
	resp    Response
}

// fakePage answers InputValue from reads in order; once reads run out it
// keeps returning the last entry.
type fakePage struct {
	reads    []fakeRead
	readIdx  int
	clickErr error
	gotoErr  error

	routes []fakeRoute
	gotos  []string
	clicks int
}

type fakeRead struct {
	value string
	err   error
}

func (p *fakePage) Route(pattern string, resp Response) error {
	p.routes = append(p.routes, fakeRoute{pattern: pattern, resp: resp})
	return nil
}

func (p *fakePage) Goto(url string) error {
	p.gotos = append(p.gotos, url)
	return p.gotoErr
}

func (p *fakePage) InputValue(selector string) (string, error) {
	if len(p.reads) == 0 {
		return "", errNotReady
	}
	r := p.reads[min(p.readIdx, len(p.reads)-1)]
	p.readIdx++
	return r.value, r.err
}

func (p *fakePage) Click(selector string) error {
	p.clicks++
	return p.clickErr
}

type fakeBrowser struct {
	page    *fakePage
	pageErr error
	closed  int
}

func (b *fakeBrowser) NewPage() (Page, error) {
	if b.pageErr != nil {
		return nil, b.pageErr
	}
	return b.page, nil
}

func (b *fakeBrowser) Close() error {
	b.closed++
	return nil
}

type fakeLauncher struct {
	browser   *fakeBrowser
	launchErr error
	opts      []LaunchOptions
}

func (l *fakeLauncher) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	l.opts = append(l.opts, opts)
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	return l.browser, nil
}

func newFakeLauncher(page *fakePage) *fakeLauncher {
	return &fakeLauncher{browser: &fakeBrowser{page: page}}
}
