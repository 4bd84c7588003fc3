package solver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// closeTimeout bounds browser teardown; Playwright's Close and Stop can hang.
const closeTimeout = 5 * time.Second

// PlaywrightLauncher launches Chromium-family browsers through a fresh
// Playwright driver per browser.
type PlaywrightLauncher struct {
	// ExecutablePath overrides the browser binary for the default engine.
	ExecutablePath string
	// ActionTimeout, when set, becomes the page's default timeout for reads
	// and clicks.
	ActionTimeout time.Duration
}

func (l *PlaywrightLauncher) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	runner, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     opts.Args,
	}
	if opts.Channel != "" {
		launchOpts.Channel = playwright.String(opts.Channel)
	} else if l.ExecutablePath != "" {
		launchOpts.ExecutablePath = playwright.String(l.ExecutablePath)
	}

	browser, err := runner.Chromium.Launch(launchOpts)
	if err != nil {
		_ = runner.Stop()
		return nil, fmt.Errorf("launch chromium (channel %q): %w", opts.Channel, err)
	}
	return &pwBrowser{runner: runner, browser: browser, actionTimeout: l.ActionTimeout}, nil
}

type pwBrowser struct {
	runner        *playwright.Playwright
	browser       playwright.Browser
	actionTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

func (b *pwBrowser) NewPage() (Page, error) {
	bctx, err := b.browser.NewContext()
	if err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("new page: %w", err)
	}
	if b.actionTimeout > 0 {
		page.SetDefaultTimeout(float64(b.actionTimeout.Milliseconds()))
	}
	return &pwPage{page: page}, nil
}

func (b *pwBrowser) Close() error {
	b.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() {
			done <- errors.Join(b.browser.Close(), b.runner.Stop())
		}()
		select {
		case b.closeErr = <-done:
		case <-time.After(closeTimeout):
			b.closeErr = fmt.Errorf("browser close timed out after %s", closeTimeout)
		}
	})
	return b.closeErr
}

type pwPage struct {
	page playwright.Page
}

func (p *pwPage) Route(pattern string, resp Response) error {
	return p.page.Route(pattern, func(route playwright.Route) {
		_ = route.Fulfill(playwright.RouteFulfillOptions{
			Status:      playwright.Int(resp.Status),
			ContentType: playwright.String(resp.ContentType),
			Body:        resp.Body,
		})
	})
}

func (p *pwPage) Goto(url string) error {
	_, err := p.page.Goto(url)
	return err
}

func (p *pwPage) InputValue(selector string) (string, error) {
	return p.page.Locator(selector).InputValue()
}

func (p *pwPage) Click(selector string) error {
	return p.page.Click(selector)
}

// Install downloads the Playwright driver and the given browsers. With no
// browsers listed only Chromium is installed.
func Install(browsers []string, verbose bool) error {
	if len(browsers) == 0 {
		browsers = []string{"chromium"}
	}
	return playwright.Install(&playwright.RunOptions{
		Browsers: browsers,
		Verbose:  verbose,
	})
}
