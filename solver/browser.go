package solver

import "context"

// LaunchOptions configures a browser launch.
type LaunchOptions struct {
	Headless bool
	Args     []string
	// Channel picks an installed browser build ("chrome", "msedge").
	// Empty means the default engine.
	Channel string
}

// Launcher starts browsers.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

// Browser is a running browser instance. Close must be safe to call after
// a partial failure and more than once.
type Browser interface {
	// NewPage opens a page in a fresh, isolated browsing context.
	NewPage() (Page, error)
	Close() error
}

// Page is the subset of page operations a solve uses.
type Page interface {
	// Route answers every request whose URL matches pattern with resp
	// instead of going to the network.
	Route(pattern string, resp Response) error
	Goto(url string) error
	InputValue(selector string) (string, error)
	Click(selector string) error
}

// Response is a synthesized reply for an intercepted request.
type Response struct {
	Status      int
	ContentType string
	Body        string
}

// Intercept makes page serve doc for the (already normalized) target URL.
func Intercept(page Page, target, doc string) error {
	return page.Route(target, Response{
		Status:      200,
		ContentType: "text/html",
		Body:        doc,
	})
}
