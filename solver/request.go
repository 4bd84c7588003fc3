package solver

import (
	"errors"
	"fmt"
)

// Variant selects which Chromium build the browser is launched from.
type Variant string

const (
	// VariantChromium is the bundled engine; no channel is set.
	VariantChromium Variant = "chromium"
	VariantChrome   Variant = "chrome"
	VariantEdge     Variant = "msedge"
)

// Variants lists the accepted browser_type values, default first.
var Variants = []string{string(VariantChromium), string(VariantChrome), string(VariantEdge)}

// ParseVariant maps a browser_type value to a Variant. The empty string is
// the default engine.
func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case "", VariantChromium:
		return VariantChromium, nil
	case VariantChrome, VariantEdge:
		return Variant(s), nil
	}
	return "", fmt.Errorf("unknown browser type %q", s)
}

// Channel returns the launch channel for v, or "" for the default engine.
func (v Variant) Channel() string {
	switch v {
	case VariantChrome, VariantEdge:
		return string(v)
	}
	return ""
}

// Request is everything needed to solve one widget.
type Request struct {
	URL       string  `json:"url"`
	SiteKey   string  `json:"sitekey"`
	Action    string  `json:"action,omitempty"`
	CData     string  `json:"cdata,omitempty"`
	Headless  bool    `json:"headless"`
	UserAgent string  `json:"useragent,omitempty"`
	Debug     bool    `json:"debug,omitempty"`
	Browser   Variant `json:"browser_type,omitempty"`
}

var (
	ErrMissingURL     = errors.New("url is required")
	ErrMissingSiteKey = errors.New("sitekey is required")
)

// Validate checks the fields a solve cannot run without.
func (r Request) Validate() error {
	if r.URL == "" {
		return ErrMissingURL
	}
	if r.SiteKey == "" {
		return ErrMissingSiteKey
	}
	if _, err := ParseVariant(string(r.Browser)); err != nil {
		return err
	}
	return nil
}

// LaunchOptions derives the browser launch configuration for r.
func (r Request) LaunchOptions() LaunchOptions {
	opts := LaunchOptions{
		Headless: r.Headless,
		Args:     []string{},
		Channel:  r.Browser.Channel(),
	}
	if r.UserAgent != "" {
		opts.Args = append(opts.Args, "--user-agent="+r.UserAgent)
	}
	return opts
}

// Result is the outcome of a solve. Value is nil when the widget never
// produced a token within the attempt budget.
type Result struct {
	Value       *string `json:"value"`
	ElapsedTime float64 `json:"elapsed_time"`
}

// Token returns the token and whether one was found.
func (r Result) Token() (string, bool) {
	if r.Value == nil {
		return "", false
	}
	return *r.Value, true
}
