package solver

import (
	"strings"
)

const widgetPlaceholder = "<!-- cf turnstile -->"

// ScriptURL is the widget's client script, always loaded async.
const ScriptURL = "https://challenges.cloudflare.com/turnstile/v0/api.js"

const hostTemplate = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Turnstile Solver</title>
    <script src="` + ScriptURL + `" async></script>
</head>
<body>
    ` + widgetPlaceholder + `
</body>
</html>`

// NormalizeURL makes sure u ends with a slash. The result is used both as
// the navigation target and as the interception pattern.
func NormalizeURL(u string) string {
	if strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}

// WidgetMarkup renders the widget's marker element. Values are interpolated
// as-is; a quote inside a value breaks the markup.
func WidgetMarkup(sitekey, action, cdata string) string {
	var b strings.Builder
	b.WriteString(`<div class="cf-turnstile" data-sitekey="`)
	b.WriteString(sitekey)
	b.WriteByte('"')
	if action != "" {
		b.WriteString(` data-action="` + action + `"`)
	}
	if cdata != "" {
		b.WriteString(` data-cdata="` + cdata + `"`)
	}
	b.WriteString("></div>")
	return b.String()
}

// BuildHostPage returns the HTML document served in place of the target URL.
func BuildHostPage(sitekey, action, cdata string) (string, error) {
	if sitekey == "" {
		return "", ErrMissingSiteKey
	}
	return strings.Replace(hostTemplate, widgetPlaceholder, WidgetMarkup(sitekey, action, cdata), 1), nil
}
