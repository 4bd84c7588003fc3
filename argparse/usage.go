package argparse

import (
	"fmt"
	"strings"
	"text/tabwriter"
)

// Usage renders a one-line synopsis followed by a flag table.
func (s Schema) Usage(program string) string {
	var b strings.Builder

	b.WriteString("Usage: ")
	b.WriteString(program)
	for _, f := range s {
		b.WriteByte(' ')
		if f.Required {
			b.WriteString(f.synopsis())
		} else {
			b.WriteString("[" + f.synopsis() + "]")
		}
	}
	b.WriteString("\n\nFlags:\n")

	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	for _, f := range s {
		desc := f.Usage
		if f.Required {
			desc += " (required)"
		}
		if f.Default != "" {
			desc += fmt.Sprintf(" (default %q)", f.Default)
		}
		fmt.Fprintf(tw, "  %s\t%s\n", f.synopsis(), strings.TrimSpace(desc))
	}
	_ = tw.Flush()
	return b.String()
}

func (f Flag) synopsis() string {
	if f.Kind == Bool {
		return "--" + f.Name
	}
	ph := f.Placeholder
	if ph == "" {
		ph = f.Name
	}
	if len(f.Choices) > 0 {
		ph = strings.Join(f.Choices, "|")
	}
	return "--" + f.Name + " <" + ph + ">"
}
