// Package argparse parses "--name value" and "--name" style command lines
// against a declarative flag schema.
//
// A flag is written as "--name value" or as a bare "--name". A bare flag is
// one that is followed by another "--" token or by nothing at all; it counts
// as present. Tokens that do not start with "--" and are not consumed as a
// value are ignored.
package argparse

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the value type of a flag.
type Kind int

const (
	// String flags take the following token as their value.
	String Kind = iota
	// Bool flags are presence flags. An explicit true/false token right
	// after the flag is accepted as well.
	Bool
)

// Flag describes one command line flag.
type Flag struct {
	Name        string
	Kind        Kind
	Required    bool
	Default     string
	Choices     []string
	Placeholder string
	Usage       string
}

// Schema is an ordered set of flags. Order is kept for usage output.
type Schema []Flag

// Lookup returns the flag with the given name.
func (s Schema) Lookup(name string) (Flag, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Flag{}, false
}

// Values holds parsed flag values keyed by flag name. Bool flags are stored
// as "true" or "false".
type Values map[string]string

// String returns the value of name, or "" when unset.
func (v Values) String(name string) string {
	return v[name]
}

// Bool reports whether name was given and is truthy.
func (v Values) Bool(name string) bool {
	b, err := strconv.ParseBool(v[name])
	return err == nil && b
}

// Has reports whether name was set on the command line or by a default.
func (v Values) Has(name string) bool {
	_, ok := v[name]
	return ok
}

// MissingError is returned when required flags are absent or empty.
type MissingError struct {
	Names []string
}

func (e *MissingError) Error() string {
	flags := make([]string, len(e.Names))
	for i, n := range e.Names {
		flags[i] = "--" + n
	}
	return "missing required flag(s): " + strings.Join(flags, ", ")
}

// InvalidChoiceError is returned when a flag value is not one of its Choices.
type InvalidChoiceError struct {
	Name    string
	Value   string
	Choices []string
}

func (e *InvalidChoiceError) Error() string {
	return fmt.Sprintf("invalid value %q for --%s (expected one of: %s)",
		e.Value, e.Name, strings.Join(e.Choices, ", "))
}

// Parse reads argv against the schema. Flags outside the schema are kept in
// the returned Values but never validated. Defaults are applied to flags
// that were not given. On error the partially parsed Values are still
// returned, so callers can inspect flags such as --help.
func (s Schema) Parse(argv []string) (Values, error) {
	vals := Values{}
	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		if !strings.HasPrefix(arg, "--") || arg == "--" {
			continue
		}
		name := arg[2:]

		var next string
		hasValue := i+1 < len(argv) && !strings.HasPrefix(argv[i+1], "--")
		if hasValue {
			next = argv[i+1]
		}

		f, known := s.Lookup(name)
		switch {
		case known && f.Kind == Bool:
			vals[name] = "true"
			if hasValue {
				if b, err := strconv.ParseBool(next); err == nil {
					vals[name] = strconv.FormatBool(b)
					i++
				}
			}
		case hasValue:
			vals[name] = next
			i++
		case known:
			// A string flag with nothing after it.
			vals[name] = ""
		default:
			vals[name] = "true"
		}
	}

	for _, f := range s {
		if _, ok := vals[f.Name]; !ok && f.Default != "" {
			vals[f.Name] = f.Default
		}
	}

	var missing []string
	for _, f := range s {
		if f.Required && vals[f.Name] == "" {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) > 0 {
		return vals, &MissingError{Names: missing}
	}

	for _, f := range s {
		v, ok := vals[f.Name]
		if !ok || len(f.Choices) == 0 {
			continue
		}
		if !contains(f.Choices, v) {
			return vals, &InvalidChoiceError{Name: f.Name, Value: v, Choices: f.Choices}
		}
	}
	return vals, nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
