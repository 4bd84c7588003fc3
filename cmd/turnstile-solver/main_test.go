package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turnstile-solver/config"
	"turnstile-solver/solver"
)

type fakeSolver struct {
	reqs  []solver.Request
	token string
	err   error
}

func (f *fakeSolver) Solve(ctx context.Context, req solver.Request) (solver.Result, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return solver.Result{}, f.err
	}
	res := solver.Result{ElapsedTime: 1.25}
	if f.token != "" {
		tok := f.token
		res.Value = &tok
	}
	return res, nil
}

func runWith(t *testing.T, fs *fakeSolver, args ...string) (int, string, string) {
	t.Helper()
	a := &app{newSolver: func(config.Config) Solver { return fs }}
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr, a)
	return code, stdout.String(), stderr.String()
}

func TestRunWithoutArgsPrintsUsage(t *testing.T) {
	fs := &fakeSolver{}
	code, stdout, stderr := runWith(t, fs)

	assert.Equal(t, 1, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "missing required flag(s): --url, --sitekey")
	assert.Contains(t, stderr, "Usage: turnstile-solver --url <url> --sitekey <key>")
	assert.Empty(t, fs.reqs)
}

func TestRunPrintsResult(t *testing.T) {
	fs := &fakeSolver{token: "0.tok"}
	code, stdout, _ := runWith(t, fs,
		"--url", "example.com", "--sitekey", "0x4AAA", "--action", "login", "--cdata", "c1", "--headless")

	require.Equal(t, 0, code)
	require.Len(t, fs.reqs, 1)
	req := fs.reqs[0]
	assert.Equal(t, "example.com", req.URL)
	assert.Equal(t, "0x4AAA", req.SiteKey)
	assert.Equal(t, "login", req.Action)
	assert.Equal(t, "c1", req.CData)
	assert.True(t, req.Headless)
	assert.False(t, req.Debug)
	assert.Equal(t, solver.VariantChromium, req.Browser)
	assert.Empty(t, req.LaunchOptions().Channel)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "0.tok", out["value"])
	assert.Equal(t, 1.25, out["elapsed_time"])
}

func TestRunPrintsNullWhenExhausted(t *testing.T) {
	fs := &fakeSolver{}
	code, stdout, _ := runWith(t, fs, "--url", "https://a.test", "--sitekey", "k")

	require.Equal(t, 0, code)
	assert.Contains(t, stdout, `"value": null`)
}

func TestRunBrowserType(t *testing.T) {
	fs := &fakeSolver{token: "t"}
	code, _, _ := runWith(t, fs,
		"--url", "https://a.test", "--sitekey", "k", "--browser_type", "msedge", "--useragent", "UA/1")

	require.Equal(t, 0, code)
	require.Len(t, fs.reqs, 1)
	opts := fs.reqs[0].LaunchOptions()
	assert.Equal(t, solver.VariantEdge, fs.reqs[0].Browser)
	assert.Equal(t, "msedge", opts.Channel)
	assert.Contains(t, opts.Args, "--user-agent=UA/1")
}

func TestRunRejectsUnknownBrowserType(t *testing.T) {
	fs := &fakeSolver{}
	code, _, stderr := runWith(t, fs, "--url", "https://a.test", "--sitekey", "k", "--browser_type", "firefox")

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "firefox")
	assert.Empty(t, fs.reqs)
}

func TestRunSolveError(t *testing.T) {
	fs := &fakeSolver{err: errors.New("launch browser: boom")}
	code, stdout, stderr := runWith(t, fs, "--url", "https://a.test", "--sitekey", "k")

	assert.Equal(t, 1, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "launch browser: boom")
	assert.Equal(t, 1, strings.Count(stderr, "Error:"))
}

func TestRunReportsSubcommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing config file", []string{"serve", "--config", "/nonexistent/solver.yaml"}, "read config /nonexistent/solver.yaml"},
		{"unknown flag", []string{"serve", "--bogus"}, "unknown flag: --bogus"},
		{"bad redis url", []string{"serve", "--redis", "mysql://nope"}, "parse redis url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &fakeSolver{}
			code, _, stderr := runWith(t, fs, tt.args...)

			assert.Equal(t, 1, code)
			assert.Contains(t, stderr, "Error: ")
			assert.Contains(t, stderr, tt.want)
			assert.Empty(t, fs.reqs)
		})
	}
}

func TestRunIgnoresServeOnlyEnv(t *testing.T) {
	t.Setenv("SOLVER_WORKERS", "many")
	t.Setenv("SOLVER_RESULT_TTL", "soon")
	fs := &fakeSolver{token: "t"}

	code, _, stderr := runWith(t, fs, "--url", "https://a.test", "--sitekey", "k")
	assert.Equal(t, 0, code, stderr)
	assert.Len(t, fs.reqs, 1)
}

func TestRunHelp(t *testing.T) {
	fs := &fakeSolver{}
	code, stdout, _ := runWith(t, fs, "--help")

	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "--browser_type")
	assert.Empty(t, fs.reqs)
}

func TestRunVersion(t *testing.T) {
	code, stdout, _ := runWith(t, &fakeSolver{}, "version")

	assert.Equal(t, 0, code)
	assert.Equal(t, "turnstile-solver version "+Version+"\n", stdout)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("loud"))
}
