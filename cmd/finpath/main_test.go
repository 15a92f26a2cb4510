package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/finpath/game"
	"github.com/warp/finpath/generic"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()
	assert.Equal(t, "finpath", root.Use)

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "simulate", "version"}, names)
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "finpath dev")
}

func TestLoadScript(t *testing.T) {
	path := writeScript(t, `
path: business-typhoon
seed: 7
steps:
  - action: hire-employees
    payload: {count: 2, salary: 1000, hiring_cost: 500}
  - action: advance-month
    repeat: 3
`)
	s, err := loadScript(path)
	require.NoError(t, err)
	assert.Equal(t, "business-typhoon", s.Path)
	require.NotNil(t, s.Seed)
	assert.Equal(t, uint64(7), *s.Seed)
	assert.Equal(t, generic.HoldingGameMonths, s.Holding)
	require.Len(t, s.Steps, 2)
	assert.Equal(t, 3, s.Steps[1].Repeat)

	_, err = loadScript(writeScript(t, "path: x\nsteps:\n  - repeat: 2\n"))
	assert.ErrorContains(t, err, "action is required")

	_, err = loadScript(writeScript(t, "path: x\nholding: sundial\n"))
	assert.Error(t, err)

	_, err = loadScript(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRunScript(t *testing.T) {
	// GIVEN: a business script that hires and plays three months
	seed := uint64(7)
	s := script{
		Path:    "business-typhoon",
		Seed:    &seed,
		Holding: generic.HoldingGameMonths,
		Steps: []scriptStep{
			{Action: "hire-employees", Payload: map[string]any{"count": 2, "salary": 1000, "hiring_cost": 500}},
			{Action: generic.AdvanceMonth, Repeat: 3},
		},
	}

	// WHEN: it runs
	var buf bytes.Buffer
	res, err := runScript(context.Background(), s, &buf, zaptest.NewLogger(t), false)

	// THEN: every step applied and the report ends with metrics
	require.NoError(t, err)
	assert.Equal(t, game.PathBusiness, res.State.CurrentPath)
	assert.Equal(t, 3, res.State.Progress)
	assert.Equal(t, 7, res.State.Business.Details.Employees)
	assert.Contains(t, buf.String(), "hire-employees")
	assert.Contains(t, buf.String(), "== metrics ==")
}

func TestRunScript_Rejections(t *testing.T) {
	s := script{
		Path:    "business-typhoon",
		Holding: generic.HoldingGameMonths,
		Steps: []scriptStep{
			{Action: "buy-island"},
			{Action: generic.AdvanceMonth},
		},
	}

	// Stops at the first rejected action by default.
	var buf bytes.Buffer
	res, err := runScript(context.Background(), s, &buf, zaptest.NewLogger(t), false)
	require.ErrorIs(t, err, generic.ErrInvalidAction)
	assert.Equal(t, 0, res.State.Progress)
	assert.Contains(t, buf.String(), "rejected")

	// --keep-going reports it and plays on.
	buf.Reset()
	res, err = runScript(context.Background(), s, &buf, zaptest.NewLogger(t), true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.State.Progress)

	s.Path = "moon-base"
	_, err = runScript(context.Background(), s, &buf, zaptest.NewLogger(t), true)
	assert.ErrorIs(t, err, generic.ErrInvalidPath)
}
