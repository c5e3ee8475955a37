package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ohowland/cgc_opt/internal/pkg/config"
	"github.com/ohowland/cgc_opt/internal/pkg/lp"
	"github.com/ohowland/cgc_opt/internal/pkg/scenario"
	"gotest.tools/v3/assert"
)

var microgrid = filepath.Join("..", "..", "internal", "pkg", "scenario", "testdata", "microgrid.yaml")

func TestSolveCheck(t *testing.T) {
	var w bytes.Buffer
	assert.NilError(t, solve(microgrid, "", true, &w))

	snap, err := scenario.Decode(w.Bytes(), scenario.JSON)
	assert.NilError(t, err)
	assert.Equal(t, snap.Result.Status, lp.Optimal)
	assert.Assert(t, snap.Environment.Timestamp != nil)
}

func TestSolveWritesSnapshot(t *testing.T) {
	out := filepath.Join(t.TempDir(), "solved.yaml")
	var w bytes.Buffer
	assert.NilError(t, solve(microgrid, out, false, &w))
	assert.Assert(t, strings.HasPrefix(w.String(), out+": optimal"), w.String())

	back, err := scenario.Load(out)
	assert.NilError(t, err)
	assert.Equal(t, back.Result.Status, lp.Optimal)
}

func TestSolveCheckFails(t *testing.T) {
	doc, err := scenario.Load(microgrid)
	assert.NilError(t, err)
	doc.Inputs = map[string]map[string]interface{}{"load": {"forecast": 1500.0}}
	path := filepath.Join(t.TempDir(), "changed.json")
	assert.NilError(t, scenario.Save(doc, path))

	var w bytes.Buffer
	err = solve(path, filepath.Join(t.TempDir(), "out.json"), true, &w)
	assert.ErrorContains(t, err, "outputs differ")
	assert.Assert(t, strings.Contains(w.String(), "grid_bus.flow_reverse"), w.String())
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCmd()
	var w bytes.Buffer
	cmd.SetOut(&w)
	cmd.SetArgs([]string{"solve", microgrid, "--check"})
	assert.NilError(t, cmd.Execute())

	cmd = newRootCmd()
	cmd.SetOut(&w)
	cmd.SetErr(&w)
	cmd.SetArgs([]string{"solve"})
	assert.ErrorContains(t, cmd.Execute(), "accepts 1 arg")
}

func TestServeSolvesAndStops(t *testing.T) {
	cfg := config.Config{Scenario: microgrid, Interval: time.Hour}
	cfg.HTTP.Addr = "127.0.0.1:0"

	sys, err := buildSystem(cfg)
	assert.NilError(t, err)
	sys.dispatch.SolveNow()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if doc, ok := sys.dispatch.Latest(); ok {
			assert.Equal(t, doc.Result.Status, lp.Optimal)
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no solve")
		}
		time.Sleep(10 * time.Millisecond)
	}
	sys.shutdown()

	sigs := make(chan os.Signal, 1)
	sigs <- os.Interrupt
	assert.NilError(t, serve(cfg, sigs))
}

func TestServeRejectsBadScenario(t *testing.T) {
	cfg := config.Config{Scenario: filepath.Join(t.TempDir(), "missing.yaml"), Interval: time.Second}
	_, err := buildSystem(cfg)
	assert.Assert(t, err != nil)
}
