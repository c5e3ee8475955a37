package lpdispatch

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/cgc_opt/internal/pkg/asset"
	"github.com/ohowland/cgc_opt/internal/pkg/lp"
	"github.com/ohowland/cgc_opt/internal/pkg/msg"
	"github.com/ohowland/cgc_opt/internal/pkg/scenario"
	"gotest.tools/v3/assert"
)

func newSite(t *testing.T) *scenario.Site {
	site, err := scenario.Build(scenario.Topology{
		Periods: []float64{1800, 1800},
		Assets: []asset.Config{
			{Name: "bus", Type: "node"},
			{Name: "grid", Type: "grid", Bus: "bus", ImportPrice: []float64{0.30}, ExportPrice: []float64{0.05}},
			{Name: "load", Type: "load", Bus: "bus", Forecast: []float64{1000}},
		},
	})
	assert.NilError(t, err)
	return site
}

func receive(t *testing.T, ch <-chan msg.Msg) scenario.Document {
	t.Helper()
	select {
	case m := <-ch:
		assert.Equal(t, m.Topic(), msg.Result)
		doc, ok := m.Payload().(scenario.Document)
		assert.Assert(t, ok, "payload is %T", m.Payload())
		return doc
	case <-time.After(5 * time.Second):
		t.Fatal("no result published")
	}
	return scenario.Document{}
}

func TestSolveNowPublishesSnapshot(t *testing.T) {
	d, err := New(newSite(t), nil, time.Hour)
	assert.NilError(t, err)
	results, err := d.Subscribe(uuid.New(), msg.Result)
	assert.NilError(t, err)

	inbox := make(chan msg.Msg)
	assert.NilError(t, d.StartProcess(inbox))
	defer d.Stop()

	d.SolveNow()
	doc := receive(t, results)
	assert.Equal(t, doc.Result.Status, lp.Optimal)
	// 1000 W imported at 0.30 for an hour
	assert.Assert(t, math.Abs(doc.Result.Objective-300) < 1e-6, "objective %v", doc.Result.Objective)

	inbox <- msg.New(uuid.New(), msg.Inputs, Inputs{"load": {"forecast": 2000.0}})
	d.SolveNow()
	doc = receive(t, results)
	assert.Assert(t, math.Abs(doc.Result.Objective-600) < 1e-6, "objective %v", doc.Result.Objective)
	assert.Equal(t, doc.Inputs["load"]["forecast"], 2000.0)

	latest, ok := d.Latest()
	assert.Assert(t, ok)
	assert.Equal(t, latest.Result.Objective, doc.Result.Objective)
	assert.Equal(t, d.Stats().Ingested, 1)
}

func TestTickerSolvesPendingInputs(t *testing.T) {
	d, err := New(newSite(t), Inputs{"grid": {"import_price": 0.10}}, 10*time.Millisecond)
	assert.NilError(t, err)
	results, err := d.Subscribe(uuid.New(), msg.Result)
	assert.NilError(t, err)

	inbox := make(chan msg.Msg)
	assert.NilError(t, d.StartProcess(inbox))
	defer d.Stop()

	doc := receive(t, results)
	assert.Assert(t, math.Abs(doc.Result.Objective-100) < 1e-6, "objective %v", doc.Result.Objective)
}

func TestRejectedInputs(t *testing.T) {
	d, err := New(newSite(t), nil, time.Hour)
	assert.NilError(t, err)
	results, err := d.Subscribe(uuid.New(), msg.Result)
	assert.NilError(t, err)

	inbox := make(chan msg.Msg)
	assert.NilError(t, d.StartProcess(inbox))

	inbox <- msg.New(uuid.New(), msg.Inputs, "not a map")
	inbox <- msg.New(uuid.New(), msg.Inputs, Inputs{"load": {"forecast": "lots"}})
	inbox <- msg.New(uuid.New(), msg.Inputs, Inputs{"nobody": {"forecast": 1.0}})
	// the valid half of a rejected message is not applied either
	inbox <- msg.New(uuid.New(), msg.Inputs, Inputs{"load": {"forecast": 2000.0}, "nobody": {"forecast": 1.0}})
	d.SolveNow()
	doc := receive(t, results)
	assert.Assert(t, math.Abs(doc.Result.Objective-300) < 1e-6, "objective %v", doc.Result.Objective)

	close(inbox)
	d.Stop()
	assert.Equal(t, d.Stats().Rejected, 4)
	assert.Equal(t, d.Stats().Ingested, 0)
}

func TestStopWithoutStart(t *testing.T) {
	d, err := New(newSite(t), nil, time.Hour)
	assert.NilError(t, err)
	results, err := d.Subscribe(uuid.New(), msg.Result)
	assert.NilError(t, err)

	stopped := make(chan struct{})
	go func() {
		d.Stop()
		d.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop blocked without a running loop")
	}
	_, ok := <-results
	assert.Assert(t, !ok)
}

func TestNewRejectsBadInputs(t *testing.T) {
	_, err := New(newSite(t), Inputs{"load": {"forecast": "lots"}}, 0)
	assert.ErrorContains(t, err, "forecast")
}
