// Package lpdispatch runs a network optimization loop. It owns the network,
// applies incoming inputs, re-solves and publishes each solved snapshot.
package lpdispatch

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/cgc_opt/internal/pkg/lp"
	"github.com/ohowland/cgc_opt/internal/pkg/msg"
	"github.com/ohowland/cgc_opt/internal/pkg/scenario"
)

// DefaultInterval is the solve period used when none is configured.
const DefaultInterval = 5000 * time.Millisecond

// Inputs is the payload of an msg.Inputs message: owner -> input -> value.
type Inputs = map[string]map[string]interface{}

// Stats counts what the loop has done.
type Stats struct {
	Ingested int `json:"ingested"`
	Rejected int `json:"rejected"`
	Solves   int `json:"solves"`
	Failures int `json:"failures"`
}

// LPDispatch confines a network to its process goroutine. Other goroutines
// reach it through the inbox channel, SolveNow and Stop.
type LPDispatch struct {
	mux       *sync.Mutex
	pid       uuid.UUID
	publisher *msg.PubSub
	site      *scenario.Site
	interval  time.Duration

	inputs  Inputs
	pending bool
	started bool
	latest  *scenario.Document
	stats   Stats

	solveNow chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New returns a dispatcher around site. The initial inputs are applied before
// the first solve.
func New(site *scenario.Site, inputs Inputs, interval time.Duration) (*LPDispatch, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if err := site.Apply(inputs); err != nil {
		return nil, err
	}
	pid := uuid.New()
	d := &LPDispatch{
		mux:       &sync.Mutex{},
		pid:       pid,
		publisher: msg.NewPublisher(pid),
		site:      site,
		interval:  interval,
		inputs:    make(Inputs),
		pending:   true,
		solveNow:  make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	d.merge(inputs)
	return d, nil
}

// PID is a getter for the dispatch id
func (d *LPDispatch) PID() uuid.UUID {
	return d.pid
}

// Subscribe returns a channel of solved snapshots (msg.Result).
func (d *LPDispatch) Subscribe(pid uuid.UUID, topic msg.Topic) (<-chan msg.Msg, error) {
	return d.publisher.Subscribe(pid, topic)
}

// Unsubscribe closes the channels held by pid.
func (d *LPDispatch) Unsubscribe(pid uuid.UUID) {
	d.publisher.Unsubscribe(pid)
}

// StartProcess launches the process loop on ch.
func (d *LPDispatch) StartProcess(ch <-chan msg.Msg) error {
	log.Println("[LP Dispatch] Starting")
	d.markStarted()
	go d.Process(ch)
	return nil
}

func (d *LPDispatch) markStarted() {
	d.mux.Lock()
	d.started = true
	d.mux.Unlock()
}

// Process is the dispatch loop. It returns when ch closes or Stop is called.
func (d *LPDispatch) Process(ch <-chan msg.Msg) {
	d.markStarted()
	defer close(d.done)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
loop:
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				log.Println("[LP Dispatch] disconnected from input bus")
				break loop
			}
			d.ingress(m)
		case <-ticker.C:
			if d.isPending() {
				d.solve()
			}
		case <-d.solveNow:
			d.solve()
		case <-d.stop:
			break loop
		}
	}
	d.publisher.Close()
	log.Println("[LP Dispatch] Goroutine Shutdown")
}

// SolveNow asks the loop to solve without waiting for the next tick.
func (d *LPDispatch) SolveNow() {
	select {
	case d.solveNow <- struct{}{}:
	default:
	}
}

// Stop ends the process loop and waits for it to exit. Without a running loop
// it only closes the result subscriptions.
func (d *LPDispatch) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
	d.mux.Lock()
	started := d.started
	d.mux.Unlock()
	if !started {
		d.publisher.Close()
		return
	}
	<-d.done
}

// Latest returns the last solved snapshot.
func (d *LPDispatch) Latest() (scenario.Document, bool) {
	d.mux.Lock()
	defer d.mux.Unlock()
	if d.latest == nil {
		return scenario.Document{}, false
	}
	return *d.latest, true
}

// Stats returns the loop counters.
func (d *LPDispatch) Stats() Stats {
	d.mux.Lock()
	defer d.mux.Unlock()
	return d.stats
}

func (d *LPDispatch) isPending() bool {
	d.mux.Lock()
	defer d.mux.Unlock()
	return d.pending
}

// ingress updates the state of the linear program
func (d *LPDispatch) ingress(m msg.Msg) {
	switch m.Topic() {
	case msg.Inputs:
		inputs, ok := m.Payload().(Inputs)
		if !ok {
			log.Printf("[LP Dispatch] dropped inputs from %v: payload is %T\n", m.PID(), m.Payload())
			d.count(func(s *Stats) { s.Rejected++ })
			return
		}
		if err := d.site.Apply(inputs); err != nil {
			log.Printf("[LP Dispatch] rejected inputs from %v: %v\n", m.PID(), err)
			d.count(func(s *Stats) { s.Rejected++ })
			return
		}
		d.mux.Lock()
		d.merge(inputs)
		d.pending = true
		d.stats.Ingested++
		d.mux.Unlock()
	default:
	}
}

func (d *LPDispatch) count(f func(*Stats)) {
	d.mux.Lock()
	defer d.mux.Unlock()
	f(&d.stats)
}

// merge records the latest value of every input for the published snapshot.
func (d *LPDispatch) merge(inputs Inputs) {
	for owner, values := range inputs {
		if d.inputs[owner] == nil {
			d.inputs[owner] = make(map[string]interface{})
		}
		for name, v := range values {
			d.inputs[owner][name] = v
		}
	}
}

func (d *LPDispatch) solve() {
	report, err := d.site.Solve()
	if err != nil {
		log.Printf("[LP Dispatch] solve failed: %v\n", err)
		d.count(func(s *Stats) { s.Failures++ })
		return
	}
	if report.Result.Status != lp.Optimal {
		log.Printf("[LP Dispatch] solver status %s: %s\n", report.Result.Status, report.Result.Message)
	}

	d.mux.Lock()
	inputs := make(Inputs, len(d.inputs))
	for owner, values := range d.inputs {
		inputs[owner] = make(map[string]interface{}, len(values))
		for name, v := range values {
			inputs[owner][name] = v
		}
	}
	doc := d.site.Snapshot(inputs, report)
	d.latest = &doc
	d.pending = false
	d.stats.Solves++
	d.mux.Unlock()

	d.publisher.Publish(msg.Result, doc)
}
