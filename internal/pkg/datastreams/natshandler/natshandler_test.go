package natshandler

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/cgc_opt/internal/pkg/msg"
	"github.com/ohowland/cgc_opt/internal/pkg/scenario"
	"gotest.tools/v3/assert"
)

type fakeConn struct {
	mux      sync.Mutex
	subjects []string
	data     [][]byte
	got      chan struct{}
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.mux.Lock()
	c.subjects = append(c.subjects, subject)
	c.data = append(c.data, data)
	c.mux.Unlock()
	c.got <- struct{}{}
	return nil
}

func (c *fakeConn) Close() {}

func TestPublishesResults(t *testing.T) {
	system := msg.NewPublisher(uuid.New())
	h, err := New(Config{}, system)
	assert.NilError(t, err)
	fake := &fakeConn{got: make(chan struct{}, 1)}
	h.dial = func(string) (conn, error) { return fake, nil }

	done := make(chan struct{})
	go func() {
		h.Process()
		close(done)
	}()

	doc := scenario.Document{Environment: scenario.Environment{Network: "abc", Version: scenario.Version}}
	system.Publish(msg.Result, doc)
	select {
	case <-fake.got:
	case <-time.After(5 * time.Second):
		t.Fatal("nothing published")
	}
	h.Stop()
	<-done

	assert.DeepEqual(t, fake.subjects, []string{DefaultSubject + ".abc"})
	back := scenario.Document{}
	assert.NilError(t, json.Unmarshal(fake.data[0], &back))
	assert.Equal(t, back.Environment.Version, scenario.Version)
	assert.Equal(t, h.Sent(), 1)
}

func TestEncodeRejectsForeignPayload(t *testing.T) {
	h, err := New(Config{Subject: "site"}, msg.NewPublisher(uuid.New()))
	assert.NilError(t, err)
	_, _, err = h.encode(msg.New(uuid.New(), msg.Result, 1.0))
	assert.ErrorContains(t, err, "float64")

	pid := uuid.New()
	subject, _, err := h.encode(msg.New(pid, msg.Result, scenario.Document{}))
	assert.NilError(t, err)
	assert.Equal(t, subject, "site."+pid.String())
}

func TestProcessReturnsWithoutServer(t *testing.T) {
	h, err := New(Config{}, msg.NewPublisher(uuid.New()))
	assert.NilError(t, err)
	h.dial = func(string) (conn, error) { return nil, errors.New("no servers available") }
	h.Process()
	assert.Equal(t, h.Sent(), 0)
}

func TestFailedDialKeepsSubscriptionDrained(t *testing.T) {
	system := msg.NewPublisher(uuid.New())
	h, err := New(Config{}, system)
	assert.NilError(t, err)
	h.dial = func(string) (conn, error) { return nil, errors.New("no servers available") }
	h.Process()

	stopped := make(chan struct{})
	go func() {
		h.Stop()
		h.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop blocked after Process returned")
	}

	// far more than the inbox and subscription buffers hold together
	delivered := 0
	deadline := time.Now().Add(5 * time.Second)
	for delivered < 500 && time.Now().Before(deadline) {
		if system.Publish(msg.Result, scenario.Document{}) == 0 {
			time.Sleep(time.Millisecond)
			continue
		}
		delivered++
	}
	assert.Equal(t, delivered, 500)
	system.Close()
}
