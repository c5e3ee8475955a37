// Package natshandler streams solved snapshots to a NATS server.
package natshandler

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/ohowland/cgc_opt/internal/pkg/msg"
	"github.com/ohowland/cgc_opt/internal/pkg/scenario"

	nats "github.com/nats-io/nats.go"
)

// DefaultSubject prefixes the subject of every published snapshot.
const DefaultSubject = "cgc.network"

// Config holds the NATS connection parameters
type Config struct {
	Server  string `json:"Server" mapstructure:"server"`
	Subject string `json:"Subject" mapstructure:"subject"`
}

type conn interface {
	Publish(subject string, data []byte) error
	Close()
}

func dialNATS(url string) (conn, error) {
	return nats.Connect(url, nats.Name("cgc_opt"))
}

// Handler publishes every msg.Result of its system to <subject>.<network pid>.
type Handler struct {
	mux    *sync.Mutex
	inbox  <-chan msg.Msg
	pid    uuid.UUID
	config Config
	dial   func(string) (conn, error)
	stop   chan struct{}
	once   sync.Once
	sent   int
}

// PID is a getter for the handler id
func (h *Handler) PID() uuid.UUID {
	return h.pid
}

func redirectMsg(chIn <-chan msg.Msg, chOut chan<- msg.Msg) {
	for m := range chIn {
		chOut <- m
	}
	close(chOut)
}

// drain discards what is left in ch until the system closes it.
func drain(ch <-chan msg.Msg) {
	for range ch {
	}
}

// New subscribes a handler to the results of system.
func New(cfg Config, system msg.Publisher) (*Handler, error) {
	if cfg.Server == "" {
		cfg.Server = nats.DefaultURL
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}

	pid := uuid.New()
	inbox := make(chan msg.Msg, 50)
	chResult, err := system.Subscribe(pid, msg.Result)
	if err != nil {
		return nil, err
	}
	go redirectMsg(chResult, inbox)

	return &Handler{
		mux:    &sync.Mutex{},
		inbox:  inbox,
		pid:    pid,
		config: cfg,
		dial:   dialNATS,
		stop:   make(chan struct{}),
	}, nil
}

// Stop ends Process. It does not block and may be called more than once.
func (h *Handler) Stop() {
	h.once.Do(func() { close(h.stop) })
}

// Sent returns the number of snapshots published.
func (h *Handler) Sent() int {
	h.mux.Lock()
	defer h.mux.Unlock()
	return h.sent
}

// Process connects to the server and publishes until Stop or the system
// closes its channel.
func (h *Handler) Process() {
	log.Println("[NATS client] Process Started")
	defer func() { go drain(h.inbox) }()
	nc, err := h.dial(h.config.Server)
	if err != nil {
		log.Printf("[NATS client] unable to connect to %s: %v\n", h.config.Server, err)
		return
	}
	defer nc.Close()

loop:
	for {
		select {
		case m, ok := <-h.inbox:
			if !ok {
				break loop
			}
			if m.Topic() != msg.Result {
				continue
			}
			subject, data, err := h.encode(m)
			if err != nil {
				log.Printf("[NATS client] %v\n", err)
				continue
			}
			if err = nc.Publish(subject, data); err != nil {
				log.Printf("[NATS client] unable to publish to nats server: %v\n", err)
				continue
			}
			h.mux.Lock()
			h.sent++
			h.mux.Unlock()
		case <-h.stop:
			break loop
		}
	}
	log.Println("[NATS client] Process Shutdown")
}

func (h *Handler) encode(m msg.Msg) (string, []byte, error) {
	doc, ok := m.Payload().(scenario.Document)
	if !ok {
		return "", nil, fmt.Errorf("result payload is %T", m.Payload())
	}
	network := doc.Environment.Network
	if network == "" {
		network = m.PID().String()
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", nil, err
	}
	return h.config.Subject + "." + network, data, nil
}
