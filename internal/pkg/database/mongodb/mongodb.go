// Package mongodb keeps the latest solved snapshot of each network in MongoDB.
package mongodb

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/cgc_opt/internal/pkg/lp"
	"github.com/ohowland/cgc_opt/internal/pkg/msg"
	"github.com/ohowland/cgc_opt/internal/pkg/output"
	"github.com/ohowland/cgc_opt/internal/pkg/scenario"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Config holds the MongoDB connection parameters
type Config struct {
	URI        string `json:"URI" mapstructure:"uri"`
	Port       string `json:"Port" mapstructure:"port"`
	Database   string `json:"Database" mapstructure:"database"`
	Collection string `json:"Collection" mapstructure:"collection"`
}

func (c Config) address() string {
	if c.Port == "" {
		return c.URI
	}
	return c.URI + ":" + c.Port
}

type collection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

func connectMongo(ctx context.Context, cfg Config) (collection, func(), error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.address()))
	if err != nil {
		return nil, nil, err
	}
	disconnect := func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.Printf("[Mongo] disconnect: %v\n", err)
		}
	}
	return client.Database(cfg.Database).Collection(cfg.Collection), disconnect, nil
}

// Handler upserts every msg.Result of its system, keyed by network pid.
type Handler struct {
	mux     *sync.Mutex
	inbox   <-chan msg.Msg
	pid     uuid.UUID
	config  Config
	connect func(context.Context, Config) (collection, func(), error)
	stop    chan struct{}
	once    sync.Once
	written int
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
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongodb: database not configured")
	}
	if cfg.Collection == "" {
		cfg.Collection = "snapshots"
	}
	pid := uuid.New()
	inbox := make(chan msg.Msg, 50)
	chResult, err := system.Subscribe(pid, msg.Result)
	if err != nil {
		return nil, err
	}
	go redirectMsg(chResult, inbox)

	return &Handler{
		mux:     &sync.Mutex{},
		inbox:   inbox,
		pid:     pid,
		config:  cfg,
		connect: connectMongo,
		stop:    make(chan struct{}),
	}, nil
}

// PID is a getter for the handler id
func (h *Handler) PID() uuid.UUID {
	return h.pid
}

// StopProcess ends Process. It does not block and may be called more than once.
func (h *Handler) StopProcess() {
	h.once.Do(func() { close(h.stop) })
}

// Written returns the number of successful upserts.
func (h *Handler) Written() int {
	h.mux.Lock()
	defer h.mux.Unlock()
	return h.written
}

// Record is the stored form of a snapshot. Owner names may contain dots, so
// outputs and inputs are stored as lists rather than nested documents.
type Record struct {
	Network   string         `bson:"network"`
	Timestamp time.Time      `bson:"timestamp"`
	Version   string         `bson:"version"`
	Periods   []float64      `bson:"periods"`
	Result    lp.Result      `bson:"result"`
	Inputs    []InputRecord  `bson:"inputs"`
	Outputs   []OutputRecord `bson:"outputs"`
}

// InputRecord is one input value.
type InputRecord struct {
	Owner string      `bson:"owner"`
	Name  string      `bson:"name"`
	Value interface{} `bson:"value"`
}

// OutputRecord is one output.
type OutputRecord struct {
	Owner  string        `bson:"owner"`
	Name   string        `bson:"name"`
	Output output.Output `bson:",inline"`
}

// NewRecord flattens doc in owner and name order.
func NewRecord(doc scenario.Document) Record {
	r := Record{
		Network: doc.Environment.Network,
		Version: doc.Environment.Version,
		Periods: doc.Config.Periods,
	}
	if doc.Environment.Timestamp != nil {
		r.Timestamp = *doc.Environment.Timestamp
	}
	if doc.Result != nil {
		r.Result = *doc.Result
	}
	for _, owner := range sortedKeys(doc.Inputs) {
		values := doc.Inputs[owner]
		for _, name := range sortedKeys(values) {
			r.Inputs = append(r.Inputs, InputRecord{owner, name, values[name]})
		}
	}
	for _, owner := range doc.Outputs.Owners() {
		outs := doc.Outputs[owner]
		for _, name := range sortedKeys(outs) {
			r.Outputs = append(r.Outputs, OutputRecord{owner, name, outs[name]})
		}
	}
	return r
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func upsert(r Record) (bson.M, bson.D) {
	return bson.M{"network": r.Network}, bson.D{{Key: "$set", Value: r}}
}

// Process connects and writes every result until StopProcess or the system
// closes its channel. A failed write is logged and the loop continues.
func (h *Handler) Process() {
	defer func() { go drain(h.inbox) }()
	ctx := context.Background()
	coll, disconnect, err := h.connect(ctx, h.config)
	if err != nil {
		log.Printf("[Mongo] unable to connect to %s: %v\n", h.config.address(), err)
		return
	}
	defer disconnect()

loop:
	for {
		select {
		case m, ok := <-h.inbox:
			if !ok {
				break loop
			}
			doc, ok := m.Payload().(scenario.Document)
			if m.Topic() != msg.Result || !ok {
				continue
			}
			if doc.Environment.Network == "" {
				doc.Environment.Network = m.PID().String()
			}
			filter, update := upsert(NewRecord(doc))
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_, err := coll.UpdateOne(wctx, filter, update, options.Update().SetUpsert(true))
			cancel()
			if err != nil {
				log.Printf("[Mongo] upsert %s: %v\n", doc.Environment.Network, err)
				continue
			}
			h.mux.Lock()
			h.written++
			h.mux.Unlock()
		case <-h.stop:
			break loop
		}
	}
	log.Println("[Mongo] Process Shutdown")
}
