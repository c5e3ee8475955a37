// Package sqldb keeps the latest solved snapshot of each network in a MySQL or
// PostgreSQL table.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/ohowland/cgc_opt/internal/pkg/msg"
	"github.com/ohowland/cgc_opt/internal/pkg/scenario"
)

// Supported drivers
const (
	MySQL    = "mysql"
	Postgres = "postgres"
)

// Config holds the database connection parameters. DSN, when set, is used as
// is; otherwise it is assembled from the remaining fields.
type Config struct {
	Driver   string `json:"Driver" mapstructure:"driver"`
	DSN      string `json:"DSN" mapstructure:"dsn"`
	Server   string `json:"Server" mapstructure:"server"`
	Port     int    `json:"Port" mapstructure:"port"`
	Username string `json:"Username" mapstructure:"username"`
	Password string `json:"Password" mapstructure:"password"`
	Database string `json:"Database" mapstructure:"database"`
	Table    string `json:"Table" mapstructure:"table"`
}

// dataSource returns the driver specific connection string.
func (c Config) dataSource() string {
	if c.DSN != "" {
		return c.DSN
	}
	if c.Driver == Postgres {
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.Username, c.Password),
			Host:     net.JoinHostPort(c.Server, strconv.Itoa(c.Port)),
			Path:     "/" + c.Database,
			RawQuery: "sslmode=disable",
		}
		return u.String()
	}
	mc := mysql.NewConfig()
	mc.User = c.Username
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = c.Server + ":" + strconv.Itoa(c.Port)
	mc.DBName = c.Database
	mc.ParseTime = true
	return mc.FormatDSN()
}

type dialect struct {
	create string
	upsert string
}

func newDialect(driver, table string) (dialect, error) {
	switch driver {
	case MySQL:
		t := "`" + table + "`"
		return dialect{
			create: `CREATE TABLE IF NOT EXISTS ` + t + ` (network VARCHAR(36) PRIMARY KEY, updated DATETIME(6), status VARCHAR(16), objective DOUBLE, snapshot LONGTEXT)`,
			upsert: `INSERT INTO ` + t + ` (network, updated, status, objective, snapshot) VALUES (?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE updated = VALUES(updated), status = VALUES(status), objective = VALUES(objective), snapshot = VALUES(snapshot)`,
		}, nil
	case Postgres:
		t := pq.QuoteIdentifier(table)
		return dialect{
			create: `CREATE TABLE IF NOT EXISTS ` + t + ` (network VARCHAR(36) PRIMARY KEY, updated TIMESTAMPTZ, status TEXT, objective DOUBLE PRECISION, snapshot JSONB)`,
			upsert: `INSERT INTO ` + t + ` (network, updated, status, objective, snapshot) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (network) DO UPDATE SET updated = EXCLUDED.updated, status = EXCLUDED.status, objective = EXCLUDED.objective, snapshot = EXCLUDED.snapshot`,
		}, nil
	}
	return dialect{}, fmt.Errorf("sqldb: unsupported driver %q", driver)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func openDB(cfg Config) (execer, func(), error) {
	db, err := sql.Open(cfg.Driver, cfg.dataSource())
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, func() { db.Close() }, nil
}

// Handler upserts every msg.Result of its system, one row per network.
type Handler struct {
	mux     *sync.Mutex
	inbox   <-chan msg.Msg
	pid     uuid.UUID
	config  Config
	dialect dialect
	open    func(Config) (execer, func(), error)
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
	if cfg.Table == "" {
		cfg.Table = "snapshots"
	}
	d, err := newDialect(cfg.Driver, cfg.Table)
	if err != nil {
		return nil, err
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
		dialect: d,
		open:    openDB,
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

// row returns the upsert arguments of doc.
func row(doc scenario.Document, fallback uuid.UUID) ([]interface{}, error) {
	network := doc.Environment.Network
	if network == "" {
		network = fallback.String()
	}
	updated := time.Now().UTC()
	if doc.Environment.Timestamp != nil {
		updated = *doc.Environment.Timestamp
	}
	status, objective := "", 0.0
	if doc.Result != nil {
		status, objective = string(doc.Result.Status), doc.Result.Objective
	}
	snapshot, err := scenario.Encode(doc, scenario.JSON)
	if err != nil {
		return nil, err
	}
	return []interface{}{network, updated, status, objective, string(snapshot)}, nil
}

// Process opens the database, creates the table and writes every result
// until StopProcess or the system closes its channel. A failed write is
// logged and the loop continues.
func (h *Handler) Process() {
	defer func() { go drain(h.inbox) }()
	db, closeDB, err := h.open(h.config)
	if err != nil {
		log.Printf("[SQL] unable to open %s database: %v\n", h.config.Driver, err)
		return
	}
	defer closeDB()

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, h.dialect.create); err != nil {
		log.Printf("[SQL] unable to create table %s: %v\n", h.config.Table, err)
		return
	}

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
			args, err := row(doc, m.PID())
			if err != nil {
				log.Printf("[SQL] encode snapshot: %v\n", err)
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, time.Second)
			_, err = db.ExecContext(wctx, h.dialect.upsert, args...)
			cancel()
			if err != nil {
				log.Printf("[SQL] error %s update db\n", err)
				continue
			}
			h.mux.Lock()
			h.written++
			h.mux.Unlock()
		case <-h.stop:
			break loop
		}
	}
	log.Println("[SQL] Process Shutdown")
}
