// Package webservice serves the latest solved network over HTTP and accepts
// inputs for the dispatch loop.
package webservice

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/ohowland/cgc_opt/internal/pkg/dispatch/lpdispatch"
	"github.com/ohowland/cgc_opt/internal/pkg/msg"
	"github.com/ohowland/cgc_opt/internal/pkg/scenario"
)

const contentType = "application/json; charset=UTF-8"

// Config is the listen address of the service.
type Config struct {
	Addr string `json:"Addr" mapstructure:"addr"`
}

// Source is the dispatch loop being served.
type Source interface {
	msg.Publisher
	Latest() (scenario.Document, bool)
	Stats() lpdispatch.Stats
}

// Publisher receives posted inputs.
type Publisher interface {
	Publish(topic msg.Topic, payload interface{}) int
}

// NetworkStatus is the body of GET /network/status.
type NetworkStatus struct {
	Network   string           `json:"network,omitempty"`
	Timestamp *time.Time       `json:"timestamp,omitempty"`
	Status    string           `json:"status"`
	Objective float64          `json:"objective"`
	Message   string           `json:"message,omitempty"`
	Stats     lpdispatch.Stats `json:"stats"`
}

// App holds what the handlers need.
type App struct {
	Config Config
	source Source
	inputs Publisher
}

// New returns an App serving source and forwarding posted inputs to inputs.
func New(cfg Config, source Source, inputs Publisher) *App {
	return &App{Config: cfg, source: source, inputs: inputs}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Router returns the routes of the service.
func (app *App) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", app.BaseHandler)
	r.HandleFunc("/network/status", app.StatusHandler).Methods("GET")
	r.HandleFunc("/network/outputs", app.OutputsHandler).Methods("GET")
	r.HandleFunc("/network/outputs/{owner}", app.OutputsHandler).Methods("GET")
	r.HandleFunc("/network/inputs", app.InputsHandler).Methods("POST")
	r.HandleFunc("/network/stream", app.StreamHandler).Methods("GET")
	return r
}

// ListenAndServe runs the router on Config.Addr.
func (app *App) ListenAndServe() error {
	log.Printf("[Webservice] listening on %s\n", app.Config.Addr)
	return http.ListenAndServe(app.Config.Addr, app.Router())
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Println("[Webservice] malformed JSON:", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(code)
	if _, err := w.Write(body); err != nil {
		log.Println("[Webservice] write response:", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

func (app *App) BaseHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
}

// StatusHandler reports the solver status of the latest snapshot. Before the
// first solve the status is "pending".
func (app *App) StatusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", contentType)
	resp := NetworkStatus{Status: "pending", Stats: app.source.Stats()}
	if doc, ok := app.source.Latest(); ok {
		resp.Network = doc.Environment.Network
		resp.Timestamp = doc.Environment.Timestamp
		if doc.Result != nil {
			resp.Status = string(doc.Result.Status)
			resp.Objective = doc.Result.Objective
			resp.Message = doc.Result.Message
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// OutputsHandler returns every output of the latest snapshot, or those of a
// single owner.
func (app *App) OutputsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", contentType)
	doc, ok := app.source.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "network not solved yet")
		return
	}
	owner, scoped := mux.Vars(r)["owner"]
	if !scoped {
		writeJSON(w, http.StatusOK, doc.Outputs)
		return
	}
	outputs, ok := doc.Outputs[owner]
	if !ok {
		writeError(w, http.StatusNotFound, "no outputs for "+owner)
		return
	}
	writeJSON(w, http.StatusOK, outputs)
}

// InputsHandler forwards an owner -> input -> value body to the dispatch loop.
// Validation happens when the loop applies it; rejections show in the stats.
func (app *App) InputsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", contentType)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var inputs lpdispatch.Inputs
	if err := json.Unmarshal(body, &inputs); err != nil {
		log.Println("[Webservice] malformed JSON:", err)
		writeError(w, http.StatusBadRequest, "malformed JSON: "+err.Error())
		return
	}
	if len(inputs) == 0 {
		writeError(w, http.StatusBadRequest, "no inputs")
		return
	}
	n := app.inputs.Publish(msg.Inputs, inputs)
	writeJSON(w, http.StatusAccepted, map[string]int{"delivered": n})
}

// StreamHandler upgrades to a websocket and pushes the latest snapshot, then
// every new one, as JSON text messages.
func (app *App) StreamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("[Webservice] websocket upgrade:", err)
		return
	}
	pid := uuid.New()
	ch, err := app.source.Subscribe(pid, msg.Result)
	if err != nil {
		log.Println("[Webservice] subscribe:", err)
		conn.Close()
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		app.source.Unsubscribe(pid)
		conn.Close()
	}()

	if doc, ok := app.source.Latest(); ok {
		if err := push(conn, doc); err != nil {
			return
		}
	}
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "dispatch stopped"))
				return
			}
			doc, ok := m.Payload().(scenario.Document)
			if !ok {
				continue
			}
			if err := push(conn, doc); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func push(conn *websocket.Conn, doc scenario.Document) error {
	body, err := scenario.Encode(doc, scenario.JSON)
	if err != nil {
		log.Println("[Webservice] encode snapshot:", err)
		return nil
	}
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, body)
}
