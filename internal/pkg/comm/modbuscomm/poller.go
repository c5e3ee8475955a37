package modbuscomm

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/google/uuid"
	"github.com/ohowland/cgc_opt/internal/pkg/msg"
	"github.com/ohowland/cgc_opt/internal/pkg/scenario"
)

// DefaultPollRate is used when the configured rate is zero.
const DefaultPollRate = 1000

type client interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error)
}

// Publisher is where polled inputs are sent.
type Publisher interface {
	Publish(topic msg.Topic, payload interface{}) int
}

// Poller continiously polls a target
type Poller struct {
	mux       *sync.Mutex
	pid       uuid.UUID
	connect   func() (client, func(), error)
	pollRate  time.Duration
	registers []Register
	stop      chan struct{}
	stopOnce  sync.Once
	polls     int
}

// PollerConfig is the configuration format for ModbusPoller
type PollerConfig struct {
	IPAddr       string     `json:"IPAddr" mapstructure:"ipaddr"`
	Port         string     `json:"Port" mapstructure:"port"`
	SlaveID      byte       `json:"SlaveID" mapstructure:"slaveid"`
	Timeout      int        `json:"Timeout" mapstructure:"timeout"`
	PollRate     int        `json:"PollRate" mapstructure:"pollrate"`
	EnableLogger bool       `json:"EnableLogger" mapstructure:"enablelogger"`
	Registers    []Register `json:"Registers" mapstructure:"registers"`
}

// NewPoller is a factory for the Poller struct
func NewPoller(cfg PollerConfig) (*Poller, error) {
	if cfg.IPAddr == "" {
		return nil, errors.New("modbus: IPAddr is required")
	}
	for _, r := range cfg.Registers {
		if sizeOf(r.DataType) == 0 {
			return nil, fmt.Errorf("modbus: register %s: unknown datatype %q", key(r), r.DataType)
		}
		if r.Owner == "" || r.Param == "" {
			return nil, fmt.Errorf("modbus: register %s: owner and param are required", key(r))
		}
	}

	handler := modbus.NewTCPClientHandler(cfg.IPAddr + ":" + cfg.Port)
	handler.Timeout = time.Millisecond * time.Duration(cfg.Timeout)
	handler.SlaveId = cfg.SlaveID

	if cfg.EnableLogger {
		handler.Logger = log.New(os.Stdout, "modbus: ", log.LstdFlags)
	}

	rate := cfg.PollRate
	if rate <= 0 {
		rate = DefaultPollRate
	}

	return &Poller{
		mux: &sync.Mutex{},
		pid: uuid.New(),
		connect: func() (client, func(), error) {
			if err := handler.Connect(); err != nil {
				return nil, nil, err
			}
			return modbus.NewClient(handler), func() { handler.Close() }, nil
		},
		pollRate:  time.Millisecond * time.Duration(rate),
		registers: cfg.Registers,
		stop:      make(chan struct{}),
	}, nil
}

// PID is a getter for the poller id
func (m *Poller) PID() uuid.UUID {
	return m.pid
}

// Polls returns the number of poll cycles that produced inputs.
func (m *Poller) Polls() int {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.polls
}

// key names a register in read and write value maps.
func key(r Register) string {
	if r.Name != "" {
		return r.Name
	}
	return r.Owner + "." + r.Param
}

// Read returns the scaled value of every register, keyed by register name.
// A register that fails to read is left out and the last error is returned.
func (m *Poller) Read(registers []Register) (map[string]float64, error) {
	c, closeConn, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer closeConn()

	readValues := make(map[string]float64)
	for _, register := range registers {
		resp, readErr := c.ReadHoldingRegisters(register.Address, sizeOf(register.DataType))
		if readErr != nil {
			err = readErr
			continue
		}
		readValues[key(register)] = decode(resp, register)*register.scale() + register.Offset
	}
	return readValues, err
}

// Write encodes and writes each value to the register of the same name.
func (m *Poller) Write(registers []Register, writeValues map[string]float64) error {
	c, closeConn, err := m.connect()
	if err != nil {
		return err
	}
	defer closeConn()

	for name, val := range writeValues {
		i, writeErr := findIndexByName(registers, name)
		if writeErr != nil {
			err = writeErr
			continue
		}
		r := registers[i]
		raw := (val - r.Offset) / r.scale()
		if _, writeErr := c.WriteMultipleRegisters(r.Address, sizeOf(r.DataType), encode(raw, r)); writeErr != nil {
			err = writeErr
		}
	}
	return err
}

func findIndexByName(r []Register, name string) (int, error) {
	for i, reg := range r {
		if key(reg) == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("modbus: no register named %s", name)
}

// Inputs routes read values to the owner and param of their register.
func Inputs(registers []Register, values map[string]float64) map[string]map[string]interface{} {
	inputs := make(map[string]map[string]interface{})
	for _, r := range registers {
		v, ok := values[key(r)]
		if !ok {
			continue
		}
		if inputs[r.Owner] == nil {
			inputs[r.Owner] = make(map[string]interface{})
		}
		inputs[r.Owner][r.Param] = v
	}
	return inputs
}

// Setpoints returns the first period of each register's output in doc.
// Registers whose output is missing or unresolved are left out.
func Setpoints(registers []Register, doc scenario.Document) map[string]float64 {
	values := make(map[string]float64)
	for _, r := range registers {
		o, ok := doc.Outputs.Get(r.Owner, r.Param)
		if !ok || o.Value() == nil {
			continue
		}
		values[key(r)] = *o.Value()
	}
	return values
}

// StopProcess ends Process. It does not block and may be called more than once.
func (m *Poller) StopProcess() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Process polls the readable registers at the poll rate and publishes them as
// msg.Inputs. Each msg.Result received on results is written to the writable
// registers. Failed polls and writes are logged and the loop continues.
func (m *Poller) Process(system Publisher, results <-chan msg.Msg) {
	readable := FilterRegisters(m.registers, ro)
	writable := FilterRegisters(m.registers, wo)

	ticker := time.NewTicker(m.pollRate)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ticker.C:
			if len(readable) == 0 {
				continue
			}
			values, err := m.Read(readable)
			if err != nil {
				log.Printf("[Modbus] read error: %v\n", err)
			}
			inputs := Inputs(readable, values)
			if len(inputs) == 0 {
				continue
			}
			system.Publish(msg.Inputs, inputs)
			m.mux.Lock()
			m.polls++
			m.mux.Unlock()
		case r, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			doc, ok := r.Payload().(scenario.Document)
			if r.Topic() != msg.Result || !ok || len(writable) == 0 {
				continue
			}
			if err := m.Write(writable, Setpoints(writable, doc)); err != nil {
				log.Printf("[Modbus] write error: %v\n", err)
			}
		case <-m.stop:
			break loop
		}
	}
	log.Println("[Modbus] Process Shutdown")
}
