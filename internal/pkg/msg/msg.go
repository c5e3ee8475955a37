package msg

import "github.com/google/uuid"

// Topic names a class of messages
type Topic int

const (
	// Inputs carries parameter values routed into a network, map[string]map[string]interface{}
	Inputs Topic = iota
	// Result carries a solved snapshot
	Result
	// Config carries a topology or service configuration change
	Config
)

func (t Topic) String() string {
	switch t {
	case Inputs:
		return "inputs"
	case Result:
		return "result"
	case Config:
		return "config"
	}
	return "unknown"
}

// Publisher is an interface for objects that allow subscribtion to their events
type Publisher interface {
	Subscribe(uuid.UUID, Topic) (<-chan Msg, error)
	Unsubscribe(uuid.UUID)
}

// Msg is a payload stamped with its sender and topic
type Msg struct {
	sender  uuid.UUID
	topic   Topic
	payload interface{}
}

// New is the Msg factory function
func New(sender uuid.UUID, topic Topic, payload interface{}) Msg {
	return Msg{sender, topic, payload}
}

// PID returns the sender's PID
func (v Msg) PID() uuid.UUID {
	return v.sender
}

// Topic returns the message topic
func (v Msg) Topic() Topic {
	return v.topic
}

// Payload returns the message data
func (v Msg) Payload() interface{} {
	return v.payload
}
