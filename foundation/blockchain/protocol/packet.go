// Package protocol implements the peer messaging layer: packet framing,
// typed broadcast messages and request/response exchanges correlated by a
// request code, all on top of a raw Transport.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Transport represents the raw delivery of packets between peers.
type Transport interface {
	Connect() error
	Disconnect() error
	Address() string
	Broadcast(data []byte) error
	Send(to string, data []byte) error
	Receive() <-chan []byte
}

// Message represents a payload that can travel inside a packet. The type
// name is the stable tag the receiving side decodes the body with.
type Message interface {
	TypeName() string
}

// =============================================================================

// Packet is the unit of data exchanged over the transport. An empty request
// code marks a broadcast message.
type Packet struct {
	FromAddress string          `json:"from_address"`
	RequestCode string          `json:"request_code,omitempty"`
	TypeName    string          `json:"type_name"`
	Body        json.RawMessage `json:"body"`
}

// NewPacket constructs a packet carrying the message.
func NewPacket(from string, requestCode string, msg Message) (Packet, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return Packet{}, fmt.Errorf("encoding %s: %w", msg.TypeName(), err)
	}

	p := Packet{
		FromAddress: from,
		RequestCode: requestCode,
		TypeName:    msg.TypeName(),
		Body:        body,
	}

	return p, nil
}

// Encode returns the wire form of the packet.
func (p Packet) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// DecodePacket parses the wire form of a packet.
func DecodePacket(data []byte) (Packet, error) {
	var p Packet
	if err := json.Unmarshal(data, &p); err != nil {
		return Packet{}, err
	}

	if p.FromAddress == "" || p.TypeName == "" {
		return Packet{}, errors.New("packet is missing the sender or type")
	}

	return p, nil
}

// =============================================================================

// ErrUnknownType is returned when a packet carries a type that isn't
// registered.
var ErrUnknownType = errors.New("unknown message type")

// Decoder constructs a message from a packet body.
type Decoder func(body []byte) (Message, error)

// Registry maps type names to the decoders for their bodies.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]Decoder
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		decoders: make(map[string]Decoder),
	}
}

// Register adds the decoder for the type name.
func (r *Registry) Register(typeName string, decoder Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.decoders[typeName] = decoder
}

// Decode returns the message carried by the packet.
func (r *Registry) Decode(p Packet) (Message, error) {
	r.mu.RLock()
	decoder, exists := r.decoders[p.TypeName]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, p.TypeName)
	}

	return decoder(p.Body)
}

// RegisterType adds a JSON decoder for the message type T.
func RegisterType[T Message](r *Registry) {
	var zero T
	r.Register(zero.TypeName(), func(body []byte) (Message, error) {
		var msg T
		if err := json.Unmarshal(body, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	})
}
