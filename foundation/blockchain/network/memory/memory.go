// Package memory provides an in process network. Peers attached to the same
// named network exchange packets through buffered inboxes. A packet sent to
// a full inbox is dropped, the way a congested network loses traffic.
package memory

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// DefaultInboxSize is the number of packets a client can hold before new
// packets addressed to it are dropped.
const DefaultInboxSize = 1024

// Set of error variables for the network.
var (
	ErrNotConnected   = errors.New("client is not connected")
	ErrUnknownAddress = errors.New("address is not on the network")
)

// EventHandler defines a function that is called when events
// occur in the processing of the network.
type EventHandler func(v string, args ...any)

// =============================================================================

// Internet holds every network and the clients connected to them.
type Internet struct {
	mu        sync.RWMutex
	networks  map[string]map[string]*Client
	evHandler EventHandler
}

// New constructs an empty internet.
func New(evHandler EventHandler) *Internet {
	ev := func(v string, args ...any) {
		if evHandler != nil {
			evHandler(v, args...)
		}
	}

	return &Internet{
		networks:  make(map[string]map[string]*Client),
		evHandler: ev,
	}
}

// NewClient constructs a client for the named network with a random
// address. The client isn't connected until Connect is called.
func (in *Internet) NewClient(networkID string, inboxSize int) *Client {
	if inboxSize <= 0 {
		inboxSize = DefaultInboxSize
	}

	return &Client{
		internet:  in,
		networkID: networkID,
		address:   uuid.NewString(),
		inbox:     make(chan []byte, inboxSize),
	}
}

// Clients returns the addresses connected to the named network.
func (in *Internet) Clients(networkID string) []string {
	in.mu.RLock()
	defer in.mu.RUnlock()

	addrs := make([]string, 0, len(in.networks[networkID]))
	for addr := range in.networks[networkID] {
		addrs = append(addrs, addr)
	}

	return addrs
}

func (in *Internet) attach(c *Client) {
	in.mu.Lock()
	defer in.mu.Unlock()

	network, exists := in.networks[c.networkID]
	if !exists {
		network = make(map[string]*Client)
		in.networks[c.networkID] = network
	}

	network[c.address] = c
}

func (in *Internet) detach(c *Client) {
	in.mu.Lock()
	defer in.mu.Unlock()

	delete(in.networks[c.networkID], c.address)
}

func (in *Internet) connected(c *Client) bool {
	in.mu.RLock()
	defer in.mu.RUnlock()

	_, exists := in.networks[c.networkID][c.address]
	return exists
}

func (in *Internet) broadcast(from *Client, data []byte) error {
	in.mu.RLock()
	defer in.mu.RUnlock()

	network := in.networks[from.networkID]
	if _, exists := network[from.address]; !exists {
		return ErrNotConnected
	}

	for addr, c := range network {
		if addr == from.address {
			continue
		}
		in.deliver(c, data)
	}

	return nil
}

func (in *Internet) send(from *Client, to string, data []byte) error {
	in.mu.RLock()
	defer in.mu.RUnlock()

	network := in.networks[from.networkID]
	if _, exists := network[from.address]; !exists {
		return ErrNotConnected
	}

	c, exists := network[to]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownAddress, to)
	}

	in.deliver(c, data)

	return nil
}

func (in *Internet) deliver(c *Client, data []byte) {
	select {
	case c.inbox <- bytes.Clone(data):
	default:
		in.evHandler("memory: deliver: dropped: addr[%s]: inbox full", c.address)
	}
}

// =============================================================================

// Client is a single peer's attachment to a network.
type Client struct {
	internet  *Internet
	networkID string
	address   string
	inbox     chan []byte
}

// Connect attaches the client to its network.
func (c *Client) Connect() error {
	c.internet.attach(c)
	return nil
}

// Disconnect detaches the client from its network. Packets already in the
// inbox stay there.
func (c *Client) Disconnect() error {
	c.internet.detach(c)
	return nil
}

// IsConnected reports whether the client is attached to its network.
func (c *Client) IsConnected() bool {
	return c.internet.connected(c)
}

// Address returns the client's address on the network.
func (c *Client) Address() string {
	return c.address
}

// Broadcast delivers the data to every other client on the network.
func (c *Client) Broadcast(data []byte) error {
	return c.internet.broadcast(c, data)
}

// Send delivers the data to the client with the specified address.
func (c *Client) Send(to string, data []byte) error {
	return c.internet.send(c, to, data)
}

// Receive returns the client's inbox.
func (c *Client) Receive() <-chan []byte {
	return c.inbox
}
