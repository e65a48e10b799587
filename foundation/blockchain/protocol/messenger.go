package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/peer"
	"github.com/google/uuid"
)

// subscriptionBuffer is how many inbound messages a subscriber can fall
// behind before new ones are dropped.
const subscriptionBuffer = 256

// ErrNotConnected is returned when sending while disconnected.
var ErrNotConnected = errors.New("not connected to the network")

// EventHandler defines a function that is called when events
// occur in the processing of messages.
type EventHandler func(v string, args ...any)

// Inbound is a decoded message received from a peer.
type Inbound struct {
	FromAddress string
	RequestCode string
	Message     Message
}

// =============================================================================

// Config represents the configuration required to construct a messenger.
type Config struct {
	Transport Transport
	Registry  *Registry
	Peers     *peer.PeerSet
	EvHandler EventHandler
}

// Messenger dispatches inbound packets to subscribers and correlates
// responses with the requests that asked for them.
type Messenger struct {
	transport Transport
	registry  *Registry
	peers     *peer.PeerSet
	evHandler EventHandler

	mu        sync.Mutex
	connected bool
	messages  map[string]map[int]chan Inbound
	requests  map[string]map[int]chan Inbound
	pending   map[string]chan Inbound
	nextSub   int

	wg   sync.WaitGroup
	shut chan struct{}
}

// NewMessenger constructs a messenger and starts the G dispatching the
// transport's inbound packets.
func NewMessenger(cfg Config) (*Messenger, error) {
	if cfg.Transport == nil {
		return nil, errors.New("transport is required")
	}

	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	peers := cfg.Peers
	if peers == nil {
		peers = peer.NewPeerSet()
	}

	m := Messenger{
		transport: cfg.Transport,
		registry:  cfg.Registry,
		peers:     peers,
		evHandler: ev,
		messages:  make(map[string]map[int]chan Inbound),
		requests:  make(map[string]map[int]chan Inbound),
		pending:   make(map[string]chan Inbound),
		shut:      make(chan struct{}),
	}

	m.wg.Add(1)
	hasStarted := make(chan bool)

	go func() {
		defer m.wg.Done()
		hasStarted <- true
		m.dispatch()
	}()

	<-hasStarted

	return &m, nil
}

// Shutdown stops the dispatching G.
func (m *Messenger) Shutdown() {
	m.evHandler("protocol: Shutdown: started")
	defer m.evHandler("protocol: Shutdown: completed")

	close(m.shut)
	m.wg.Wait()
}

// Address returns the transport address of this peer.
func (m *Messenger) Address() string {
	return m.transport.Address()
}

// Peers returns the set of addresses packets were received from.
func (m *Messenger) Peers() *peer.PeerSet {
	return m.peers
}

// =============================================================================

// Connect joins the network.
func (m *Messenger) Connect() error {
	if err := m.transport.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()

	m.evHandler("protocol: Connect: addr[%s]", m.transport.Address())

	return nil
}

// Disconnect leaves the network.
func (m *Messenger) Disconnect() error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()

	if err := m.transport.Disconnect(); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}

	m.evHandler("protocol: Disconnect: addr[%s]", m.transport.Address())

	return nil
}

// IsConnected reports whether the messenger is part of the network.
func (m *Messenger) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.connected
}

// =============================================================================

// Subscribe returns a channel receiving every broadcast message of the type
// and a function that ends the subscription.
func (m *Messenger) Subscribe(typeName string) (<-chan Inbound, func()) {
	return m.subscribe(m.messages, typeName)
}

// SubscribeRequests returns a channel receiving every request of the type
// sent by other peers and a function that ends the subscription.
func (m *Messenger) SubscribeRequests(typeName string) (<-chan Inbound, func()) {
	return m.subscribe(m.requests, typeName)
}

func (m *Messenger) subscribe(set map[string]map[int]chan Inbound, typeName string) (<-chan Inbound, func()) {
	ch := make(chan Inbound, subscriptionBuffer)

	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++

	if set[typeName] == nil {
		set[typeName] = make(map[int]chan Inbound)
	}
	set[typeName][id] = ch

	unsubscribe := func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		delete(set[typeName], id)
	}

	return ch, unsubscribe
}

// =============================================================================

// Broadcast sends the message to every peer on the network.
func (m *Messenger) Broadcast(msg Message) error {
	return m.broadcast("", msg)
}

// SendRequest broadcasts the request and calls onEach for every response of
// the response type until count responses were handled, the timeout fires
// or the context is cancelled. A handler in progress is never interrupted,
// the timeout is checked once it returns. It returns the number of
// responses handled. Running out of time is not an error.
func (m *Messenger) SendRequest(ctx context.Context, req Message, responseType string, count int, timeout time.Duration, onEach func(Inbound)) (int, error) {
	if count <= 0 {
		return 0, errors.New("response count must be positive")
	}

	if timeout <= 0 {
		return 0, errors.New("timeout must be positive")
	}

	code := uuid.NewString()
	ch := make(chan Inbound, max(count, subscriptionBuffer))

	m.mu.Lock()
	m.pending[code] = ch
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.pending, code)
		m.mu.Unlock()
	}()

	if err := m.broadcast(code, req); err != nil {
		return 0, err
	}

	m.evHandler("protocol: SendRequest: code[%s]: type[%s]: waiting for %d %s", code, req.TypeName(), count, responseType)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var handled int
	for {
		select {
		case <-ctx.Done():
			return handled, ctx.Err()

		case <-timer.C:
			m.evHandler("protocol: SendRequest: code[%s]: timeout: responses[%d]", code, handled)
			return handled, nil

		case in := <-ch:
			if in.Message.TypeName() != responseType {
				continue
			}

			onEach(in)
			handled++

			if handled >= count {
				return handled, nil
			}

			select {
			case <-timer.C:
				m.evHandler("protocol: SendRequest: code[%s]: timeout: responses[%d]", code, handled)
				return handled, nil
			default:
			}
		}
	}
}

// SendResponse sends the payload back to the peer that sent the request.
func (m *Messenger) SendResponse(req Inbound, payload Message) error {
	if !m.IsConnected() {
		return ErrNotConnected
	}

	p, err := NewPacket(m.transport.Address(), req.RequestCode, payload)
	if err != nil {
		return err
	}

	data, err := p.Encode()
	if err != nil {
		return err
	}

	if err := m.transport.Send(req.FromAddress, data); err != nil {
		return fmt.Errorf("send response to %s: %w", req.FromAddress, err)
	}

	return nil
}

func (m *Messenger) broadcast(code string, msg Message) error {
	if !m.IsConnected() {
		return ErrNotConnected
	}

	p, err := NewPacket(m.transport.Address(), code, msg)
	if err != nil {
		return err
	}

	data, err := p.Encode()
	if err != nil {
		return err
	}

	if err := m.transport.Broadcast(data); err != nil {
		return fmt.Errorf("broadcast %s: %w", msg.TypeName(), err)
	}

	return nil
}

// =============================================================================

// dispatch routes inbound packets until shutdown. Packets that can't be
// decoded are dropped.
func (m *Messenger) dispatch() {
	m.evHandler("protocol: dispatch: G started")
	defer m.evHandler("protocol: dispatch: G completed")

	inbox := m.transport.Receive()

	for {
		select {
		case <-m.shut:
			return

		case data, ok := <-inbox:
			if !ok {
				return
			}
			m.route(data)
		}
	}
}

func (m *Messenger) route(data []byte) {
	p, err := DecodePacket(data)
	if err != nil {
		m.evHandler("protocol: route: dropped: %s", err)
		return
	}

	msg, err := m.registry.Decode(p)
	if err != nil {
		m.evHandler("protocol: route: dropped: from[%s]: type[%s]: %s", p.FromAddress, p.TypeName, err)
		return
	}

	if m.peers.Add(peer.New(p.FromAddress)) {
		m.evHandler("protocol: route: new peer[%s]", p.FromAddress)
	}

	in := Inbound{
		FromAddress: p.FromAddress,
		RequestCode: p.RequestCode,
		Message:     msg,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case p.RequestCode == "":
		m.deliver(m.messages[p.TypeName], in)

	case m.pending[p.RequestCode] != nil:
		select {
		case m.pending[p.RequestCode] <- in:
		default:
			m.evHandler("protocol: route: dropped response: code[%s]: queue full", p.RequestCode)
		}

	default:
		m.deliver(m.requests[p.TypeName], in)
	}
}

func (m *Messenger) deliver(subs map[int]chan Inbound, in Inbound) {
	for _, ch := range subs {
		select {
		case ch <- in:
		default:
			m.evHandler("protocol: deliver: dropped: type[%s]: subscriber queue full", in.Message.TypeName())
		}
	}
}
