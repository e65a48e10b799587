package protocol_test

import (
	"context"
	"testing"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/network/memory"
	"github.com/ardanlabs/utxochain/foundation/blockchain/protocol"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

type ping struct {
	Value int `json:"value"`
}

func (ping) TypeName() string { return "Ping" }

type pong struct {
	Value int `json:"value"`
}

func (pong) TypeName() string { return "Pong" }

// =============================================================================

func Test_Broadcast(t *testing.T) {
	t.Log("Given the need to broadcast typed messages.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a peer broadcasts a message.", testID)
		{
			internet := memory.New(nil)
			a := newMessenger(t, internet)
			b := newMessenger(t, internet)

			msgs, unsubscribe := b.Subscribe(ping{}.TypeName())
			defer unsubscribe()

			raw := internet.NewClient("main", 0)
			raw.Connect()
			raw.Broadcast([]byte("not a packet"))
			raw.Broadcast([]byte(`{"from_address":"x","type_name":"Unknown","body":{}}`))

			if err := a.Broadcast(ping{Value: 7}); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to broadcast: %s", failed, testID, err)
			}

			select {
			case in := <-msgs:
				p, ok := in.Message.(ping)
				if !ok || p.Value != 7 || in.FromAddress != a.Address() {
					t.Fatalf("\t%s\tTest %d:\tShould receive the message as sent.", failed, testID)
				}
			case <-time.After(5 * time.Second):
				t.Fatalf("\t%s\tTest %d:\tShould receive the message.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould receive the message past malformed packets.", success, testID)

			if len(b.Peers().Copy("")) != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould record only the sender of a valid packet as a peer.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould record only the sender of a valid packet as a peer.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen a peer is disconnected.", testID)
		{
			internet := memory.New(nil)
			a := newMessenger(t, internet)

			a.Disconnect()
			if err := a.Broadcast(ping{}); err != protocol.ErrNotConnected {
				t.Fatalf("\t%s\tTest %d:\tShould not broadcast: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould not broadcast.", success, testID)
		}
	}
}

func Test_RequestResponse(t *testing.T) {
	t.Log("Given the need to correlate responses with requests.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen two peers answer a request.", testID)
		{
			internet := memory.New(nil)
			requester := newMessenger(t, internet)
			responders := []*protocol.Messenger{newMessenger(t, internet), newMessenger(t, internet)}

			for i, r := range responders {
				serve(t, r, i+1)
			}

			var sum int
			n, err := requester.SendRequest(context.Background(), ping{Value: 10}, pong{}.TypeName(), 2, 5*time.Second, func(in protocol.Inbound) {
				sum += in.Message.(pong).Value
			})
			if err != nil || n != 2 {
				t.Fatalf("\t%s\tTest %d:\tShould collect two responses: n[%d] err[%v]", failed, testID, n, err)
			}
			t.Logf("\t%s\tTest %d:\tShould collect two responses.", success, testID)

			if sum != 23 {
				t.Fatalf("\t%s\tTest %d:\tShould see every response: got %d", failed, testID, sum)
			}
			t.Logf("\t%s\tTest %d:\tShould see every response.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen nobody answers.", testID)
		{
			internet := memory.New(nil)
			requester := newMessenger(t, internet)
			newMessenger(t, internet)

			start := time.Now()
			n, err := requester.SendRequest(context.Background(), ping{}, pong{}.TypeName(), 1, 50*time.Millisecond, func(protocol.Inbound) {})
			if err != nil || n != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould time out without an error: n[%d] err[%v]", failed, testID, n, err)
			}
			t.Logf("\t%s\tTest %d:\tShould time out without an error.", success, testID)

			if time.Since(start) < 50*time.Millisecond {
				t.Fatalf("\t%s\tTest %d:\tShould wait for the timeout.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould wait for the timeout.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the timeout fires during a handler.", testID)
		{
			internet := memory.New(nil)
			requester := newMessenger(t, internet)
			serve(t, newMessenger(t, internet), 1)

			var completed bool
			n, _ := requester.SendRequest(context.Background(), ping{}, pong{}.TypeName(), 2, 100*time.Millisecond, func(protocol.Inbound) {
				time.Sleep(200 * time.Millisecond)
				completed = true
			})

			if !completed || n != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould let the handler finish: n[%d]", failed, testID, n)
			}
			t.Logf("\t%s\tTest %d:\tShould let the handler finish.", success, testID)
		}
	}
}

// =============================================================================

func newMessenger(t *testing.T, internet *memory.Internet) *protocol.Messenger {
	registry := protocol.NewRegistry()
	protocol.RegisterType[ping](registry)
	protocol.RegisterType[pong](registry)

	m, err := protocol.NewMessenger(protocol.Config{
		Transport: internet.NewClient("main", 0),
		Registry:  registry,
		EvHandler: func(v string, args ...any) {
			t.Logf(v, args...)
		},
	})
	if err != nil {
		t.Fatalf("Should be able to construct the messenger: %s", err)
	}
	t.Cleanup(m.Shutdown)

	if err := m.Connect(); err != nil {
		t.Fatalf("Should be able to connect: %s", err)
	}

	return m
}

// serve answers every ping with a pong carrying the ping value plus add.
func serve(t *testing.T, m *protocol.Messenger, add int) {
	reqs, unsubscribe := m.SubscribeRequests(ping{}.TypeName())

	done := make(chan struct{})
	t.Cleanup(func() {
		close(done)
		unsubscribe()
	})

	go func() {
		for {
			select {
			case in := <-reqs:
				m.SendResponse(in, pong{Value: in.Message.(ping).Value + add})
			case <-done:
				return
			}
		}
	}()
}
