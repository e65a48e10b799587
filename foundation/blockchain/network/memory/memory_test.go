package memory_test

import (
	"errors"
	"testing"

	"github.com/ardanlabs/utxochain/foundation/blockchain/network/memory"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Delivery(t *testing.T) {
	t.Log("Given the need to exchange packets over the in memory network.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen three clients share a network.", testID)
		{
			internet := memory.New(nil)

			a := internet.NewClient("main", 4)
			b := internet.NewClient("main", 4)
			c := internet.NewClient("main", 4)
			other := internet.NewClient("other", 4)

			for _, client := range []*memory.Client{a, b, c, other} {
				if err := client.Connect(); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to connect: %s", failed, testID, err)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould be able to connect.", success, testID)

			if err := a.Broadcast([]byte("hello")); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to broadcast: %s", failed, testID, err)
			}

			for _, client := range []*memory.Client{b, c} {
				select {
				case data := <-client.Receive():
					if string(data) != "hello" {
						t.Fatalf("\t%s\tTest %d:\tShould receive the broadcast: got %q", failed, testID, data)
					}
				default:
					t.Fatalf("\t%s\tTest %d:\tShould receive the broadcast.", failed, testID)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould receive the broadcast on every other client.", success, testID)

			if len(a.Receive()) != 0 || len(other.Receive()) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould not deliver to the sender or another network.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould not deliver to the sender or another network.", success, testID)

			if err := b.Send(c.Address(), []byte("direct")); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to send: %s", failed, testID, err)
			}
			if len(a.Receive()) != 0 || len(c.Receive()) != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould deliver a unicast to the addressee only.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould deliver a unicast to the addressee only.", success, testID)

			if err := b.Send(other.Address(), []byte("x")); !errors.Is(err, memory.ErrUnknownAddress) {
				t.Fatalf("\t%s\tTest %d:\tShould not reach an address on another network: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould not reach an address on another network.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen an inbox is full or a client leaves.", testID)
		{
			var drops int
			internet := memory.New(func(v string, args ...any) { drops++ })

			a := internet.NewClient("main", 1)
			b := internet.NewClient("main", 1)
			a.Connect()
			b.Connect()

			a.Broadcast([]byte("1"))
			a.Broadcast([]byte("2"))

			if len(b.Receive()) != 1 || drops != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould drop packets to a full inbox.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould drop packets to a full inbox.", success, testID)

			a.Disconnect()
			if a.IsConnected() {
				t.Fatalf("\t%s\tTest %d:\tShould be disconnected.", failed, testID)
			}

			if err := a.Broadcast([]byte("3")); !errors.Is(err, memory.ErrNotConnected) {
				t.Fatalf("\t%s\tTest %d:\tShould not broadcast once disconnected: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould not broadcast once disconnected.", success, testID)

			if n := len(internet.Clients("main")); n != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould list the remaining client: got %d", failed, testID, n)
			}
			t.Logf("\t%s\tTest %d:\tShould list the remaining client.", success, testID)
		}
	}
}
