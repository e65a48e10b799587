package events_test

import (
	"testing"

	"github.com/ardanlabs/utxochain/foundation/events"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Topics(t *testing.T) {
	t.Log("Given the need to route events to receivers by topic.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen handling events for two nodes.", testID)
		{
			evt := events.New()
			defer evt.Shutdown()

			alice := evt.Acquire("1", "alice")
			all := evt.Acquire("2", events.AllTopics)

			evt.Send("bob", "bob event")
			evt.Send("alice", "alice event")

			if got := <-alice; got != "alice event" {
				t.Fatalf("\t%s\tTest %d:\tShould only receive alice's events: got %q", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould only receive alice's events.", success, testID)

			if got := <-all; got != "bob event" {
				t.Fatalf("\t%s\tTest %d:\tShould receive bob's event first: got %q", failed, testID, got)
			}
			if got := <-all; got != "alice event" {
				t.Fatalf("\t%s\tTest %d:\tShould receive alice's event second: got %q", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould receive every event on the all topic.", success, testID)

			if err := evt.Release("1"); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to release a receiver: %v", failed, testID, err)
			}
			if _, open := <-alice; open {
				t.Fatalf("\t%s\tTest %d:\tShould close the released channel.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould close the released channel.", success, testID)

			if err := evt.Release("1"); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould fail to release an unknown id.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould fail to release an unknown id.", success, testID)
		}
	}
}
