package progress

import "testing"

func TestCanceler(t *testing.T) {
	var c Canceler
	if c.Canceled() {
		t.Fatal("fresh Canceler should not report canceled")
	}
	c.Cancel()
	if !c.Canceled() {
		t.Fatal("Canceled() should be true after Cancel()")
	}
	c.Cancel() // idempotent
	if !c.Canceled() {
		t.Fatal("Canceled() should remain true after a second Cancel()")
	}
}

func TestNopSinkDiscardsEvents(t *testing.T) {
	var s NopSink
	// Must not panic regardless of event shape.
	s.OnProgress(Event{Kind: Start})
	s.OnProgress(Event{Kind: AfterEntry, EntryName: "x", Err: nil})
}

// recordingSink is a minimal Sink used to verify events can be collected
// by a caller-supplied implementation, matching how a host UI would hook
// in.
type recordingSink struct {
	events []Event
}

func (r *recordingSink) OnProgress(e Event) { r.events = append(r.events, e) }

func TestSinkRecordsEventsInOrder(t *testing.T) {
	rec := &recordingSink{}
	var sink Sink = rec
	sink.OnProgress(Event{Kind: SavingStarted})
	sink.OnProgress(Event{Kind: BeforeEntry, EntryName: "a.txt"})
	sink.OnProgress(Event{Kind: AfterEntry, EntryName: "a.txt"})
	sink.OnProgress(Event{Kind: SavingCompleted})

	want := []EventKind{SavingStarted, BeforeEntry, AfterEntry, SavingCompleted}
	if len(rec.events) != len(want) {
		t.Fatalf("got %d events, want %d", len(rec.events), len(want))
	}
	for i, k := range want {
		if rec.events[i].Kind != k {
			t.Errorf("event %d kind = %v, want %v", i, rec.events[i].Kind, k)
		}
	}
}
