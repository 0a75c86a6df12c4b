package eventbus

import (
	"testing"
	"time"
)

func TestSubscribe_ReplaysHistoryThenLive(t *testing.T) {
	b := New()
	b.Publish(Event{Kind: "step_start", Data: 1})
	b.Publish(Event{Kind: "step_complete", Data: 1})

	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	b.Publish(Event{Kind: "step_start", Data: 2})

	var got []Event
	for i := 0; i < 3; i++ {
		select {
		case ev := <-ch:
			got = append(got, ev)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events (2 replayed + 1 live), got %d", len(got))
	}
	if got[0].Kind != "step_start" || got[1].Kind != "step_complete" || got[2].Kind != "step_start" {
		t.Errorf("unexpected event order: %+v", got)
	}
}

func TestPublish_FanOutToMultipleSubscribers(t *testing.T) {
	b := New()
	ch1, unsub1 := b.Subscribe()
	ch2, unsub2 := b.Subscribe()
	defer unsub1()
	defer unsub2()

	b.Publish(Event{Kind: "workflow_complete"})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Kind != "workflow_complete" {
				t.Errorf("unexpected kind: %s", ev.Kind)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive published event")
		}
	}
}

func TestTerminate_RejectsFurtherPublish(t *testing.T) {
	b := New()
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	b.Terminate(Event{Kind: "workflow_complete"})
	b.Publish(Event{Kind: "step_start"})

	select {
	case ev := <-ch:
		if ev.Kind != "workflow_complete" {
			t.Errorf("expected only the terminal event, got %s", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("expected to receive the terminal event")
	}

	select {
	case ev, open := <-ch:
		if open {
			t.Errorf("expected no further events after terminate, got %+v", ev)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	b := New()
	ch, unsubscribe := b.Subscribe()
	unsubscribe()

	select {
	case _, open := <-ch:
		if open {
			t.Error("expected channel to be closed after unsubscribe")
		}
	case <-time.After(time.Second):
		t.Fatal("expected unsubscribe to close the channel promptly")
	}
}

func TestSlowSubscriberGetsOverflowEventAndDrops(t *testing.T) {
	b := New()
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	for i := 0; i < defaultBufferSize+10; i++ {
		b.Publish(Event{Kind: "step_start", Data: i})
	}

	var lastKind string
	drained := 0
	for {
		select {
		case ev, open := <-ch:
			if !open {
				goto done
			}
			lastKind = ev.Kind
			drained++
		case <-time.After(200 * time.Millisecond):
			goto done
		}
	}
done:
	if drained == 0 {
		t.Fatal("expected at least the buffered events to be delivered")
	}
	if lastKind != "buffer_overflow" {
		t.Errorf("expected the channel's final event to be buffer_overflow, got %s", lastKind)
	}
}
