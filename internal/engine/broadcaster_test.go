package engine

import "testing"

func TestBroadcasterDeliversToAllSubscribers(t *testing.T) {
	b := NewBroadcaster(MinSubscriberBuffer)
	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	b.Publish(Event{Type: EventStarted, RootPaths: []string{"/tmp"}})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Type != EventStarted {
				t.Errorf("got event type %q, want %q", ev.Type, EventStarted)
			}
		default:
			t.Fatal("expected an event to be queued")
		}
	}
}

func TestBroadcasterDropsOldestWhenFull(t *testing.T) {
	b := NewBroadcaster(MinSubscriberBuffer)
	ch, unsub := b.Subscribe()
	defer unsub()

	for i := 0; i < MinSubscriberBuffer+10; i++ {
		b.Publish(Event{Type: EventProgress, FilesScanned: int64(i)})
	}

	var last Event
	for {
		select {
		case ev := <-ch:
			last = ev
			continue
		default:
		}
		break
	}
	if last.FilesScanned != int64(MinSubscriberBuffer+9) {
		t.Errorf("expected the most recent event to survive, got FilesScanned=%d", last.FilesScanned)
	}
}

func TestBroadcasterCloseEndsSubscriberChannel(t *testing.T) {
	b := NewBroadcaster(MinSubscriberBuffer)
	ch, _ := b.Subscribe()
	b.Close()
	if _, ok := <-ch; ok {
		t.Error("expected subscriber channel to be closed")
	}
}

func TestUnsubscribeStopsFurtherDelivery(t *testing.T) {
	b := NewBroadcaster(MinSubscriberBuffer)
	ch, unsub := b.Subscribe()
	unsub()
	b.Publish(Event{Type: EventDone})
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
}

func TestNewBroadcasterClampsBufferSize(t *testing.T) {
	if b := NewBroadcaster(0); b.bufferSize != DefaultSubscriberBuffer {
		t.Errorf("bufferSize = %d, want default %d", b.bufferSize, DefaultSubscriberBuffer)
	}
	if b := NewBroadcaster(1); b.bufferSize != MinSubscriberBuffer {
		t.Errorf("bufferSize = %d, want min %d", b.bufferSize, MinSubscriberBuffer)
	}
	if b := NewBroadcaster(1 << 20); b.bufferSize != MaxSubscriberBuffer {
		t.Errorf("bufferSize = %d, want max %d", b.bufferSize, MaxSubscriberBuffer)
	}
}
