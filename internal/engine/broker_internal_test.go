package engine

import (
	"strconv"
	"testing"
)

func TestStatusBrokerDropsIdleOpenTopics(t *testing.T) {
	b := NewStatusBroker()
	_, unsub := b.Subscribe("never-run")
	unsub()

	if n := len(b.topics); n != 0 {
		t.Errorf("topics = %d after last unsubscribe, want 0", n)
	}
}

func TestStatusBrokerBoundsClosedMarkers(t *testing.T) {
	b := NewStatusBroker()
	for i := range closedTopicLimit + 10 {
		b.Close("job-" + strconv.Itoa(i))
	}

	if n := len(b.topics); n != closedTopicLimit {
		t.Errorf("topics = %d, want %d", n, closedTopicLimit)
	}
	if n := len(b.closed); n != closedTopicLimit {
		t.Errorf("markers = %d, want %d", n, closedTopicLimit)
	}
}

func TestStatusBrokerCloseTwiceKeepsOneMarker(t *testing.T) {
	b := NewStatusBroker()
	b.Close("j1")
	b.Close("j1")

	if n := len(b.closed); n != 1 {
		t.Errorf("markers = %d, want 1", n)
	}
}
