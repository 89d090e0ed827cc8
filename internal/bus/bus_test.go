package bus

import (
	"encoding/json"
	"sync"
	"testing"
)

// memBus is an in-process Bus used only to exercise the seqCounter and
// Message plumbing that EtcdBus/ConsulBus both share; it talks to no
// external service, so it is the only backend these tests can run.
type memBus struct {
	mu   sync.Mutex
	subs map[string][]chan Message
	seqs map[string]*seqCounter
}

func newMemBus() *memBus {
	return &memBus{
		subs: make(map[string][]chan Message),
		seqs: make(map[string]*seqCounter),
	}
}

func (b *memBus) seqFor(topic string) *seqCounter {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.seqs[topic]
	if !ok {
		s = &seqCounter{}
		b.seqs[topic] = s
	}
	return s
}

func (b *memBus) Publish(topic string, msg Message) error {
	msg.Seq = b.seqFor(topic).advance()

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[topic] {
		ch <- msg
	}
	return nil
}

func (b *memBus) Subscribe(topic string) (<-chan Message, error) {
	ch := make(chan Message, 16)
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()
	return ch, nil
}

func (b *memBus) Close() error { return nil }

func TestSeqCounterIsMonotoneAndStartsAtOne(t *testing.T) {
	var s seqCounter
	if got := s.advance(); got != 1 {
		t.Fatalf("expected first seq 1, got %d", got)
	}
	if got := s.advance(); got != 2 {
		t.Fatalf("expected second seq 2, got %d", got)
	}
}

func TestSeqCounterPerTopicIndependent(t *testing.T) {
	b := newMemBus()
	if err := b.Publish("area-1", Message{Kind: Heartbeat}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	ch, err := b.Subscribe("area-1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := b.Publish("area-1", Message{Kind: Heartbeat}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	msg := <-ch
	if msg.Seq != 2 {
		t.Fatalf("expected seq 2 for second message on area-1, got %d", msg.Seq)
	}

	if err := b.Publish("area-2", Message{Kind: Heartbeat}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	ch2, err := b.Subscribe("area-2")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := b.Publish("area-2", Message{Kind: Heartbeat}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	msg2 := <-ch2
	if msg2.Seq != 2 {
		t.Fatalf("expected seq 2 for second message on area-2 regardless of area-1's sequence, got %d", msg2.Seq)
	}
}

func TestMessageRoundTripsPayload(t *testing.T) {
	payload, err := json.Marshal(RoleAnnouncePayload{Epoch: 7})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	msg := Message{Kind: RoleAnnounce, AreaID: "area-1", SenderID: "ctrl-a", Payload: payload}

	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	var decoded Message
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	var p RoleAnnouncePayload
	if err := json.Unmarshal(decoded.Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.Epoch != 7 {
		t.Fatalf("expected epoch 7, got %d", p.Epoch)
	}
}

func TestMemBusDeliversToSubscriber(t *testing.T) {
	b := newMemBus()
	ch, err := b.Subscribe("area-1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := b.Publish("area-1", Message{Kind: Heartbeat, SenderID: "ctrl-a"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	msg := <-ch
	if msg.SenderID != "ctrl-a" || msg.Kind != Heartbeat {
		t.Fatalf("unexpected message: %+v", msg)
	}
}
