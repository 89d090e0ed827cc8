package bus

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/net/context"

	log "github.com/Sirupsen/logrus"
	client "github.com/coreos/etcd/clientv3"
)

// etcdKeyPrefix roots every bus key, mirroring objdb's "/contiv.io/..."
// namespacing convention.
const etcdKeyPrefix = "/helix.io/bus/"

// heartbeatTTL is the lease TTL backing an EtcdBus instance's presence.
// Losing the lease (missed keepalives) is how peers detect a crashed
// sender without an explicit leave message.
const heartbeatTTL = 10

// EtcdBus is a Bus backed by etcd's clientv3: Publish puts a JSON-encoded
// message under a topic-scoped, per-sender, per-seq key so every message
// survives independently (no single key is overwritten and lost), and
// Subscribe watches the topic's key prefix for puts.
type EtcdBus struct {
	client   *client.Client
	senderID string
	leaseID  client.LeaseID

	mu      sync.Mutex
	seqs    map[string]*seqCounter
	cancels []context.CancelFunc
}

// NewEtcdBus dials etcd at the given endpoints and grants this instance's
// presence lease (§4.G HEARTBEAT carries this lease's lifetime).
func NewEtcdBus(endpoints []string, senderID string) (*EtcdBus, error) {
	c, err := client.New(client.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("bus: dial etcd: %w", err)
	}

	lease, err := c.Grant(context.TODO(), heartbeatTTL)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("bus: grant lease: %w", err)
	}
	keepAlive, err := c.KeepAlive(context.Background(), lease.ID)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("bus: keepalive lease: %w", err)
	}
	go drainKeepAlive(keepAlive)

	return &EtcdBus{
		client:   c,
		senderID: senderID,
		leaseID:  lease.ID,
		seqs:     make(map[string]*seqCounter),
	}, nil
}

// drainKeepAlive discards keepalive responses; a real response just means
// the lease is alive, there is nothing to act on until it stops arriving,
// at which point the lease (and this sender's presence) simply expires.
func drainKeepAlive(ch <-chan *client.LeaseKeepAliveResponse) {
	for range ch {
	}
}

func (b *EtcdBus) topicKey(topic string) string {
	return etcdKeyPrefix + topic + "/"
}

func (b *EtcdBus) seqFor(topic string) *seqCounter {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.seqs[topic]
	if !ok {
		s = &seqCounter{}
		b.seqs[topic] = s
	}
	return s
}

// Publish implements Bus.
func (b *EtcdBus) Publish(topic string, msg Message) error {
	msg.SenderID = b.senderID
	msg.Seq = b.seqFor(topic).advance()

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("bus: marshal message: %w", err)
	}

	key := fmt.Sprintf("%s%s/%020d", b.topicKey(topic), b.senderID, msg.Seq)
	opts := []client.OpOption{}
	if msg.Kind == Heartbeat {
		// Heartbeats expire with the sender's lease; everything else is
		// durable so a late subscriber still observes role/state history.
		opts = append(opts, client.WithLease(b.leaseID))
	}
	if _, err := b.client.Put(context.TODO(), key, string(body), opts...); err != nil {
		return fmt.Errorf("bus: put message: %w", err)
	}
	return nil
}

// Subscribe implements Bus. The returned channel is closed when the bus
// is closed.
func (b *EtcdBus) Subscribe(topic string) (<-chan Message, error) {
	out := make(chan Message, 64)
	ctx, cancel := context.WithCancel(context.Background())

	b.mu.Lock()
	b.cancels = append(b.cancels, cancel)
	b.mu.Unlock()

	watchCh := b.client.Watch(ctx, b.topicKey(topic), client.WithPrefix())
	go func() {
		defer close(out)
		for resp := range watchCh {
			if resp.Err() != nil {
				log.WithError(resp.Err()).Warn("bus: etcd watch error")
				continue
			}
			for _, ev := range resp.Events {
				if ev.Type != client.EventTypePut {
					continue
				}
				var msg Message
				if err := json.Unmarshal(ev.Kv.Value, &msg); err != nil {
					log.WithError(err).Warn("bus: dropping malformed message")
					continue
				}
				out <- msg
			}
		}
	}()
	return out, nil
}

// Close implements Bus.
func (b *EtcdBus) Close() error {
	b.mu.Lock()
	for _, cancel := range b.cancels {
		cancel()
	}
	b.mu.Unlock()
	b.client.Revoke(context.TODO(), b.leaseID)
	return b.client.Close()
}
