package bus

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/consul/api"

	log "github.com/Sirupsen/logrus"
)

// consulKeyPrefix mirrors objdb's consul plugin, which strips the
// leading slash consul's KV store rejects.
const consulKeyPrefix = "helix.io/bus/"

// consulSessionTTL backs this instance's session, used the same way the
// etcd backend uses a lease: losing it is how peers detect a crash.
const consulSessionTTL = "10s"

// ConsulBus is a Bus backed by consul's KV store. Subscribe uses consul's
// blocking queries (a long poll keyed on the KV prefix's ModifyIndex)
// rather than etcd's push-based watch, so delivery is poll-driven.
type ConsulBus struct {
	client    *api.Client
	senderID  string
	sessionID string

	mu      sync.Mutex
	seqs    map[string]*seqCounter
	closing chan struct{}
}

// NewConsulBus dials consul at address and creates this instance's
// presence session (grounded on objdb's consulClient.go client
// construction pattern).
func NewConsulBus(address, senderID string) (*ConsulBus, error) {
	cfg := api.Config{Address: strings.TrimPrefix(address, "http://")}
	c, err := api.NewClient(&cfg)
	if err != nil {
		return nil, fmt.Errorf("bus: new consul client: %w", err)
	}

	session := c.Session()
	sessionID, _, err := session.Create(&api.SessionEntry{
		Name:     "helix-bus-" + senderID,
		TTL:      consulSessionTTL,
		Behavior: api.SessionBehaviorDelete,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("bus: create session: %w", err)
	}
	stopRenew := make(chan struct{})
	go session.RenewPeriodic(consulSessionTTL, sessionID, nil, stopRenew)

	return &ConsulBus{
		client:    c,
		senderID:  senderID,
		sessionID: sessionID,
		seqs:      make(map[string]*seqCounter),
		closing:   stopRenew,
	}, nil
}

func consulTopicKey(topic string) string {
	return processConsulKey(consulKeyPrefix + topic + "/")
}

func processConsulKey(key string) string {
	return strings.TrimPrefix(key, "/")
}

func (b *ConsulBus) seqFor(topic string) *seqCounter {
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
func (b *ConsulBus) Publish(topic string, msg Message) error {
	msg.SenderID = b.senderID
	msg.Seq = b.seqFor(topic).advance()

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("bus: marshal message: %w", err)
	}

	key := fmt.Sprintf("%s%s/%020d", consulTopicKey(topic), b.senderID, msg.Seq)
	pair := &api.KVPair{Key: key, Value: body}
	if msg.Kind == Heartbeat {
		pair.Session = b.sessionID
	}
	if _, err := b.client.KV().Put(pair, nil); err != nil {
		return fmt.Errorf("bus: put message: %w", err)
	}
	return nil
}

// Subscribe implements Bus, polling consul's blocking-query API for
// changes under the topic prefix and delivering any key whose
// ModifyIndex is new since the last poll.
func (b *ConsulBus) Subscribe(topic string) (<-chan Message, error) {
	out := make(chan Message, 64)

	go func() {
		defer close(out)
		var waitIndex uint64
		seen := map[string]uint64{}
		for {
			select {
			case <-b.closing:
				return
			default:
			}

			pairs, meta, err := b.client.KV().List(consulTopicKey(topic), &api.QueryOptions{
				WaitIndex: waitIndex,
				WaitTime:  30 * time.Second,
			})
			if err != nil {
				log.WithError(err).Warn("bus: consul blocking query error")
				time.Sleep(time.Second)
				continue
			}
			waitIndex = meta.LastIndex

			for _, p := range pairs {
				if last, ok := seen[p.Key]; ok && last == p.ModifyIndex {
					continue
				}
				seen[p.Key] = p.ModifyIndex

				var msg Message
				if err := json.Unmarshal(p.Value, &msg); err != nil {
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
func (b *ConsulBus) Close() error {
	close(b.closing)
	_, _ = b.client.Session().Destroy(b.sessionID, nil)
	return nil
}
