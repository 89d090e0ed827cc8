// Package cluster implements the multi-controller bus's leader election
// (§4.G/§5): a deterministic lowest-live-instance-ID election running
// over a bus.Bus topic, with heartbeat-timeout failure detection and
// strictly monotone per-area epochs. It generalises the shape of the
// teacher's peerDiscoveryLoop (a single select loop over watch events,
// driving an in-memory peer table) to the bus abstraction rather than
// objdb's service registry directly.
package cluster

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/Sirupsen/logrus"

	"github.com/wandsdn/helix/internal/bus"
	"github.com/wandsdn/helix/internal/timeline"
)

// DefaultHeartbeatInterval is how often an instance announces liveness.
const DefaultHeartbeatInterval = time.Second

// DefaultMissedHeartbeats is how many consecutive missed heartbeats
// declare a peer (in particular the master) dead.
const DefaultMissedHeartbeats = 3

// historyLimit bounds Election.History() to the most recent transitions.
const historyLimit = 64

// Transition is one recorded change of master or epoch.
type Transition struct {
	At       time.Time
	Epoch    uint64
	MasterID string
}

// Election runs one instance's side of the election protocol: it
// publishes its own heartbeat, tracks peers' heartbeats, and elects the
// lowest live instance ID as master whenever no master is known.
type Election struct {
	Bus               bus.Bus
	Topic             string
	InstanceID        string
	HeartbeatInterval time.Duration
	MissedHeartbeats  int

	mu       sync.Mutex
	peers    map[string]time.Time
	epoch    uint64
	masterID string
	history  []Transition

	// ids, when set via UseIDSpace, backs the lowest-live-instance
	// comparison with a real numeric scan instead of comparing composite
	// "<cid>.<instance>" strings lexicographically (which misorders
	// unpadded multi-digit instance numbers, e.g. "c1.10" < "c1.2").
	ids             *IDSpace
	selfInstanceNum uint

	timeline    *timeline.Recorder
	timelineCID string
	hasInstance bool
	instance    uint

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// UseTimeline attaches a timeline.Recorder that role changes and
// detected instance failures are reported through, matching the
// original emulator's own "XXXEMUL,<ts>,role,<...>" and
// "XXXEMUL,<ts>,inst_fail,<...>" lines. Optional: an Election with no
// recorder attached emits nothing.
func (e *Election) UseTimeline(rec *timeline.Recorder, cid string, hasInstance bool, instance uint) {
	e.timeline = rec
	e.timelineCID = cid
	e.hasInstance = hasInstance
	e.instance = instance
}

func (e *Election) emit(kind timeline.Kind, info string) {
	if e.timeline == nil {
		return
	}
	e.timeline.Record("cluster", e.timelineCID, e.hasInstance, e.instance, kind, info)
}

// UseIDSpace enables numeric lowest-live-instance comparison (§4.G):
// ids tracks this area's configured membership, and instanceNum is
// this Election's own numeric instance ID within that membership.
// Every peer InstanceID this Election observes is expected to end in
// ".<N>" (the convention cmd/localctrl constructs SenderID with); a
// peer whose ID doesn't parse that way simply isn't tracked in ids, so
// it takes no part in the lowest-live-instance choice; only the
// announce tie-break still compares such IDs as plain strings.
func (e *Election) UseIDSpace(ids *IDSpace, instanceNum uint) {
	e.mu.Lock()
	e.ids = ids
	e.selfInstanceNum = instanceNum
	e.mu.Unlock()
	if err := ids.MarkLive(instanceNum); err != nil {
		log.WithError(err).Warn("cluster: this instance is not a configured member of its own area")
	}
}

// parseInstanceNum extracts the numeric suffix from a composite
// "<cid>.<instance>" ID, as constructed by cmd/localctrl's senderID.
func parseInstanceNum(id string) (uint, bool) {
	i := strings.LastIndex(id, ".")
	if i < 0 || i == len(id)-1 {
		return 0, false
	}
	n, err := strconv.ParseUint(id[i+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(n), true
}

// New creates an Election that will publish and subscribe on topic
// (typically the area ID for local-controller elections, or a fixed
// root topic for root-controller elections).
func New(b bus.Bus, topic, instanceID string) *Election {
	return &Election{
		Bus:               b,
		Topic:             topic,
		InstanceID:        instanceID,
		HeartbeatInterval: DefaultHeartbeatInterval,
		MissedHeartbeats:  DefaultMissedHeartbeats,
		peers:             make(map[string]time.Time),
		stopCh:            make(chan struct{}),
	}
}

// Run subscribes to the topic and starts the election loop.
func (e *Election) Run() error {
	msgs, err := e.Bus.Subscribe(e.Topic)
	if err != nil {
		return err
	}
	e.wg.Add(1)
	go e.loop(msgs)
	return nil
}

// Stop halts the election loop and waits for it to exit.
func (e *Election) Stop() {
	close(e.stopCh)
	e.wg.Wait()
}

// IsMaster reports whether this instance currently believes it is
// master.
func (e *Election) IsMaster() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.masterID == e.InstanceID
}

// MasterID returns the instance ID currently believed to be master, or
// "" if none is known.
func (e *Election) MasterID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.masterID
}

// Epoch returns the current epoch.
func (e *Election) Epoch() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.epoch
}

// History returns the bounded transition log, oldest first.
func (e *Election) History() []Transition {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Transition, len(e.history))
	copy(out, e.history)
	return out
}

func (e *Election) loop(msgs <-chan bus.Message) {
	defer e.wg.Done()

	e.mu.Lock()
	e.peers[e.InstanceID] = time.Now()
	e.mu.Unlock()

	ticker := time.NewTicker(e.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.tick()
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			e.handle(msg)
		}
	}
}

// tick is called once per HeartbeatInterval: it expires dead peers
// (in particular detecting a dead master), promotes this instance if it
// is now the lowest live ID and no master is known, and broadcasts a
// heartbeat.
func (e *Election) tick() {
	e.mu.Lock()
	now := time.Now()
	e.peers[e.InstanceID] = now

	timeout := e.HeartbeatInterval * time.Duration(e.MissedHeartbeats)
	for id, last := range e.peers {
		if id == e.InstanceID {
			continue
		}
		if now.Sub(last) > timeout {
			delete(e.peers, id)
			if e.ids != nil {
				if n, ok := parseInstanceNum(id); ok {
					e.ids.MarkDead(n)
				}
			}
			e.emit(timeline.EventLocal, "inst_fail,"+id)
			if id == e.masterID {
				log.WithField("master", id).Warn("cluster: master heartbeat timed out")
				e.masterID = ""
			}
		}
	}

	if e.masterID == "" {
		if e.ids != nil {
			if lowest, ok := e.ids.LowestLive(); ok && lowest == e.selfInstanceNum {
				e.promoteLocked(now)
			}
		} else {
			lowest := e.InstanceID
			for id := range e.peers {
				if id < lowest {
					lowest = id
				}
			}
			if lowest == e.InstanceID {
				e.promoteLocked(now)
			}
		}
	}
	e.mu.Unlock()

	payload, err := json.Marshal(bus.HeartbeatPayload{Epoch: e.Epoch()})
	if err != nil {
		return
	}
	if err := e.Bus.Publish(e.Topic, bus.Message{Kind: bus.Heartbeat, SenderID: e.InstanceID, Payload: payload}); err != nil {
		log.WithError(err).Warn("cluster: failed to publish heartbeat")
	}
}

// promoteLocked declares this instance master at a fresh epoch. Caller
// holds e.mu.
func (e *Election) promoteLocked(now time.Time) {
	e.epoch++
	e.masterID = e.InstanceID
	e.recordLocked(now)
	log.WithField("epoch", e.epoch).Info("cluster: elected self master")
	e.emit(timeline.EventLocal, "role,master")

	payload, err := json.Marshal(bus.RoleAnnouncePayload{Epoch: e.epoch})
	if err != nil {
		return
	}
	go func() {
		if err := e.Bus.Publish(e.Topic, bus.Message{Kind: bus.RoleAnnounce, SenderID: e.InstanceID, Payload: payload}); err != nil {
			log.WithError(err).Warn("cluster: failed to publish role announce")
		}
	}()
}

func (e *Election) handle(msg bus.Message) {
	switch msg.Kind {
	case bus.Heartbeat:
		e.mu.Lock()
		e.peers[msg.SenderID] = time.Now()
		e.mu.Unlock()
		if e.ids != nil {
			if n, ok := parseInstanceNum(msg.SenderID); ok {
				e.ids.MarkLive(n)
			}
		}

	case bus.RoleAnnounce:
		var p bus.RoleAnnouncePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			log.WithError(err).Warn("cluster: dropping malformed role announce")
			return
		}
		e.mu.Lock()
		defer e.mu.Unlock()

		// Epochs are strictly monotone per area, so a stale or echoed
		// announce (including our own, already recorded when we
		// promoted) never moves the epoch backwards. Two instances can
		// promote themselves in the same tick before observing each
		// other, landing on the same epoch; break that tie the same
		// deterministic way the election itself does, by instance ID.
		if p.Epoch < e.epoch {
			return
		}
		if p.Epoch == e.epoch {
			if e.masterID == "" || !e.idLess(msg.SenderID, e.masterID) {
				return
			}
		}
		wasMaster := e.masterID == e.InstanceID
		e.epoch = p.Epoch
		e.masterID = msg.SenderID
		e.peers[msg.SenderID] = time.Now()
		if e.ids != nil {
			if n, ok := parseInstanceNum(msg.SenderID); ok {
				e.ids.MarkLive(n)
			}
		}
		e.recordLocked(time.Now())
		if wasMaster {
			log.WithField("new_master", msg.SenderID).Info("cluster: demoted, higher epoch observed")
			e.emit(timeline.EventLocal, "role,slave")
		}
	}
}

// idLess reports whether a is a lower instance ID than b. When ids is
// configured and both a and b carry a numeric instance suffix, this is
// a real numeric comparison; otherwise it falls back to plain string
// comparison (matching Election's behaviour with no IDSpace wired).
func (e *Election) idLess(a, b string) bool {
	if e.ids != nil {
		an, aok := parseInstanceNum(a)
		bn, bok := parseInstanceNum(b)
		if aok && bok {
			return an < bn
		}
	}
	return a < b
}

func (e *Election) recordLocked(now time.Time) {
	e.history = append(e.history, Transition{At: now, Epoch: e.epoch, MasterID: e.masterID})
	if len(e.history) > historyLimit {
		e.history = e.history[len(e.history)-historyLimit:]
	}
}
