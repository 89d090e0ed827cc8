package rootctrl

import (
	"encoding/json"

	log "github.com/Sirupsen/logrus"

	"github.com/wandsdn/helix/internal/bus"
	"github.com/wandsdn/helix/internal/pathengine"
	"github.com/wandsdn/helix/internal/topology"
)

// AreaAgent is the local-controller-side responder to root's
// ReqSegment queries (§4.H step 2): it holds no state of its own beyond
// a reference to the area's live topology, computing a local shortest
// path on demand.
type AreaAgent struct {
	Bus    bus.Bus
	Topic  string
	Graph  *topology.Graph
	Weight topology.Weight

	stopCh chan struct{}
}

// NewAreaAgent creates an agent serving segment queries on topic (the
// area's own bus topic).
func NewAreaAgent(b bus.Bus, topic string, graph *topology.Graph, weight topology.Weight) *AreaAgent {
	return &AreaAgent{Bus: b, Topic: topic, Graph: graph, Weight: weight, stopCh: make(chan struct{})}
}

// Run subscribes and starts answering ReqSegment requests until Stop.
func (a *AreaAgent) Run() error {
	msgs, err := a.Bus.Subscribe(a.Topic)
	if err != nil {
		return err
	}
	go a.loop(msgs)
	return nil
}

// Stop halts the agent. It does not wait for the loop goroutine, which
// exits as soon as it next wakes on stopCh or on the bus channel being
// closed.
func (a *AreaAgent) Stop() {
	close(a.stopCh)
}

func (a *AreaAgent) loop(msgs <-chan bus.Message) {
	for {
		select {
		case <-a.stopCh:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			a.handle(msg)
		}
	}
}

func (a *AreaAgent) handle(msg bus.Message) {
	if msg.Kind != bus.InterAreaReq {
		return
	}
	var req ReqPayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		log.WithError(err).Warn("rootctrl: area agent dropping malformed request")
		return
	}
	if req.Kind != ReqSegment {
		return
	}

	resp := a.computeSegment(req)
	body, err := json.Marshal(resp)
	if err != nil {
		log.WithError(err).Warn("rootctrl: area agent failed to marshal response")
		return
	}
	if err := a.Bus.Publish(req.ReplyTopic, bus.Message{
		Kind:    bus.InterAreaResp,
		Payload: body,
	}); err != nil {
		log.WithError(err).Warn("rootctrl: area agent failed to publish response")
	}
}

func (a *AreaAgent) computeSegment(req ReqPayload) RespPayload {
	snap := a.Graph.Snapshot()
	path, ok := pathengine.ShortestPath(snap, req.Src, req.Dst, a.Weight)
	if !ok {
		return RespPayload{ReqID: req.ReqID, Err: "no path"}
	}
	return RespPayload{ReqID: req.ReqID, Path: toWireHops(path), MaxUsage: maxUsageRatio(snap, path)}
}

func toWireHops(p pathengine.Path) []PathHop {
	out := make([]PathHop, len(p))
	for i, h := range p {
		out[i] = PathHop{Switch: h.Switch, InPort: h.InPort, OutPort: h.OutPort}
	}
	return out
}

func fromWireHops(hops []PathHop) pathengine.Path {
	out := make(pathengine.Path, len(hops))
	for i, h := range hops {
		out[i] = pathengine.Hop{Switch: h.Switch, InPort: h.InPort, OutPort: h.OutPort}
	}
	return out
}

// maxUsageRatio finds the worst usage/capacity ratio of any edge the
// path actually egresses on.
func maxUsageRatio(snap *topology.Snapshot, p pathengine.Path) float64 {
	var max float64
	for _, h := range p {
		if h.OutPort == 0 {
			continue
		}
		e := snap.Edge(h.Switch, h.OutPort)
		if e == nil || e.CapacityBps == 0 {
			continue
		}
		ratio := e.UsageBps / float64(e.CapacityBps)
		if ratio > max {
			max = ratio
		}
	}
	return max
}
