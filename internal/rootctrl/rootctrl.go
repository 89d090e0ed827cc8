package rootctrl

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/Sirupsen/logrus"

	"github.com/wandsdn/helix/internal/bus"
	"github.com/wandsdn/helix/internal/topology"
)

// segmentTimeout mirrors §5's 5 s default switch round-trip timeout;
// a segment query to an area master is a comparable single round trip.
const segmentTimeout = 5 * time.Second

// RootController answers INTER_AREA_REQ path-stitching requests from
// local controllers by querying the source and destination area
// masters for their local segments and combining the result with an
// inter-area link from the Catalogue (§4.H). It holds no switch
// connections of its own.
type RootController struct {
	Bus       bus.Bus
	Topic     string
	Catalogue *Catalogue

	reqSeq  uint64
	mu      sync.Mutex
	pending map[string]chan RespPayload

	stopCh chan struct{}
}

// New creates a root controller listening on topic (the fixed root
// topic every area's local controllers and this instance share).
func New(b bus.Bus, topic string, cat *Catalogue) *RootController {
	return &RootController{
		Bus:       b,
		Topic:     topic,
		Catalogue: cat,
		pending:   make(map[string]chan RespPayload),
		stopCh:    make(chan struct{}),
	}
}

// Run subscribes to the root topic and starts serving requests.
func (r *RootController) Run() error {
	msgs, err := r.Bus.Subscribe(r.Topic)
	if err != nil {
		return err
	}
	go r.loop(msgs)
	return nil
}

// Stop halts the controller.
func (r *RootController) Stop() {
	close(r.stopCh)
}

func (r *RootController) loop(msgs <-chan bus.Message) {
	for {
		select {
		case <-r.stopCh:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			r.dispatch(msg)
		}
	}
}

func (r *RootController) dispatch(msg bus.Message) {
	switch msg.Kind {
	case bus.InterAreaReq:
		var req ReqPayload
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			log.WithError(err).Warn("rootctrl: dropping malformed request")
			return
		}
		if req.Kind == ReqStitchedPath {
			go r.resolvePath(req)
		}
	case bus.InterAreaResp:
		var resp RespPayload
		if err := json.Unmarshal(msg.Payload, &resp); err != nil {
			log.WithError(err).Warn("rootctrl: dropping malformed response")
			return
		}
		r.mu.Lock()
		ch, ok := r.pending[resp.ReqID]
		delete(r.pending, resp.ReqID)
		r.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

// resolvePath implements §4.H steps 1-4 for one stitched-path request.
func (r *RootController) resolvePath(req ReqPayload) {
	srcArea, ok := r.Catalogue.AreaOf(req.Src)
	if !ok {
		r.reply(req, RespPayload{ReqID: req.ReqID, Err: "unknown source host area"})
		return
	}
	dstArea, ok := r.Catalogue.AreaOf(req.Dst)
	if !ok {
		r.reply(req, RespPayload{ReqID: req.ReqID, Err: "unknown destination host area"})
		return
	}
	if srcArea == dstArea {
		// Same area: the local controller should have resolved this
		// itself; root has no better answer than telling it so.
		r.reply(req, RespPayload{ReqID: req.ReqID, Err: "src and dst are in the same area"})
		return
	}

	links := r.Catalogue.LinksBetween(srcArea, dstArea)
	if len(links) == 0 {
		r.reply(req, RespPayload{ReqID: req.ReqID, Err: "no inter-area link between areas"})
		return
	}

	type candidate struct {
		link     InterAreaLink
		segA     RespPayload
		segB     RespPayload
		hopCount int
		maxUsage float64
	}
	var best *candidate

	for _, link := range links {
		segA, err := r.querySegment(srcArea, req.Src, link.SwA)
		if err != nil || segA.Err != "" {
			continue
		}
		segB, err := r.querySegment(dstArea, link.SwB, req.Dst)
		if err != nil || segB.Err != "" {
			continue
		}

		hopCount := len(segA.Path) + len(segB.Path) + 1
		maxUsage := segA.MaxUsage
		if segB.MaxUsage > maxUsage {
			maxUsage = segB.MaxUsage
		}

		c := &candidate{link: link, segA: segA, segB: segB, hopCount: hopCount, maxUsage: maxUsage}
		if best == nil || c.hopCount < best.hopCount ||
			(c.hopCount == best.hopCount && c.maxUsage < best.maxUsage) {
			best = c
		}
	}

	if best == nil {
		r.reply(req, RespPayload{ReqID: req.ReqID, Err: "no viable inter-area segment pair"})
		return
	}

	stitched := stitchPaths(best.segA.Path, best.link, best.segB.Path)
	r.reply(req, RespPayload{ReqID: req.ReqID, Path: stitched, MaxUsage: best.maxUsage})
}

// stitchPaths joins a source-area segment and a destination-area
// segment across the inter-area link that connects them (§4.H step 4).
func stitchPaths(segA []PathHop, link InterAreaLink, segB []PathHop) []PathHop {
	out := make([]PathHop, 0, len(segA)+len(segB))
	out = append(out, segA...)
	if len(out) > 0 {
		out[len(out)-1].OutPort = link.PortA
	}
	for i, h := range segB {
		if i == 0 {
			h.InPort = link.PortB
		}
		out = append(out, h)
	}
	return out
}

// querySegment sends a ReqSegment request to areaTopic and blocks for
// its RespPayload, up to segmentTimeout.
func (r *RootController) querySegment(areaTopic string, src, dst topology.NodeID) (RespPayload, error) {
	reqID := r.nextReqID()
	ch := make(chan RespPayload, 1)
	r.mu.Lock()
	r.pending[reqID] = ch
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.pending, reqID)
		r.mu.Unlock()
	}()

	body, err := json.Marshal(ReqPayload{ReqID: reqID, Kind: ReqSegment, Src: src, Dst: dst, ReplyTopic: r.Topic})
	if err != nil {
		return RespPayload{}, err
	}
	if err := r.Bus.Publish(areaTopic, bus.Message{Kind: bus.InterAreaReq, Payload: body}); err != nil {
		return RespPayload{}, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-time.After(segmentTimeout):
		return RespPayload{}, fmt.Errorf("segment query to %s timed out", areaTopic)
	}
}

func (r *RootController) reply(req ReqPayload, resp RespPayload) {
	body, err := json.Marshal(resp)
	if err != nil {
		log.WithError(err).Warn("rootctrl: failed to marshal response")
		return
	}
	if err := r.Bus.Publish(req.ReplyTopic, bus.Message{Kind: bus.InterAreaResp, Payload: body}); err != nil {
		log.WithError(err).Warn("rootctrl: failed to publish response")
	}
}

func (r *RootController) nextReqID() string {
	return fmt.Sprintf("root-%d", atomic.AddUint64(&r.reqSeq, 1))
}
