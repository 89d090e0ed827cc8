package rootctrl

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wandsdn/helix/internal/bus"
	"github.com/wandsdn/helix/internal/pathengine"
	"github.com/wandsdn/helix/internal/topology"
)

// Client is the local-controller side of §4.H: it asks root for a
// stitched path whenever a candidate's destination is outside its own
// area. It is independent of AreaAgent, which answers root's segment
// queries rather than issuing its own requests.
type Client struct {
	Bus        bus.Bus
	RootTopic  string
	ReplyTopic string

	reqSeq  uint64
	mu      sync.Mutex
	pending map[string]chan RespPayload
}

// NewClient subscribes to replyTopic (typically the local controller's
// own area topic) and returns a Client ready to issue requests.
func NewClient(b bus.Bus, rootTopic, replyTopic string) (*Client, error) {
	c := &Client{
		Bus:        b,
		RootTopic:  rootTopic,
		ReplyTopic: replyTopic,
		pending:    make(map[string]chan RespPayload),
	}
	msgs, err := b.Subscribe(replyTopic)
	if err != nil {
		return nil, err
	}
	go c.loop(msgs)
	return c, nil
}

func (c *Client) loop(msgs <-chan bus.Message) {
	for msg := range msgs {
		if msg.Kind != bus.InterAreaResp {
			continue
		}
		var resp RespPayload
		if err := json.Unmarshal(msg.Payload, &resp); err != nil {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ReqID]
		delete(c.pending, resp.ReqID)
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

// RequestPath asks root to stitch a path from src to dst, blocking
// until a response arrives or segmentTimeout elapses.
func (c *Client) RequestPath(src, dst topology.NodeID) (pathengine.Path, float64, error) {
	reqID := c.nextReqID()
	ch := make(chan RespPayload, 1)
	c.mu.Lock()
	c.pending[reqID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
	}()

	body, err := json.Marshal(ReqPayload{ReqID: reqID, Kind: ReqStitchedPath, Src: src, Dst: dst, ReplyTopic: c.ReplyTopic})
	if err != nil {
		return nil, 0, err
	}
	if err := c.Bus.Publish(c.RootTopic, bus.Message{Kind: bus.InterAreaReq, Payload: body}); err != nil {
		return nil, 0, err
	}

	select {
	case resp := <-ch:
		if resp.Err != "" {
			return nil, 0, errors.New(resp.Err)
		}
		return fromWireHops(resp.Path), resp.MaxUsage, nil
	case <-time.After(segmentTimeout):
		return nil, 0, fmt.Errorf("stitched path request to %s timed out", c.RootTopic)
	}
}

func (c *Client) nextReqID() string {
	return fmt.Sprintf("client-%d", atomic.AddUint64(&c.reqSeq, 1))
}
