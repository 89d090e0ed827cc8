// Package timeline implements §6's event timeline output format, the
// Go side of what the original Python emulator stitched together from
// per-instance log greps: every Event this package emits is a line a
// black-box test harness can parse back, the same way EmulateCtrlFail.py
// greps "XXXEMUL," out of each instance's log file and sorts the
// results into a single ordered timeline.
package timeline

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Kind is one of the three event categories §6 documents.
type Kind string

const (
	// Action is something this instance did on its own initiative.
	Action Kind = "action"
	// EventLocal is a locally observed event (e.g. a role change).
	EventLocal Kind = "event_local"
	// EventOFP is an OpenFlow-triggered event (e.g. a group-mod).
	EventOFP Kind = "event_ofp"
)

// Event is one line of the timeline: "<stage>,<cid>[.<inst>],<ts>,<rts>,<kind>,<info>".
type Event struct {
	Stage       string
	CID         string
	HasInstance bool
	Instance    uint

	Timestamp         float64
	RelativeTimestamp float64

	Kind Kind
	Info string
}

func (e Event) String() string {
	cid := e.CID
	if e.HasInstance {
		cid = fmt.Sprintf("%s.%d", e.CID, e.Instance)
	}
	return fmt.Sprintf("%s,%s,%f,%f,%s,%s", e.Stage, cid, e.Timestamp, e.RelativeTimestamp, e.Kind, e.Info)
}

// Recorder emits Events to out, computing each instance's rts (delta
// since its own previous event, 0 for its first) the way §6 defines
// it. A Recorder is scoped to one process, mirroring candidate.Set and
// every other piece of controller state: never module-global.
type Recorder struct {
	mu   sync.Mutex
	out  io.Writer
	last map[string]float64
	now  func() float64
}

// NewRecorder creates a Recorder writing to out, timestamping events
// with the wall clock.
func NewRecorder(out io.Writer) *Recorder {
	return NewRecorderWithClock(out, func() float64 {
		return float64(time.Now().UnixNano()) / 1e9
	})
}

// NewRecorderWithClock creates a Recorder with an injected clock, for
// deterministic tests.
func NewRecorderWithClock(out io.Writer, now func() float64) *Recorder {
	return &Recorder{out: out, last: make(map[string]float64), now: now}
}

// Record appends one event for (cid, instance) and writes it to the
// underlying writer. rts is tracked per "<cid>.<instance>" when
// hasInstance is true, and per cid alone otherwise.
func (r *Recorder) Record(stage, cid string, hasInstance bool, instance uint, kind Kind, info string) Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := r.now()
	key := cid
	if hasInstance {
		key = fmt.Sprintf("%s.%d", cid, instance)
	}
	var rts float64
	if prev, ok := r.last[key]; ok {
		rts = ts - prev
	}
	r.last[key] = ts

	ev := Event{
		Stage: stage, CID: cid, HasInstance: hasInstance, Instance: instance,
		Timestamp: ts, RelativeTimestamp: rts, Kind: kind, Info: info,
	}
	fmt.Fprintln(r.out, ev.String())
	return ev
}
