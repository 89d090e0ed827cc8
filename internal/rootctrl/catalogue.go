// Package rootctrl implements §4.H's root controller: the inter-area
// link catalogue and the INTER_AREA_REQ/RESP path-stitching protocol
// that runs over the bus. It generalises the teacher's netmaster/master
// package -- which stitches network/endpoint intent across the hosts of
// one cluster -- to stitching *paths* across areas; the root holds no
// switch connections and only ever advises area masters over bus.Bus.
package rootctrl

import (
	"sync"

	"github.com/wandsdn/helix/internal/topology"
)

// InterAreaLink is one physical link joining two areas, identified by
// the switch/port on each side (§4.H "the set of physical links").
type InterAreaLink struct {
	AreaA string
	SwA   topology.NodeID
	PortA topology.PortNo

	AreaB string
	SwB   topology.NodeID
	PortB topology.PortNo
}

// reversed returns the same physical link seen from the other area.
func (l InterAreaLink) reversed() InterAreaLink {
	return InterAreaLink{
		AreaA: l.AreaB, SwA: l.SwB, PortA: l.PortB,
		AreaB: l.AreaA, SwB: l.SwA, PortB: l.PortA,
	}
}

type areaPair struct{ a, b string }

// Catalogue is the root controller's authoritative view of inter-area
// links and the host-to-area mapping, the root-controller analogue of
// the teacher's mastercfg global state.
type Catalogue struct {
	mu       sync.RWMutex
	links    map[areaPair][]InterAreaLink
	hostArea map[topology.NodeID]string
}

// NewCatalogue creates an empty catalogue.
func NewCatalogue() *Catalogue {
	return &Catalogue{
		links:    make(map[areaPair][]InterAreaLink),
		hostArea: make(map[topology.NodeID]string),
	}
}

// AddLink records a link between two areas. Order of AreaA/AreaB does
// not matter; it is queryable from either direction.
func (c *Catalogue) AddLink(l InterAreaLink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.links[areaPair{l.AreaA, l.AreaB}] = append(c.links[areaPair{l.AreaA, l.AreaB}], l)
	c.links[areaPair{l.AreaB, l.AreaA}] = append(c.links[areaPair{l.AreaB, l.AreaA}], l.reversed())
}

// LinksBetween returns every known link with areaA on one side and
// areaB on the other, oriented so SwA/PortA is on areaA's side.
func (c *Catalogue) LinksBetween(areaA, areaB string) []InterAreaLink {
	c.mu.RLock()
	defer c.mu.RUnlock()
	links := c.links[areaPair{areaA, areaB}]
	out := make([]InterAreaLink, len(links))
	copy(out, links)
	return out
}

// SetHostArea records which area owns a host.
func (c *Catalogue) SetHostArea(host topology.NodeID, area string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hostArea[host] = area
}

// AreaOf looks up the area owning a host.
func (c *Catalogue) AreaOf(host topology.NodeID) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	area, ok := c.hostArea[host]
	return area, ok
}
