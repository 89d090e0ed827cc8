package config

// The switch-to-controller map and the port-description CSV are
// genuinely external inputs (§1, §6): Helix depends only on their
// shape and on a loader interface, not on any particular source (file,
// etcd key, config-management push). Concrete loaders are deployment
// tooling, not a Helix component.

// InterAreaLinkDescriptor is one entry of a ctrl.<cid>.dom.<neighbour>
// list: an inter-area link from this area's (sw,port) to the
// neighbour area's (sw_to,port_to).
type InterAreaLinkDescriptor struct {
	Switch   uint64 `json:"sw"`
	Port     uint32 `json:"port"`
	SwitchTo uint64 `json:"sw_to"`
	PortTo   uint32 `json:"port_to"`
}

// ControllerDescriptor is one ctrl.<cid> entry.
type ControllerDescriptor struct {
	Switches       []uint64 `json:"sw"`
	Hosts          []string `json:"host"`
	ExtraInstances []uint   `json:"extra_instances"`
	Domains        map[string][]InterAreaLinkDescriptor `json:"dom"`
}

// RootDescriptor is one root.<rid> entry. The map carries no fields of
// its own beyond its key today; it exists so the map's shape matches
// §6 and can grow root-specific settings without changing SwitchMap's
// field layout.
type RootDescriptor struct{}

// SwitchMap is the parsed switch-to-controller map (§6).
type SwitchMap struct {
	Roots       map[string]RootDescriptor       `json:"root"`
	Controllers map[string]ControllerDescriptor `json:"ctrl"`
}

// SwitchMapLoader loads and parses the switch-to-controller map from
// wherever deployment tooling publishes it. Implementations are
// outside Helix's scope.
type SwitchMapLoader interface {
	Load() (SwitchMap, error)
}

// PortDescRow is one row of the port-description CSV: "dpid,port,speed"
// with speed in bits per second.
type PortDescRow struct {
	DPID  uint64
	Port  uint32
	Speed uint64
}

// PortDescLoader loads the static port-description table used to seed
// port capacity ahead of OpenFlow port-desc discovery (§6). Like
// SwitchMapLoader, concrete implementations are outside Helix's scope.
type PortDescLoader interface {
	Load() ([]PortDescRow, error)
}
