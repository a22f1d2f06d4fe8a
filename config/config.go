// Package config defines the storage core's tunables, following the
// teacher's config package shape: a flat Config/Parameters struct, a
// DefaultConfig constructor, and sentinel validation errors (config/errors.go,
// config/config.go, config/parameters.go in the teacher repo).
//
// The core never reads a config file from disk — that is an explicit
// Non-goal (command-line front ends, configuration files). Embedders build a
// Config in-process; the optional YAML unmarshaling in yaml.go exists for
// embedders that already parse their own config files and want this struct
// to slot into that document.
package config

import "time"

// Protocol selects which wire protocols the dock dials.
type Protocol int

const (
	ProtocolTCP Protocol = iota
	ProtocolUTP
	ProtocolBoth
)

// Topology selects the overlay implementation.
type Topology int

const (
	TopologyGroupGossip Topology = iota
	TopologyFlatView
)

// GossipConfig holds the group-gossip (Kelips-style) overlay's tunables,
// enumerated in spec §4.2.
type GossipConfig struct {
	K                   int
	MaxOtherContacts    int
	GossipInterval      time.Duration
	NewThreshold        time.Duration
	OldThreshold        time.Duration
	GossipFanoutFiles    int
	GossipFanoutContacts int
	GossipFanoutGroup    int
	GossipFanoutOther    int
	QueryTimeout        time.Duration
	QueryRetriesGet     int
	QueryRetriesPut     int
	QueryTTLGet         int
	QueryTTLPut         int
	ContactTimeout      time.Duration
	FileTimeout         time.Duration
	PingInterval        time.Duration
	PingTimeout         time.Duration
	WaitNodes           int
	Encrypt             bool
	AcceptPlain         bool
}

// DefaultGossipConfig mirrors Kelips' own defaults (original_source's
// kelips/Kelips.hh), scaled for a modest cluster.
func DefaultGossipConfig() GossipConfig {
	return GossipConfig{
		K:                    8,
		MaxOtherContacts:     8,
		GossipInterval:       5 * time.Second,
		NewThreshold:         2 * time.Minute,
		OldThreshold:         10 * time.Minute,
		GossipFanoutFiles:    3,
		GossipFanoutContacts: 3,
		GossipFanoutGroup:    3,
		GossipFanoutOther:    1,
		QueryTimeout:         2 * time.Second,
		QueryRetriesGet:      3,
		QueryRetriesPut:      3,
		QueryTTLGet:          5,
		QueryTTLPut:          5,
		ContactTimeout:       30 * time.Second,
		FileTimeout:          time.Hour,
		PingInterval:         3 * time.Second,
		PingTimeout:          time.Second,
		WaitNodes:            1,
		Encrypt:              true,
		AcceptPlain:          false,
	}
}

// Config is the top-level configuration threaded through the core.
type Config struct {
	// ReplicationFactor is ℛ, the invariant target replica count (§3.3).
	ReplicationFactor int

	Protocol Protocol
	Topology Topology
	Gossip   GossipConfig

	ConnectTimeout    time.Duration
	RPCTimeout        time.Duration
	PingInterval      time.Duration
	PingTimeout       time.Duration
	NodeTimeout       time.Duration
	RebalanceDelay    time.Duration
	PaxosRoundTimeout time.Duration

	RebalanceAutoExpand bool
	RebalanceInspect    bool

	// LenientFetch tolerates a fetch quorum smaller than ℛ rather than
	// failing outright (supplemented from original_source's Paxos.hh).
	LenientFetch bool

	// AllowAnonymousNamedRemove is the explicit policy knob for named
	// blocks with a null owner: without it, model.Facade.Remove refuses to
	// remove an anonymous named block. consensus.Client.Remove and
	// block.Named.CheckRemove do not consult it.
	AllowAnonymousNamedRemove bool

	// AtRestEncryption is carried through DefaultConfig and the YAML form,
	// but no package reads it: an ACL block encrypts its payload whenever
	// WorldRead is false, whatever this field says.
	AtRestEncryption bool

	// CompatVersion names a wire version to serialize in. No package reads
	// it, so blocks are written at block.CurrentWireVersion unless a caller
	// passes another version to block.EncodeBinary itself.
	CompatVersion WireVersion

	MaxConflictRetries int

	BackoffInitial time.Duration
	BackoffMax     time.Duration
	BackoffSteps   int
}

// WireVersion is the semantic version triple prefixing every serialized block.
type WireVersion struct {
	Major, Minor, Patch uint16
}

// CurrentWireVersion is the version this build serializes by default.
var CurrentWireVersion = WireVersion{Major: 1, Minor: 0, Patch: 0}
