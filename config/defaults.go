package config

import "time"

// DefaultConfig returns a Config with the teacher repo's convention of a
// single DefaultParams()-style constructor (config/config.go) applied to
// this domain's tunables.
func DefaultConfig() Config {
	return Config{
		ReplicationFactor:   3,
		Protocol:            ProtocolBoth,
		Topology:            TopologyGroupGossip,
		Gossip:              DefaultGossipConfig(),
		ConnectTimeout:      5 * time.Second,
		RPCTimeout:          10 * time.Second,
		PingInterval:        3 * time.Second,
		PingTimeout:         time.Second,
		NodeTimeout:         30 * time.Second,
		RebalanceDelay:      10 * time.Second,
		PaxosRoundTimeout:   15 * time.Second,
		RebalanceAutoExpand: true,
		RebalanceInspect:    true,
		LenientFetch:        false,
		AllowAnonymousNamedRemove: false,
		AtRestEncryption:    false,
		CompatVersion:       CurrentWireVersion,
		MaxConflictRetries:  20,
		BackoffInitial:      100 * time.Millisecond,
		BackoffMax:          25 * time.Second,
		BackoffSteps:        8,
	}
}

// FlatViewConfig returns DefaultConfig tuned for a small, fully-meshed
// cluster (overlay.TopologyFlatView) — mirrors the teacher's preset
// functions (config/presets.go).
func FlatViewConfig() Config {
	c := DefaultConfig()
	c.Topology = TopologyFlatView
	return c
}
