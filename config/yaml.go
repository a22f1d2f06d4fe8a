package config

import "gopkg.in/yaml.v3"

// yamlConfig mirrors Config's shape with yaml tags; kept separate so Config
// itself stays free of serialization tags, matching the teacher's pattern of
// a plain struct plus a sibling (de)serialization helper.
type yamlConfig struct {
	ReplicationFactor         int           `yaml:"replication_factor"`
	Protocol                  int           `yaml:"protocol"`
	Topology                  int           `yaml:"topology"`
	ConnectTimeout            string        `yaml:"connect_timeout"`
	RPCTimeout                string        `yaml:"rpc_timeout"`
	NodeTimeout               string        `yaml:"node_timeout"`
	RebalanceAutoExpand       bool          `yaml:"rebalance_auto_expand"`
	RebalanceInspect          bool          `yaml:"rebalance_inspect"`
	LenientFetch              bool          `yaml:"lenient_fetch"`
	AllowAnonymousNamedRemove bool          `yaml:"allow_anonymous_named_remove"`
	AtRestEncryption          bool          `yaml:"at_rest_encryption"`
}

// MarshalYAML lets an embedder that already owns a YAML document embed a
// Config section without the core parsing any file itself.
func (c Config) MarshalYAML() (interface{}, error) {
	return yamlConfig{
		ReplicationFactor:         c.ReplicationFactor,
		Protocol:                  int(c.Protocol),
		Topology:                  int(c.Topology),
		ConnectTimeout:            c.ConnectTimeout.String(),
		RPCTimeout:                c.RPCTimeout.String(),
		NodeTimeout:               c.NodeTimeout.String(),
		RebalanceAutoExpand:       c.RebalanceAutoExpand,
		RebalanceInspect:          c.RebalanceInspect,
		LenientFetch:              c.LenientFetch,
		AllowAnonymousNamedRemove: c.AllowAnonymousNamedRemove,
		AtRestEncryption:          c.AtRestEncryption,
	}, nil
}

// UnmarshalYAML applies overrides on top of DefaultConfig so a partial
// document still yields a valid Config.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	base := DefaultConfig()
	seed, _ := base.MarshalYAML()
	y := seed.(yamlConfig)
	if err := value.Decode(&y); err != nil {
		return err
	}
	*c = base
	c.ReplicationFactor = y.ReplicationFactor
	c.Protocol = Protocol(y.Protocol)
	c.Topology = Topology(y.Topology)
	c.RebalanceAutoExpand = y.RebalanceAutoExpand
	c.RebalanceInspect = y.RebalanceInspect
	c.LenientFetch = y.LenientFetch
	c.AllowAnonymousNamedRemove = y.AllowAnonymousNamedRemove
	c.AtRestEncryption = y.AtRestEncryption
	return parseDurations(c, y)
}

func parseDurations(c *Config, y yamlConfig) error {
	var err error
	if y.ConnectTimeout != "" {
		if c.ConnectTimeout, err = parseDuration(y.ConnectTimeout); err != nil {
			return err
		}
	}
	if y.RPCTimeout != "" {
		if c.RPCTimeout, err = parseDuration(y.RPCTimeout); err != nil {
			return err
		}
	}
	if y.NodeTimeout != "" {
		if c.NodeTimeout, err = parseDuration(y.NodeTimeout); err != nil {
			return err
		}
	}
	return nil
}
