package raft

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// NodeConfig holds the configuration inputs a node needs at construction:
// its own id, the fixed peer view (addresses, resolved by whatever
// transport loads this config), and the three timeout knobs.
// InitialLeader is an optional hint; it's cleared the first time any RPC
// or election changes the node's opinion of who leads.
type NodeConfig struct {
	Id                   uint64       `yaml:"id"`
	Peers                []PeerConfig `yaml:"peers"`
	InitialLeader        uint64       `yaml:"initial_leader"`
	HasInitialLeader     bool         `yaml:"-"`
	MinElectionTimeoutMs uint64       `yaml:"min_election_timeout_ms"`
	MaxElectionTimeoutMs uint64       `yaml:"max_election_timeout_ms"`
	HeartbeatTimeoutMs   uint64       `yaml:"heartbeat_timeout_ms"`
}

// PeerConfig names one member of the cluster view, including this node
// itself (the view must include self so Quorum is computed correctly;
// see the Peers doc in peers.go).
type PeerConfig struct {
	Id      uint64 `yaml:"id"`
	Address string `yaml:"address"`
}

// MinElectionTimeout returns the configured minimum as a time.Duration.
func (c NodeConfig) MinElectionTimeout() time.Duration {
	return time.Duration(c.MinElectionTimeoutMs) * time.Millisecond
}

// MaxElectionTimeout returns the configured maximum as a time.Duration.
func (c NodeConfig) MaxElectionTimeout() time.Duration {
	return time.Duration(c.MaxElectionTimeoutMs) * time.Millisecond
}

// HeartbeatTimeout returns the configured heartbeat interval as a
// time.Duration.
func (c NodeConfig) HeartbeatTimeout() time.Duration {
	return time.Duration(c.HeartbeatTimeoutMs) * time.Millisecond
}

// Validate checks the timing invariant this package requires:
// heartbeat_timeout < min_election_timeout < max_election_timeout.
func (c NodeConfig) Validate() error {
	if c.Id == 0 {
		return fmt.Errorf("raft: config: id must be > 0")
	}
	if len(c.Peers) == 0 {
		return fmt.Errorf("raft: config: peers must be non-empty and include self")
	}
	found := false
	for _, p := range c.Peers {
		if p.Id == c.Id {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("raft: config: peers must include this node's own id (%d)", c.Id)
	}
	if !(c.HeartbeatTimeout() < c.MinElectionTimeout() && c.MinElectionTimeout() < c.MaxElectionTimeout()) {
		return fmt.Errorf(
			"raft: config: invariant heartbeat_timeout(%s) < min_election_timeout(%s) < max_election_timeout(%s) violated",
			c.HeartbeatTimeout(), c.MinElectionTimeout(), c.MaxElectionTimeout(),
		)
	}
	return nil
}

// LoadConfig reads and decodes a NodeConfig from a YAML file at path,
// validating it before returning.
func LoadConfig(path string) (NodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return NodeConfig{}, fmt.Errorf("raft: reading config %s: %w", path, err)
	}
	var cfg NodeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return NodeConfig{}, fmt.Errorf("raft: parsing config %s: %w", path, err)
	}
	if cfg.InitialLeader != 0 {
		cfg.HasInitialLeader = true
	}
	if err := cfg.Validate(); err != nil {
		return NodeConfig{}, err
	}
	return cfg, nil
}
