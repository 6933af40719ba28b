package rstream

import (
	"bytes"
	"log/slog"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultMaxRetransmissions is the number of consecutive retransmissions a
	// Peer tolerates before aborting the connection.
	DefaultMaxRetransmissions = 8
	// DefaultCapacity is the capacity of the streams built by NewPeerBuffered.
	DefaultCapacity = 64000
	// MaxWirePayload is the largest payload that fits an IPv4 datagram carrying
	// a TCP segment without options.
	MaxWirePayload = 65535 - 20 - 20
)

// Config configures a Peer. Zero fields take defaults.
type Config struct {
	// ISN is the initial sequence number of the outbound direction.
	ISN Value `yaml:"isn"`
	// InitialRTO is the retransmission timeout in milliseconds.
	InitialRTO uint64 `yaml:"initial_rto_ms"`
	// MaxRTO caps the backed off retransmission timeout in milliseconds. Zero means no cap.
	MaxRTO uint64 `yaml:"max_rto_ms"`
	// MaxPayloadSize limits the payload of a single segment.
	MaxPayloadSize int `yaml:"max_payload_size"`
	// MaxRetransmissions is how many consecutive retransmissions are tolerated before abort.
	MaxRetransmissions uint64 `yaml:"max_retransmissions"`
	// Capacity is the capacity of the outbound and inbound streams built by
	// NewPeerBuffered. It bounds the window advertised to the remote.
	Capacity uint64 `yaml:"capacity"`

	Logger *slog.Logger `yaml:"-"`
}

// DecodeConfig parses a YAML document into a validated Config. Unknown fields are rejected.
func DecodeConfig(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "rstream: decoding config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the Peer cannot work with.
func (cfg *Config) Validate() error {
	switch {
	case cfg.MaxPayloadSize < 0:
		return errors.Errorf("rstream: negative max payload size %d", cfg.MaxPayloadSize)
	case cfg.MaxPayloadSize > MaxWirePayload:
		return errors.Errorf("rstream: max payload size %d exceeds %d", cfg.MaxPayloadSize, MaxWirePayload)
	case cfg.MaxRTO != 0 && cfg.MaxRTO < cfg.withDefaults().InitialRTO:
		return errors.Errorf("rstream: max RTO %dms below initial RTO %dms", cfg.MaxRTO, cfg.withDefaults().InitialRTO)
	}
	return nil
}

func (cfg Config) withDefaults() Config {
	if cfg.InitialRTO == 0 {
		cfg.InitialRTO = DefaultInitialRTO
	}
	if cfg.MaxPayloadSize == 0 {
		cfg.MaxPayloadSize = DefaultMaxPayloadSize
	}
	if cfg.MaxRetransmissions == 0 {
		cfg.MaxRetransmissions = DefaultMaxRetransmissions
	}
	if cfg.Capacity == 0 {
		cfg.Capacity = DefaultCapacity
	}
	return cfg
}

func (cfg Config) senderConfig() SenderConfig {
	return SenderConfig{
		ISN:            cfg.ISN,
		InitialRTO:     cfg.InitialRTO,
		MaxRTO:         cfg.MaxRTO,
		MaxPayloadSize: cfg.MaxPayloadSize,
	}
}
