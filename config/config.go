// Package config handles the ingress core's configuration surface.
//
// The configuration is a YAML file with a single top-level section
// covering the booleans and knobs the core consumes, plus two
// operator-tunable values that default to the reference engine's own
// constants (waiter cap, FEC header size) — see DESIGN.md.
//
// Example:
//
//	proxy_protocol_v2_enabled: true
//	use_conv_channel: true
//	crc32_check: false
//	waiter_cap: 10
//	fec_adapt:
//	  header_size_plus_2: 6
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultWaiterCap is the reference handshake-waiter table bound.
const DefaultWaiterCap = 10

// DefaultFECHeaderSizePlus2 mirrors the teacher engine's FEC header
// size (pkg/kcp/fec.go's FECHeaderSize), used as the default SN-offset
// contribution when FEC is enabled but no explicit size is configured.
const DefaultFECHeaderSizePlus2 = 6

// FECConfig describes the forward-error-correction adapter, if any.
// Its presence (a non-nil *FECConfig) shifts the KCP sequence-number
// offset used when promoting a handshake waiter.
type FECConfig struct {
	// HeaderSizePlus2 is the number of bytes the FEC layer prepends to
	// every KCP packet, added to IKCPSNOffset when computing where the
	// sequence number lives in a data datagram.
	HeaderSizePlus2 int `yaml:"header_size_plus_2"`
}

// Config is the configuration surface consumed by the ingress core.
type Config struct {
	// ProxyProtocolV2Enabled enables PROXY-v2 header stripping on
	// every inbound datagram.
	ProxyProtocolV2Enabled bool `yaml:"proxy_protocol_v2_enabled"`

	// UseConvChannel enables conversation-id based demultiplexing
	// (component C, the conversation registry). This core always
	// implements it; the flag exists because the original engine can
	// run in a mode that demultiplexes by endpoint alone.
	UseConvChannel bool `yaml:"use_conv_channel"`

	// CRC32Check enables a packet-integrity prefix. It does not shift
	// the SN offset computation (verified against the reference
	// engine's getSn, which never reads this flag).
	CRC32Check bool `yaml:"crc32_check"`

	// WaiterCap bounds the handshake-waiter table. Zero means
	// DefaultWaiterCap. Operators may tune this rather than carry the
	// reference engine's fixed bound.
	WaiterCap int `yaml:"waiter_cap"`

	// FECAdapt is non-nil when an FEC adapter is active. Its presence
	// adds HeaderSizePlus2 bytes to the SN offset.
	FECAdapt *FECConfig `yaml:"fec_adapt"`
}

// WaiterCapOrDefault returns c.WaiterCap, falling back to
// DefaultWaiterCap when unset.
func (c Config) WaiterCapOrDefault() int {
	if c.WaiterCap <= 0 {
		return DefaultWaiterCap
	}
	return c.WaiterCap
}

// FECHeaderOffset returns the number of extra bytes contributed by the
// FEC layer to the KCP sequence-number offset, or 0 when FEC is
// disabled.
func (c Config) FECHeaderOffset() int {
	if c.FECAdapt == nil {
		return 0
	}
	if c.FECAdapt.HeaderSizePlus2 <= 0 {
		return DefaultFECHeaderSizePlus2
	}
	return c.FECAdapt.HeaderSizePlus2
}

// Load reads and parses a YAML configuration file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the reference configuration: PROXY-v2 and conv-channel
// demultiplexing enabled, CRC32 disabled, default waiter cap, no FEC.
func Default() Config {
	return Config{
		ProxyProtocolV2Enabled: true,
		UseConvChannel:         true,
		WaiterCap:              DefaultWaiterCap,
	}
}
