package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantCfg Config
	}{
		{
			name: "full",
			yaml: `
proxy_protocol_v2_enabled: true
use_conv_channel: true
crc32_check: true
waiter_cap: 25
fec_adapt:
  header_size_plus_2: 8
`,
			wantCfg: Config{
				ProxyProtocolV2Enabled: true,
				UseConvChannel:         true,
				CRC32Check:             true,
				WaiterCap:              25,
				FECAdapt:               &FECConfig{HeaderSizePlus2: 8},
			},
		},
		{
			name: "minimal",
			yaml: `proxy_protocol_v2_enabled: false`,
			wantCfg: Config{
				ProxyProtocolV2Enabled: false,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}

			got, err := Load(path)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			if got.ProxyProtocolV2Enabled != tt.wantCfg.ProxyProtocolV2Enabled ||
				got.UseConvChannel != tt.wantCfg.UseConvChannel ||
				got.CRC32Check != tt.wantCfg.CRC32Check ||
				got.WaiterCap != tt.wantCfg.WaiterCap {
				t.Fatalf("Load() = %+v, want %+v", got, tt.wantCfg)
			}

			if (got.FECAdapt == nil) != (tt.wantCfg.FECAdapt == nil) {
				t.Fatalf("FECAdapt presence mismatch: got %+v, want %+v", got.FECAdapt, tt.wantCfg.FECAdapt)
			}
			if got.FECAdapt != nil && got.FECAdapt.HeaderSizePlus2 != tt.wantCfg.FECAdapt.HeaderSizePlus2 {
				t.Fatalf("FECAdapt.HeaderSizePlus2 = %d, want %d", got.FECAdapt.HeaderSizePlus2, tt.wantCfg.FECAdapt.HeaderSizePlus2)
			}
		})
	}
}

func TestWaiterCapOrDefault(t *testing.T) {
	tests := []struct {
		name string
		cap  int
		want int
	}{
		{"unset", 0, DefaultWaiterCap},
		{"negative", -1, DefaultWaiterCap},
		{"explicit", 42, 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Config{WaiterCap: tt.cap}
			if got := c.WaiterCapOrDefault(); got != tt.want {
				t.Errorf("WaiterCapOrDefault() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFECHeaderOffset(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want int
	}{
		{"disabled", Config{}, 0},
		{"enabled default", Config{FECAdapt: &FECConfig{}}, DefaultFECHeaderSizePlus2},
		{"enabled explicit", Config{FECAdapt: &FECConfig{HeaderSizePlus2: 10}}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.FECHeaderOffset(); got != tt.want {
				t.Errorf("FECHeaderOffset() = %d, want %d", got, tt.want)
			}
		})
	}
}
