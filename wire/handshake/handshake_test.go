package handshake

import "testing"

func TestDecodeEncodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		code int32
		enet int32
	}{
		{"connect", CodeConnect, 7},
		{"disconnect", CodeDisconnect, 0},
		{"unrecognized code", 1, -1},
		{"negative enet", CodeConnect, -123456},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := Encode(tt.code, tt.enet)
			if len(buf) != Size {
				t.Fatalf("Encode produced %d bytes, want %d", len(buf), Size)
			}

			got, ok := Decode(buf)
			if !ok {
				t.Fatalf("Decode() ok = false, want true")
			}
			if got.Code != tt.code || got.Enet != tt.enet {
				t.Fatalf("Decode() = %+v, want {Code:%d Enet:%d}", got, tt.code, tt.enet)
			}
		})
	}
}

func TestDecodeWrongLength(t *testing.T) {
	tests := []int{0, 1, 19, 21, 40}
	for _, n := range tests {
		buf := make([]byte, n)
		if _, ok := Decode(buf); ok {
			t.Errorf("Decode(len=%d) ok = true, want false", n)
		}
		if IsControl(n) != (n == Size) {
			t.Errorf("IsControl(%d) = %v", n, IsControl(n))
		}
	}
}

func TestDecodeIgnoresReservedFields(t *testing.T) {
	buf := Encode(CodeConnect, 42)
	// Scramble the reserved bytes; decode result must be unaffected.
	buf[4], buf[5], buf[6], buf[7] = 0xFF, 0xFF, 0xFF, 0xFF
	buf[8], buf[9], buf[10], buf[11] = 0xAA, 0xAA, 0xAA, 0xAA
	buf[16], buf[17], buf[18], buf[19] = 0x55, 0x55, 0x55, 0x55

	got, ok := Decode(buf)
	if !ok || got.Code != CodeConnect || got.Enet != 42 {
		t.Fatalf("Decode() = %+v, ok=%v, want {255 42}, true", got, ok)
	}
}
