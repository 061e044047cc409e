package httputil

import (
	"net"
	"strings"
	"testing"
)

func TestValidateIP(t *testing.T) {
	tests := []struct {
		name string
		ip   string
		want string // substring expected in the error, "" if the IP should be allowed
	}{
		{"aws metadata service", "169.254.169.254", "link-local"},
		{"rfc1918 10/8", "10.0.0.1", "private"},
		{"rfc1918 172.16/12", "172.16.0.1", "private"},
		{"rfc1918 192.168/16", "192.168.0.1", "private"},
		{"loopback v4", "127.0.0.1", "loopback"},
		{"loopback v6", "::1", "loopback"},
		{"multicast v4", "224.0.0.1", "multicast"},
		{"multicast v6", "ff00::1", "multicast"},
		{"unspecified v4", "0.0.0.0", "unspecified"},
		{"unspecified v6", "::", "unspecified"},
		{"public v4, google dns", "8.8.8.8", ""},
		{"public v4, ghcr edge", "185.199.108.153", ""},
		{"public v6", "2607:f8b0:4004:800::200e", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIP(net.ParseIP(tt.ip), tt.ip)
			if tt.want == "" {
				if err != nil {
					t.Errorf("ValidateIP(%s) = %v, want nil (bottle mirrors resolve to public IPs)", tt.ip, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateIP(%s) = nil, want error containing %q", tt.ip, tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("ValidateIP(%s) = %v, want containing %q", tt.ip, err, tt.want)
			}
		})
	}
}

func TestValidateIPIncludesHostInError(t *testing.T) {
	// A mirror's redirect Location header names a hostname even when it
	// resolves to a blocked IP; the error must carry that hostname so a
	// rejected fetch's log line points at the offending mirror.
	err := ValidateIP(net.ParseIP("127.0.0.1"), "evil-mirror.example")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "evil-mirror.example") {
		t.Errorf("expected hostname in error, got: %v", err)
	}
}
