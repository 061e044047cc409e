package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if opts.Timeout != 30*time.Second {
		t.Errorf("Expected default Timeout 30s, got %v", opts.Timeout)
	}
	if opts.DialTimeout != 30*time.Second {
		t.Errorf("Expected default DialTimeout 30s, got %v", opts.DialTimeout)
	}
	if opts.TLSHandshakeTimeout != 10*time.Second {
		t.Errorf("Expected default TLSHandshakeTimeout 10s, got %v", opts.TLSHandshakeTimeout)
	}
	if opts.MaxRedirects != 10 {
		t.Errorf("Expected default MaxRedirects 10, got %d", opts.MaxRedirects)
	}
	if opts.EnableCompression {
		t.Error("Expected default EnableCompression false")
	}
}

func TestNewSecureClient_Compression(t *testing.T) {
	// Bottle archives are already gzip-compressed; accepting a
	// Content-Encoding on top of that just buys a second decompression
	// bomb surface for no benefit, so compression stays off unless asked
	// for explicitly.
	cases := []struct {
		name    string
		opts    ClientOptions
		disable bool
	}{
		{"default", ClientOptions{}, true},
		{"explicitly disabled", ClientOptions{EnableCompression: false}, true},
		{"explicitly enabled", ClientOptions{EnableCompression: true}, false},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			transport := NewSecureClient(tt.opts).Transport.(*http.Transport)
			if transport.DisableCompression != tt.disable {
				t.Errorf("DisableCompression = %v, want %v", transport.DisableCompression, tt.disable)
			}
		})
	}
}

func TestNewSecureClient_Timeout(t *testing.T) {
	if got := NewSecureClient(ClientOptions{}).Timeout; got != 30*time.Second {
		t.Errorf("default Timeout = %v, want 30s", got)
	}
	if got := NewSecureClient(ClientOptions{Timeout: 5 * time.Minute}).Timeout; got != 5*time.Minute {
		t.Errorf("Timeout = %v, want 5m", got)
	}
}

func TestNewSecureClient_RedirectRejected(t *testing.T) {
	// Simulates a compromised bottle mirror trying to hand the fetcher
	// off somewhere it shouldn't follow.
	tests := []struct {
		name     string
		location string
		want     string
	}{
		{"downgrade to plain HTTP", "http://example.com/evil", "non-HTTPS"},
		{"redirect into a private network", "https://192.168.1.1/admin", "private"},
		{"redirect to loopback", "https://127.0.0.1/evil", "loopback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, tt.location, http.StatusFound)
			}))
			defer server.Close()

			client := NewSecureClient(ClientOptions{})
			client.Transport = server.Client().Transport
			client.CheckRedirect = makeRedirectChecker(10)

			resp, err := client.Get(server.URL)
			if resp != nil {
				resp.Body.Close()
			}
			if err == nil {
				t.Fatal("expected the redirect to be rejected")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestNewSecureClient_TooManyRedirects(t *testing.T) {
	checker := makeRedirectChecker(3)

	via := make([]*http.Request, 3)
	req, _ := http.NewRequest("GET", "https://example.com/page4", nil)

	err := checker(req, via)
	if err == nil {
		t.Fatal("Expected error for too many redirects, got nil")
	}
	if !strings.Contains(err.Error(), "too many redirects") {
		t.Errorf("Expected 'too many redirects' in error, got: %v", err)
	}
}

func TestNewSecureClientWithHeaders_InjectsFixedHeaders(t *testing.T) {
	var gotAuth, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUA = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	client := NewSecureClientWithHeaders(ClientOptions{}, map[string]string{
		"Authorization": "Bearer QQ==",
		"User-Agent":    "pacbrew/0.1",
	})

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	resp.Body.Close()

	if gotAuth != "Bearer QQ==" {
		t.Errorf("Authorization header = %q, want %q", gotAuth, "Bearer QQ==")
	}
	if gotUA != "pacbrew/0.1" {
		t.Errorf("User-Agent header = %q, want %q", gotUA, "pacbrew/0.1")
	}
}

func TestNewSecureClientWithHeaders_KeepsConfiguredHeaders(t *testing.T) {
	headers := map[string]string{"User-Agent": "Wget/1.21.3"}
	client := NewSecureClientWithHeaders(ClientOptions{}, headers)

	rt, ok := client.Transport.(*headerRoundTripper)
	if !ok {
		t.Fatalf("Transport = %T, want *headerRoundTripper", client.Transport)
	}
	if rt.headers["User-Agent"] != "Wget/1.21.3" {
		t.Errorf("headerRoundTripper lost the configured header")
	}
}
