package ipfilter

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseNetworks(t *testing.T) {
	tests := []struct {
		name      string
		entries   []string
		wantCount int
	}{
		{name: "empty list", entries: []string{}, wantCount: 0},
		{name: "single IP", entries: []string{"192.168.1.1"}, wantCount: 1},
		{name: "CIDR range", entries: []string{"10.0.0.0/8"}, wantCount: 1},
		{name: "with whitespace", entries: []string{"  192.168.1.1  ", " 10.0.0.0/8 ", ""}, wantCount: 2},
		{name: "invalid entries ignored", entries: []string{"192.168.1.1", "invalid", "10.0.0.0/33"}, wantCount: 1},
		{name: "IPv6", entries: []string{"::1", "2001:db8::/32"}, wantCount: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(ParseNetworks(tt.entries, newTestLogger())); got != tt.wantCount {
				t.Errorf("ParseNetworks() = %d networks, want %d", got, tt.wantCount)
			}
		})
	}
}

func TestFilter_IsAllowed(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		ip      string
		want    bool
	}{
		{name: "empty filter allows all", ip: "1.2.3.4", want: true},
		{name: "exact match", allowed: []string{"192.168.1.1"}, ip: "192.168.1.1", want: true},
		{name: "exact no match", allowed: []string{"192.168.1.1"}, ip: "192.168.1.2", want: false},
		{name: "CIDR match", allowed: []string{"10.0.0.0/8"}, ip: "10.20.30.40", want: true},
		{name: "IPv6 loopback", allowed: []string{"::1"}, ip: "::1", want: true},
		{name: "IPv4 not in IPv6 net", allowed: []string{"2001:db8::/32"}, ip: "10.0.0.1", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.allowed, nil, newTestLogger())
			if got := f.IsAllowed(net.ParseIP(tt.ip)); got != tt.want {
				t.Errorf("IsAllowed(%s) = %v, want %v", tt.ip, got, tt.want)
			}
		})
	}
}

func TestFilter_ClientIP(t *testing.T) {
	tests := []struct {
		name       string
		proxies    []string
		xff        string
		xri        string
		remoteAddr string
		wantIP     string
	}{
		{
			name:       "untrusted peer ignores X-Forwarded-For",
			xff:        "203.0.113.50",
			remoteAddr: "198.51.100.7:12345",
			wantIP:     "198.51.100.7",
		},
		{
			name:       "trusted proxy uses first X-Forwarded-For",
			proxies:    []string{"127.0.0.1"},
			xff:        "203.0.113.50, 70.41.3.18",
			remoteAddr: "127.0.0.1:12345",
			wantIP:     "203.0.113.50",
		},
		{
			name:       "trusted proxy uses X-Real-IP",
			proxies:    []string{"10.0.0.0/8"},
			xri:        "198.51.100.25",
			remoteAddr: "10.1.2.3:12345",
			wantIP:     "198.51.100.25",
		},
		{
			name:       "trusted proxy with garbage header",
			proxies:    []string{"127.0.0.1"},
			xff:        "not-an-ip",
			remoteAddr: "127.0.0.1:12345",
			wantIP:     "127.0.0.1",
		},
		{
			name:       "RemoteAddr without port",
			remoteAddr: "192.168.1.100",
			wantIP:     "192.168.1.100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(nil, tt.proxies, newTestLogger())
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}

			ip := f.ClientIP(req)
			if ip == nil || ip.String() != tt.wantIP {
				t.Errorf("ClientIP() = %v, want %s", ip, tt.wantIP)
			}
		})
	}
}

func TestFilter_HTTPMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		allowed    []string
		remoteAddr string
		xff        string
		wantStatus int
	}{
		{name: "empty filter allows all", remoteAddr: "1.2.3.4:1", wantStatus: http.StatusOK},
		{name: "allowed IP", allowed: []string{"192.168.0.0/16"}, remoteAddr: "192.168.1.100:1", wantStatus: http.StatusOK},
		{name: "denied IP", allowed: []string{"192.168.0.0/16"}, remoteAddr: "10.0.0.1:1", wantStatus: http.StatusForbidden},
		{
			name:       "spoofed header from untrusted peer",
			allowed:    []string{"192.168.0.0/16"},
			remoteAddr: "10.0.0.1:1",
			xff:        "192.168.1.1",
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.allowed, nil, newTestLogger())
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}

			rr := httptest.NewRecorder()
			f.HTTPMiddleware(handler).ServeHTTP(rr, req)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}
