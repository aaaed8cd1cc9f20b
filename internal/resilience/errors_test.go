package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("invalid input: missing field"), false},
		{"reset", fmt.Errorf("write tcp: %w", syscall.ECONNRESET), true},
		{"refused", fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), true},
		{"dns timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"dns miss", &net.DNSError{Err: "no such host", IsNotFound: true}, false},
		{"flattened i/o timeout", errors.New("Get \"https://example.nl\": read tcp: i/o timeout"), true},
		{"flattened tls", errors.New("net/http: TLS handshake timeout"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 529} {
		assert.False(t, IsTransientHTTPStatus(code), code)
	}
}
