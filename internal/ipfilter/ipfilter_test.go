package ipfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowed(t *testing.T) {
	tests := []struct {
		name      string
		clientIP  string
		allowList []string
		want      bool
	}{
		{name: "nil list allows any", clientIP: "203.0.113.7", allowList: nil, want: true},
		{name: "empty list allows any", clientIP: "203.0.113.7", allowList: []string{}, want: true},
		{name: "empty list allows malformed client", clientIP: "not-an-ip", allowList: nil, want: true},
		{name: "exact match", clientIP: "10.0.0.1", allowList: []string{"10.0.0.1"}, want: true},
		{name: "exact mismatch", clientIP: "10.0.0.2", allowList: []string{"10.0.0.1"}, want: false},
		{name: "cidr member", clientIP: "10.0.0.5", allowList: []string{"10.0.0.0/24"}, want: true},
		{name: "cidr non member", clientIP: "10.0.1.5", allowList: []string{"10.0.0.0/24"}, want: false},
		{name: "non canonical cidr", clientIP: "10.0.0.200", allowList: []string{"10.0.0.9/24"}, want: true},
		{name: "malformed client rejected", clientIP: "10.0.0", allowList: []string{"10.0.0.0/24"}, want: false},
		{name: "empty client rejected", clientIP: "", allowList: []string{"10.0.0.1"}, want: false},
		{name: "malformed entries skipped", clientIP: "192.168.1.20", allowList: []string{"garbage", "300.1.1.1", "10.0.0.0/99", "192.168.1.0/24"}, want: true},
		{name: "only malformed entries", clientIP: "192.168.1.20", allowList: []string{"garbage"}, want: false},
		{name: "ipv6 exact", clientIP: "2001:db8::1", allowList: []string{"2001:db8::1"}, want: true},
		{name: "ipv6 cidr", clientIP: "2001:db8::abcd", allowList: []string{"2001:db8::/32"}, want: true},
		{name: "ipv4 mapped client", clientIP: "::ffff:10.0.0.1", allowList: []string{"10.0.0.1"}, want: true},
		{name: "ipv4 client vs ipv6 cidr", clientIP: "10.0.0.1", allowList: []string{"2001:db8::/32"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Allowed(tt.clientIP, tt.allowList))
		})
	}
}

func TestValidate(t *testing.T) {
	invalid := Validate([]string{"10.0.0.1", "10.0.0.0/24", "bogus", "1.2.3.4/40", "::1"})
	assert.Equal(t, []string{"bogus", "1.2.3.4/40"}, invalid)
	assert.Empty(t, Validate(nil))
}
