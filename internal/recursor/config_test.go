package recursor

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func mustCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return n
}

func TestServerAllowed_DenyWins(t *testing.T) {
	cfg := &Config{
		AllowServer: []*net.IPNet{mustCIDR("10.0.0.0/8")},
		DenyServer:  []*net.IPNet{mustCIDR("10.1.0.0/16")},
	}
	assert.True(t, cfg.serverAllowed(net.ParseIP("10.2.0.1")))
	assert.False(t, cfg.serverAllowed(net.ParseIP("10.1.0.1")), "deny must win even though the broader range allows it")
}

func TestServerAllowed_EmptyAllowListMeansAllowEverythingNotDenied(t *testing.T) {
	cfg := &Config{DenyServer: []*net.IPNet{mustCIDR("192.0.2.0/24")}}
	assert.True(t, cfg.serverAllowed(net.ParseIP("8.8.8.8")))
	assert.False(t, cfg.serverAllowed(net.ParseIP("192.0.2.53")))
}

func TestServerAllowed_NonEmptyAllowListExcludesOthers(t *testing.T) {
	cfg := &Config{AllowServer: []*net.IPNet{mustCIDR("203.0.113.0/24")}}
	assert.True(t, cfg.serverAllowed(net.ParseIP("203.0.113.5")))
	assert.False(t, cfg.serverAllowed(net.ParseIP("8.8.8.8")))
}
