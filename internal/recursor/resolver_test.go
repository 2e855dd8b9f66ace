package recursor

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lattice-dns/dnscore/internal/wire"
)

func TestResponseTTL_UsesMinimumAnswerTTLAndPolicyBounds(t *testing.T) {
	msg := &wire.Message{Answers: []wire.Record{{TTL: 300}, {TTL: 60}, {TTL: 900}}}
	got := responseTTL(msg, nil, wire.TypeA)
	assert.Equal(t, 60*time.Second, got)

	policy := CachePolicy{uint16(wire.TypeA): {Min: 120, Max: 200}}
	got = responseTTL(msg, policy, wire.TypeA)
	assert.Equal(t, 120*time.Second, got, "TTL below policy minimum is clamped up")
}

func TestResponseTTL_NoAnswersDefaultsTo300(t *testing.T) {
	msg := &wire.Message{}
	assert.Equal(t, 300*time.Second, responseTTL(msg, nil, wire.TypeA))
}

func TestMinAuthorityTTL(t *testing.T) {
	assert.Equal(t, uint32(3600), minAuthorityTTL(nil))
	assert.Equal(t, uint32(100), minAuthorityTTL([]wire.Record{{TTL: 500}, {TTL: 100}, {TTL: 300}}))
}

func TestFilterAllowed(t *testing.T) {
	cfg := Config{DenyServer: []*net.IPNet{mustCIDR("192.0.2.0/24")}}
	in := []net.IP{net.ParseIP("192.0.2.1"), net.ParseIP("8.8.8.8")}
	out := filterAllowed(cfg, in)
	assert.Len(t, out, 1)
	assert.True(t, out[0].Equal(net.ParseIP("8.8.8.8")))
}

func TestJoinLabels(t *testing.T) {
	assert.Equal(t, ".", joinLabels(nil))
	assert.Equal(t, "example.com.", joinLabels([]string{"example", "com"}))
}
