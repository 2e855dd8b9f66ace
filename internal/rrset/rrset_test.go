package rrset

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lattice-dns/dnscore/internal/wire"
)

func soaRecord(serial uint32) wire.Record {
	return wire.Record{
		Name: wire.NewName("example.com"), Type: wire.TypeSOA, Class: wire.ClassIN, TTL: 3600,
		MName: wire.NewName("ns1.example.com"), RName: wire.NewName("hostmaster.example.com"),
		Serial: serial, Refresh: 7200, Retry: 3600, Expire: 1209600, Minimum: 3600,
	}
}

// Property 5: SOA serial ≤ existing leaves the set unchanged.
func TestInsert_SOASerialNotGreaterIgnored(t *testing.T) {
	s := New(wire.NewName("example.com"), wire.TypeSOA, wire.ClassIN)
	assert.True(t, s.Insert(soaRecord(10), 1))
	assert.False(t, s.Insert(soaRecord(10), 2), "equal serial must be ignored")
	assert.False(t, s.Insert(soaRecord(5), 3), "lower serial must be ignored")
	assert.Equal(t, uint32(10), s.Records()[0].Serial)
	assert.Equal(t, uint32(1), s.Serial, "serial tracker must not advance on a no-op insert")
}

func TestInsert_SOAHigherSerialReplaces(t *testing.T) {
	s := New(wire.NewName("example.com"), wire.TypeSOA, wire.ClassIN)
	s.Insert(soaRecord(10), 1)
	assert.True(t, s.Insert(soaRecord(20), 2))
	assert.Equal(t, uint32(20), s.Records()[0].Serial)
	assert.Equal(t, uint32(2), s.Serial)
}

func cnameRecord(target string) wire.Record {
	return wire.Record{Name: wire.NewName("alias.example.com"), Type: wire.TypeCNAME, Class: wire.ClassIN, TTL: 300, Host: wire.NewName(target)}
}

// Property 5: CNAME/ANAME — any second insert with different rdata replaces.
func TestInsert_CNAMEReplacesWholeSet(t *testing.T) {
	s := New(wire.NewName("alias.example.com"), wire.TypeCNAME, wire.ClassIN)
	assert.True(t, s.Insert(cnameRecord("first.example.com"), 1))
	assert.True(t, s.Insert(cnameRecord("second.example.com"), 2))
	assert.Len(t, s.Records(), 1)
	assert.Equal(t, wire.NewName("second.example.com"), s.Records()[0].Host)
}

func nsRecord(host string) wire.Record {
	return wire.Record{Name: wire.NewName("example.com"), Type: wire.TypeNS, Class: wire.ClassIN, TTL: 3600, Host: wire.NewName(host)}
}

// Property 7: NS floor — removing the last NS at the apex returns false.
func TestRemove_LastNSRefused(t *testing.T) {
	s := New(wire.NewName("example.com"), wire.TypeNS, wire.ClassIN)
	s.Insert(nsRecord("ns1.example.com"), 1)
	assert.False(t, s.Remove(nsRecord("ns1.example.com"), 2))
	assert.Len(t, s.Records(), 1)
}

func TestRemove_NonLastNSAllowed(t *testing.T) {
	s := New(wire.NewName("example.com"), wire.TypeNS, wire.ClassIN)
	s.Insert(nsRecord("ns1.example.com"), 1)
	s.Insert(nsRecord("ns2.example.com"), 2)
	assert.True(t, s.Remove(nsRecord("ns1.example.com"), 3))
	assert.Len(t, s.Records(), 1)
}

func TestRemove_SOARefused(t *testing.T) {
	s := New(wire.NewName("example.com"), wire.TypeSOA, wire.ClassIN)
	s.Insert(soaRecord(10), 1)
	assert.False(t, s.Remove(soaRecord(10), 2))
	assert.Len(t, s.Records(), 1)
}

// Property 6: any successful Insert or Remove clears the RRSIG sidecar.
func TestMutation_InvalidatesRRSIGs(t *testing.T) {
	s := New(wire.NewName("example.com"), wire.TypeNS, wire.ClassIN)
	s.Insert(nsRecord("ns1.example.com"), 1)
	s.Insert(nsRecord("ns2.example.com"), 2)
	s.SetRRSIGs([]wire.Record{{Type: wire.TypeRRSIG}})
	assert.NotEmpty(t, s.RRSIGs())

	s.Insert(nsRecord("ns3.example.com"), 3)
	assert.Empty(t, s.RRSIGs())

	s.SetRRSIGs([]wire.Record{{Type: wire.TypeRRSIG}})
	assert.True(t, s.Remove(nsRecord("ns3.example.com"), 4))
	assert.Empty(t, s.RRSIGs())
}

func TestInsert_IdenticalRecordIsNoOp(t *testing.T) {
	s := New(wire.NewName("example.com"), wire.TypeNS, wire.ClassIN)
	s.Insert(nsRecord("ns1.example.com"), 1)
	assert.False(t, s.Insert(nsRecord("ns1.example.com"), 2), "fully identical rdata+ttl is a no-op")
	assert.Equal(t, uint32(1), s.Serial)
}

func TestInsert_TTLRefreshReplacesInPlace(t *testing.T) {
	s := New(wire.NewName("example.com"), wire.TypeNS, wire.ClassIN)
	s.Insert(nsRecord("ns1.example.com"), 1)
	r := nsRecord("ns1.example.com")
	r.TTL = 7200
	assert.True(t, s.Insert(r, 2))
	assert.Len(t, s.Records(), 1)
	assert.Equal(t, uint32(7200), s.Records()[0].TTL)
	assert.Equal(t, uint32(7200), s.TTL)
}

func TestIter_WithAndWithoutRRSIGs(t *testing.T) {
	s := New(wire.NewName("example.com"), wire.TypeNS, wire.ClassIN)
	s.Insert(nsRecord("ns1.example.com"), 1)
	s.SetRRSIGs([]wire.Record{{Type: wire.TypeRRSIG}})

	assert.Len(t, s.Iter(false), 1)
	assert.Len(t, s.Iter(true), 2)
}

func TestSerialGreater_RFC1982Wraparound(t *testing.T) {
	assert.True(t, SerialGreater(1, 0))
	assert.False(t, SerialGreater(0, 1))
	assert.False(t, SerialGreater(5, 5))
	// Wraparound: a small serial "after" a huge one when the gap exceeds 2^31.
	assert.True(t, SerialGreater(1, 0xFFFFFFFF))
	assert.False(t, SerialGreater(0xFFFFFFFF, 1))
}

func TestInsert_PanicsOnNameTypeMismatch(t *testing.T) {
	s := New(wire.NewName("example.com"), wire.TypeNS, wire.ClassIN)
	assert.Panics(t, func() {
		s.Insert(wire.Record{Name: wire.NewName("other.com"), Type: wire.TypeNS}, 1)
	})
	assert.Panics(t, func() {
		s.Insert(wire.Record{Name: wire.NewName("example.com"), Type: wire.TypeA}, 1)
	})
}
