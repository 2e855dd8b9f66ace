package zoneauth

import (
	"context"
	"fmt"
	"sort"

	"github.com/lattice-dns/dnscore/internal/authority"
	"github.com/lattice-dns/dnscore/internal/lookup"
	"github.com/lattice-dns/dnscore/internal/wire"
)

// NSECRecords synthesizes the single NSEC record covering name's position
// in the zone's canonically-ordered name space (RFC 4034 §4): the owner is
// the greatest name not greater than the query name (wrapping to the last
// name if the query sorts before all of them), and NextName is the name
// immediately following it. Grounded on the teacher's generateNSEC, ported
// from its Postgres-backed owner/type enumeration to this zone's in-memory
// sets map.
func (z *Zone) NSECRecords(_ context.Context, name wire.LowerName, _ lookup.Options) authority.LookupControlFlow[[]wire.Record] {
	z.mu.RLock()
	defer z.mu.RUnlock()

	names := z.sortedNamesLocked()
	if len(names) == 0 {
		return authority.ContinueErr[[]wire.Record](fmt.Errorf("zoneauth: no records in zone"))
	}

	ownerName, nextName := floorCeilCanonical(wire.Name(name), names)

	types := z.typesAtLocked(ownerName.Lower())
	types = append(types, wire.TypeNSEC)

	nsec := wire.Record{
		Name:       ownerName,
		Type:       wire.TypeNSEC,
		Class:      wire.ClassIN,
		TTL:        300,
		NextName:   nextName,
		TypeBitMap: typeBitMap(types),
	}
	return authority.Continue([]wire.Record{nsec})
}

// NSEC3Records synthesizes the single NSEC3 record covering name's hashed
// position, using the zone's NSEC3PARAM record for algorithm/iterations/
// salt. Grounded on the teacher's generateNSEC3.
func (z *Zone) NSEC3Records(_ context.Context, name wire.LowerName, _ lookup.Options) authority.LookupControlFlow[[]wire.Record] {
	z.mu.RLock()
	defer z.mu.RUnlock()

	paramSet, ok := z.setLocked(z.Origin(), wire.TypeNSEC3PARAM)
	if !ok {
		return authority.ContinueErr[[]wire.Record](fmt.Errorf("zoneauth: no NSEC3PARAM configured"))
	}
	param := paramSet.Records()[0]

	names := z.sortedNamesLocked()
	if len(names) == 0 {
		return authority.ContinueErr[[]wire.Record](fmt.Errorf("zoneauth: no records in zone"))
	}

	type hashed struct {
		name wire.Name
		hash []byte
	}
	hashes := make([]hashed, len(names))
	for i, n := range names {
		hashes[i] = hashed{name: n, hash: hashName(string(n), param.Iterations, param.Salt)}
	}
	sort.Slice(hashes, func(i, j int) bool { return compareBytes(hashes[i].hash, hashes[j].hash) < 0 })

	qHash := hashName(string(name), param.Iterations, param.Salt)
	ownerIdx, nextIdx, found := 0, 0, false
	for i, h := range hashes {
		cmp := compareBytes(qHash, h.hash)
		switch {
		case cmp < 0:
			if i == 0 {
				ownerIdx, nextIdx = len(hashes)-1, 0
			} else {
				ownerIdx, nextIdx = i-1, i
			}
			found = true
		case cmp == 0:
			ownerIdx = i
			if i == len(hashes)-1 {
				nextIdx = 0
			} else {
				nextIdx = i + 1
			}
			found = true
		}
		if found {
			break
		}
	}
	if !found {
		ownerIdx, nextIdx = len(hashes)-1, 0
	}

	types := z.typesAtLocked(hashes[ownerIdx].name.Lower())
	types = append(types, wire.TypeNSEC3)

	nsec3 := wire.Record{
		Name:       wire.NewName(base32Encode(hashes[ownerIdx].hash) + "." + string(z.origin)),
		Type:       wire.TypeNSEC3,
		Class:      wire.ClassIN,
		TTL:        300,
		HashAlg:    param.HashAlg,
		NSEC3Flags: param.NSEC3Flags,
		Iterations: param.Iterations,
		Salt:       param.Salt,
		NextHash:   hashes[nextIdx].hash,
		TypeBitMap: typeBitMap(types),
	}
	return authority.Continue([]wire.Record{nsec3})
}

// sortedNamesLocked returns every distinct owner name in the zone, in RFC
// 4034 §6.1 canonical order.
func (z *Zone) sortedNamesLocked() []wire.Name {
	names := make([]wire.Name, 0, len(z.sets))
	for lname := range z.sets {
		names = append(names, wire.Name(lname))
	}
	sort.Slice(names, func(i, j int) bool { return wire.CompareCanonical(names[i], names[j]) < 0 })
	return names
}

// typesAtLocked returns every RR type present at name.
func (z *Zone) typesAtLocked(name wire.LowerName) []wire.RRType {
	byType := z.sets[name]
	types := make([]wire.RRType, 0, len(byType))
	for t, set := range byType {
		if set.Len() > 0 {
			types = append(types, t)
		}
	}
	return types
}

// floorCeilCanonical finds the NSEC owner (the greatest name not greater
// than query, wrapping to the last name) and the name immediately after it
// in names, which must already be canonically sorted.
func floorCeilCanonical(query wire.Name, names []wire.Name) (owner, next wire.Name) {
	for i, n := range names {
		cmp := wire.CompareCanonical(query, n)
		if cmp < 0 {
			if i == 0 {
				return names[len(names)-1], names[0]
			}
			return names[i-1], names[i]
		}
		if cmp == 0 {
			if i == len(names)-1 {
				return names[i], names[0]
			}
			return names[i], names[i+1]
		}
	}
	return names[len(names)-1], names[0]
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return int(a[i]) - int(b[i])
		}
	}
	return len(a) - len(b)
}

// typeBitMap builds the single-window (types 0-255) RFC 4034 §4.1.2 type
// bitmap covering types. Ported from the teacher's generateTypeBitMap;
// types above 255, such as this codec's private-use TypeANAME (65280), are
// silently skipped, so the bitmap never lists them.
func typeBitMap(types []wire.RRType) []byte {
	bits := make([]byte, 32)
	maxByte := 0
	for _, t := range types {
		qt := int(t)
		if qt <= 0 || qt > 255 {
			continue
		}
		byteIdx := qt / 8
		bitIdx := 7 - (qt % 8)
		bits[byteIdx] |= 1 << bitIdx
		if byteIdx > maxByte {
			maxByte = byteIdx
		}
	}
	out := []byte{0, byte(maxByte + 1)}
	out = append(out, bits[:maxByte+1]...)
	return out
}
