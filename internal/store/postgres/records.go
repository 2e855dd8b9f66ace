package postgres

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net"
	"strings"

	"github.com/lattice-dns/dnscore/internal/wire"
)

// recordToContent encodes the RR-type-specific fields of rec into a single
// string column, the same space-separated-fields approach the teacher's
// ConvertDomainToPacketRecord/ConvertPacketRecordToDomain pair uses to
// bridge its wire codec and its generic domain.Record.Content string.
func recordToContent(rec wire.Record) (string, error) {
	switch rec.Type {
	case wire.TypeA, wire.TypeAAAA:
		return rec.IP.String(), nil
	case wire.TypeNS, wire.TypeCNAME, wire.TypePTR, wire.TypeANAME:
		return string(rec.Host), nil
	case wire.TypeMX:
		return fmt.Sprintf("%d %s", rec.Priority, rec.Host), nil
	case wire.TypeTXT:
		return rec.Txt, nil
	case wire.TypeSOA:
		return fmt.Sprintf("%s %s %d %d %d %d %d", rec.MName, rec.RName, rec.Serial, rec.Refresh, rec.Retry, rec.Expire, rec.Minimum), nil
	case wire.TypeHINFO:
		return fmt.Sprintf("%s %s", rec.CPU, rec.OS), nil
	case wire.TypeDNSKEY:
		return fmt.Sprintf("%d 3 %d %s", rec.Flags, rec.Algorithm, base64.StdEncoding.EncodeToString(rec.PublicKey)), nil
	case wire.TypeDS:
		return fmt.Sprintf("%d %d %d %s", rec.KeyTag, rec.Algorithm, rec.DigestType, hex.EncodeToString(rec.Digest)), nil
	case wire.TypeRRSIG:
		return fmt.Sprintf("%d %d %d %d %d %d %d %s %s", rec.TypeCovered, rec.Algorithm, rec.Labels, rec.OrigTTL,
			rec.Expiration, rec.Inception, rec.KeyTag, rec.SignerName, base64.StdEncoding.EncodeToString(rec.Signature)), nil
	case wire.TypeNSEC:
		return fmt.Sprintf("%s %s", rec.NextName, hex.EncodeToString(rec.TypeBitMap)), nil
	case wire.TypeNSEC3:
		return fmt.Sprintf("%d %d %d %s %s %s", rec.HashAlg, rec.NSEC3Flags, rec.Iterations,
			hex.EncodeToString(rec.Salt), hex.EncodeToString(rec.NextHash), hex.EncodeToString(rec.TypeBitMap)), nil
	default:
		return "", fmt.Errorf("postgres: unsupported record type for persistence: %s", rec.Type)
	}
}

// contentToRecord is recordToContent's inverse, given the owner name, RR
// type, class, and TTL columns stored alongside content. It decodes every
// type recordToContent encodes except RRSIG, NSEC and NSEC3, which it
// rejects as unsupported.
func contentToRecord(name wire.Name, rtype wire.RRType, class wire.Class, ttl uint32, content string) (wire.Record, error) {
	rec := wire.Record{Name: name, Type: rtype, Class: class, TTL: ttl}
	fields := strings.Fields(content)

	switch rtype {
	case wire.TypeA, wire.TypeAAAA:
		ip := net.ParseIP(content)
		if ip == nil {
			return rec, fmt.Errorf("postgres: invalid IP in content %q", content)
		}
		rec.IP = ip
	case wire.TypeNS, wire.TypeCNAME, wire.TypePTR, wire.TypeANAME:
		rec.Host = wire.NewName(content)
	case wire.TypeMX:
		if len(fields) != 2 {
			return rec, fmt.Errorf("postgres: malformed MX content %q", content)
		}
		var priority uint16
		if _, err := fmt.Sscanf(fields[0], "%d", &priority); err != nil {
			return rec, err
		}
		rec.Priority = priority
		rec.Host = wire.NewName(fields[1])
	case wire.TypeTXT:
		rec.Txt = content
	case wire.TypeSOA:
		if len(fields) != 7 {
			return rec, fmt.Errorf("postgres: malformed SOA content %q", content)
		}
		rec.MName = wire.NewName(fields[0])
		rec.RName = wire.NewName(fields[1])
		if _, err := fmt.Sscanf(strings.Join(fields[2:], " "), "%d %d %d %d %d",
			&rec.Serial, &rec.Refresh, &rec.Retry, &rec.Expire, &rec.Minimum); err != nil {
			return rec, err
		}
	case wire.TypeHINFO:
		if len(fields) != 2 {
			return rec, fmt.Errorf("postgres: malformed HINFO content %q", content)
		}
		rec.CPU, rec.OS = fields[0], fields[1]
	case wire.TypeDNSKEY:
		if len(fields) != 4 {
			return rec, fmt.Errorf("postgres: malformed DNSKEY content %q", content)
		}
		var flags uint16
		var protocol, algorithm uint8
		if _, err := fmt.Sscanf(fields[0], "%d", &flags); err != nil {
			return rec, err
		}
		if _, err := fmt.Sscanf(fields[1], "%d", &protocol); err != nil {
			return rec, err
		}
		if _, err := fmt.Sscanf(fields[2], "%d", &algorithm); err != nil {
			return rec, err
		}
		pub, err := base64.StdEncoding.DecodeString(fields[3])
		if err != nil {
			return rec, err
		}
		rec.Flags, rec.Algorithm, rec.PublicKey = flags, algorithm, pub
	case wire.TypeDS:
		if len(fields) != 4 {
			return rec, fmt.Errorf("postgres: malformed DS content %q", content)
		}
		var keyTag uint16
		var algorithm, digestType uint8
		if _, err := fmt.Sscanf(fields[0], "%d", &keyTag); err != nil {
			return rec, err
		}
		if _, err := fmt.Sscanf(fields[1], "%d", &algorithm); err != nil {
			return rec, err
		}
		if _, err := fmt.Sscanf(fields[2], "%d", &digestType); err != nil {
			return rec, err
		}
		digest, err := hex.DecodeString(fields[3])
		if err != nil {
			return rec, err
		}
		rec.KeyTag, rec.Algorithm, rec.DigestType, rec.Digest = keyTag, algorithm, digestType, digest
	default:
		return rec, fmt.Errorf("postgres: unsupported record type for persistence: %s", rtype)
	}
	return rec, nil
}

// recordRow is one persisted RR plus the store-assigned id it owns,
// separate from wire.Record since the wire codec has no notion of a
// primary key.
type recordRow struct {
	ID     string
	ZoneID string
	Record wire.Record
}

// CreateRecord inserts one record under zoneID, identified by id (the
// caller's choice — the management API mints a uuid the way the teacher's
// CreateRecord callers do).
func (s *Store) CreateRecord(ctx context.Context, id, zoneID string, rec wire.Record) error {
	content, err := recordToContent(rec)
	if err != nil {
		return err
	}
	class := rec.Class
	if class == 0 {
		class = wire.ClassIN
	}
	query := `INSERT INTO dns_records (id, zone_id, name, type, class, ttl, content)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = s.db.ExecContext(ctx, query, id, zoneID, string(rec.Name), rec.Type.String(), int(class), rec.TTL, content)
	return err
}

// DeleteRecord removes one record by id, scoped to zoneID so one tenant
// can't delete another's row by guessing an id.
func (s *Store) DeleteRecord(ctx context.Context, id, zoneID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dns_records WHERE id = $1 AND zone_id = $2`, id, zoneID)
	return err
}

// DeleteRecordsByNameAndType removes every record at name of the given
// type within zoneID, matching RFC 2136's "delete an RRset" update form.
func (s *Store) DeleteRecordsByNameAndType(ctx context.Context, zoneID, name string, rtype wire.RRType) error {
	query := `DELETE FROM dns_records WHERE zone_id = $1 AND LOWER(name) = LOWER($2) AND type = $3`
	_, err := s.db.ExecContext(ctx, query, zoneID, name, rtype.String())
	return err
}

// ListRecordsForZone loads every record belonging to zoneID, decoded back
// into wire.Record form ready for zoneauth.Zone.LoadRecords.
func (s *Store) ListRecordsForZone(ctx context.Context, zoneID string) ([]wire.Record, error) {
	query := `SELECT name, type, class, ttl, content FROM dns_records WHERE zone_id = $1`
	rows, err := s.db.QueryContext(ctx, query, zoneID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []wire.Record
	for rows.Next() {
		var name, typeStr, content string
		var class int
		var ttl uint32
		if err := rows.Scan(&name, &typeStr, &class, &ttl, &content); err != nil {
			return nil, err
		}
		rtype, ok := rrTypeFromString(typeStr)
		if !ok {
			continue
		}
		rec, err := contentToRecord(wire.NewName(name), rtype, wire.Class(class), ttl, content)
		if err != nil {
			return nil, fmt.Errorf("postgres: decode record %s/%s: %w", name, typeStr, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListRecordRowsForZone is ListRecordsForZone plus each row's store id, for
// callers (the management API) that need to target a specific row for
// deletion rather than a whole RRset.
func (s *Store) ListRecordRowsForZone(ctx context.Context, zoneID string) ([]recordRow, error) {
	query := `SELECT id, name, type, class, ttl, content FROM dns_records WHERE zone_id = $1`
	rows, err := s.db.QueryContext(ctx, query, zoneID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []recordRow
	for rows.Next() {
		var id, name, typeStr, content string
		var class int
		var ttl uint32
		if err := rows.Scan(&id, &name, &typeStr, &class, &ttl, &content); err != nil {
			return nil, err
		}
		rtype, ok := rrTypeFromString(typeStr)
		if !ok {
			continue
		}
		rec, err := contentToRecord(wire.NewName(name), rtype, wire.Class(class), ttl, content)
		if err != nil {
			return nil, fmt.Errorf("postgres: decode record %s/%s: %w", name, typeStr, err)
		}
		out = append(out, recordRow{ID: id, ZoneID: zoneID, Record: rec})
	}
	return out, rows.Err()
}

// LoadZone fetches both a zone's metadata and its full record set in one
// round trip, the shape internal/dnsserver's startup bootstrap and
// refreshZoneFromMaster's restart-recovery path both want.
func (s *Store) LoadZone(ctx context.Context, name string) (*ZoneMeta, []wire.Record, error) {
	meta, err := s.GetZoneByName(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	if meta == nil {
		return nil, nil, nil
	}
	records, err := s.ListRecordsForZone(ctx, meta.ID)
	if err != nil {
		return nil, nil, err
	}
	return meta, records, nil
}

var rrTypeNames = map[string]wire.RRType{
	"A": wire.TypeA, "NS": wire.TypeNS, "CNAME": wire.TypeCNAME, "SOA": wire.TypeSOA,
	"PTR": wire.TypePTR, "HINFO": wire.TypeHINFO, "MX": wire.TypeMX, "TXT": wire.TypeTXT,
	"AAAA": wire.TypeAAAA, "DS": wire.TypeDS, "RRSIG": wire.TypeRRSIG, "NSEC": wire.TypeNSEC,
	"DNSKEY": wire.TypeDNSKEY, "NSEC3": wire.TypeNSEC3,
}

func rrTypeFromString(s string) (wire.RRType, bool) {
	t, ok := rrTypeNames[s]
	return t, ok
}
