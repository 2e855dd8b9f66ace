// Package master parses DNS master zone files (RFC 1035 text format) and
// root-hints files in the same format, feeding internal/wire.Record values
// into internal/zoneauth's rrset.Set-backed zones and internal/recursor's
// root hint list. Adapted from the teacher's internal/dns/master/parser.go,
// generalized to emit wire.Record directly instead of a text-content
// intermediate domain.Record, since this codec's Record is already typed
// per-field rather than a single Content string.
package master

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/lattice-dns/dnscore/internal/wire"
)

// Zone holds the parsed origin, default TTL, and records of one zone file.
type Zone struct {
	Origin     wire.Name
	DefaultTTL uint32
	Records    []wire.Record
}

// Parser parses RFC 1035 master-file text, tracking $ORIGIN/$TTL directives
// and name/parenthesis continuation the way the teacher's scanner does.
type Parser struct {
	origin     string
	defaultTTL uint32
}

// NewParser creates a Parser with the RFC 1035 default TTL fallback.
func NewParser() *Parser {
	return &Parser{defaultTTL: 3600}
}

// Parse reads master-file text from r and returns the zone it describes.
func (p *Parser) Parse(r io.Reader) (*Zone, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 1024*1024)
	scanner.Buffer(buf, len(buf))

	zone := &Zone{DefaultTTL: p.defaultTTL}

	var lastName string
	var inParen bool
	var parenLines []string
	var firstLineLeadingWS bool

	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.IndexByte(line, ';'); idx >= 0 {
			line = line[:idx]
		}

		if !inParen {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			firstLineLeadingWS = len(line) > 0 && (line[0] == ' ' || line[0] == '\t')
			if strings.Contains(line, "(") {
				inParen = true
				parenLines = append(parenLines, strings.Replace(line, "(", " ", 1))
				if !strings.Contains(line, ")") {
					continue
				}
			}
		} else {
			parenLines = append(parenLines, line)
			if !strings.Contains(line, ")") {
				continue
			}
			inParen = false
		}

		var fullLine string
		if len(parenLines) > 0 {
			fullLine = strings.ReplaceAll(strings.Join(parenLines, " "), ")", " ")
			parenLines = nil
		} else {
			fullLine = line
		}

		trimmed := strings.TrimSpace(fullLine)
		if trimmed == "" {
			continue
		}

		if strings.HasPrefix(trimmed, "$") {
			fields := strings.Fields(trimmed)
			if len(fields) < 2 {
				continue
			}
			switch strings.ToUpper(fields[0]) {
			case "$ORIGIN":
				p.origin = fields[1]
				if !strings.HasSuffix(p.origin, ".") {
					p.origin += "."
				}
				zone.Origin = wire.Name(p.origin)
			case "$TTL":
				if ttl, err := strconv.ParseUint(fields[1], 10, 32); err == nil {
					p.defaultTTL = uint32(ttl)
					zone.DefaultTTL = p.defaultTTL
				}
			}
			continue
		}

		fields := strings.Fields(trimmed)
		if len(fields) == 0 {
			continue
		}

		var name string
		if firstLineLeadingWS && lastName != "" {
			name = lastName
		} else {
			name = fields[0]
			fields = fields[1:]
			name = p.qualify(name)
			lastName = name
		}

		ttl := p.defaultTTL
		var typ string
		var rdata []string
		for i := 0; i < len(fields); i++ {
			f := fields[i]
			upper := strings.ToUpper(f)
			if v, err := strconv.ParseUint(f, 10, 32); err == nil {
				ttl = uint32(v)
				continue
			}
			if upper == "IN" || upper == "CS" || upper == "CH" || upper == "HS" {
				continue
			}
			typ = upper
			rdata = fields[i+1:]
			break
		}
		if typ == "" || name == "" {
			continue
		}

		rec, err := buildRecord(wire.Name(name), typ, ttl, rdata)
		if err != nil {
			return nil, fmt.Errorf("master: %s %s: %w", name, typ, err)
		}
		zone.Records = append(zone.Records, rec)
	}

	return zone, scanner.Err()
}

func (p *Parser) qualify(name string) string {
	if name == "@" {
		return p.origin
	}
	if strings.HasSuffix(name, ".") {
		return name
	}
	if p.origin == "" {
		return name + "."
	}
	return name + "." + p.origin
}

func buildRecord(name wire.Name, typ string, ttl uint32, rdata []string) (wire.Record, error) {
	r := wire.Record{Name: name, Class: wire.ClassIN, TTL: ttl}
	switch typ {
	case "A":
		if len(rdata) < 1 {
			return r, fmt.Errorf("missing address")
		}
		ip := net.ParseIP(rdata[0]).To4()
		if ip == nil {
			return r, fmt.Errorf("invalid IPv4 address %q", rdata[0])
		}
		r.Type, r.IP = wire.TypeA, ip
	case "AAAA":
		if len(rdata) < 1 {
			return r, fmt.Errorf("missing address")
		}
		ip := net.ParseIP(rdata[0]).To16()
		if ip == nil {
			return r, fmt.Errorf("invalid IPv6 address %q", rdata[0])
		}
		r.Type, r.IP = wire.TypeAAAA, ip
	case "NS":
		r.Type, r.Host = wire.TypeNS, fqdn(rdata)
	case "CNAME":
		r.Type, r.Host = wire.TypeCNAME, fqdn(rdata)
	case "PTR":
		r.Type, r.Host = wire.TypePTR, fqdn(rdata)
	case "MX":
		if len(rdata) < 2 {
			return r, fmt.Errorf("MX requires priority and host")
		}
		prio, err := strconv.ParseUint(rdata[0], 10, 16)
		if err != nil {
			return r, err
		}
		r.Type, r.Priority, r.Host = wire.TypeMX, uint16(prio), fqdn(rdata[1:])
	case "TXT":
		r.Type, r.Txt = wire.TypeTXT, strings.Trim(strings.Join(rdata, " "), "\"")
	case "SOA":
		if len(rdata) < 7 {
			return r, fmt.Errorf("SOA requires mname rname serial refresh retry expire minimum")
		}
		serial, _ := strconv.ParseUint(rdata[2], 10, 32)
		refresh, _ := strconv.ParseUint(rdata[3], 10, 32)
		retry, _ := strconv.ParseUint(rdata[4], 10, 32)
		expire, _ := strconv.ParseUint(rdata[5], 10, 32)
		minimum, _ := strconv.ParseUint(rdata[6], 10, 32)
		r.Type = wire.TypeSOA
		r.MName, r.RName = fqdn(rdata[0:1]), fqdn(rdata[1:2])
		r.Serial, r.Refresh, r.Retry, r.Expire, r.Minimum = uint32(serial), uint32(refresh), uint32(retry), uint32(expire), uint32(minimum)
	default:
		return r, fmt.Errorf("unsupported master-file record type %q", typ)
	}
	return r, nil
}

func fqdn(parts []string) wire.Name {
	if len(parts) == 0 {
		return "."
	}
	return wire.NewName(parts[0])
}

// ParseRootHints reads a zone-file-format root-hints document (as named by
// internal/recursor.Config.Roots) and extracts the A/AAAA glue addresses.
func ParseRootHints(r io.Reader) ([]net.IP, error) {
	zone, err := NewParser().Parse(r)
	if err != nil {
		return nil, err
	}
	var ips []net.IP
	for _, rec := range zone.Records {
		if rec.Type == wire.TypeA || rec.Type == wire.TypeAAAA {
			ips = append(ips, rec.IP)
		}
	}
	return ips, nil
}
