package wire

import "fmt"

// RRType is the two-octet TYPE field of a resource record.
type RRType uint16

const (
	TypeNone       RRType = 0
	TypeA          RRType = 1
	TypeNS         RRType = 2
	TypeCNAME      RRType = 5
	TypeSOA        RRType = 6
	TypePTR        RRType = 12
	TypeHINFO      RRType = 13
	TypeMINFO      RRType = 14
	TypeMX         RRType = 15
	TypeTXT        RRType = 16
	TypeAAAA       RRType = 28
	TypeSRV        RRType = 33
	TypeNAPTR      RRType = 35
	TypeANAME      RRType = 65280 // private-use range, matches spec's singleton ANAME
	TypeOPT        RRType = 41
	TypeDS         RRType = 43
	TypeSIG        RRType = 24 // SIG(0), RFC 2931 — shares RRSIG's rdata layout
	TypeRRSIG      RRType = 46
	TypeNSEC       RRType = 47
	TypeDNSKEY     RRType = 48
	TypeNSEC3      RRType = 50
	TypeNSEC3PARAM RRType = 51
	TypeTSIG       RRType = 250
	TypeIXFR       RRType = 251
	TypeAXFR       RRType = 252
	TypeANY        RRType = 255
)

func (t RRType) String() string {
	switch t {
	case TypeA:
		return "A"
	case TypeNS:
		return "NS"
	case TypeCNAME:
		return "CNAME"
	case TypeSOA:
		return "SOA"
	case TypePTR:
		return "PTR"
	case TypeHINFO:
		return "HINFO"
	case TypeMINFO:
		return "MINFO"
	case TypeMX:
		return "MX"
	case TypeTXT:
		return "TXT"
	case TypeAAAA:
		return "AAAA"
	case TypeSRV:
		return "SRV"
	case TypeNAPTR:
		return "NAPTR"
	case TypeANAME:
		return "ANAME"
	case TypeOPT:
		return "OPT"
	case TypeDS:
		return "DS"
	case TypeSIG:
		return "SIG"
	case TypeRRSIG:
		return "RRSIG"
	case TypeNSEC:
		return "NSEC"
	case TypeDNSKEY:
		return "DNSKEY"
	case TypeNSEC3:
		return "NSEC3"
	case TypeNSEC3PARAM:
		return "NSEC3PARAM"
	case TypeTSIG:
		return "TSIG"
	case TypeIXFR:
		return "IXFR"
	case TypeAXFR:
		return "AXFR"
	case TypeANY:
		return "ANY"
	default:
		return fmt.Sprintf("TYPE%d", uint16(t))
	}
}

// IsPseudo reports whether t names a pseudo-record type subject to the
// placement rules in the message model: at most one OPT (additional
// section only), TSIG/SIG(0) terminal in additional.
func (t RRType) IsPseudo() bool {
	return t == TypeOPT || t == TypeTSIG || t == TypeSIG
}

// IsSingleton reports whether an RRset of this type may hold at most one
// record (spec §4.3).
func (t RRType) IsSingleton() bool {
	return t == TypeSOA || t == TypeCNAME || t == TypeANAME
}

// Opcode is the four-bit header OPCODE field.
type Opcode uint8

const (
	OpcodeQuery  Opcode = 0
	OpcodeIQuery Opcode = 1
	OpcodeStatus Opcode = 2
	OpcodeNotify Opcode = 4
	OpcodeUpdate Opcode = 5
)

// RFC 8914 Extended DNS Error codes, carried as an EDNS option on the OPT
// pseudo-record.
const (
	EdeOther               uint16 = 0
	EdeUnsupportedDNSKEY   uint16 = 1
	EdeUnsupportedDS       uint16 = 2
	EdeStaleAnswer         uint16 = 3
	EdeForgedAnswer        uint16 = 4
	EdeDNSSECIndeterminate uint16 = 5
	EdeDNSSECBogus         uint16 = 6
	EdeSignatureExpired    uint16 = 7
	EdeSignatureNotYet     uint16 = 8
	EdeMissingDNSKEY       uint16 = 9
	EdeMissingDS           uint16 = 10
	EdeUnsupportedAlg      uint16 = 11
	EdeBlocked             uint16 = 15
	EdeCensored            uint16 = 16
	EdeFiltered            uint16 = 17
	EdeProhibited          uint16 = 18
)

// edeOptionCode is the EDNS option code (15) for an Extended DNS Error.
const edeOptionCode uint16 = 15

// clientSubnetOptionCode is the EDNS option code (8) for EDNS Client Subnet.
const clientSubnetOptionCode uint16 = 8
