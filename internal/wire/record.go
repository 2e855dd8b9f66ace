package wire

import (
	"net"

	"github.com/lattice-dns/dnscore/internal/dnserr"
)

// Class is the two-octet CLASS field. RFC 2136 overloads it for dynamic
// update semantics: ANY means "delete this RRset", NONE means "delete this
// RR".
type Class uint16

const (
	ClassIN   Class = 1
	ClassNONE Class = 254
	ClassANY  Class = 255
)

// EdnsOption is a single TLV option carried inside an OPT pseudo-record's
// rdata (RFC 6891 §6.1).
type EdnsOption struct {
	Code uint16
	Data []byte
}

// Record is a single resource record. rdata is modeled as a flat struct
// with one field group per registered type, mirroring how the teacher's
// codec lays out DNSRecord — a sum type would need an interface per type
// with equivalent Read/Write pairs, which is more machinery than a wire
// codec with ~20 fixed RR types needs in Go.
type Record struct {
	Name  Name
	Type  RRType
	Class Class
	TTL   uint32

	// A / AAAA
	IP net.IP
	// NS / CNAME / PTR / ANAME
	Host Name
	// MX
	Priority uint16
	// TXT
	Txt string
	// SOA
	MName, RName                                  Name
	Serial, Refresh, Retry, Expire, Minimum uint32
	// HINFO
	CPU, OS string
	// NSEC
	NextName   Name
	TypeBitMap []byte
	// DNSKEY
	Flags     uint16
	Algorithm uint8
	PublicKey []byte
	// RRSIG / SIG(0)
	TypeCovered uint16
	Labels      uint8
	OrigTTL     uint32
	Expiration  uint32
	Inception   uint32
	KeyTag      uint16
	SignerName  Name
	Signature   []byte
	// NSEC3 / NSEC3PARAM
	HashAlg    uint8
	NSEC3Flags uint8
	Iterations uint16
	Salt       []byte
	NextHash   []byte
	// DS
	DigestType uint8
	Digest     []byte
	// OPT (pseudo-record; Class/TTL double as payload size + extended rcode)
	UDPPayloadSize uint16
	ExtendedRCODE  uint8
	EDNSVersion    uint8
	DO             bool
	Options        []EdnsOption
	// TSIG
	AlgorithmName Name
	TimeSigned    uint64
	Fudge         uint16
	MAC           []byte
	OriginalID    uint16
	TsigError     uint16
	Other         []byte

	// RawData holds the verbatim rdata for record types this codec does not
	// interpret structurally (kept for round-trip fidelity).
	RawData []byte
}

// AddEDE appends an RFC 8914 Extended DNS Error option to an OPT record.
func (r *Record) AddEDE(code uint16, text string) {
	data := []byte{byte(code >> 8), byte(code)}
	if text != "" {
		data = append(data, []byte(text)...)
	}
	r.Options = append(r.Options, EdnsOption{Code: edeOptionCode, Data: data})
}

func readName(d *Decoder) (Name, error) { return d.ReadName() }

// ReadRecord decodes one resource record starting at the decoder's current
// position.
func ReadRecord(d *Decoder) (Record, error) {
	var r Record
	var err error

	if r.Name, err = readName(d); err != nil {
		return r, err
	}
	typeVal, err := d.ReadUint16()
	if err != nil {
		return r, err
	}
	r.Type = RRType(typeVal)

	classVal, err := d.ReadUint16()
	if err != nil {
		return r, err
	}
	r.Class = Class(classVal)

	if r.TTL, err = d.ReadUint32(); err != nil {
		return r, err
	}

	rdlen, err := d.ReadUint16()
	if err != nil {
		return r, err
	}
	start := d.Position()

	if rdlen == 0 && r.Type != TypeOPT {
		return r, nil
	}

	if err := r.readRData(d, int(rdlen), start); err != nil {
		return r, err
	}

	consumed := d.Position() - start
	if consumed != int(rdlen) {
		return r, dnserr.ErrRDataLength
	}
	return r, nil
}

func (r *Record) readRData(d *Decoder, rdlen, start int) error {
	var err error
	switch r.Type {
	case TypeA:
		b, e := d.ReadBytes(4)
		if e != nil {
			return e
		}
		r.IP = net.IP(b)
	case TypeAAAA:
		b, e := d.ReadBytes(16)
		if e != nil {
			return e
		}
		r.IP = net.IP(b)
	case TypeNS, TypeCNAME, TypePTR, TypeANAME:
		r.Host, err = readName(d)
		return err
	case TypeMX:
		if r.Priority, err = d.ReadUint16(); err != nil {
			return err
		}
		r.Host, err = readName(d)
		return err
	case TypeTXT:
		l, e := d.ReadByte()
		if e != nil {
			return e
		}
		b, e := d.ReadBytes(int(l))
		if e != nil {
			return e
		}
		r.Txt = string(b)
	case TypeSOA:
		if r.MName, err = readName(d); err != nil {
			return err
		}
		if r.RName, err = readName(d); err != nil {
			return err
		}
		if r.Serial, err = d.ReadUint32(); err != nil {
			return err
		}
		if r.Refresh, err = d.ReadUint32(); err != nil {
			return err
		}
		if r.Retry, err = d.ReadUint32(); err != nil {
			return err
		}
		if r.Expire, err = d.ReadUint32(); err != nil {
			return err
		}
		r.Minimum, err = d.ReadUint32()
		return err
	case TypeHINFO:
		cl, e := d.ReadByte()
		if e != nil {
			return e
		}
		cpu, e := d.ReadBytes(int(cl))
		if e != nil {
			return e
		}
		r.CPU = string(cpu)
		ol, e := d.ReadByte()
		if e != nil {
			return e
		}
		osb, e := d.ReadBytes(int(ol))
		if e != nil {
			return e
		}
		r.OS = string(osb)
	case TypeNSEC:
		if r.NextName, err = readName(d); err != nil {
			return err
		}
		remaining := rdlen - (d.Position() - start)
		r.TypeBitMap, err = d.ReadBytes(remaining)
		return err
	case TypeDNSKEY:
		if r.Flags, err = d.ReadUint16(); err != nil {
			return err
		}
		if _, err = d.ReadByte(); err != nil { // protocol, fixed at 3
			return err
		}
		if r.Algorithm, err = d.ReadByte(); err != nil {
			return err
		}
		remaining := rdlen - (d.Position() - start)
		r.PublicKey, err = d.ReadBytes(remaining)
		return err
	case TypeRRSIG, TypeSIG:
		if r.TypeCovered, err = d.ReadUint16(); err != nil {
			return err
		}
		if r.Algorithm, err = d.ReadByte(); err != nil {
			return err
		}
		if r.Labels, err = d.ReadByte(); err != nil {
			return err
		}
		if r.OrigTTL, err = d.ReadUint32(); err != nil {
			return err
		}
		if r.Expiration, err = d.ReadUint32(); err != nil {
			return err
		}
		if r.Inception, err = d.ReadUint32(); err != nil {
			return err
		}
		if r.KeyTag, err = d.ReadUint16(); err != nil {
			return err
		}
		if r.SignerName, err = readName(d); err != nil {
			return err
		}
		remaining := rdlen - (d.Position() - start)
		r.Signature, err = d.ReadBytes(remaining)
		return err
	case TypeNSEC3:
		if r.HashAlg, err = d.ReadByte(); err != nil {
			return err
		}
		if r.NSEC3Flags, err = d.ReadByte(); err != nil {
			return err
		}
		if r.Iterations, err = d.ReadUint16(); err != nil {
			return err
		}
		sl, e := d.ReadByte()
		if e != nil {
			return e
		}
		if r.Salt, err = d.ReadBytes(int(sl)); err != nil {
			return err
		}
		hl, e := d.ReadByte()
		if e != nil {
			return e
		}
		if r.NextHash, err = d.ReadBytes(int(hl)); err != nil {
			return err
		}
		remaining := rdlen - (d.Position() - start)
		r.TypeBitMap, err = d.ReadBytes(remaining)
		return err
	case TypeNSEC3PARAM:
		if r.HashAlg, err = d.ReadByte(); err != nil {
			return err
		}
		if r.NSEC3Flags, err = d.ReadByte(); err != nil {
			return err
		}
		if r.Iterations, err = d.ReadUint16(); err != nil {
			return err
		}
		sl, e := d.ReadByte()
		if e != nil {
			return e
		}
		r.Salt, err = d.ReadBytes(int(sl))
		return err
	case TypeDS:
		if r.KeyTag, err = d.ReadUint16(); err != nil {
			return err
		}
		if r.Algorithm, err = d.ReadByte(); err != nil {
			return err
		}
		if r.DigestType, err = d.ReadByte(); err != nil {
			return err
		}
		remaining := rdlen - (d.Position() - start)
		r.Digest, err = d.ReadBytes(remaining)
		return err
	case TypeTSIG:
		if r.AlgorithmName, err = readName(d); err != nil {
			return err
		}
		hi, e := d.ReadUint16()
		if e != nil {
			return e
		}
		lo, e := d.ReadUint32()
		if e != nil {
			return e
		}
		r.TimeSigned = uint64(hi)<<32 | uint64(lo)
		if r.Fudge, err = d.ReadUint16(); err != nil {
			return err
		}
		macLen, e := d.ReadUint16()
		if e != nil {
			return e
		}
		if r.MAC, err = d.ReadBytes(int(macLen)); err != nil {
			return err
		}
		if r.OriginalID, err = d.ReadUint16(); err != nil {
			return err
		}
		if r.TsigError, err = d.ReadUint16(); err != nil {
			return err
		}
		otherLen, e := d.ReadUint16()
		if e != nil {
			return e
		}
		r.Other, err = d.ReadBytes(int(otherLen))
		return err
	case TypeOPT:
		r.UDPPayloadSize = uint16(r.Class)
		r.ExtendedRCODE = uint8(r.TTL >> 24)
		r.EDNSVersion = uint8(r.TTL >> 16)
		r.DO = r.TTL&0x00008000 != 0
		remaining := rdlen
		for remaining >= 4 {
			code, e := d.ReadUint16()
			if e != nil {
				return e
			}
			optLen, e := d.ReadUint16()
			if e != nil {
				return e
			}
			if int(optLen) > remaining-4 {
				return dnserr.ErrRDataLength
			}
			data, e := d.ReadBytes(int(optLen))
			if e != nil {
				return e
			}
			r.Options = append(r.Options, EdnsOption{Code: code, Data: data})
			remaining -= 4 + int(optLen)
		}
		return nil
	default:
		r.RawData, err = d.ReadBytes(rdlen)
		return err
	}
	return nil
}

// WriteRecord encodes r into e.
func WriteRecord(e *Encoder, r *Record) error {
	if r.Type == TypeOPT {
		return writeOPT(e, r)
	}
	if r.Type == TypeTSIG {
		return writeTSIG(e, r)
	}

	if err := e.WriteName(r.Name); err != nil {
		return err
	}
	e.WriteUint16(uint16(r.Type))
	e.WriteUint16(uint16(r.Class))
	e.WriteUint32(r.TTL)

	// RFC 2136: class ANY deletes an RRset — RDLENGTH MUST be 0, RDATA empty.
	if r.Class == ClassANY && len(r.RawData) == 0 {
		e.WriteUint16(0)
		return nil
	}

	return writeTypedRData(e, r)
}

func writeTypedRData(e *Encoder, r *Record) error {
	switch r.Type {
	case TypeA:
		e.WriteUint16(4)
		e.WriteBytes(r.IP.To4())
	case TypeAAAA:
		e.WriteUint16(16)
		e.WriteBytes(r.IP.To16())
	case TypeNS, TypeCNAME, TypePTR, TypeANAME:
		return withLenPrefix(e, func() error { return e.WriteName(r.Host) })
	case TypeMX:
		return withLenPrefix(e, func() error {
			e.WriteUint16(r.Priority)
			return e.WriteName(r.Host)
		})
	case TypeTXT:
		e.WriteUint16(uint16(len(r.Txt) + 1))
		e.WriteByte(byte(len(r.Txt)))
		e.WriteBytes([]byte(r.Txt))
	case TypeSOA:
		return withLenPrefix(e, func() error {
			if err := e.WriteName(r.MName); err != nil {
				return err
			}
			if err := e.WriteName(r.RName); err != nil {
				return err
			}
			e.WriteUint32(r.Serial)
			e.WriteUint32(r.Refresh)
			e.WriteUint32(r.Retry)
			e.WriteUint32(r.Expire)
			e.WriteUint32(r.Minimum)
			return nil
		})
	case TypeHINFO:
		e.WriteUint16(uint16(len(r.CPU) + len(r.OS) + 2))
		e.WriteByte(byte(len(r.CPU)))
		e.WriteBytes([]byte(r.CPU))
		e.WriteByte(byte(len(r.OS)))
		e.WriteBytes([]byte(r.OS))
	case TypeNSEC:
		return withLenPrefix(e, func() error {
			if err := e.WriteName(r.NextName); err != nil {
				return err
			}
			e.WriteBytes(r.TypeBitMap)
			return nil
		})
	case TypeDNSKEY:
		e.WriteUint16(uint16(4 + len(r.PublicKey)))
		e.WriteUint16(r.Flags)
		e.WriteByte(3) // protocol
		e.WriteByte(r.Algorithm)
		e.WriteBytes(r.PublicKey)
	case TypeRRSIG, TypeSIG:
		return withLenPrefix(e, func() error {
			e.WriteUint16(r.TypeCovered)
			e.WriteByte(r.Algorithm)
			e.WriteByte(r.Labels)
			e.WriteUint32(r.OrigTTL)
			e.WriteUint32(r.Expiration)
			e.WriteUint32(r.Inception)
			e.WriteUint16(r.KeyTag)
			if err := e.WriteName(r.SignerName); err != nil {
				return err
			}
			e.WriteBytes(r.Signature)
			return nil
		})
	case TypeNSEC3:
		return withLenPrefix(e, func() error {
			e.WriteByte(r.HashAlg)
			e.WriteByte(r.NSEC3Flags)
			e.WriteUint16(r.Iterations)
			e.WriteByte(byte(len(r.Salt)))
			e.WriteBytes(r.Salt)
			e.WriteByte(byte(len(r.NextHash)))
			e.WriteBytes(r.NextHash)
			e.WriteBytes(r.TypeBitMap)
			return nil
		})
	case TypeNSEC3PARAM:
		return withLenPrefix(e, func() error {
			e.WriteByte(r.HashAlg)
			e.WriteByte(r.NSEC3Flags)
			e.WriteUint16(r.Iterations)
			e.WriteByte(byte(len(r.Salt)))
			e.WriteBytes(r.Salt)
			return nil
		})
	case TypeDS:
		e.WriteUint16(uint16(4 + len(r.Digest)))
		e.WriteUint16(r.KeyTag)
		e.WriteByte(r.Algorithm)
		e.WriteByte(r.DigestType)
		e.WriteBytes(r.Digest)
	default:
		e.WriteUint16(uint16(len(r.RawData)))
		e.WriteBytes(r.RawData)
	}
	return nil
}

// withLenPrefix reserves a two-byte RDLENGTH placeholder, runs write, then
// patches the placeholder with the number of bytes actually emitted.
func withLenPrefix(e *Encoder, write func() error) error {
	lenPos := e.Position()
	e.WriteUint16(0)
	if err := write(); err != nil {
		return err
	}
	e.PatchUint16(lenPos, uint16(e.Position()-(lenPos+2)))
	return nil
}

func writeOPT(e *Encoder, r *Record) error {
	e.WriteByte(0) // root name
	e.WriteUint16(uint16(TypeOPT))
	e.WriteUint16(r.UDPPayloadSize)
	ttl := uint32(r.ExtendedRCODE)<<24 | uint32(r.EDNSVersion)<<16
	if r.DO {
		ttl |= 0x8000
	}
	e.WriteUint32(ttl)
	return withLenPrefix(e, func() error {
		for _, opt := range r.Options {
			e.WriteUint16(opt.Code)
			e.WriteUint16(uint16(len(opt.Data)))
			e.WriteBytes(opt.Data)
		}
		return nil
	})
}

func writeTSIG(e *Encoder, r *Record) error {
	if err := e.WriteName(r.Name); err != nil {
		return err
	}
	e.WriteUint16(uint16(TypeTSIG))
	e.WriteUint16(uint16(r.Class))
	e.WriteUint32(r.TTL)
	return withLenPrefix(e, func() error {
		if err := e.WriteName(r.AlgorithmName); err != nil {
			return err
		}
		e.WriteUint16(uint16(r.TimeSigned >> 32))
		e.WriteUint32(uint32(r.TimeSigned & 0xFFFFFFFF))
		e.WriteUint16(r.Fudge)
		e.WriteUint16(uint16(len(r.MAC)))
		e.WriteBytes(r.MAC)
		e.WriteUint16(r.OriginalID)
		e.WriteUint16(r.TsigError)
		e.WriteUint16(uint16(len(r.Other)))
		e.WriteBytes(r.Other)
		return nil
	})
}
