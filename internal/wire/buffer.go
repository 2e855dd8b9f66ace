package wire

import (
	"strings"
	"sync"

	"github.com/lattice-dns/dnscore/internal/dnserr"
)

// MaxPointerJumps bounds compression-pointer indirection during name
// decompression (spec §4.1: "bounded by a maximum of N (≤ 128)
// indirections and must only point backward").
const MaxPointerJumps = 128

// Decoder is a bounded cursor over an input buffer providing read u8/u16/u32,
// labelled-name decompression, and bounded slices for rdata. It never
// mutates its input; names are materialized eagerly into owned strings so
// no cyclic pointer graph is ever built (spec §9, "cyclic name references").
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder wraps buf for reading. buf is not copied or retained beyond
// the lifetime of decode calls issued against it.
func NewDecoder(buf []byte) *Decoder { return &Decoder{buf: buf} }

func (d *Decoder) Position() int   { return d.pos }
func (d *Decoder) Len() int        { return len(d.buf) }
func (d *Decoder) Seek(pos int)    { d.pos = pos }
func (d *Decoder) Remaining() int  { return len(d.buf) - d.pos }

func (d *Decoder) ReadByte() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, dnserr.ErrBufferExhausted
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *Decoder) ReadUint16() (uint16, error) {
	if d.pos+2 > len(d.buf) {
		return 0, dnserr.ErrBufferExhausted
	}
	v := uint16(d.buf[d.pos])<<8 | uint16(d.buf[d.pos+1])
	d.pos += 2
	return v, nil
}

func (d *Decoder) ReadUint32() (uint32, error) {
	if d.pos+4 > len(d.buf) {
		return 0, dnserr.ErrBufferExhausted
	}
	v := uint32(d.buf[d.pos])<<24 | uint32(d.buf[d.pos+1])<<16 | uint32(d.buf[d.pos+2])<<8 | uint32(d.buf[d.pos+3])
	d.pos += 4
	return v, nil
}

// ReadBytes reads exactly n bytes at the current position and advances.
func (d *Decoder) ReadBytes(n int) ([]byte, error) {
	if n < 0 || d.pos+n > len(d.buf) {
		return nil, dnserr.ErrBufferExhausted
	}
	out := make([]byte, n)
	copy(out, d.buf[d.pos:d.pos+n])
	d.pos += n
	return out, nil
}

// PeekByte reads a byte at an arbitrary absolute offset without moving pos.
func (d *Decoder) PeekByte(at int) (byte, error) {
	if at < 0 || at >= len(d.buf) {
		return 0, dnserr.ErrBufferExhausted
	}
	return d.buf[at], nil
}

// ReadName reads a (possibly compressed) domain name. Compression pointers
// must point strictly backward (to an offset already consumed) and are
// bounded by MaxPointerJumps indirections; the decoded name is capped at
// MaxNameOctets. Labels are lowercased as they are copied into the
// returned name (the input buffer is left as it is), matching the teacher's
// ReadName, which the rest of the codec relies on for case-insensitive
// lookups without a second normalization pass.
func (d *Decoder) ReadName() (Name, error) {
	pos := d.pos
	jumped := false
	jumps := 0
	wireLen := 0

	var out strings.Builder

	for {
		lenByte, err := d.PeekByte(pos)
		if err != nil {
			return "", err
		}

		if lenByte == 0 {
			pos++
			if !jumped {
				d.pos = pos
			}
			if out.Len() == 0 {
				return ".", nil
			}
			return Name(out.String()), nil
		}

		if lenByte&0xC0 == 0xC0 {
			b2, err := d.PeekByte(pos + 1)
			if err != nil {
				return "", err
			}
			offset := int((uint16(lenByte)^0xC0)<<8 | uint16(b2))
			if offset >= pos {
				return "", dnserr.ErrForwardPointer
			}
			if !jumped {
				d.pos = pos + 2
			}
			jumped = true
			jumps++
			if jumps > MaxPointerJumps {
				return "", dnserr.ErrPointerLoop
			}
			pos = offset
			continue
		}

		if lenByte&0xC0 != 0 {
			return "", dnserr.NewCodecError(dnserr.FormErr, "reserved label length bits set")
		}

		pos++
		labelLen := int(lenByte)
		if labelLen > MaxLabelOctets {
			return "", dnserr.ErrLabelTooLong
		}
		label, err := d.rangeAt(pos, labelLen)
		if err != nil {
			return "", err
		}
		for _, c := range label {
			if c >= 'A' && c <= 'Z' {
				out.WriteByte(c + 32)
			} else {
				out.WriteByte(c)
			}
		}
		out.WriteByte('.')
		pos += labelLen
		wireLen += labelLen + 1
		if wireLen > MaxNameOctets {
			return "", dnserr.ErrNameTooLong
		}
	}
}

func (d *Decoder) rangeAt(start, length int) ([]byte, error) {
	if start < 0 || length < 0 || start+length > len(d.buf) {
		return nil, dnserr.ErrBufferExhausted
	}
	return d.buf[start : start+length], nil
}

// EncodeMode selects how an Encoder treats name compression and the
// trailing signature record.
type EncodeMode int

const (
	// Normal applies name compression.
	Normal EncodeMode = iota
	// Uncompressed disables the compression table (diagnostics, AXFR).
	Uncompressed
	// Signing disables compression (signing requires canonical, uncompressed
	// rdata) and excludes the trailing TSIG/SIG(0) record from output; the
	// caller computes the signature over this output and appends the record
	// itself afterward.
	Signing
)

// Encoder appends to a growable buffer with an optional name-compression
// table mapping suffixes already written to their offsets.
type Encoder struct {
	buf   []byte
	names map[string]int
	mode  EncodeMode
}

var encoderBufPool = sync.Pool{
	New: func() any { return make([]byte, 0, 4096) },
}

// NewEncoder creates an Encoder for the given mode.
func NewEncoder(mode EncodeMode) *Encoder {
	e := &Encoder{buf: encoderBufPool.Get().([]byte)[:0], mode: mode}
	if mode == Normal {
		e.names = make(map[string]int)
	}
	return e
}

// Release returns the Encoder's backing buffer to the pool. Callers must
// not use the Encoder or any slice returned by Bytes() after calling Release.
func (e *Encoder) Release() { encoderBufPool.Put(e.buf[:0]) } //nolint:staticcheck

func (e *Encoder) Position() int { return len(e.buf) }
func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) WriteByte(b byte) { e.buf = append(e.buf, b) }

func (e *Encoder) WriteUint16(v uint16) {
	e.buf = append(e.buf, byte(v>>8), byte(v))
}

func (e *Encoder) WriteUint32(v uint32) {
	e.buf = append(e.buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func (e *Encoder) WriteBytes(b []byte) { e.buf = append(e.buf, b...) }

// PatchUint16 overwrites two bytes already written, used for length
// prefixes computed after the fact and for the header placeholder.
func (e *Encoder) PatchUint16(at int, v uint16) {
	e.buf[at] = byte(v >> 8)
	e.buf[at+1] = byte(v)
}

// WriteName writes a domain name, applying compression when the Encoder's
// mode is Normal. Pointers are only ever emitted to offsets below 0x4000,
// matching the 14-bit pointer field.
func (e *Encoder) WriteName(name Name) error {
	s := string(NewName(string(name)))
	if s == "." {
		e.WriteByte(0)
		return nil
	}

	for {
		if s == "" || s == "." {
			e.WriteByte(0)
			return nil
		}

		if e.names != nil {
			lower := strings.ToLower(s)
			if pos, ok := e.names[lower]; ok {
				e.WriteUint16(uint16(pos) | 0xC000)
				return nil
			}
			if e.Position() < 0x4000 {
				e.names[lower] = e.Position()
			}
		}

		dot := strings.IndexByte(s, '.')
		if dot == -1 {
			break
		}
		label := s[:dot]
		if len(label) > MaxLabelOctets {
			return dnserr.ErrLabelTooLong
		}
		if len(label) > 0 {
			e.WriteByte(byte(len(label)))
			e.WriteBytes([]byte(label))
		}
		s = s[dot+1:]
	}
	return nil
}
