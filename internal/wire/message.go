// Package wire implements the DNS binary message codec (C1) and message
// model (C2): deterministic decode/encode of wire-format messages,
// including name compression, EDNS(0) OPT handling, and the exclusivity
// rules between TSIG and SIG(0).
package wire

import (
	"time"

	"github.com/lattice-dns/dnscore/internal/dnserr"
)

// Header is the fixed 12-octet message header. QDCount/ANCount/NSCount/
// ARCount are carried for callers that want to set advisory values before
// encoding (see Encode's canonicalization rule), but Encode always
// recomputes them from the section slices actually present.
type Header struct {
	ID                 uint16
	Response           bool
	Opcode             Opcode
	AuthoritativeAnswer bool
	Truncated          bool
	RecursionDesired   bool
	RecursionAvailable bool
	Zero               bool
	AuthenticatedData  bool
	CheckingDisabled   bool
	// RCode is the full (possibly EDNS-extended, up to 12 bits) response
	// code. On decode, OPT's high-rcode byte is merged in here; on encode,
	// it is split back out into the header's low 4 bits plus OPT's
	// extended-rcode byte (spec §3, Message invariants).
	RCode dnserr.ResponseCode

	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// Query is a single question-section entry.
type Query struct {
	Name  Name
	Class Class
	Type  RRType
}

// SignatureKind tags the mutually-exclusive shapes a Message's terminal
// signature record may take (spec §9, "tagged signature").
type SignatureKind int

const (
	Unsigned SignatureKind = iota
	Sig0
	Tsig
)

// Signature is the message-level tri-state signature slot. Representing it
// as a tagged sum rather than two nullable record pointers makes the
// TSIG/SIG(0) exclusivity invariant structurally unforgeable: there is no
// way to populate both.
type Signature struct {
	Kind   SignatureKind
	Record *Record
}

// Message is the full decoded/to-be-encoded DNS message: header plus five
// sections, optional EDNS OPT, and the terminal signature slot.
type Message struct {
	Header      Header
	Queries     []Query
	Answers     []Record
	Authorities []Record
	Additionals []Record
	EDNS        *Record
	Signature   Signature
}

// Verifier is returned by a MessageSigner to later verify a corresponding
// response; nil if the signer does not need round-trip verification.
type Verifier func(response *Message) error

// MessageSigner is an object-safe, thread-shareable capability supplied at
// send time. It produces the message's terminal signature and, optionally,
// a Verifier for the eventual response (spec §9, "Finalization hook").
type MessageSigner interface {
	Sign(msg *Message, now time.Time) (Signature, Verifier, error)
}

// ResponseSigner is the one-shot signer an Authority may return from
// search/consult. Unlike MessageSigner it is request-scoped — it may close
// over key material selected for this particular request's source (e.g. a
// TSIG key looked up by the request's signing key name) — so it cannot be
// a shared, long-lived capability.
type ResponseSigner func(msg *Message, now time.Time) error

// Finalize applies signer to m immediately before transmission, recording
// the resulting Signature and returning a Verifier for the reply, if any.
// A nil signer is a no-op (returns a nil Verifier, nil error).
func (m *Message) Finalize(signer MessageSigner, now time.Time) (Verifier, error) {
	if signer == nil {
		return nil, nil
	}
	sig, verifier, err := signer.Sign(m, now)
	if err != nil {
		return nil, err
	}
	m.Signature = sig
	return verifier, nil
}

// ShouldSignMessage is the default should_sign_message predicate: true for
// Update and Notify opcodes, and for AXFR/IXFR queries. Implementations may
// override this by calling Finalize conditionally on their own predicate.
func ShouldSignMessage(m *Message) bool {
	if m.Header.Opcode == OpcodeUpdate || m.Header.Opcode == OpcodeNotify {
		return true
	}
	for _, q := range m.Queries {
		if q.Type == TypeAXFR || q.Type == TypeIXFR {
			return true
		}
	}
	return false
}

type section int

const (
	sectionAnswer section = iota
	sectionAuthority
	sectionAdditional
)

// recordStream threads the OPT/TSIG/SIG(0) placement-and-exclusivity state
// machine from spec §4.2 ("Reading records (algorithm)") across however
// many sections it is fed.
type recordStream struct {
	edns *Record
	sig  Signature
}

func (s *recordStream) accept(r Record, sec section) (*Record, error) {
	if s.sig.Kind != Unsigned {
		return nil, dnserr.ErrSigNotTerminal
	}
	if r.Type.IsPseudo() && sec != sectionAdditional {
		if r.Type == TypeOPT {
			return nil, dnserr.ErrOPTMisplaced
		}
		return nil, dnserr.ErrSigMisplaced
	}
	switch r.Type {
	case TypeOPT:
		if s.edns != nil {
			return nil, dnserr.ErrMultipleOPT
		}
		rc := r
		s.edns = &rc
		return nil, nil
	case TypeTSIG:
		rc := r
		s.sig = Signature{Kind: Tsig, Record: &rc}
		return nil, nil
	case TypeSIG:
		rc := r
		s.sig = Signature{Kind: Sig0, Record: &rc}
		return nil, nil
	default:
		return &r, nil
	}
}

// Decode parses a complete wire-format message. It never builds a cyclic
// pointer graph: names are materialized eagerly by the Decoder, which only
// ever reads from (never mutates) the input buffer.
func Decode(buf []byte) (*Message, error) {
	d := NewDecoder(buf)
	m := &Message{}

	if err := decodeHeader(d, &m.Header); err != nil {
		return nil, err
	}

	for i := 0; i < int(m.Header.QDCount); i++ {
		q, err := decodeQuery(d)
		if err != nil {
			return nil, err
		}
		m.Queries = append(m.Queries, q)
	}

	stream := &recordStream{}

	readSection := func(count int, sec section, dst *[]Record) error {
		for i := 0; i < count; i++ {
			r, err := ReadRecord(d)
			if err != nil {
				return err
			}
			kept, err := stream.accept(r, sec)
			if err != nil {
				return err
			}
			if kept != nil {
				*dst = append(*dst, *kept)
			}
		}
		return nil
	}

	if err := readSection(int(m.Header.ANCount), sectionAnswer, &m.Answers); err != nil {
		return nil, err
	}
	if err := readSection(int(m.Header.NSCount), sectionAuthority, &m.Authorities); err != nil {
		return nil, err
	}
	if err := readSection(int(m.Header.ARCount), sectionAdditional, &m.Additionals); err != nil {
		return nil, err
	}

	m.EDNS = stream.edns
	m.Signature = stream.sig
	if m.EDNS != nil {
		m.Header.RCode = dnserr.ResponseCode(uint16(m.Header.RCode) | uint16(m.EDNS.ExtendedRCODE)<<4)
	}

	// Canonicalize declared counts to what was actually present, per the
	// round-trip invariant (spec §8, property 1).
	m.Header.QDCount = uint16(len(m.Queries))
	m.Header.ANCount = uint16(len(m.Answers))
	m.Header.NSCount = uint16(len(m.Authorities))
	m.Header.ARCount = uint16(len(m.Additionals))
	if m.EDNS != nil {
		m.Header.ARCount++
	}
	if m.Signature.Kind != Unsigned {
		m.Header.ARCount++
	}

	return m, nil
}

func decodeHeader(d *Decoder, h *Header) error {
	id, err := d.ReadUint16()
	if err != nil {
		return err
	}
	h.ID = id

	flags, err := d.ReadUint16()
	if err != nil {
		return err
	}
	hi := uint8(flags >> 8)
	lo := uint8(flags & 0xFF)

	h.Response = hi&(1<<7) != 0
	h.Opcode = Opcode((hi >> 3) & 0x0F)
	h.AuthoritativeAnswer = hi&(1<<2) != 0
	h.Truncated = hi&(1<<1) != 0
	h.RecursionDesired = hi&1 != 0

	h.RecursionAvailable = lo&(1<<7) != 0
	h.Zero = lo&(1<<6) != 0
	h.AuthenticatedData = lo&(1<<5) != 0
	h.CheckingDisabled = lo&(1<<4) != 0
	h.RCode = dnserr.ResponseCode(lo & 0x0F)

	if h.QDCount, err = d.ReadUint16(); err != nil {
		return err
	}
	if h.ANCount, err = d.ReadUint16(); err != nil {
		return err
	}
	if h.NSCount, err = d.ReadUint16(); err != nil {
		return err
	}
	h.ARCount, err = d.ReadUint16()
	return err
}

func decodeQuery(d *Decoder) (Query, error) {
	var q Query
	name, err := d.ReadName()
	if err != nil {
		return q, err
	}
	q.Name = name
	t, err := d.ReadUint16()
	if err != nil {
		return q, err
	}
	q.Type = RRType(t)
	c, err := d.ReadUint16()
	if err != nil {
		return q, err
	}
	q.Class = Class(c)
	return q, nil
}

// Encode serializes m according to mode. The header is written with counts
// equal to the slice lengths actually present, regardless of any
// previously set Header count fields. It returns the encoded bytes and
// whether any section had to be truncated; truncation only ever drops
// whole records from the tail of additionals/authorities/answers, never
// splits one.
//
// In Signing mode the trailing TSIG/SIG(0) record is omitted from the
// output — the caller hashes this output and appends the signature record
// itself afterward — and name compression is disabled, since signing
// requires canonical (uncompressed) rdata.
func Encode(m *Message, mode EncodeMode, maxSize int) ([]byte, bool, error) {
	e := NewEncoder(mode)

	qd := len(m.Queries)
	an := len(m.Answers)
	ns := len(m.Authorities)
	ar := len(m.Additionals)
	if m.EDNS != nil {
		ar++
	}
	if mode != Signing && m.Signature.Kind != Unsigned {
		ar++
	}

	rcode := m.Header.RCode
	extended := uint8(0)
	if m.EDNS != nil {
		extended = uint8(uint16(rcode) >> 4)
		rcode = dnserr.ResponseCode(uint16(rcode) & 0x0F)
	}

	headerPlaceholder(e)

	for _, q := range m.Queries {
		if err := encodeQuery(e, q); err != nil {
			return nil, false, err
		}
	}

	truncated := false
	emit := func(rs []Record) error {
		for i := range rs {
			before := e.Position()
			if err := WriteRecord(e, &rs[i]); err != nil {
				return err
			}
			if maxSize > 0 && e.Position() > maxSize {
				e.buf = e.buf[:before]
				truncated = true
				return errStopSection
			}
		}
		return nil
	}

	writtenAn, writtenNs, writtenAr := 0, 0, 0
	if err := emitCounted(emit, m.Answers, &writtenAn); err != nil {
		return nil, false, err
	}
	if writtenAn == len(m.Answers) {
		if err := emitCounted(emit, m.Authorities, &writtenNs); err != nil {
			return nil, false, err
		}
	}
	additionals := m.Additionals
	if m.EDNS != nil {
		edns := *m.EDNS
		edns.ExtendedRCODE = extended
		additionals = append(append([]Record{}, additionals...), edns)
	}
	if mode != Signing && m.Signature.Record != nil {
		additionals = append(additionals, *m.Signature.Record)
	}
	if writtenAn == len(m.Answers) && writtenNs == len(m.Authorities) {
		if err := emitCounted(emit, additionals, &writtenAr); err != nil {
			return nil, false, err
		}
	}

	if truncated {
		m.Header.Truncated = true
	}

	// Patch header with the actual counts written, and TC bit.
	patchHeader(e, &m.Header, rcode, qd, writtenAn, writtenNs, writtenAr)

	out := make([]byte, e.Position())
	copy(out, e.Bytes())
	e.Release()
	return out, truncated, nil
}

var errStopSection = dnserr.NewCodecError(dnserr.NoError, "truncated")

func emitCounted(emit func([]Record) error, rs []Record, written *int) error {
	err := emit(rs)
	if err == errStopSection {
		return nil
	}
	if err != nil {
		return err
	}
	*written = len(rs)
	return nil
}

func headerPlaceholder(e *Encoder) {
	for i := 0; i < 12; i++ {
		e.WriteByte(0)
	}
}

func patchHeader(e *Encoder, h *Header, rcode dnserr.ResponseCode, qd, an, ns, ar int) {
	e.PatchUint16(0, h.ID)

	var hi, lo uint8
	if h.Response {
		hi |= 1 << 7
	}
	hi |= uint8(h.Opcode) << 3
	if h.AuthoritativeAnswer {
		hi |= 1 << 2
	}
	if h.Truncated {
		hi |= 1 << 1
	}
	if h.RecursionDesired {
		hi |= 1
	}
	if h.RecursionAvailable {
		lo |= 1 << 7
	}
	if h.Zero {
		lo |= 1 << 6
	}
	if h.AuthenticatedData {
		lo |= 1 << 5
	}
	if h.CheckingDisabled {
		lo |= 1 << 4
	}
	lo |= uint8(rcode) & 0x0F

	e.PatchUint16(2, uint16(hi)<<8|uint16(lo))
	e.PatchUint16(4, uint16(qd))
	e.PatchUint16(6, uint16(an))
	e.PatchUint16(8, uint16(ns))
	e.PatchUint16(10, uint16(ar))
}

func encodeQuery(e *Encoder, q Query) error {
	if err := e.WriteName(q.Name); err != nil {
		return err
	}
	e.WriteUint16(uint16(q.Type))
	e.WriteUint16(uint16(q.Class))
	return nil
}
