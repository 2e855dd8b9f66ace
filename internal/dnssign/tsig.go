package dnssign

import (
	"crypto/hmac"
	"crypto/md5" // #nosec G501 -- TSIG hmac-md5 is the only algorithm this codec negotiates (spec open question: no algorithm negotiation)
	"fmt"
	"time"

	"github.com/lattice-dns/dnscore/internal/wire"
)

// TSIGAlgorithm is the sole TSIG MAC algorithm name this codec emits and
// accepts (RFC 2845 §4.3); the open question on algorithm negotiation
// resolved to hmac-md5 only, matching the teacher.
const TSIGAlgorithm = wire.Name("hmac-md5.sig-alg.reg.int.")

// DefaultFudge is the allowed clock-skew window (RFC 2845 §4), matching the
// teacher's SignTSIG.
const DefaultFudge = 300

// TSIGKey is a shared secret identified by a key name, used to both sign
// outgoing messages and verify a matching response.
type TSIGKey struct {
	Name   wire.Name
	Secret []byte
}

// TSIGSigner implements wire.MessageSigner for one TSIG key, suitable for
// a zone transfer client or a resolver talking to a key-authenticated
// upstream. Grounded on the teacher's DNSPacket.SignTSIG/VerifyTSIG,
// restructured around wire.Message's Signing-mode encode instead of
// mutating a raw buffer in place.
type TSIGSigner struct {
	Key TSIGKey
}

func NewTSIGSigner(key TSIGKey) *TSIGSigner {
	return &TSIGSigner{Key: key}
}

// Sign computes the TSIG MAC over msg's canonical (Signing-mode) encoding
// plus the TSIG variables, and returns a Verifier that checks a response's
// own TSIG record the same way.
func (s *TSIGSigner) Sign(msg *wire.Message, now time.Time) (wire.Signature, wire.Verifier, error) {
	unsigned, _, err := wire.Encode(msg, wire.Signing, 0)
	if err != nil {
		return wire.Signature{}, nil, err
	}

	rec := wire.Record{
		Name:          s.Key.Name,
		Type:          wire.TypeTSIG,
		Class:         wire.ClassANY,
		AlgorithmName: TSIGAlgorithm,
		TimeSigned:    uint64(now.Unix()),
		Fudge:         DefaultFudge,
		OriginalID:    msg.Header.ID,
	}

	mac, err := tsigMAC(s.Key.Secret, unsigned, &rec)
	if err != nil {
		return wire.Signature{}, nil, err
	}
	rec.MAC = mac

	verifier := func(response *wire.Message) error {
		return s.Verify(response)
	}
	return wire.Signature{Kind: wire.Tsig, Record: &rec}, verifier, nil
}

// Verify checks response's terminal TSIG record against s.Key, enforcing
// the RFC 2845 fudge window the teacher's VerifyTSIG checks.
func (s *TSIGSigner) Verify(response *wire.Message) error {
	if response.Signature.Kind != wire.Tsig || response.Signature.Record == nil {
		return fmt.Errorf("dnssign: response is not TSIG-signed")
	}
	rec := response.Signature.Record

	now := uint64(time.Now().Unix())
	var drift uint64
	if now > rec.TimeSigned {
		drift = now - rec.TimeSigned
	} else {
		drift = rec.TimeSigned - now
	}
	if drift > uint64(rec.Fudge) {
		return fmt.Errorf("dnssign: TSIG time drift exceeded fudge window")
	}

	unsigned, _, err := wire.Encode(response, wire.Signing, 0)
	if err != nil {
		return err
	}
	expected, err := tsigMAC(s.Key.Secret, unsigned, rec)
	if err != nil {
		return err
	}
	if !hmac.Equal(rec.MAC, expected) {
		return fmt.Errorf("dnssign: TSIG MAC mismatch")
	}
	return nil
}

// tsigMAC computes HMAC-MD5(secret, messageBytes || tsigVariables) per
// RFC 2845 §3.4.1. rec supplies the variables (name/class/ttl/algorithm/
// time/fudge/error/other); its MAC field is ignored.
func tsigMAC(secret []byte, messageBytes []byte, rec *wire.Record) ([]byte, error) {
	h := hmac.New(md5.New, secret) // #nosec G401
	h.Write(messageBytes)

	v := wire.NewEncoder(wire.Uncompressed)
	defer v.Release()
	if err := v.WriteName(rec.Name); err != nil {
		return nil, err
	}
	v.WriteUint16(uint16(rec.Class))
	v.WriteUint32(0) // TTL is always 0 for TSIG
	if err := v.WriteName(rec.AlgorithmName); err != nil {
		return nil, err
	}
	v.WriteUint16(uint16(rec.TimeSigned >> 32))
	v.WriteUint32(uint32(rec.TimeSigned & 0xFFFFFFFF))
	v.WriteUint16(rec.Fudge)
	v.WriteUint16(rec.TsigError)
	v.WriteUint16(uint16(len(rec.Other)))
	v.WriteBytes(rec.Other)

	h.Write(v.Bytes())
	return h.Sum(nil), nil
}
