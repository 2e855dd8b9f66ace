package wire

// NewOPT builds an EDNS(0) OPT pseudo-record advertising the given UDP
// payload size and DNSSEC-OK bit. The name is always root and the class
// field doubles as the advertised payload size, per RFC 6891 §6.1.
func NewOPT(udpPayloadSize uint16, dnssecOK bool) *Record {
	return &Record{
		Name:           ".",
		Type:           TypeOPT,
		UDPPayloadSize: udpPayloadSize,
		Class:          Class(udpPayloadSize),
		DO:             dnssecOK,
	}
}

// DNSSECOK reports whether this OPT record sets the DO bit.
func (r *Record) DNSSECOK() bool {
	return r != nil && r.Type == TypeOPT && r.DO
}

// Option returns the first EDNS option with the given code, if any.
func (r *Record) Option(code uint16) (EdnsOption, bool) {
	if r == nil {
		return EdnsOption{}, false
	}
	for _, o := range r.Options {
		if o.Code == code {
			return o, true
		}
	}
	return EdnsOption{}, false
}
