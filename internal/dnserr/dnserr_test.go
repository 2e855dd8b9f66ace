package dnserr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseCode_ErrorsIsMatchesThroughCodecError(t *testing.T) {
	wrapped := fmt.Errorf("decode failed: %w", ErrPointerLoop)
	assert.True(t, errors.Is(wrapped, FormErr))
	assert.False(t, errors.Is(wrapped, ServFail))
}

func TestResponseCode_String(t *testing.T) {
	cases := map[ResponseCode]string{
		NoError:  "NOERROR",
		FormErr:  "FORMERR",
		ServFail: "SERVFAIL",
		NXDomain: "NXDOMAIN",
		NotImp:   "NOTIMP",
		Refused:  "REFUSED",
	}
	for code, want := range cases {
		assert.Equal(t, want, code.String())
	}
	assert.Equal(t, "RCODE99", ResponseCode(99).String())
}

func TestCodecError_UnwrapYieldsResponseCode(t *testing.T) {
	err := NewCodecError(Refused, "blocklisted")
	var code ResponseCode
	assert.True(t, errors.As(err, &code))
	assert.Equal(t, Refused, code)
}
