package authority

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupControlFlow_Constructors(t *testing.T) {
	c := Continue(42)
	assert.Equal(t, FlowContinue, c.State)
	assert.True(t, c.IsOk())
	assert.False(t, c.IsSkip())
	assert.False(t, c.IsBreak())

	b := Break("x")
	assert.True(t, b.IsBreak())
	assert.True(t, b.IsOk())

	s := Skip[int]()
	assert.True(t, s.IsSkip())
	assert.False(t, s.IsOk())

	errSentinel := errors.New("boom")
	ce := ContinueErr[int](errSentinel)
	assert.False(t, ce.IsOk())
	assert.ErrorIs(t, ce.Err, errSentinel)

	be := BreakErr[int](errSentinel)
	assert.True(t, be.IsBreak())
	assert.False(t, be.IsOk())
}

func TestLookupControlFlow_WithValuePreservesStateAndErr(t *testing.T) {
	errSentinel := errors.New("boom")
	original := ContinueErr[int](errSentinel)
	updated := original.WithValue(7)
	assert.Equal(t, FlowContinue, updated.State)
	assert.ErrorIs(t, updated.Err, errSentinel)
	assert.Equal(t, 7, updated.Value)
}

func TestFlowState_String(t *testing.T) {
	assert.Equal(t, "Continue", FlowContinue.String())
	assert.Equal(t, "Break", FlowBreak.String())
	assert.Equal(t, "Skip", FlowSkip.String())
}
