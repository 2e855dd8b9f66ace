package anycast

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	api "github.com/osrg/gobgp/v4/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockBGPSpeaker struct {
	failStart      bool
	failAddPeer    bool
	failAddPath    bool
	failDeletePath bool
	failStop       bool
}

func (m *mockBGPSpeaker) Serve() {}

func (m *mockBGPSpeaker) StartBgp(context.Context, *api.StartBgpRequest) error {
	if m.failStart {
		return errors.New("start failed")
	}
	return nil
}

func (m *mockBGPSpeaker) AddPeer(context.Context, *api.AddPeerRequest) error {
	if m.failAddPeer {
		return errors.New("add peer failed")
	}
	return nil
}

func (m *mockBGPSpeaker) AddPath(context.Context, *api.AddPathRequest) (*api.AddPathResponse, error) {
	if m.failAddPath {
		return nil, errors.New("add path failed")
	}
	return &api.AddPathResponse{}, nil
}

func (m *mockBGPSpeaker) DeletePath(context.Context, *api.DeletePathRequest) error {
	if m.failDeletePath {
		return errors.New("delete path failed")
	}
	return nil
}

func (m *mockBGPSpeaker) StopBgp(context.Context, *api.StopBgpRequest) error {
	if m.failStop {
		return errors.New("stop failed")
	}
	return nil
}

func TestGoBGP_AnnounceAndWithdraw(t *testing.T) {
	mock := &mockBGPSpeaker{}
	adapter := &GoBGP{speaker: mock, logger: slog.Default()}
	ctx := context.Background()

	require.NoError(t, adapter.Announce(ctx, "198.51.100.1"))

	mock.failAddPath = true
	assert.Error(t, adapter.Announce(ctx, "198.51.100.1"))
	mock.failAddPath = false

	require.NoError(t, adapter.Withdraw(ctx, "198.51.100.1"))

	mock.failDeletePath = true
	assert.Error(t, adapter.Withdraw(ctx, "198.51.100.1"))
}

func TestGoBGP_Start(t *testing.T) {
	mock := &mockBGPSpeaker{}
	adapter := &GoBGP{speaker: mock, logger: slog.Default()}
	ctx := context.Background()

	require.NoError(t, adapter.Start(ctx, 65001, 65002, "127.0.0.1"))

	mock.failAddPeer = true
	assert.Error(t, adapter.Start(ctx, 65001, 65002, "127.0.0.1"))
}

func TestGoBGP_Stop(t *testing.T) {
	mock := &mockBGPSpeaker{}
	adapter := &GoBGP{speaker: mock, logger: slog.Default()}
	assert.NoError(t, adapter.Stop())
}

func TestNewGoBGP(t *testing.T) {
	a := NewGoBGP(nil)
	require.NotNil(t, a)
	assert.NotNil(t, a.speaker)
}
