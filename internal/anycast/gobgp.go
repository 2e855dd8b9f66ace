package anycast

import (
	"context"
	"fmt"
	"log/slog"

	api "github.com/osrg/gobgp/v4/api"
	"github.com/osrg/gobgp/v4/pkg/server"
	"google.golang.org/protobuf/types/known/anypb"
)

// bgpSpeaker is the slice of *server.BgpServer this adapter drives,
// pulled into its own interface so tests can swap in a mock without
// standing up a real BGP speaker. *server.BgpServer satisfies it
// structurally.
type bgpSpeaker interface {
	Serve()
	StartBgp(ctx context.Context, r *api.StartBgpRequest) error
	AddPeer(ctx context.Context, r *api.AddPeerRequest) error
	AddPath(ctx context.Context, r *api.AddPathRequest) (*api.AddPathResponse, error)
	DeletePath(ctx context.Context, r *api.DeletePathRequest) error
	StopBgp(ctx context.Context, r *api.StopBgpRequest) error
}

// GoBGP implements RoutingEngine over the gobgp library's embedded BGP
// speaker. Adapted from the teacher's GoBGPAdapter; gobgp v4's API
// package paths replace v3's (github.com/osrg/gobgp/v4/...).
type GoBGP struct {
	speaker bgpSpeaker
	logger  *slog.Logger
}

func NewGoBGP(logger *slog.Logger) *GoBGP {
	if logger == nil {
		logger = slog.Default()
	}
	return &GoBGP{
		speaker: server.NewBgpServer(),
		logger:  logger,
	}
}

func (a *GoBGP) Start(ctx context.Context, localASN, peerASN uint32, peerIP string) error {
	go a.speaker.Serve()

	if err := a.speaker.StartBgp(ctx, &api.StartBgpRequest{
		Global: &api.Global{
			Asn:        localASN,
			RouterId:   "127.0.0.1",
			ListenPort: 179,
		},
	}); err != nil {
		return fmt.Errorf("failed to start BGP server: %w", err)
	}

	if err := a.speaker.AddPeer(ctx, &api.AddPeerRequest{
		Peer: &api.Peer{
			Conf: &api.PeerConf{
				NeighborAddress: peerIP,
				PeerAsn:         peerASN,
			},
		},
	}); err != nil {
		return fmt.Errorf("failed to add BGP peer: %w", err)
	}

	a.logger.Info("GoBGP speaker started", "local_asn", localASN, "peer_asn", peerASN, "peer_ip", peerIP)
	return nil
}

func (a *GoBGP) Announce(ctx context.Context, vip string) error {
	nlri, err := anypb.New(&api.IPAddressPrefix{Prefix: vip, PrefixLen: 32})
	if err != nil {
		return fmt.Errorf("failed to encode NLRI for %s: %w", vip, err)
	}
	attrs, err := anypb.New(&api.NextHopAttribute{NextHop: "127.0.0.1"})
	if err != nil {
		return fmt.Errorf("failed to encode next-hop attribute: %w", err)
	}

	_, err = a.speaker.AddPath(ctx, &api.AddPathRequest{
		Path: &api.Path{
			Family: &api.Family{Afi: api.Family_AFI_IP, Safi: api.Family_SAFI_UNICAST},
			Nlri:   nlri,
			Pattrs: []*anypb.Any{attrs},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to announce route %s: %w", vip, err)
	}

	a.logger.Info("announced anycast VIP", "vip", vip)
	return nil
}

func (a *GoBGP) Withdraw(ctx context.Context, vip string) error {
	nlri, err := anypb.New(&api.IPAddressPrefix{Prefix: vip, PrefixLen: 32})
	if err != nil {
		return fmt.Errorf("failed to encode NLRI for %s: %w", vip, err)
	}

	if err := a.speaker.DeletePath(ctx, &api.DeletePathRequest{
		Path: &api.Path{
			Family: &api.Family{Afi: api.Family_AFI_IP, Safi: api.Family_SAFI_UNICAST},
			Nlri:   nlri,
		},
	}); err != nil {
		return fmt.Errorf("failed to withdraw route %s: %w", vip, err)
	}

	a.logger.Warn("withdrew anycast VIP", "vip", vip)
	return nil
}

func (a *GoBGP) Stop() error {
	return a.speaker.StopBgp(context.Background(), &api.StopBgpRequest{})
}

var _ RoutingEngine = (*GoBGP)(nil)
