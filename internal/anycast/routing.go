// Package anycast announces and withdraws an anycast VIP via BGP based on
// this node's health, and binds that VIP to a local interface so the
// node's own stack can answer on it. Grounded on the teacher's
// internal/core/services/anycast_manager.go and
// internal/adapters/routing/{gobgp,system_vip}.go.
package anycast

import "context"

// RoutingEngine advertises or withdraws a VIP prefix over BGP. Grounded on
// the teacher's ports.RoutingEngine.
type RoutingEngine interface {
	Start(ctx context.Context, localASN, peerASN uint32, peerIP string) error
	Announce(ctx context.Context, vip string) error
	Withdraw(ctx context.Context, vip string) error
	Stop() error
}

// VIPManager binds or unbinds the anycast VIP on a local interface.
// Grounded on the teacher's ports.VIPManager.
type VIPManager interface {
	Bind(ctx context.Context, vip, iface string) error
	Unbind(ctx context.Context, vip, iface string) error
}

// HealthChecker reports per-backend health; a non-nil value for any key
// means that backend is unhealthy. Grounded on the teacher's
// ports.DNSService.HealthCheck, narrowed to the one method
// AnycastManager actually needs rather than the teacher's full service
// interface.
type HealthChecker interface {
	HealthCheck(ctx context.Context) map[string]error
}
