package anycast

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os/exec"
	"runtime"
	"strings"
)

// SystemVIP implements VIPManager by shelling out to the platform's own
// interface-address tooling. Adapted from the teacher's
// SystemVIPAdapter — same command set, same idempotent-on-"File exists"
// Bind behavior.
type SystemVIP struct {
	logger *slog.Logger
}

func NewSystemVIP(logger *slog.Logger) *SystemVIP {
	if logger == nil {
		logger = slog.Default()
	}
	return &SystemVIP{logger: logger}
}

func (a *SystemVIP) Bind(ctx context.Context, vip, iface string) error {
	if net.ParseIP(vip) == nil {
		return fmt.Errorf("invalid VIP address: %s", vip)
	}
	if iface == "" {
		return fmt.Errorf("interface name cannot be empty")
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		// #nosec G204 -- vip/iface are validated above, not raw user input
		cmd = exec.CommandContext(ctx, "ip", "addr", "add", vip+"/32", "dev", iface)
	case "darwin":
		// #nosec G204
		cmd = exec.CommandContext(ctx, "ifconfig", iface, "alias", vip, "255.255.255.255")
	default:
		return fmt.Errorf("unsupported OS for VIP management: %s", runtime.GOOS)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		outStr := string(output)
		if strings.Contains(outStr, "File exists") || strings.Contains(outStr, "already bound") {
			a.logger.Info("VIP already bound", "vip", vip, "iface", iface)
			return nil
		}
		a.logger.Warn("VIP bind command failed", "error", err, "vip", vip, "output", outStr)
		return fmt.Errorf("failed to bind VIP: %w (output: %s)", err, outStr)
	}

	a.logger.Info("bound VIP to interface", "vip", vip, "iface", iface)
	return nil
}

func (a *SystemVIP) Unbind(ctx context.Context, vip, iface string) error {
	if net.ParseIP(vip) == nil {
		return fmt.Errorf("invalid VIP address: %s", vip)
	}
	if iface == "" {
		return fmt.Errorf("interface name cannot be empty")
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		// #nosec G204
		cmd = exec.CommandContext(ctx, "ip", "addr", "del", vip+"/32", "dev", iface)
	case "darwin":
		// #nosec G204
		cmd = exec.CommandContext(ctx, "ifconfig", iface, "-alias", vip)
	default:
		return fmt.Errorf("unsupported OS for VIP management: %s", runtime.GOOS)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		outStr := string(output)
		a.logger.Warn("VIP unbind command finished with error", "error", err, "vip", vip, "output", outStr)
		return fmt.Errorf("failed to unbind VIP: %w (output: %s)", err, outStr)
	}

	a.logger.Info("unbound VIP from interface", "vip", vip, "iface", iface)
	return nil
}

var _ VIPManager = (*SystemVIP)(nil)
