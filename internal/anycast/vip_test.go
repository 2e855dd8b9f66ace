package anycast

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func skipIfNotPrivileged(t *testing.T) {
	t.Helper()
	if os.Geteuid() != 0 {
		t.Skip("skipping: root privileges required for VIP management")
	}
	cmd := "ip"
	if runtime.GOOS == "darwin" {
		cmd = "ifconfig"
	}
	if _, err := exec.LookPath(cmd); err != nil {
		t.Skipf("skipping: %s command not found", cmd)
	}
}

func TestNewSystemVIP(t *testing.T) {
	assert.NotNil(t, NewSystemVIP(nil))
}

func TestSystemVIP_Validation(t *testing.T) {
	vip := NewSystemVIP(nil)
	ctx := context.Background()

	assert.Error(t, vip.Bind(ctx, "not-an-ip", "lo"))
	assert.Error(t, vip.Bind(ctx, "127.0.0.2", ""))
	assert.Error(t, vip.Unbind(ctx, "not-an-ip", "lo"))
}

func TestSystemVIP_BindAndUnbind(t *testing.T) {
	skipIfNotPrivileged(t)
	vip := NewSystemVIP(nil)
	ctx := context.Background()

	assert.NoError(t, vip.Bind(ctx, "127.0.0.2", "lo"))
	assert.NoError(t, vip.Unbind(ctx, "127.0.0.2", "lo"))
}
