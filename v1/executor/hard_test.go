package executor_test

import (
	"testing"

	"github.com/EliseyGodX/SchedulerGodX/v1/config"
	"github.com/EliseyGodX/SchedulerGodX/v1/executor"
)

// NewHard does not contact the docker daemon; it only fails when the
// docker client cannot be configured from the environment (for example a
// malformed DOCKER_HOST). Skip rather than fail in that case, since the
// test cannot assert behavior it can't exercise. The test checks that a
// zero config is accepted; the filled-in defaults are not observable from
// outside the package.
func TestNewHardAcceptsZeroConfig(t *testing.T) {
	h, err := executor.NewHard(config.Hard{})
	if err != nil {
		t.Skip("docker client init failed (expected without a daemon):", err)
	}
	defer h.Close()
}
