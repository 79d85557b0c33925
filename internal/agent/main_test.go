// File: internal/agent/main_test.go
package agent

import (
	"os"
	"testing"

	"go.uber.org/goleak"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/crust/internal/config"
	"github.com/xkilldash9x/crust/internal/observability"
)

// TestMain initializes the global logger and fails the package if any test
// leaks a goroutine.
func TestMain(m *testing.M) {
	logConfig := config.NewDefaultConfig().Logger()
	logConfig.Level = "debug"
	logConfig.ServiceName = "test-suite"
	logConfig.Format = "console"
	observability.Initialize(logConfig, zapcore.Lock(os.Stdout))

	goleak.VerifyTestMain(m, goleak.Cleanup(func(int) {
		observability.Sync()
		observability.ResetForTest()
	}))
}
