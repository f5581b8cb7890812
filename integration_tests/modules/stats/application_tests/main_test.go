package statsintegrationtests

import (
	"os"
	"testing"

	"github.com/frontline-stats/sitrep/integration_tests/testutils"
)

func TestMain(m *testing.M) {
	code := m.Run()
	testutils.ShutdownTestEnv()
	os.Exit(code)
}
