// Package testlog routes engine logs through the test profile.
package testlog

import (
	"testing"

	logs "github.com/danmuck/fixgate/internal/logging"
)

// Start applies the test log profile and brackets the test in the log.
func Start(t *testing.T) {
	t.Helper()
	logs.ConfigureTests()
	logs.Debugf("test.start name=%s", t.Name())
	t.Cleanup(func() {
		logs.Debugf("test.end name=%s failed=%t", t.Name(), t.Failed())
	})
}
