// Package testing flips the application into test mode for any package that
// imports it for side effects, and fills in config a test run cannot supply.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

// testDefaults keep LoadConfig usable and password hashing fast under test.
var testDefaults = map[string]string{
	"CSRF_SECRET": "test-csrf-secret",
	"BCRYPT_COST": "4",
}

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("CIVIC_TEST_MODE", "1")
		for key, val := range testDefaults {
			if os.Getenv(key) == "" {
				_ = os.Setenv(key, val)
			}
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
