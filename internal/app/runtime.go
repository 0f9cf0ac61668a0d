package app

import (
	"os"
	"strconv"
	"sync/atomic"
)

const testModeEnv = "CIVIC_TEST_MODE"

// testMode caches the flag: 0 unread, 1 off, 2 on.
var testMode atomic.Int32

// InTestMode reports whether binaries should skip starting servers and workers.
func InTestMode() bool {
	switch testMode.Load() {
	case 1:
		return false
	case 2:
		return true
	}
	return RefreshTestMode()
}

// RefreshTestMode rereads CIVIC_TEST_MODE. Any value strconv.ParseBool accepts
// as true turns test mode on.
func RefreshTestMode() bool {
	on, _ := strconv.ParseBool(os.Getenv(testModeEnv))
	if on {
		testMode.Store(2)
	} else {
		testMode.Store(1)
	}
	return on
}
