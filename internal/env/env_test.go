package env

import (
	"fmt"
	"sync"
	"testing"
)

/**
 * Test concurrent version writes and reads
 * @param {*testing.T} t - Testing framework instance
 * @description
 * - The version is written by background goroutines and read by HTTP handlers
 * - Concurrent access must be safe under the race detector
 */
func TestVersionConcurrentAccess(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				SetVersion(fmt.Sprintf("rev%d-%d", n, j))
				if Version() == "" {
					t.Error("Version must never be empty")
					return
				}
			}
		}(i)
	}
	wg.Wait()
}

/**
 * Test the default version before anything is recorded
 * @param {*testing.T} t - Testing framework instance
 */
func TestVersionDefault(t *testing.T) {
	if got := Version(); got == "" {
		t.Error("Version should have a non-empty default")
	}
}
