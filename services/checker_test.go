package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"termhost/internal/env"
)

/**
 * Build a checker backed by a scripted git
 * @param {func} runGit - Scripted git entry point
 * @returns {*UpdateChecker} Checker instance with the script wired in
 */
func newTestChecker(runGit func(ctx context.Context, args ...string) (string, error)) *UpdateChecker {
	return &UpdateChecker{
		installDir: "/tmp/termhost-test",
		branch:     "main",
		fallback:   "master",
		runGit:     runGit,
	}
}

/**
 * Test branch fallback behavior
 * @param {*testing.T} t - Testing framework instance
 * @description
 * - Preferred branch doesn't exist remotely, fallback does
 * - ResolveBranch must return the fallback branch
 */
func TestResolveBranchFallback(t *testing.T) {
	uc := newTestChecker(func(ctx context.Context, args ...string) (string, error) {
		if args[0] == "fetch" && args[2] == "main" {
			return "", fmt.Errorf("couldn't find remote ref main")
		}
		return "", nil
	})

	branch, err := uc.ResolveBranch(context.Background())
	if err != nil {
		t.Fatalf("ResolveBranch failed: %v", err)
	}
	if branch != "master" {
		t.Errorf("Expected fallback branch 'master', got '%s'", branch)
	}
}

/**
 * Test that both branches missing is a check failure
 * @param {*testing.T} t - Testing framework instance
 */
func TestResolveBranchBothMissing(t *testing.T) {
	uc := newTestChecker(func(ctx context.Context, args ...string) (string, error) {
		if args[0] == "fetch" {
			return "", fmt.Errorf("couldn't find remote ref")
		}
		return "", nil
	})

	if _, err := uc.ResolveBranch(context.Background()); err == nil {
		t.Error("Expected error when neither branch exists")
	}
}

/**
 * Test check failure on a non-repository install directory
 * @param {*testing.T} t - Testing framework instance
 * @description
 * - A failed check must return (nil, err), distinct from "no update"
 */
func TestCheckNotRepository(t *testing.T) {
	uc := newTestChecker(func(ctx context.Context, args ...string) (string, error) {
		if args[0] == "rev-parse" && args[1] == "--git-dir" {
			return "", fmt.Errorf("not a git repository")
		}
		return "", nil
	})

	info, err := uc.Check(context.Background())
	if err == nil {
		t.Fatal("Expected error for non-repository install directory")
	}
	if info != nil {
		t.Errorf("Expected nil info on check failure, got %+v", info)
	}
}

// scriptedGit 返回一个双版本仓库的脚本化git：本地HEAD和远端tip可独立指定
func scriptedGit(local, remote string, changes []string) func(ctx context.Context, args ...string) (string, error) {
	return func(ctx context.Context, args ...string) (string, error) {
		joined := strings.Join(args, " ")
		switch {
		case joined == "rev-parse --git-dir":
			return ".git", nil
		case strings.HasPrefix(joined, "fetch origin main"):
			return "", nil
		case joined == "rev-parse --short HEAD":
			return local, nil
		case joined == "rev-parse --short origin/main":
			return remote, nil
		case strings.HasPrefix(joined, "log --oneline"):
			return strings.Join(changes, "\n"), nil
		}
		return "", fmt.Errorf("unexpected git invocation: %s", joined)
	}
}

/**
 * Test no-update result when local and remote revisions match
 * @param {*testing.T} t - Testing framework instance
 */
func TestCheckNoUpdate(t *testing.T) {
	uc := newTestChecker(scriptedGit("aaaa111", "aaaa111", nil))

	info, err := uc.Check(context.Background())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if info.Available {
		t.Error("Expected no update when revisions match")
	}
	if info.CurrentVersion != "aaaa111" || info.LatestVersion != "aaaa111" {
		t.Errorf("Unexpected versions: %+v", info)
	}
}

/**
 * Test update-available result with change summaries
 * @param {*testing.T} t - Testing framework instance
 * @description
 * - Diverged revisions must report Available=true with the commit summaries
 * - The result must be retained and visible through Latest()
 */
func TestCheckUpdateAvailable(t *testing.T) {
	changes := []string{"bbbb222 fix restart race", "cccc333 add health endpoint"}
	uc := newTestChecker(scriptedGit("aaaa111", "bbbb222", changes))

	info, err := uc.Check(context.Background())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !info.Available {
		t.Fatal("Expected an available update")
	}
	if len(info.Changes) != 2 {
		t.Errorf("Expected 2 change summaries, got %d", len(info.Changes))
	}

	cached := uc.Latest()
	if cached == nil || cached.LatestVersion != "bbbb222" {
		t.Errorf("Latest() should return the retained result, got %+v", cached)
	}
}

/**
 * Test concurrent checks against version reads
 * @param {*testing.T} t - Testing framework instance
 * @description
 * - Check records the current version while handlers read it concurrently;
 *   both must be safe under the race detector
 */
func TestCheckConcurrentVersionReads(t *testing.T) {
	uc := newTestChecker(scriptedGit("aaaa111", "bbbb222", []string{"bbbb222 change"}))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if _, err := uc.Check(context.Background()); err != nil {
				t.Errorf("Check failed: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if env.Version() == "" {
				t.Error("Version must never be empty")
				return
			}
		}
	}()
	wg.Wait()
}

/**
 * Test that Latest is nil before the first check
 * @param {*testing.T} t - Testing framework instance
 */
func TestLatestBeforeCheck(t *testing.T) {
	uc := newTestChecker(scriptedGit("aaaa111", "aaaa111", nil))
	if uc.Latest() != nil {
		t.Error("Latest() should be nil before any check")
	}
}
