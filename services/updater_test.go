package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"termhost/internal/config"
	"termhost/internal/models"
)

// fakeController 测试用的服务控制器，只记录重启次数
type fakeController struct {
	mutex    sync.Mutex
	restarts int
	running  bool
}

func (f *fakeController) InitSystem() models.InitSystem {
	return models.InitManual
}

func (f *fakeController) Status(ctx context.Context) models.ServiceStatus {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return models.ServiceStatus{Running: f.running}
}

func (f *fakeController) Logs(ctx context.Context, lines int) []string {
	return []string{}
}

func (f *fakeController) Restart(ctx context.Context) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.restarts++
	return nil
}

func (f *fakeController) Install(ctx context.Context) error {
	return nil
}

func (f *fakeController) restartCount() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.restarts
}

// gitState 脚本化的git仓库状态，被检查器和编排器共享
type gitState struct {
	mutex     sync.Mutex
	local     string
	remote    string
	diff      string
	failReset bool
	resets    int
	pulls     int
	tags      int
}

func (g *gitState) checkerGit(ctx context.Context, args ...string) (string, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	joined := strings.Join(args, " ")
	switch {
	case joined == "rev-parse --git-dir":
		return ".git", nil
	case strings.HasPrefix(joined, "fetch origin"):
		return "", nil
	case joined == "rev-parse --short HEAD":
		return g.local, nil
	case joined == "rev-parse --short origin/main":
		return g.remote, nil
	case strings.HasPrefix(joined, "log --oneline"):
		return g.remote + " some change", nil
	}
	return "", fmt.Errorf("unexpected git invocation: %s", joined)
}

func (g *gitState) orchestratorGit(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	switch args[0] {
	case "tag":
		g.tags++
		return "", nil
	case "diff":
		return g.diff, nil
	case "pull":
		g.pulls++
		g.local = g.remote
		return "", nil
	case "reset":
		g.resets++
		if g.failReset {
			return "", fmt.Errorf("reset failed")
		}
		g.local = args[2]
		return "", nil
	}
	return "", fmt.Errorf("unexpected git invocation: %s", strings.Join(args, " "))
}

/**
 * Build an orchestrator wired to a scripted git and a fake controller
 * @param {*testing.T} t - Testing framework instance
 * @param {*gitState} g - Scripted repository state
 * @returns {(*UpdateOrchestrator, *fakeController)} Orchestrator and its controller
 */
func newTestOrchestrator(t *testing.T, g *gitState) (*UpdateOrchestrator, *fakeController) {
	t.Helper()

	fc := &fakeController{running: true}
	checker := &UpdateChecker{
		installDir: t.TempDir(),
		branch:     "main",
		fallback:   "master",
		runGit:     g.checkerGit,
	}
	uo := &UpdateOrchestrator{
		checker:     checker,
		controller:  fc,
		broadcaster: &ProgressBroadcaster{subscribers: make(map[string][]chan models.UpdateEvent)},
		installDir:  t.TempDir(),
		cfg:         config.Config.Update,
	}
	uo.runGit = g.orchestratorGit
	uo.installDeps = func(ctx context.Context) error { return nil }
	uo.runSelfTest = func(ctx context.Context) error { return nil }
	uo.restartSvc = func(ctx context.Context) error { return fc.Restart(ctx) }
	return uo, fc
}

// waitForAttempt 等待本次更新进入终态
func waitForAttempt(t *testing.T, uo *UpdateOrchestrator) *models.UpdateAttempt {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		attempt := uo.LastAttempt()
		if attempt != nil && attempt.Status != models.AttemptInProgress && !uo.InProgress() {
			return attempt
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("update did not finish in time")
	return nil
}

/**
 * Test no-op success when already up to date
 * @param {*testing.T} t - Testing framework instance
 * @description
 * - Matching revisions must finalize success without pull, restart or reinstall
 */
func TestUpdateNoOpWhenUpToDate(t *testing.T) {
	g := &gitState{local: "aaaa111", remote: "aaaa111"}
	uo, fc := newTestOrchestrator(t, g)

	if _, err := uo.StartUpdate(); err != nil {
		t.Fatalf("StartUpdate failed: %v", err)
	}
	attempt := waitForAttempt(t, uo)

	if attempt.Status != models.AttemptSuccess {
		t.Errorf("Expected success, got %s (%s)", attempt.Status, attempt.Error)
	}
	if g.pulls != 0 {
		t.Errorf("No-op update must not pull, pulled %d times", g.pulls)
	}
	if fc.restartCount() != 0 {
		t.Errorf("No-op update must not restart, restarted %d times", fc.restartCount())
	}
}

/**
 * Test the full successful update path
 * @param {*testing.T} t - Testing framework instance
 * @description
 * - Changed manifest triggers a dependency reinstall
 * - Exactly one restart promotes the new code
 * - The attempt records from/to versions
 */
func TestUpdateSuccess(t *testing.T) {
	g := &gitState{local: "aaaa111", remote: "bbbb222", diff: "package.json\nsrc/index.js"}
	uo, fc := newTestOrchestrator(t, g)

	installs := 0
	uo.installDeps = func(ctx context.Context) error {
		installs++
		return nil
	}

	if _, err := uo.StartUpdate(); err != nil {
		t.Fatalf("StartUpdate failed: %v", err)
	}
	attempt := waitForAttempt(t, uo)

	if attempt.Status != models.AttemptSuccess {
		t.Fatalf("Expected success, got %s (%s)", attempt.Status, attempt.Error)
	}
	if attempt.FromVersion != "aaaa111" || attempt.ToVersion != "bbbb222" {
		t.Errorf("Unexpected versions: %s -> %s", attempt.FromVersion, attempt.ToVersion)
	}
	if g.tags != 1 {
		t.Errorf("Expected one pre-update tag, got %d", g.tags)
	}
	if installs != 1 {
		t.Errorf("Expected one dependency reinstall, got %d", installs)
	}
	if fc.restartCount() != 1 {
		t.Errorf("Expected one restart, got %d", fc.restartCount())
	}
}

/**
 * Test that an unchanged manifest skips the dependency reinstall
 * @param {*testing.T} t - Testing framework instance
 */
func TestUpdateSkipsReinstallWhenManifestUnchanged(t *testing.T) {
	g := &gitState{local: "aaaa111", remote: "bbbb222", diff: "src/index.js\nREADME.md"}
	uo, _ := newTestOrchestrator(t, g)

	installs := 0
	uo.installDeps = func(ctx context.Context) error {
		installs++
		return nil
	}

	if _, err := uo.StartUpdate(); err != nil {
		t.Fatalf("StartUpdate failed: %v", err)
	}
	attempt := waitForAttempt(t, uo)

	if attempt.Status != models.AttemptSuccess {
		t.Fatalf("Expected success, got %s (%s)", attempt.Status, attempt.Error)
	}
	if installs != 0 {
		t.Errorf("Unchanged manifest must skip reinstall, installed %d times", installs)
	}
}

/**
 * Test rollback when the isolated self-test fails
 * @param {*testing.T} t - Testing framework instance
 * @description
 * - Failed self-test must hard-reset to the previous revision
 * - The old code is restarted and the attempt records rollback
 */
func TestUpdateRollbackOnSelfTestFailure(t *testing.T) {
	g := &gitState{local: "aaaa111", remote: "bbbb222"}
	uo, fc := newTestOrchestrator(t, g)
	uo.runSelfTest = func(ctx context.Context) error {
		return errors.New("health probe never answered")
	}

	if _, err := uo.StartUpdate(); err != nil {
		t.Fatalf("StartUpdate failed: %v", err)
	}
	attempt := waitForAttempt(t, uo)

	if attempt.Status != models.AttemptRollback {
		t.Fatalf("Expected rollback, got %s (%s)", attempt.Status, attempt.Error)
	}
	if attempt.RolledBackTo != "aaaa111" {
		t.Errorf("Expected rollback to aaaa111, got '%s'", attempt.RolledBackTo)
	}
	if g.resets != 1 {
		t.Errorf("Expected one hard reset, got %d", g.resets)
	}
	if fc.restartCount() != 1 {
		t.Errorf("Rollback must restart the old code once, restarted %d times", fc.restartCount())
	}
}

/**
 * Test that a failed rollback is terminal
 * @param {*testing.T} t - Testing framework instance
 * @description
 * - Rollback failure must finalize failed and demand manual intervention
 */
func TestRollbackFailureIsTerminal(t *testing.T) {
	g := &gitState{local: "aaaa111", remote: "bbbb222", failReset: true}
	uo, _ := newTestOrchestrator(t, g)
	uo.runSelfTest = func(ctx context.Context) error {
		return errors.New("self-test failed")
	}

	if _, err := uo.StartUpdate(); err != nil {
		t.Fatalf("StartUpdate failed: %v", err)
	}
	attempt := waitForAttempt(t, uo)

	if attempt.Status != models.AttemptFailed {
		t.Fatalf("Expected terminal failed, got %s", attempt.Status)
	}
	if !strings.Contains(attempt.Error, "manual intervention required") {
		t.Errorf("Expected manual intervention message, got '%s'", attempt.Error)
	}
}

/**
 * Test mutual exclusion of concurrent update requests
 * @param {*testing.T} t - Testing framework instance
 * @description
 * - While one update runs, a second request must be rejected with a conflict
 *   and cause no state mutation
 */
func TestUpdateMutualExclusion(t *testing.T) {
	g := &gitState{local: "aaaa111", remote: "bbbb222"}
	uo, _ := newTestOrchestrator(t, g)

	release := make(chan struct{})
	uo.runSelfTest = func(ctx context.Context) error {
		<-release
		return nil
	}

	firstID, err := uo.StartUpdate()
	if err != nil {
		t.Fatalf("First StartUpdate failed: %v", err)
	}

	if _, err := uo.StartUpdate(); !errors.Is(err, config.ErrUpdateInProgress) {
		t.Errorf("Expected ErrUpdateInProgress, got %v", err)
	}
	if attempt := uo.LastAttempt(); attempt == nil || attempt.UpdateID != firstID {
		t.Error("Rejected request must not touch the retained attempt")
	}

	close(release)
	attempt := waitForAttempt(t, uo)
	if attempt.Status != models.AttemptSuccess {
		t.Errorf("Expected the first update to succeed, got %s", attempt.Status)
	}

	// 互斥标志释放后可以再次更新
	if _, err := uo.StartUpdate(); err != nil {
		t.Errorf("StartUpdate after completion failed: %v", err)
	}
	waitForAttempt(t, uo)
}

/**
 * Test that failure events carry the error details
 * @param {*testing.T} t - Testing framework instance
 * @description
 * - The rollback event must name the failure cause, not just a generic message
 */
func TestFailureEventsCarryError(t *testing.T) {
	g := &gitState{local: "aaaa111", remote: "bbbb222"}
	uo, _ := newTestOrchestrator(t, g)

	subscribed := make(chan struct{})
	uo.runSelfTest = func(ctx context.Context) error {
		<-subscribed
		return errors.New("health probe never answered")
	}

	updateID, err := uo.StartUpdate()
	if err != nil {
		t.Fatalf("StartUpdate failed: %v", err)
	}
	events, unsubscribe := uo.broadcaster.Subscribe(updateID)
	defer unsubscribe()
	close(subscribed)

	var rollback *models.UpdateEvent
	for event := range events {
		if event.Type == models.EventRollback {
			copied := event
			rollback = &copied
		}
	}
	if rollback == nil {
		t.Fatal("No rollback event observed")
	}
	if !strings.Contains(rollback.Error, "health probe never answered") {
		t.Errorf("Rollback event should carry the failure cause, got error %q", rollback.Error)
	}
}

/**
 * Test progress monotonicity of published events
 * @param {*testing.T} t - Testing framework instance
 * @description
 * - Within one run the progress value must never decrease, even across
 *   the rollback path
 */
func TestProgressMonotonic(t *testing.T) {
	g := &gitState{local: "aaaa111", remote: "bbbb222"}
	uo, _ := newTestOrchestrator(t, g)
	uo.runSelfTest = func(ctx context.Context) error {
		time.Sleep(100 * time.Millisecond)
		return errors.New("self-test failed")
	}

	updateID, err := uo.StartUpdate()
	if err != nil {
		t.Fatalf("StartUpdate failed: %v", err)
	}
	events, unsubscribe := uo.broadcaster.Subscribe(updateID)
	defer unsubscribe()

	last := -1
	for {
		select {
		case event, ok := <-events:
			if !ok {
				if last < 0 {
					t.Fatal("No events observed")
				}
				return
			}
			if event.Progress < last {
				t.Fatalf("Progress went backwards: %d after %d (%s)", event.Progress, last, event.Type)
			}
			last = event.Progress
		case <-time.After(5 * time.Second):
			t.Fatal("Timed out waiting for events")
		}
	}
}
