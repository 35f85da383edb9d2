package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"termhost/internal/models"
)

/**
 * Test that the factory maps every init system to a matching controller
 * @param {*testing.T} t - Testing framework instance
 */
func TestNewServiceControllerMapping(t *testing.T) {
	systems := []models.InitSystem{
		models.InitSystemdUser,
		models.InitSystemdSystem,
		models.InitOpenRC,
		models.InitLaunchd,
		models.InitWindowsService,
		models.InitTaskScheduler,
		models.InitManual,
	}

	for _, sys := range systems {
		controller := NewServiceController(sys, "termhost")
		if controller.InitSystem() != sys {
			t.Errorf("Controller for %s reports %s", sys, controller.InitSystem())
		}
	}
}

/**
 * Test that manual mode rejects restart and install deterministically
 * @param {*testing.T} t - Testing framework instance
 */
func TestManualControllerErrors(t *testing.T) {
	controller := NewServiceController(models.InitManual, "termhost")

	if err := controller.Restart(context.Background()); !errors.Is(err, ErrManualRestart) {
		t.Errorf("Restart error = %v, want ErrManualRestart", err)
	}
	if err := controller.Install(context.Background()); !errors.Is(err, ErrManualInstall) {
		t.Errorf("Install error = %v, want ErrManualInstall", err)
	}
}

/**
 * Test log line clamping
 * @param {*testing.T} t - Testing framework instance
 * @description
 * - Non-positive values fall back to the default
 * - Values above the maximum are capped
 */
func TestClampLogLines(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{0, DefaultLogLines},
		{-5, DefaultLogLines},
		{1, 1},
		{500, 500},
		{MaxLogLines, MaxLogLines},
		{MaxLogLines + 1, MaxLogLines},
	}
	for _, tc := range cases {
		if got := ClampLogLines(tc.in); got != tc.want {
			t.Errorf("ClampLogLines(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

/**
 * Test systemctl show property parsing
 * @param {*testing.T} t - Testing framework instance
 */
func TestParseProperties(t *testing.T) {
	output := "ActiveState=active\nMainPID=1234\nRestart=on-failure\nActiveEnterTimestamp=\n"
	props := parseProperties(output)

	if props["ActiveState"] != "active" {
		t.Errorf("ActiveState = '%s'", props["ActiveState"])
	}
	if props["MainPID"] != "1234" {
		t.Errorf("MainPID = '%s'", props["MainPID"])
	}
	if props["Restart"] != "on-failure" {
		t.Errorf("Restart = '%s'", props["Restart"])
	}
}

/**
 * Test uptime derivation from ActiveEnterTimestamp
 * @param {*testing.T} t - Testing framework instance
 * @description
 * - Empty or unparseable timestamps degrade to 0, never an error
 */
func TestUptimeFromTimestamp(t *testing.T) {
	if got := uptimeFromTimestamp(""); got != 0 {
		t.Errorf("Empty timestamp should give 0, got %d", got)
	}
	if got := uptimeFromTimestamp("garbage"); got != 0 {
		t.Errorf("Unparseable timestamp should give 0, got %d", got)
	}

	stamp := time.Now().UTC().Add(-2 * time.Hour).Format("Mon 2006-01-02 15:04:05 MST")
	got := uptimeFromTimestamp(stamp)
	if got < 7000 || got > 7400 {
		t.Errorf("Expected roughly 7200 seconds of uptime, got %d", got)
	}
}
