package main

import (
	"strings"
	"syscall"
	"testing"
)

func TestWrapDialError(t *testing.T) {
	err := wrapDialError(syscall.ENOENT, "/tmp/gridflowd.sock")
	if !strings.Contains(err.Error(), "gridflow start") {
		t.Errorf("missing start hint: %v", err)
	}

	err = wrapDialError(syscall.ECONNREFUSED, "/tmp/gridflowd.sock")
	if !strings.Contains(err.Error(), "refused") {
		t.Errorf("missing refused detail: %v", err)
	}
}

func TestSocketPathPrefersFlag(t *testing.T) {
	socket := "/tmp/custom.sock"
	var configFlag string
	ctx := newCommandContext(&socket, &configFlag)
	if got := ctx.socketPath(); got != socket {
		t.Errorf("socketPath = %q, want %q", got, socket)
	}
}

func TestShouldSkipConfigForConfigCommands(t *testing.T) {
	root := newRootCommand()
	configCmd, _, err := root.Find([]string{"config", "init"})
	if err != nil {
		t.Fatalf("find config init: %v", err)
	}
	if !shouldSkipConfig(configCmd) {
		t.Error("config init should skip config loading")
	}

	statusCmd, _, err := root.Find([]string{"status"})
	if err != nil {
		t.Fatalf("find status: %v", err)
	}
	if shouldSkipConfig(statusCmd) {
		t.Error("status should not skip config loading")
	}
}

func TestParseUnitID(t *testing.T) {
	if _, err := parseUnitID("0"); err == nil {
		t.Error("expected error for zero id")
	}
	if _, err := parseUnitID("abc"); err == nil {
		t.Error("expected error for non-numeric id")
	}
	id, err := parseUnitID("12")
	if err != nil || id != 12 {
		t.Errorf("parseUnitID(12) = %d, %v", id, err)
	}
}
