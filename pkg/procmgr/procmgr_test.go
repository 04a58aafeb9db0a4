package procmgr

import (
	"context"
	"testing"

	"github.com/cuemby/conclave/pkg/types"
)

func TestFakeRecordsCalls(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	key := types.ProcessKey{Application: "app", Process: "proc"}

	if _, err := f.CheckAddress(ctx, "host-a"); err != nil {
		t.Fatalf("CheckAddress: %v", err)
	}
	if err := f.IsolateAddresses(ctx, "host-a", []string{"host-b"}); err != nil {
		t.Fatalf("IsolateAddresses: %v", err)
	}
	if err := f.StartProcess(ctx, "host-a", key); err != nil {
		t.Fatalf("StartProcess: %v", err)
	}
	if err := f.StopProcess(ctx, "host-a", key); err != nil {
		t.Fatalf("StopProcess: %v", err)
	}
	if err := f.RestartProcess(ctx, "host-a", key); err != nil {
		t.Fatalf("RestartProcess: %v", err)
	}
	if err := f.Shutdown(ctx, "host-a"); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if len(f.Checked) != 1 || f.Checked[0] != "host-a" {
		t.Errorf("Checked = %v", f.Checked)
	}
	if len(f.Isolated["host-a"]) != 1 {
		t.Errorf("Isolated = %v", f.Isolated)
	}
	if len(f.Started) != 1 || f.Started[0] != key {
		t.Errorf("Started = %v", f.Started)
	}
	if len(f.Stopped) != 1 || len(f.Restarted) != 1 {
		t.Errorf("Stopped/Restarted = %v / %v", f.Stopped, f.Restarted)
	}
	if len(f.ShutDown) != 1 {
		t.Errorf("ShutDown = %v", f.ShutDown)
	}
}

func TestFakeReturnsConfiguredError(t *testing.T) {
	f := NewFake()
	f.Err = ErrUnreachable

	if _, err := f.CheckAddress(context.Background(), "host-a"); err != ErrUnreachable {
		t.Fatalf("CheckAddress err = %v, want %v", err, ErrUnreachable)
	}
}

func TestFakeCheckReplyPerAddress(t *testing.T) {
	f := NewFake()
	key := types.ProcessKey{Application: "app", Process: "proc"}
	f.CheckReply["host-a"] = CheckResult{
		State:     types.HostRunning,
		Processes: []types.ProcessInfo{{Key: key}},
	}

	result, err := f.CheckAddress(context.Background(), "host-a")
	if err != nil {
		t.Fatalf("CheckAddress: %v", err)
	}
	if result.State != types.HostRunning {
		t.Fatalf("CheckAddress state = %v, want RUNNING", result.State)
	}
	if len(result.Processes) != 1 || result.Processes[0].Key != key {
		t.Fatalf("CheckAddress reply = %v", result.Processes)
	}
}

func TestFakeCheckReplyDefaultsToRunning(t *testing.T) {
	f := NewFake()

	result, err := f.CheckAddress(context.Background(), "host-z")
	if err != nil {
		t.Fatalf("CheckAddress: %v", err)
	}
	if result.State != types.HostRunning {
		t.Fatalf("CheckAddress default state = %v, want RUNNING", result.State)
	}
	if result.Processes != nil {
		t.Fatalf("CheckAddress default processes = %v, want nil", result.Processes)
	}
}
