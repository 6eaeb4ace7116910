package models

import (
	"encoding/json"
	"testing"
)

func TestZeroStateIsActive(t *testing.T) {
	var state ThreadState
	if state.Status() != ThreadActive {
		t.Errorf("zero state status = %s, want %s", state.Status(), ThreadActive)
	}
	if state.Suspended() || state.Archived() {
		t.Error("zero state must be neither suspended nor archived")
	}
}

func TestSuspendedStateRequiresApproval(t *testing.T) {
	state := SuspendedState("")
	if state.Suspended() {
		t.Error("empty approval id must not produce a suspended state")
	}

	state = SuspendedState("appr-1")
	if !state.Suspended() {
		t.Error("expected suspended state")
	}
	if state.ApprovalID() != "appr-1" {
		t.Errorf("approval id = %q, want appr-1", state.ApprovalID())
	}
}

func TestStateFromStorage(t *testing.T) {
	cases := []struct {
		name       string
		status     ThreadStatus
		approvalID string
		wantErr    bool
	}{
		{"active", ThreadActive, "", false},
		{"empty status defaults active", "", "", false},
		{"suspended with approval", ThreadSuspended, "a1", false},
		{"archived", ThreadArchived, "", false},
		{"suspended without approval", ThreadSuspended, "", true},
		{"active with approval", ThreadActive, "a1", true},
		{"archived with approval", ThreadArchived, "a1", true},
		{"unknown status", "frozen", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			state, err := StateFromStorage(tc.status, tc.approvalID)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if state.ApprovalID() != tc.approvalID {
				t.Errorf("approval id = %q, want %q", state.ApprovalID(), tc.approvalID)
			}
		})
	}
}

func TestThreadStateJSONRoundTrip(t *testing.T) {
	original := SuspendedState("appr-9")
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded ThreadState
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("round trip mismatch: %+v != %+v", decoded, original)
	}
}

func TestThreadStateJSONRejectsInvalid(t *testing.T) {
	var state ThreadState
	if err := json.Unmarshal([]byte(`{"status":"suspended"}`), &state); err == nil {
		t.Error("expected error for suspended without approval")
	}
}

func TestApprovalStatusTerminal(t *testing.T) {
	if ApprovalQueued.Terminal() || ApprovalPending.Terminal() {
		t.Error("queued and pending are not terminal")
	}
	if !ApprovalApproved.Terminal() || !ApprovalRejected.Terminal() {
		t.Error("approved and rejected are terminal")
	}
}
