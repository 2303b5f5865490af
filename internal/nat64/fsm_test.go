package nat64

import "testing"

// TestTCPFSMHappyPath checks that 6->syn, 4->syn, 6->data, 6->fin,
// 4->fin walks CLOSED -> V6_SYN_RCV -> ESTABLISHED -> ESTABLISHED ->
// V6_FIN_RCV -> V6_FIN_V4_FIN, ending with a TCP_TRANS-class deadline.
func TestTCPFSMHappyPath(t *testing.T) {
	state := StateClosed

	steps := []struct {
		dir       Direction
		flags     TCPFlags
		wantState SessionState
		wantClass *ExpiryClass
	}{
		{DirFromV6, TCPFlags{SYN: true}, StateV6SynRcv, renewTo(ClassTCPTrans)},
		{DirFromV4, TCPFlags{SYN: true}, StateEstablished, renewTo(ClassTCPEst)},
		{DirFromV6, TCPFlags{}, StateEstablished, renewTo(ClassTCPEst)},
		{DirFromV6, TCPFlags{FIN: true}, StateV6FinRcv, nil},
		{DirFromV4, TCPFlags{FIN: true}, StateV6FinV4Fin, renewTo(ClassTCPTrans)},
	}

	for i, step := range steps {
		res := ApplyTCPEvent(state, step.dir, step.flags)
		if res.NewState != step.wantState {
			t.Fatalf("step %d: got state %v, want %v", i, res.NewState, step.wantState)
		}
		gotClass := res.RenewTo
		switch {
		case step.wantClass == nil && gotClass != nil:
			t.Fatalf("step %d: expected no renew, got renew to %v", i, *gotClass)
		case step.wantClass != nil && gotClass == nil:
			t.Fatalf("step %d: expected renew to %v, got none", i, *step.wantClass)
		case step.wantClass != nil && gotClass != nil && *gotClass != *step.wantClass:
			t.Fatalf("step %d: expected renew to %v, got %v", i, *step.wantClass, *gotClass)
		}
		state = res.NewState
	}

	if state != StateV6FinV4Fin {
		t.Fatalf("expected final state V6_FIN_V4_FIN, got %v", state)
	}
}

func TestTCPFSMRSTDemotesToTrans(t *testing.T) {
	res := ApplyTCPEvent(StateEstablished, DirFromV6, TCPFlags{RST: true})
	if res.NewState != StateTransitory {
		t.Fatalf("expected RST to demote to TRANS, got %v", res.NewState)
	}
	if res.RenewTo == nil || *res.RenewTo != ClassTCPTrans {
		t.Fatalf("expected renew to TCP_TRANS, got %v", res.RenewTo)
	}
}

func TestTCPFSMTransPromotesBackToEstablished(t *testing.T) {
	res := ApplyTCPEvent(StateTransitory, DirFromV4, TCPFlags{})
	if res.NewState != StateEstablished {
		t.Fatalf("expected data traffic to promote TRANS back to ESTABLISHED, got %v", res.NewState)
	}
}

func TestTCPFSMUnlistedEventIsNoOp(t *testing.T) {
	res := ApplyTCPEvent(StateV6FinV4Fin, DirFromV6, TCPFlags{SYN: true})
	if res.Changed {
		t.Fatalf("expected terminal state to ignore further events, got %v", res.NewState)
	}
	if res.RenewTo != nil {
		t.Fatalf("expected no renew from a terminal-state no-op, got %v", res.RenewTo)
	}
}
