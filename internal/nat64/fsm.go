package nat64

// tcpFlagClass buckets the flag combination a TCP segment carries into
// the handful of cases the transition table distinguishes. RST takes
// priority over SYN, which takes priority over FIN, mirroring common
// stateful-firewall practice for segments that (illegally) carry more
// than one of these bits.
type tcpFlagClass uint8

const (
	flagOther tcpFlagClass = iota
	flagSYN
	flagFIN
	flagRST
)

func classifyFlags(f TCPFlags) tcpFlagClass {
	switch {
	case f.RST:
		return flagRST
	case f.SYN:
		return flagSYN
	case f.FIN:
		return flagFIN
	default:
		return flagOther
	}
}

type tcpEvent struct {
	state SessionState
	dir   Direction
	flag  tcpFlagClass
}

type tcpTransition struct {
	newState SessionState
	renewTo  *ExpiryClass // nil: leave the current deadline untouched
}

func renewTo(c ExpiryClass) *ExpiryClass { return &c }

// TCPFSMResult is the outcome of applying one segment to the FSM.
type TCPFSMResult struct {
	OldState SessionState
	NewState SessionState
	RenewTo  *ExpiryClass
	Changed  bool
}

// fsmTable is the (state, direction, flags) -> (state, expiry class)
// transition table. Unlisted events leave state and deadline untouched
// (treated as a protocol no-op, e.g. a retransmitted segment that
// doesn't match any listed row).
var fsmTable = map[tcpEvent]tcpTransition{
	// CLOSED: v4-ingress traffic keeps a CLOSED session parked at the
	// incoming-SYN timeout. Manager never creates a session in this
	// state: its provisional sessions for an unsolicited v4 SYN
	// (RFC 6146 §3.5.2.2 simultaneous open) start in V4_SYN_RCV below.
	{StateClosed, DirFromV4, flagSYN}:  {StateClosed, renewTo(ClassTCPIncomingSyn)},
	{StateClosed, DirFromV4, flagOther}: {StateClosed, renewTo(ClassTCPIncomingSyn)},
	{StateClosed, DirFromV4, flagFIN}:  {StateClosed, renewTo(ClassTCPIncomingSyn)},
	{StateClosed, DirFromV4, flagRST}:  {StateClosed, renewTo(ClassTCPIncomingSyn)},
	{StateClosed, DirFromV6, flagSYN}:  {StateV6SynRcv, renewTo(ClassTCPTrans)},

	// V6_SYN_RCV: v6 side opened, awaiting the v4 side's SYN-ACK.
	{StateV6SynRcv, DirFromV6, flagSYN}: {StateV6SynRcv, renewTo(ClassTCPTrans)},
	{StateV6SynRcv, DirFromV4, flagSYN}: {StateEstablished, renewTo(ClassTCPEst)},

	// V4_SYN_RCV: the provisional-session counterpart, v4 side opened
	// first and is awaiting the v6 side's SYN.
	{StateV4SynRcv, DirFromV4, flagSYN}: {StateV4SynRcv, renewTo(ClassTCPIncomingSyn)},
	{StateV4SynRcv, DirFromV6, flagSYN}: {StateEstablished, renewTo(ClassTCPEst)},

	// ESTABLISHED: steady state. A FIN from either side starts the
	// close sequence without renewing the deadline; RST demotes to
	// TRANS so the connection still gets cleaned up promptly but
	// without being mistaken for a clean half-close.
	{StateEstablished, DirFromV6, flagFIN}:   {StateV6FinRcv, nil},
	{StateEstablished, DirFromV4, flagFIN}:   {StateV4FinRcv, nil},
	{StateEstablished, DirFromV6, flagRST}:   {StateTransitory, renewTo(ClassTCPTrans)},
	{StateEstablished, DirFromV4, flagRST}:   {StateTransitory, renewTo(ClassTCPTrans)},
	{StateEstablished, DirFromV6, flagSYN}:   {StateEstablished, renewTo(ClassTCPEst)},
	{StateEstablished, DirFromV4, flagSYN}:   {StateEstablished, renewTo(ClassTCPEst)},
	{StateEstablished, DirFromV6, flagOther}: {StateEstablished, renewTo(ClassTCPEst)},
	{StateEstablished, DirFromV4, flagOther}: {StateEstablished, renewTo(ClassTCPEst)},

	// V6_FIN_RCV: v6 side sent FIN, waiting on v4 side's FIN to reach
	// full close; any other traffic from v4 keeps the session alive at
	// the EST timeout since the v4 side hasn't agreed to close yet.
	{StateV6FinRcv, DirFromV4, flagFIN}:   {StateV6FinV4Fin, renewTo(ClassTCPTrans)},
	{StateV6FinRcv, DirFromV4, flagOther}: {StateV6FinRcv, renewTo(ClassTCPEst)},
	{StateV6FinRcv, DirFromV4, flagSYN}:   {StateV6FinRcv, renewTo(ClassTCPEst)},
	{StateV6FinRcv, DirFromV4, flagRST}:   {StateTransitory, renewTo(ClassTCPTrans)},

	// V4_FIN_RCV: symmetric to V6_FIN_RCV.
	{StateV4FinRcv, DirFromV6, flagFIN}:   {StateV6FinV4Fin, renewTo(ClassTCPTrans)},
	{StateV4FinRcv, DirFromV6, flagOther}: {StateV4FinRcv, renewTo(ClassTCPEst)},
	{StateV4FinRcv, DirFromV6, flagSYN}:   {StateV4FinRcv, renewTo(ClassTCPEst)},
	{StateV4FinRcv, DirFromV6, flagRST}:   {StateTransitory, renewTo(ClassTCPTrans)},

	// TRANS: demoted from EST by the expiry sweep when an idle
	// ESTABLISHED session is about to time out, or by an RST above. Any
	// non-RST traffic promotes it straight back to ESTABLISHED.
	{StateTransitory, DirFromV6, flagOther}: {StateEstablished, renewTo(ClassTCPEst)},
	{StateTransitory, DirFromV4, flagOther}: {StateEstablished, renewTo(ClassTCPEst)},
	{StateTransitory, DirFromV6, flagSYN}:   {StateEstablished, renewTo(ClassTCPEst)},
	{StateTransitory, DirFromV4, flagSYN}:   {StateEstablished, renewTo(ClassTCPEst)},
	{StateTransitory, DirFromV6, flagFIN}:   {StateEstablished, renewTo(ClassTCPEst)},
	{StateTransitory, DirFromV4, flagFIN}:   {StateEstablished, renewTo(ClassTCPEst)},

	// V6_FIN_V4_FIN: both sides closed. Terminal; reaped by the
	// expiry sweep once its TCP_TRANS deadline passes, not by any
	// further FSM transition.
}

// ApplyTCPEvent applies one observed segment to the FSM and returns the
// resulting state and, if the transition calls for it, the expiry class
// the session should be renewed into. A nil RenewTo means the caller
// must leave the session's current deadline untouched.
func ApplyTCPEvent(state SessionState, dir Direction, flags TCPFlags) TCPFSMResult {
	t, ok := fsmTable[tcpEvent{state, dir, classifyFlags(flags)}]
	if !ok {
		return TCPFSMResult{OldState: state, NewState: state, Changed: false}
	}
	return TCPFSMResult{
		OldState: state,
		NewState: t.newState,
		RenewTo:  t.renewTo,
		Changed:  t.newState != state,
	}
}
