// Package models defines the core entities of CheckPulse: tasks, results,
// agents, and the frames exchanged with remote agents over WebSocket.
package models

// CheckType identifies what kind of diagnostic a task performs.
type CheckType string

const (
	CheckHTTP       CheckType = "http"
	CheckPing       CheckType = "ping"
	CheckTCP        CheckType = "tcp"
	CheckTraceroute CheckType = "traceroute"
	CheckDNS        CheckType = "dns"

	// CheckFull is a composite request that fans out into one task per
	// concrete check type. A full task itself is never executed; it only
	// anchors the group.
	CheckFull CheckType = "full"
)

// Valid reports whether t is a known check type.
func (t CheckType) Valid() bool {
	switch t {
	case CheckHTTP, CheckPing, CheckTCP, CheckTraceroute, CheckDNS, CheckFull:
		return true
	}
	return false
}

// FanoutTypes returns the concrete check types a full check expands into,
// in dispatch order.
func FanoutTypes() []CheckType {
	return []CheckType{CheckPing, CheckHTTP, CheckTCP, CheckTraceroute, CheckDNS}
}
