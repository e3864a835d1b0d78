package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DetectorKind identifies the evidence category a detector reports on.
// The set is closed: adding a kind is an engine code change, not configuration.
type DetectorKind string

const (
	KindVM           DetectorKind = "VM"
	KindRemoteAccess DetectorKind = "REMOTE_ACCESS"
	KindScreenShare  DetectorKind = "SCREEN_SHARE"
	KindBehavior     DetectorKind = "BEHAVIOR"
	KindNetwork      DetectorKind = "NETWORK"
)

// Kinds lists all detector kinds in their canonical order.
// The order is also the tie-break order when ranking triggers.
var Kinds = []DetectorKind{
	KindVM,
	KindRemoteAccess,
	KindScreenShare,
	KindBehavior,
	KindNetwork,
}

var kindRank = map[DetectorKind]int{
	KindVM:           0,
	KindRemoteAccess: 1,
	KindScreenShare:  2,
	KindBehavior:     3,
	KindNetwork:      4,
}

// Valid reports whether the kind is one of the enumerated detector kinds.
func (k DetectorKind) Valid() bool {
	_, ok := kindRank[k]
	return ok
}

// Rank returns the kind's position in the canonical order, or -1 if unknown.
func (k DetectorKind) Rank() int {
	if r, ok := kindRank[k]; ok {
		return r
	}
	return -1
}

// ParseDetectorKind normalizes a raw kind string.
func ParseDetectorKind(raw string) (DetectorKind, bool) {
	k := DetectorKind(strings.ToUpper(strings.TrimSpace(raw)))
	return k, k.Valid()
}

// SignalEnvelope is one contribution from one detector at one point in time.
type SignalEnvelope struct {
	SessionID    string            `json:"session_id"`
	DetectorKind DetectorKind      `json:"detector_kind"`
	ObservedAt   time.Time         `json:"observed_at"`
	RawScore     float64           `json:"raw_score"`
	Detected     bool              `json:"detected"`
	Evidence     []string          `json:"evidence,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// InvalidSignalError reports a malformed envelope. The envelope is rejected
// without mutating any session state.
type InvalidSignalError struct {
	Field  string
	Reason string
}

func (e *InvalidSignalError) Error() string {
	return fmt.Sprintf("invalid signal: %s: %s", e.Field, e.Reason)
}

// Validate checks the envelope against the inbound telemetry contract.
func (s *SignalEnvelope) Validate() error {
	if strings.TrimSpace(s.SessionID) == "" {
		return &InvalidSignalError{Field: "session_id", Reason: "missing"}
	}
	if !s.DetectorKind.Valid() {
		return &InvalidSignalError{Field: "detector_kind", Reason: fmt.Sprintf("unknown kind %q", string(s.DetectorKind))}
	}
	if s.RawScore < 0 || s.RawScore > 100 {
		return &InvalidSignalError{Field: "raw_score", Reason: fmt.Sprintf("%v out of range [0,100]", s.RawScore)}
	}
	return nil
}

// ParseEnvelope decodes and validates one telemetry message.
func ParseEnvelope(payload []byte) (*SignalEnvelope, error) {
	var env SignalEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode signal envelope: %w", err)
	}
	if env.ObservedAt.IsZero() {
		env.ObservedAt = time.Now()
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}
