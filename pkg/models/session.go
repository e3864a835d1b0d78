package models

import "time"

// RiskLevel classifies a fused score into one of four ordered tiers.
type RiskLevel string

const (
	LevelLow      RiskLevel = "LOW"
	LevelMedium   RiskLevel = "MEDIUM"
	LevelHigh     RiskLevel = "HIGH"
	LevelCritical RiskLevel = "CRITICAL"
)

var levelRank = map[RiskLevel]int{
	LevelLow:      0,
	LevelMedium:   1,
	LevelHigh:     2,
	LevelCritical: 3,
}

// Rank returns the level's position in the LOW..CRITICAL ordering.
func (l RiskLevel) Rank() int {
	return levelRank[l]
}

// Above reports whether l is a more severe level than other.
func (l RiskLevel) Above(other RiskLevel) bool {
	return l.Rank() > other.Rank()
}

// SessionStatus is the proctoring lifecycle state of a session.
type SessionStatus string

const (
	StatusOpen          SessionStatus = "OPEN"
	StatusInvestigating SessionStatus = "INVESTIGATING"
	StatusResolved      SessionStatus = "RESOLVED"
)

// ValidStatus reports whether s is a known session status.
func ValidStatus(s SessionStatus) bool {
	switch s {
	case StatusOpen, StatusInvestigating, StatusResolved:
		return true
	}
	return false
}

// ActionsForLevel returns the recommended proctor actions for a risk level.
func ActionsForLevel(level RiskLevel) []string {
	switch level {
	case LevelCritical:
		return []string{"TERMINATE_SESSION", "FLAG_ADMIN", "CAPTURE_EVIDENCE"}
	case LevelHigh:
		return []string{"WARN_USER", "ENABLE_STRICT_LOGGING", "DISABLE_CLIPBOARD"}
	case LevelMedium:
		return []string{"LOG_EVENT", "INCREASE_SAMPLING_RATE"}
	default:
		return []string{"CONTINUE_MONITORING"}
	}
}

// SessionSnapshot is the immutable read surface for one session. Downstream
// consumers never see session-store internals.
type SessionSnapshot struct {
	SessionID      string        `json:"session_id"`
	CreatedAt      time.Time     `json:"created_at"`
	LastSeenAt     time.Time     `json:"last_seen_at"`
	FusedScore     int           `json:"fused_score"`
	RiskLevel      RiskLevel     `json:"risk_level"`
	ActiveTriggers []string      `json:"active_triggers,omitempty"`
	Actions        []string      `json:"actions,omitempty"`
	Status         SessionStatus `json:"status"`
}

// AlertEvent is emitted exactly once per risk-level transition.
type AlertEvent struct {
	SessionID      string    `json:"session_id"`
	PreviousLevel  RiskLevel `json:"previous_level"`
	NewLevel       RiskLevel `json:"new_level"`
	FusedScore     int       `json:"fused_score"`
	ActiveTriggers []string  `json:"active_triggers,omitempty"`
	Actions        []string  `json:"actions,omitempty"`
	Informational  bool      `json:"informational,omitempty"`
	At             time.Time `json:"at"`
}
