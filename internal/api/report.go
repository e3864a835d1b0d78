package api

import (
	"time"

	"examwatch/pkg/models"
)

// AgentReport is the combined telemetry payload the exam agent posts once per
// polling interval: one section per detector, each optional. The API splits
// it into one signal envelope per present section so per-kind slots and
// alerting behave exactly as with single-envelope delivery.
type AgentReport struct {
	Timestamp time.Time         `json:"timestamp"`
	Platform  string            `json:"platform,omitempty"`
	VM        *VMSection        `json:"vm_data,omitempty"`
	Remote    *DetectionSection `json:"remote_data,omitempty"`
	Screen    *ScreenSection    `json:"screen_data,omitempty"`
	Behavior  *BehaviorSection  `json:"behavior_data,omitempty"`
	Network   *DetectionSection `json:"network_data,omitempty"`
}

// VMSection reports virtualization fingerprinting results.
type VMSection struct {
	IsVM       bool              `json:"is_vm"`
	Confidence float64           `json:"confidence"`
	Indicators []string          `json:"indicators,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// DetectionSection is the common shape for remote-access and network probes.
type DetectionSection struct {
	Detected  bool              `json:"detected"`
	RiskScore float64           `json:"risk_score"`
	Findings  []string          `json:"findings,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ScreenSection reports screen-sharing and monitor enumeration results.
type ScreenSection struct {
	SharingRisk bool     `json:"screen_sharing_risk"`
	RiskScore   float64  `json:"risk_score"`
	Details     []string `json:"details,omitempty"`
}

// BehaviorSection reports input-pattern sampling results.
type BehaviorSection struct {
	Anomaly      bool     `json:"behavior_anomaly"`
	AnomalyScore float64  `json:"anomaly_score"`
	Findings     []string `json:"findings,omitempty"`
}

// Envelopes expands the report into per-detector signal envelopes.
func (r *AgentReport) Envelopes(sessionID string) []*models.SignalEnvelope {
	observed := r.Timestamp
	if observed.IsZero() {
		observed = time.Now()
	}

	base := func(kind models.DetectorKind) *models.SignalEnvelope {
		env := &models.SignalEnvelope{
			SessionID:    sessionID,
			DetectorKind: kind,
			ObservedAt:   observed,
		}
		if r.Platform != "" {
			env.Metadata = map[string]string{"platform": r.Platform}
		}
		return env
	}

	var out []*models.SignalEnvelope

	if r.VM != nil {
		env := base(models.KindVM)
		env.Detected = r.VM.IsVM
		env.RawScore = r.VM.Confidence
		env.Evidence = r.VM.Indicators
		for k, v := range r.VM.Metadata {
			if env.Metadata == nil {
				env.Metadata = make(map[string]string)
			}
			env.Metadata[k] = v
		}
		out = append(out, env)
	}
	if r.Remote != nil {
		env := base(models.KindRemoteAccess)
		env.Detected = r.Remote.Detected
		env.RawScore = r.Remote.RiskScore
		env.Evidence = r.Remote.Findings
		out = append(out, env)
	}
	if r.Screen != nil {
		env := base(models.KindScreenShare)
		env.Detected = r.Screen.SharingRisk
		env.RawScore = r.Screen.RiskScore
		// Older agents report only the boolean for screen sharing.
		if env.Detected && env.RawScore == 0 {
			env.RawScore = 100
		}
		env.Evidence = r.Screen.Details
		out = append(out, env)
	}
	if r.Behavior != nil {
		env := base(models.KindBehavior)
		env.Detected = r.Behavior.Anomaly
		env.RawScore = r.Behavior.AnomalyScore
		env.Evidence = r.Behavior.Findings
		out = append(out, env)
	}
	if r.Network != nil {
		env := base(models.KindNetwork)
		env.Detected = r.Network.Detected
		env.RawScore = r.Network.RiskScore
		env.Evidence = r.Network.Findings
		out = append(out, env)
	}

	return out
}
