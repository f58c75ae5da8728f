package verdict

import "strings"

// Agent names one of the three analysis perspectives.
type Agent string

const (
	AgentAuditor    Agent = "auditor"
	AgentStrategist Agent = "strategist"
	AgentCreative   Agent = "creative"
)

// Status is the health grade an agent assigns. The contract is fixed:
// CRITICAL corresponds to a stop/pause recommendation, WARNING to an
// optimization, OPTIMAL to no action.
type Status string

const (
	StatusOptimal  Status = "OPTIMAL"
	StatusWarning  Status = "WARNING"
	StatusCritical Status = "CRITICAL"
)

// Verdict is one agent's judgment of the account for a single analysis
// run. Verdicts are ephemeral; they are surfaced to the operator or
// consumed by the optimizer, never stored as a source of truth.
type Verdict struct {
	Agent          Agent  `json:"agent"`
	Status         Status `json:"status"`
	Thought        string `json:"thought"`
	Recommendation string `json:"recommendation"`
	Impact         string `json:"impact"`
	TargetID       string `json:"target_id,omitempty"`
}

// normalizeAgent maps loosely spelled agent names onto the known set.
func normalizeAgent(s string) Agent {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auditor", "audit", "technical":
		return AgentAuditor
	case "strategist", "strategy", "roi":
		return AgentStrategist
	case "creative", "creatives":
		return AgentCreative
	default:
		return Agent(strings.ToLower(strings.TrimSpace(s)))
	}
}

// normalizeStatus coerces a status string to the known set; anything
// unrecognized grades as WARNING rather than inventing a pass.
func normalizeStatus(s string) Status {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OPTIMAL", "OK", "GOOD", "HEALTHY":
		return StatusOptimal
	case "CRITICAL", "STOP", "PAUSE":
		return StatusCritical
	default:
		return StatusWarning
	}
}
