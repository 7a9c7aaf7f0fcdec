// Package audit provides security audit logging for SIEM consumption.
// It logs security-relevant events in structured JSON format for easy parsing
// and integration with security information and event management systems.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventInjectionFlag is logged when libinjection flags a question as an
	// injection payload. Advisory: statement validation is the hard gate.
	EventInjectionFlag SecurityEventType = "sql_injection_flag"
	// EventStatementRejected is logged when a generated statement fails
	// validation (disallowed statement class or multiple statements).
	EventStatementRejected SecurityEventType = "statement_rejected"
)

// SecurityEvent represents an auditable security event with all relevant
// context for SIEM ingestion and analysis.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	ProjectID uuid.UUID         `json:"project_id"`
	ChatID    *uuid.UUID        `json:"chat_id,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // warning, critical
}

// InjectionFlagDetails contains specifics of a flagged question.
type InjectionFlagDetails struct {
	Question    string `json:"question"`
	Fingerprint string `json:"fingerprint"` // libinjection fingerprint for pattern analysis
}

// StatementRejectedDetails contains specifics of a rejected statement.
type StatementRejectedDetails struct {
	Statement string `json:"statement"`
	Reason    string `json:"reason"`
}

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a new security auditor. The logger gets a
// "security_audit" namespace for easy filtering in SIEM systems.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogInjectionFlag records a question that libinjection classified as an
// injection payload. Logged at WARN level: the question still proceeds
// through the pipeline, where statement validation is enforced.
func (a *SecurityAuditor) LogInjectionFlag(projectID uuid.UUID, chatID *uuid.UUID, details InjectionFlagDetails) {
	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventInjectionFlag,
		ProjectID: projectID,
		ChatID:    chatID,
		Details:   details,
		Severity:  "warning",
	}

	// Marshaling known types should never fail.
	eventJSON, _ := json.Marshal(event)

	a.logger.Warn("question flagged as SQL injection payload",
		zap.String("event_json", string(eventJSON)),
		zap.String("project_id", projectID.String()),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("severity", "warning"),
	)
}

// LogStatementRejected records a generated statement that failed validation.
// Logged at ERROR level for immediate alerting: the model produced a
// statement outside the allowed classes.
func (a *SecurityAuditor) LogStatementRejected(projectID uuid.UUID, chatID *uuid.UUID, details StatementRejectedDetails) {
	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventStatementRejected,
		ProjectID: projectID,
		ChatID:    chatID,
		Details:   details,
		Severity:  "critical",
	}

	eventJSON, _ := json.Marshal(event)

	a.logger.Error("generated statement rejected",
		zap.String("event_json", string(eventJSON)),
		zap.String("project_id", projectID.String()),
		zap.String("reason", details.Reason),
		zap.String("severity", "critical"),
	)
}
