package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a SQL injection pattern detected in
// user-supplied text.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if a SQL injection pattern was detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Input       string // The text that was checked
}

// CheckQuestionForInjection uses libinjection to detect SQL injection
// payloads in a natural-language question before it is embedded into a
// model prompt. A hit is advisory: the caller logs it and continues,
// relying on statement validation as the hard gate.
//
// Returns nil when no injection pattern is detected.
func CheckQuestionForInjection(question string) *InjectionCheckResult {
	isSQLi, fingerprint := libinjection.IsSQLi(question)
	if !isSQLi {
		return nil
	}

	return &InjectionCheckResult{
		IsSQLi:      true,
		Fingerprint: string(fingerprint),
		Input:       question,
	}
}
