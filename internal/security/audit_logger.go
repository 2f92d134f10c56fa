// Package security records audit events for tool calls and REST case
// requests. Arguments and credentials are hashed before they are logged.
package security

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// AuditLogger logs security-relevant events with hashed identifiers.
// A nil or disabled logger records nothing.
type AuditLogger struct {
	enabled bool
}

func NewAuditLogger(enabled bool) *AuditLogger {
	return &AuditLogger{enabled: enabled}
}

// LogToolCall records one tool invocation.
func (a *AuditLogger) LogToolCall(tool string, args map[string]any, d time.Duration, err error) {
	if a == nil || !a.enabled {
		return
	}
	evt := log.Info().
		Str("event", "tool_audit").
		Str("tool", tool).
		Str("args_hash", HashArgs(args)).
		Int64("execution_time_ms", d.Milliseconds()).
		Bool("success", err == nil)
	if err != nil {
		evt = evt.Str("error", err.Error())
	}
	evt.Msg("audit")
}

// LogCaseRequest records a REST case operation.
func (a *AuditLogger) LogCaseRequest(operation, caseID, apiKey string, status int, d time.Duration) {
	if a == nil || !a.enabled {
		return
	}
	evt := log.Info().
		Str("event", "case_audit").
		Str("operation", operation).
		Int("status", status).
		Int64("execution_time_ms", d.Milliseconds())
	if caseID != "" {
		evt = evt.Str("case_id", caseID)
	}
	if apiKey != "" {
		evt = evt.Str("api_key_hash", hashStr(apiKey)[:16])
	}
	evt.Msg("audit")
}

// HashArgs returns a short stable digest of tool arguments. Map keys are
// encoded in sorted order, so equal arguments hash equally.
func HashArgs(args map[string]any) string {
	b, err := json.Marshal(args)
	if err != nil {
		return "unhashable"
	}
	return hashStr(string(b))[:16]
}

func hashStr(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h)
}
