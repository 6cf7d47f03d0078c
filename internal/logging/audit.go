package logging

import (
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// AUDIT EVENTS - one structured entry per routing-relevant event
// =============================================================================

// AuditEventType names an audit event.
type AuditEventType string

const (
	AuditRouteDecided AuditEventType = "route_decided"
	AuditBackendCall  AuditEventType = "backend_call"
	AuditBackendError AuditEventType = "backend_error"
	AuditFallback     AuditEventType = "fallback"
	AuditDegraded     AuditEventType = "degraded"
	AuditToolExec     AuditEventType = "tool_exec"
	AuditTurnStart    AuditEventType = "turn_start"
	AuditTurnEnd      AuditEventType = "turn_end"
	AuditPolicyReload AuditEventType = "policy_reload"
)

// AuditLogger writes structured audit events under the "audit" logger name.
type AuditLogger struct {
	logger *zap.Logger
}

// Audit returns the audit logger. It is a no-op before Initialize.
func Audit() *AuditLogger {
	configMu.RLock()
	root := base
	configMu.RUnlock()
	if root == nil {
		return &AuditLogger{logger: zap.NewNop()}
	}
	return &AuditLogger{logger: root.Named("audit")}
}

// WithRequest binds a request/trace id to every event.
func (a *AuditLogger) WithRequest(requestID string) *AuditLogger {
	if requestID == "" {
		return a
	}
	return &AuditLogger{logger: a.logger.With(zap.String("request_id", requestID))}
}

func (a *AuditLogger) log(event AuditEventType, fields ...zap.Field) {
	a.logger.Info(string(event), append(fields, zap.String("event", string(event)))...)
}

// RouteDecided records the router's choice for a request.
func (a *AuditLogger) RouteDecided(route, backendID, model, policyVersion string) {
	a.log(AuditRouteDecided,
		zap.String("route", route),
		zap.String("backend", backendID),
		zap.String("model", model),
		zap.String("policy_version", policyVersion),
	)
}

// BackendCall records one completed backend call.
func (a *AuditLogger) BackendCall(backendID, model string, duration time.Duration, err error) {
	if err != nil {
		a.log(AuditBackendError,
			zap.String("backend", backendID),
			zap.String("model", model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return
	}
	a.log(AuditBackendCall,
		zap.String("backend", backendID),
		zap.String("model", model),
		zap.Duration("duration", duration),
	)
}

// Fallback records that the router switched to the fallback backend.
func (a *AuditLogger) Fallback(from, to string, cause error) {
	a.log(AuditFallback, zap.String("from", from), zap.String("to", to), zap.Error(cause))
}

// Degraded records that the apology text was returned.
func (a *AuditLogger) Degraded(route string, cause error) {
	a.log(AuditDegraded, zap.String("route", route), zap.Error(cause))
}

// ToolExec records one tool invocation.
func (a *AuditLogger) ToolExec(toolName string, duration time.Duration, success bool) {
	a.log(AuditToolExec,
		zap.String("tool", toolName),
		zap.Duration("duration", duration),
		zap.Bool("success", success),
	)
}

// TurnStart records the start of a conversation turn.
func (a *AuditLogger) TurnStart(conversationID string, seq int, inputLen int) {
	a.log(AuditTurnStart,
		zap.String("conversation_id", conversationID),
		zap.Int("seq", seq),
		zap.Int("input_len", inputLen),
	)
}

// TurnEnd records the end of a conversation turn.
func (a *AuditLogger) TurnEnd(conversationID string, seq int, duration time.Duration, degraded bool) {
	a.log(AuditTurnEnd,
		zap.String("conversation_id", conversationID),
		zap.Int("seq", seq),
		zap.Duration("duration", duration),
		zap.Bool("degraded", degraded),
	)
}

// PolicyReload records a policy table swap or a rejected reload.
func (a *AuditLogger) PolicyReload(path, version string, err error) {
	a.log(AuditPolicyReload, zap.String("path", path), zap.String("version", version), zap.Error(err))
}
