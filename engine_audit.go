package storeguard

import (
	"context"
	"time"

	"github.com/quanvm/storeguard/internal/audit"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailed           = "login_failed"
	auditEventCSRFRejected          = "csrf_rejected"
	auditEventRateLimited           = "rate_limit_triggered"
	auditEventCaptchaRequired       = "captcha_required"
	auditEventCaptchaFailed         = "captcha_failed"
	auditEventCaptchaUnavailable    = "captcha_unavailable"
	auditEventSecondFactorRequired  = "2fa_required"
	auditEventSecondFactorFailed    = "2fa_failed"
	auditEventPasswordExpired       = "password_expired"
	auditEventAccountLocked         = "account_lock"
	auditEventAccountCreated        = "account_created"
	auditEventAccountUnlocked       = "account_unlock"
	auditEventPasswordResetRequest  = "password_reset_request"
	auditEventPasswordResetComplete = "password_reset"
	auditEventTOTPEnabled           = "2fa_enable"
	auditEventTOTPDisabled          = "2fa_disable"
)

// auditSeverity grades an action the way the storefront's monitoring
// expects: lockouts and resets page someone, plain failures only warn.
func auditSeverity(action string) audit.Severity {
	switch action {
	case auditEventAccountLocked, auditEventPasswordResetComplete,
		auditEventTOTPEnabled, auditEventTOTPDisabled:
		return audit.SeverityCritical
	case auditEventLoginFailed, auditEventCSRFRejected, auditEventRateLimited,
		auditEventCaptchaFailed, auditEventSecondFactorFailed:
		return audit.SeverityWarning
	default:
		return audit.SeverityInfo
	}
}

func (e *Engine) emitAudit(
	ctx context.Context,
	action string,
	success bool,
	accountID string,
	description string,
	metadataBuilder func() map[string]string,
) {
	e.emitAuditSeverity(ctx, action, auditSeverity(action), success, accountID, description, metadataBuilder)
}

func (e *Engine) emitAuditSeverity(
	ctx context.Context,
	action string,
	severity audit.Severity,
	success bool,
	accountID string,
	description string,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	e.audit.Emit(ctx, audit.Event{
		Timestamp:   time.Now().UTC(),
		Action:      action,
		AccountID:   accountID,
		Success:     success,
		Severity:    severity,
		IP:          clientIPFromContext(ctx),
		UserAgent:   userAgentFromContext(ctx),
		Description: description,
		Metadata:    metadata,
	})
}
