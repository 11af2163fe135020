package storeguard

import (
	"context"
	"fmt"
	"time"
)

// advanceRisk applies one failed credential check to a risk state. The
// captcha flag is sticky: once the counter crosses the threshold it stays
// set until a full reset. Reaching the lock threshold opens a lock window
// from now; a counter already past the threshold re-locks on the next
// failure after an expired window, which is intentional — expiry removes
// the hard block, not the accumulated risk signal.
func advanceRisk(state RiskState, now time.Time, cfg RiskConfig) RiskState {
	state.FailedAttempts++
	if state.FailedAttempts >= cfg.CaptchaThreshold {
		state.CaptchaRequired = true
	}
	if state.FailedAttempts >= cfg.LockThreshold {
		until := now.Add(cfg.LockDuration)
		state.LockedUntil = &until
	}
	return state
}

// clearRisk is the success transition: counter, captcha flag, and lock all
// reset unconditionally.
func clearRisk(RiskState) RiskState {
	return RiskState{}
}

// recordLoginFailure advances the account's risk state through the store's
// atomic update and returns the post-increment state, which drives the
// graded rejection message.
func (e *Engine) recordLoginFailure(ctx context.Context, accountID string) (RiskState, error) {
	state, err := e.accounts.UpdateRiskState(ctx, accountID, func(current RiskState) RiskState {
		return advanceRisk(current, time.Now(), e.config.Risk)
	})
	if err != nil {
		return RiskState{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return state, nil
}

// resetRisk applies the success transition.
func (e *Engine) resetRisk(ctx context.Context, accountID string) error {
	if _, err := e.accounts.UpdateRiskState(ctx, accountID, clearRisk); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
