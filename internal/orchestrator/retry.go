package orchestrator

// #region constants

const maxRetries = 1 // one regeneration = 2 total attempts

// #endregion

// #region engine

// RetryEngine decides whether a reply is regenerated and with which nudge.
type RetryEngine struct {
	enabled bool
}

// NewRetryEngine creates a retry engine. A disabled engine never retries.
func NewRetryEngine(enabled bool) *RetryEngine {
	return &RetryEngine{enabled: enabled}
}

// #endregion

// #region should-retry

// ShouldRetry returns whether to regenerate and the corrective nudge to add.
// attempts contains all attempts so far, including the one just evaluated.
func (r *RetryEngine) ShouldRetry(attempts []Attempt) (bool, string) {
	if r == nil || !r.enabled || len(attempts) == 0 {
		return false, ""
	}
	if len(attempts) > maxRetries {
		return false, ""
	}

	latest := attempts[len(attempts)-1]
	if !latest.Evaluation.ShouldRetry {
		return false, ""
	}

	nudge := CorrectiveNudge(latest.Evaluation.Violations)
	if nudge == "" {
		return false, ""
	}
	return true, nudge
}

// BestAttempt picks the index of the attempt to keep: the one with the fewest
// violations, preferring later attempts on ties. Empty replies rank last.
func BestAttempt(attempts []Attempt) int {
	best := -1
	for i, a := range attempts {
		if best < 0 || attemptCost(a) <= attemptCost(attempts[best]) {
			best = i
		}
	}
	return best
}

func attemptCost(a Attempt) int {
	for _, v := range a.Evaluation.Violations {
		if v == ViolationEmpty {
			return 1 << 10
		}
	}
	return len(a.Evaluation.Violations)
}

// #endregion
