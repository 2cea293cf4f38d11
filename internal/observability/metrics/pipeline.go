package metrics

import "time"

// RunFinished records the outcome of a run: "success", "partial" or "aborted".
func RunFinished(result string) {
	if !enabled {
		return
	}
	runsTotal.WithLabelValues(result).Inc()
}

// PipelineFinished records how long a chain pipeline took to reach state.
func PipelineFinished(chain, state string, d time.Duration) {
	if !enabled {
		return
	}
	pipelineDuration.WithLabelValues(chain, state).Observe(d.Seconds())
}

// Deployment records a deployment outcome and the attempts it took.
func Deployment(chain, status string, attempts int) {
	if !enabled {
		return
	}
	deploymentsTotal.WithLabelValues(chain, status).Inc()
	if attempts > 0 {
		deployAttemptsHist.WithLabelValues(chain).Observe(float64(attempts))
	}
}

// Verification records the terminal state of a verification task.
func Verification(chain, explorer, result string) {
	if !enabled {
		return
	}
	verificationsTotal.WithLabelValues(chain, explorer, result).Inc()
}

// VerificationAttempt records one explorer submission.
func VerificationAttempt(explorer, outcome string) {
	if !enabled {
		return
	}
	verificationAttemptsTotal.WithLabelValues(explorer, outcome).Inc()
}
