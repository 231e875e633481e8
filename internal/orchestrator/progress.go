package orchestrator

import (
	"math"
	"time"

	"mediagen/internal/domain"
)

// Estimator approximates progress for providers that report none:
// cap * (1 - e^(-t/tau)). It approaches Cap but never reaches it, so only a
// finished job shows 100.
type Estimator struct {
	Cap int
	Tau map[domain.JobKind]time.Duration
}

// DefaultEstimator matches typical Imagen and Veo turnaround.
func DefaultEstimator() Estimator {
	return Estimator{
		Cap: 90,
		Tau: map[domain.JobKind]time.Duration{
			domain.JobKindImage: 15 * time.Second,
			domain.JobKindVideo: 90 * time.Second,
		},
	}
}

// Estimate returns the progress percentage after elapsed.
func (e Estimator) Estimate(kind domain.JobKind, elapsed time.Duration) int {
	if elapsed <= 0 || e.Cap <= 0 {
		return 0
	}
	limit := min(e.Cap, 99)
	tau := e.Tau[kind]
	if tau <= 0 {
		tau = time.Minute
	}
	v := float64(limit) * (1 - math.Exp(-elapsed.Seconds()/tau.Seconds()))
	return int(math.Floor(v))
}

// merge folds a provider hint into the estimate. Hints never reach 100 while
// the provider still reports pending.
func (e Estimator) merge(estimate, hint int) int {
	if hint < 0 {
		return estimate
	}
	return max(estimate, min(hint, 99))
}
