package registry

import "mediagen/internal/domain"

// Observers fans a change out to several observers in order.
type Observers []domain.JobObserver

// JobChanged implements domain.JobObserver.
func (o Observers) JobChanged(job domain.Job) {
	for _, obs := range o {
		if obs != nil {
			obs.JobChanged(job)
		}
	}
}
