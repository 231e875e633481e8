package handlers

import (
	"net/http"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	counts := a.Jobs.Counts()
	jobs := make(map[string]int, len(counts))
	for status, n := range counts {
		jobs[string(status)] = n
	}
	a.json(w, http.StatusOK, map[string]any{
		"status": "ok",
		"active": a.Jobs.Active(),
		"jobs":   jobs,
	})
}
