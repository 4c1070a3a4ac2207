package service

// HealthReport is the persistence health signal exposed on /health, the gRPC
// health service and the metrics endpoint.
type HealthReport struct {
	Healthy       bool   `json:"healthy"`
	Status        string `json:"status"`
	BreakerState  string `json:"breaker_state"`
	Backlog       int    `json:"backlog"`
	Capacity      int    `json:"capacity"`
	Dropped       int64  `json:"dropped"`
	FailedWrites  int64  `json:"failed_writes"`
	PendingWrites int64  `json:"pending_writes"`
}

const (
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"

	// backlogDegradedRatio is the outbox fill level that counts as falling
	// behind.
	backlogDegradedRatio = 0.8
)

// PersistenceHealth combines breaker state and write backlog.
type PersistenceHealth struct {
	guard   *WriteGuard
	outbox  *Outbox
	pending func() int64
}

// NewPersistenceHealth builds the health signal. pending may be nil; when set
// it reports writes queued below the outbox (the sqlite writer).
func NewPersistenceHealth(guard *WriteGuard, outbox *Outbox, pending func() int64) *PersistenceHealth {
	return &PersistenceHealth{guard: guard, outbox: outbox, pending: pending}
}

func (h *PersistenceHealth) Report() HealthReport {
	r := HealthReport{
		BreakerState: h.guard.State(),
		Backlog:      h.outbox.Backlog(),
		Capacity:     h.outbox.Capacity(),
		Dropped:      h.outbox.Dropped(),
		FailedWrites: h.guard.Failures(),
	}
	if h.pending != nil {
		r.PendingWrites = h.pending()
	}

	behind := float64(r.Backlog) >= backlogDegradedRatio*float64(r.Capacity)
	r.Healthy = !h.guard.Open() && !behind
	r.Status = HealthHealthy
	if !r.Healthy {
		r.Status = HealthDegraded
	}
	return r
}

func (h *PersistenceHealth) Healthy() bool { return h.Report().Healthy }
