package collector

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"monitord/internal/models"
)

// Snapshot is one sampled reading for a server.
type Snapshot struct {
	CPUUsage     float64
	MemoryUsage  float64
	DiskUsage    float64
	ResponseTime float64
	Status       string
}

// MetricsSource samples a server. Implementations may probe a real host
// or simulate one; the collector treats them identically.
type MetricsSource interface {
	Sample(ctx context.Context, serverID int64) (Snapshot, error)
}

// SimulatedSource generates readings in realistic ranges, the stand-in
// used when no agent is deployed on the monitored fleet.
type SimulatedSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSimulatedSource(seed int64) *SimulatedSource {
	return &SimulatedSource{rnd: rand.New(rand.NewSource(seed))}
}

func (s *SimulatedSource) Sample(_ context.Context, _ int64) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := models.StatusUp
	if s.rnd.Intn(100) < 5 {
		status = models.StatusWarning
	}
	return Snapshot{
		CPUUsage:     round2(25 + s.rnd.Float64()*55),
		MemoryUsage:  round2(30 + s.rnd.Float64()*50),
		DiskUsage:    round2(20 + s.rnd.Float64()*60),
		ResponseTime: round2(5 + s.rnd.Float64()*95),
		Status:       status,
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
