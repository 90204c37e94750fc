package metrics

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Summary keeps in-process totals and logs them on demand.
type Summary struct {
	mu sync.Mutex

	totalRequests      int64
	successfulRequests int64
	failedRequests     int64
	cacheHits          int64
	totalTime          time.Duration
	registrars         map[string]map[string]int64

	logger logrus.FieldLogger
}

func NewSummary(logger logrus.FieldLogger) *Summary {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Summary{
		registrars: make(map[string]map[string]int64),
		logger:     logger,
	}
}

func (s *Summary) RecordRequest(success bool, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalRequests++
	s.totalTime += d
	if success {
		s.successfulRequests++
	} else {
		s.failedRequests++
	}
}

func (s *Summary) RecordCacheHit() {
	s.mu.Lock()
	s.cacheHits++
	s.mu.Unlock()
}

func (s *Summary) RecordRegistrar(name, outcome string, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byOutcome, ok := s.registrars[name]
	if !ok {
		byOutcome = make(map[string]int64)
		s.registrars[name] = byOutcome
	}
	byOutcome[outcome]++
}

// Snapshot is a point-in-time copy of the totals.
type Snapshot struct {
	TotalRequests      int64                       `json:"total_requests"`
	SuccessfulRequests int64                       `json:"successful_requests"`
	FailedRequests     int64                       `json:"failed_requests"`
	CacheHits          int64                       `json:"cache_hits"`
	AverageTime        time.Duration               `json:"average_time"`
	Registrars         map[string]map[string]int64 `json:"registrars"`
}

// SuccessRate is a percentage; zero when nothing was recorded.
func (s Snapshot) SuccessRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.SuccessfulRequests) / float64(s.TotalRequests) * 100
}

func (s *Summary) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Snapshot{
		TotalRequests:      s.totalRequests,
		SuccessfulRequests: s.successfulRequests,
		FailedRequests:     s.failedRequests,
		CacheHits:          s.cacheHits,
		Registrars:         make(map[string]map[string]int64, len(s.registrars)),
	}
	if s.totalRequests > 0 {
		out.AverageTime = s.totalTime / time.Duration(s.totalRequests)
	}
	for name, byOutcome := range s.registrars {
		cp := make(map[string]int64, len(byOutcome))
		for k, v := range byOutcome {
			cp[k] = v
		}
		out.Registrars[name] = cp
	}
	return out
}

func (s *Summary) LogSummary() {
	snap := s.Snapshot()
	s.logger.WithFields(logrus.Fields{
		"total_requests":      snap.TotalRequests,
		"successful_requests": snap.SuccessfulRequests,
		"failed_requests":     snap.FailedRequests,
		"success_rate":        snap.SuccessRate(),
		"cache_hits":          snap.CacheHits,
		"average_time":        snap.AverageTime,
		"registrars":          snap.Registrars,
	}).Info("Pricing metrics summary")
}
