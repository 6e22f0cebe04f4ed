// Package history holds the append-only cpu series the relay collects from client reports.
package history

import (
	"sync"
	"time"

	"github.com/EnzoRigon/udp-client-server/internal/domain"
)

type Store struct {
	mux     sync.RWMutex
	start   time.Time
	now     func() time.Time
	samples []domain.MetricSample
}

// New creates a store whose elapsed times are measured from start.
func New(start time.Time) *Store {
	return &Store{
		start: start,
		now:   time.Now,
	}
}

func (s *Store) Append(cpuUsage float64) domain.MetricSample {
	s.mux.Lock()
	defer s.mux.Unlock()

	at := s.now()
	sample := domain.MetricSample{
		Elapsed:  at.Sub(s.start).Seconds(),
		CPUUsage: cpuUsage,
		At:       at,
	}
	s.samples = append(s.samples, sample)
	return sample
}

// Series returns the whole history as parallel slices of elapsed seconds and cpu usage.
func (s *Store) Series() (timestamps []float64, cpu []float64) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	timestamps = make([]float64, len(s.samples))
	cpu = make([]float64, len(s.samples))
	for i, sample := range s.samples {
		timestamps[i] = sample.Elapsed
		cpu[i] = sample.CPUUsage
	}
	return timestamps, cpu
}

// Since returns a copy of the samples from offset on, and the offset to resume from.
func (s *Store) Since(offset int) ([]domain.MetricSample, int) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	if offset < 0 {
		offset = 0
	}
	if offset >= len(s.samples) {
		return nil, len(s.samples)
	}
	out := make([]domain.MetricSample, len(s.samples)-offset)
	copy(out, s.samples[offset:])
	return out, len(s.samples)
}

func (s *Store) Len() int {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return len(s.samples)
}

func (s *Store) Start() time.Time {
	return s.start
}
