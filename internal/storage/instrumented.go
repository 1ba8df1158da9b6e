package storage

import (
	"context"
	"time"

	"github.com/ch2church/worship-storyboard/internal/utils"
)

// InstrumentedStore records latency and errors of every call.
type InstrumentedStore struct {
	inner   BlobStore
	backend string
	metrics *utils.APIMetrics
}

// Instrument wraps inner; backend names it in metric keys.
func Instrument(inner BlobStore, backend string, metrics *utils.APIMetrics) *InstrumentedStore {
	if metrics == nil {
		metrics = utils.NewAPIMetrics()
	}
	return &InstrumentedStore{inner: inner, backend: backend, metrics: metrics}
}

func (s *InstrumentedStore) Get(ctx context.Context, p string) ([]byte, error) {
	start := time.Now()
	data, err := s.inner.Get(ctx, p)
	s.metrics.RecordStoreOp(s.backend, "get", time.Since(start), err)
	return data, err
}

func (s *InstrumentedStore) Put(ctx context.Context, p string, data []byte, message string) (string, error) {
	start := time.Now()
	version, err := s.inner.Put(ctx, p, data, message)
	s.metrics.RecordStoreOp(s.backend, "put", time.Since(start), err)
	return version, err
}

func (s *InstrumentedStore) List(ctx context.Context, p string) ([]Entry, error) {
	start := time.Now()
	entries, err := s.inner.List(ctx, p)
	s.metrics.RecordStoreOp(s.backend, "list", time.Since(start), err)
	return entries, err
}
