package observability

import (
	"context"
	"errors"
	"time"

	"github.com/harun/aoichat/pkg/completion"
)

// errStreamAbandoned marks a stream closed before its termination event
var errStreamAbandoned = errors.New("stream abandoned")

// InstrumentService records completion metrics for every stream of svc
func InstrumentService(svc completion.Service, metrics *Metrics) completion.Service {
	return &instrumentedService{Service: svc, metrics: metrics}
}

type instrumentedService struct {
	completion.Service
	metrics *Metrics
}

func (s *instrumentedService) Stream(ctx context.Context, req completion.Request) (completion.Stream, error) {
	start := time.Now()
	stream, err := s.Service.Stream(ctx, req)
	if err != nil {
		s.metrics.RecordCompletion(s.Provider(), time.Since(start), 0, err)
		return nil, err
	}
	return &instrumentedStream{
		Stream:   stream,
		ctx:      ctx,
		provider: s.Provider(),
		metrics:  s.metrics,
		start:    start,
	}, nil
}

type instrumentedStream struct {
	completion.Stream
	ctx       context.Context
	provider  string
	metrics   *Metrics
	start     time.Time
	fragments int
	finished  bool
	recorded  bool
}

func (s *instrumentedStream) Next() bool {
	if s.Stream.Next() {
		s.fragments++
		return true
	}
	s.finished = true
	s.record(s.Stream.Err())
	return false
}

func (s *instrumentedStream) Close() error {
	if !s.finished {
		err := s.ctx.Err()
		if err == nil {
			err = errStreamAbandoned
		}
		s.record(err)
	}
	return s.Stream.Close()
}

func (s *instrumentedStream) record(err error) {
	if s.recorded {
		return
	}
	s.recorded = true
	s.metrics.RecordCompletion(s.provider, time.Since(s.start), s.fragments, err)
}
