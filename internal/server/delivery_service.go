package server

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/relaycore/bulkmailer/internal/drainer"
)

// DrainerService adapts a Drainer's deadline-bounded Drain call into a
// continuously-running service.Service member, repeatedly draining with a
// rolling window until stopped.
type DrainerService struct {
	drain   *drainer.Drainer
	window  time.Duration
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewDrainerService builds a DrainerService that re-invokes Drain with a
// fresh deadline every window, back-to-back, for as long as the process
// runs.
func NewDrainerService(d *drainer.Drainer, window time.Duration) *DrainerService {
	if window <= 0 {
		window = 55 * time.Second
	}
	return &DrainerService{drain: d, window: window, stopped: make(chan struct{})}
}

func (s *DrainerService) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go func() {
		defer close(s.stopped)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			summary := s.drain.Drain(ctx, time.Now().Add(s.window))
			logx.Infow("drain pass complete",
				logx.Field("processed", summary.Processed),
				logx.Field("failed", summary.Failed),
				logx.Field("permanent", summary.Permanent),
				logx.Field("stoppedReason", string(summary.StoppedReason)),
				logx.Field("elapsedSeconds", summary.ElapsedSeconds),
			)
		}
	}()
}

func (s *DrainerService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.stopped
}
