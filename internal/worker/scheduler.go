package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler fires dispatcher ticks on a cron schedule. A tick that is still
// running when the next one is due causes that next one to be skipped.
type Scheduler struct {
	cron       *cron.Cron
	dispatcher *Dispatcher
	logger     *zap.Logger
}

// NewScheduler registers the dispatcher under a standard five-field cron spec.
func NewScheduler(dispatcher *Dispatcher, spec string, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger: logger.Sugar()}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		dispatcher: dispatcher,
		logger:     logger,
	}
	if _, err := s.cron.AddFunc(spec, s.RunOnce); err != nil {
		return nil, fmt.Errorf("register dispatch schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins firing ticks in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("dispatch scheduler started")
}

// Stop prevents further ticks and waits for an in-flight tick until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("dispatch scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for in-flight tick: %w", ctx.Err())
	}
}

// RunOnce executes a single tick on a context detached from shutdown.
func (s *Scheduler) RunOnce() {
	s.logger.Info("dispatch tick triggered")
	summary, err := s.dispatcher.Tick(context.Background())
	if err != nil {
		if errors.Is(err, ErrTickInProgress) {
			s.logger.Warn("dispatch tick skipped, previous tick still running")
			return
		}
		s.logger.Error("dispatch tick failed", zap.Error(err))
		return
	}
	if summary.Due == 0 {
		return
	}
	s.logger.Info("dispatch tick finished",
		zap.Int("due", summary.Due),
		zap.Int("sent", summary.Sent),
		zap.Int("retrying", summary.Retrying),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
	)
}

// cronLogger adapts zap to the cron.Logger interface. Scheduler chatter goes to debug.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
