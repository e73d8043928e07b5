package harness

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Shutdown flushes results and exits with status 1 on SIGINT or SIGTERM.
// It is registered once per run and released with Stop.
type Shutdown struct {
	sigs chan os.Signal
	stop chan struct{}
	once sync.Once
}

// NewShutdown registers a hook that calls flush and then exit(1) when
// the process is interrupted.
func NewShutdown(flush func() error, exit func(int), logger *slog.Logger) *Shutdown {
	return newShutdown(signal.Notify, flush, exit, logger)
}

func newShutdown(
	notify func(c chan<- os.Signal, sig ...os.Signal),
	flush func() error,
	exit func(int),
	logger *slog.Logger,
) *Shutdown {
	if notify == nil {
		notify = signal.Notify
	}

	if exit == nil {
		exit = os.Exit
	}

	h := &Shutdown{
		sigs: make(chan os.Signal, 1),
		stop: make(chan struct{}),
	}

	notify(h.sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-h.sigs:
			logger.Warn("interrupted, flushing results", slog.String("signal", sig.String()))

			if err := flush(); err != nil {
				logger.Error("flush on interrupt", slog.String("error", err.Error()))
			}

			exit(1)
		case <-h.stop:
		}
	}()

	return h
}

// Stop releases the signal registration.
func (h *Shutdown) Stop() {
	h.once.Do(func() {
		signal.Stop(h.sigs)
		close(h.stop)
	})
}

func (r *Runner) installShutdown(flush func() error, logger *slog.Logger) *Shutdown {
	return newShutdown(r.notify, flush, r.Exit, logger)
}
