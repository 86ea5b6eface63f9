// ABOUTME: suture supervisor tree for the long-running service.
// ABOUTME: Restarts failed services with backoff and logs supervisor events through zerolog.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/harperreed/healthscore/internal/logging"
	"github.com/thejerf/suture/v4"
)

// Options configures the supervised service.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Handler         http.Handler

	// Repair and RepairSchedule enable the repair scheduler when both are set.
	Repair         Repairer
	FailureCounter FailureCounter
	RepairSchedule string
}

// Supervisor owns the service tree.
type Supervisor struct {
	root *suture.Supervisor
}

// NewSupervisor creates an empty tree.
func NewSupervisor(shutdownTimeout time.Duration) *Supervisor {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	root := suture.New("healthscore", suture.Spec{
		EventHook:        logEvent,
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          shutdownTimeout,
	})
	return &Supervisor{root: root}
}

// Add registers a service.
func (s *Supervisor) Add(svc suture.Service) suture.ServiceToken {
	return s.root.Add(svc)
}

// Serve runs every service until ctx is canceled. Cancellation is a clean stop.
func (s *Supervisor) Serve(ctx context.Context) error {
	err := s.root.Serve(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// New builds the tree for opts: the HTTP listener, and the repair scheduler
// when configured.
func New(opts Options) (*Supervisor, error) {
	sup := NewSupervisor(opts.ShutdownTimeout)

	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           opts.Handler,
		ReadTimeout:       opts.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      opts.WriteTimeout,
	}
	sup.Add(NewHTTPService(srv, opts.Addr, opts.ShutdownTimeout))

	if opts.Repair != nil && opts.RepairSchedule != "" {
		repair, err := NewRepairService(opts.Repair, opts.FailureCounter, opts.RepairSchedule)
		if err != nil {
			return nil, err
		}
		sup.Add(repair)
	}
	return sup, nil
}

func logEvent(e suture.Event) {
	ev := logging.Warn()
	if e.Type() == suture.EventTypeServicePanic {
		ev = logging.Error()
	}
	ev.Fields(e.Map()).Msg(e.String())
}
