// Package job runs batch entry points (adapter scrapes, classification) and reports typed
// outcomes that the caller turns into heartbeats and an exit status.
package job

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/mention-radar/internal/radar"
)

// Func is one batch unit. It returns the number of items it produced.
type Func func(ctx context.Context) (int, error)

// Job names a Func. Name doubles as the heartbeat key.
type Job struct {
	Name string
	Run  Func
}

// Outcome is the typed result of one job run.
type Outcome struct {
	Name     string
	Success  bool
	Count    int
	Err      error
	Started  time.Time
	Finished time.Time
}

// Duration is the wall time the job took.
func (o Outcome) Duration() time.Duration {
	return o.Finished.Sub(o.Started)
}

// Recorder persists outcomes; heartbeat.Tracker satisfies it.
type Recorder interface {
	Record(ctx context.Context, name string, success bool, errText string, postCount int) error
}

// Runner executes jobs, converts panics into failed outcomes and records heartbeats.
type Runner struct {
	clock    radar.Clock
	recorder Recorder
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewRunner builds a Runner. recorder may be nil.
func NewRunner(clock radar.Clock, recorder Recorder, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		clock:    clock,
		recorder: recorder,
		logger:   logger.Named("job"),
		tracer:   otel.Tracer("github.com/JakeFAU/mention-radar/internal/job"),
	}
}

// WithTracer replaces the tracer taken from the global provider.
func (r *Runner) WithTracer(tracer trace.Tracer) *Runner {
	r.tracer = tracer
	return r
}

// Run executes one job.
func (r *Runner) Run(ctx context.Context, job Job) Outcome {
	ctx, span := r.tracer.Start(ctx, "job "+job.Name, trace.WithAttributes(attribute.String("job.name", job.Name)))
	defer span.End()

	out := Outcome{Name: job.Name, Started: r.clock.Now()}
	out.Count, out.Err = r.invoke(ctx, job)
	out.Finished = r.clock.Now()
	out.Success = out.Err == nil

	span.SetAttributes(attribute.Int("job.count", out.Count))
	if out.Err != nil {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, out.Err.Error())
	}

	logger := r.logger.With(zap.String("job", job.Name), zap.Int("count", out.Count), zap.Duration("took", out.Duration()))
	if out.Success {
		logger.Info("job succeeded")
	} else {
		logger.Error("job failed", zap.Error(out.Err))
	}

	if r.recorder != nil {
		errText := ""
		if out.Err != nil {
			errText = out.Err.Error()
		}
		// Recording must survive a canceled run context.
		recordCtx := context.WithoutCancel(ctx)
		if err := r.recorder.Record(recordCtx, job.Name, out.Success, errText, out.Count); err != nil {
			logger.Error("record heartbeat failed", zap.Error(err))
		}
	}
	return out
}

// RunAll executes jobs concurrently and returns outcomes in input order. One job failing never
// stops the others.
func (r *Runner) RunAll(ctx context.Context, jobs []Job) []Outcome {
	outcomes := make([]Outcome, len(jobs))
	var g errgroup.Group
	for i, job := range jobs {
		g.Go(func() error {
			outcomes[i] = r.Run(ctx, job)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (r *Runner) invoke(ctx context.Context, job Job) (count int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("job panicked", zap.String("job", job.Name), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("job %s panicked: %v", job.Name, rec)
		}
	}()
	if job.Run == nil {
		return 0, fmt.Errorf("job %s has no run function", job.Name)
	}
	return job.Run(ctx)
}

// Failed filters outcomes that did not succeed.
func Failed(outcomes []Outcome) []Outcome {
	var out []Outcome
	for _, o := range outcomes {
		if !o.Success {
			out = append(out, o)
		}
	}
	return out
}

// ExitCode maps outcomes to a process status. Only strict mode reports failures.
func ExitCode(outcomes []Outcome, strict bool) int {
	if strict && len(Failed(outcomes)) > 0 {
		return 1
	}
	return 0
}
