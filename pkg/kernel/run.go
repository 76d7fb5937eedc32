package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/semkernel/pkg/core"
	kerrors "github.com/jllopis/semkernel/pkg/errors"
	"github.com/jllopis/semkernel/pkg/llm"
	"github.com/jllopis/semkernel/pkg/orchestration"
	"github.com/jllopis/semkernel/pkg/telemetry"
)

// RunOption seeds the Context of a pipeline.
type RunOption func(*runOptions)

type runOptions struct {
	kctx  *orchestration.Context
	vars  *orchestration.Variables
	input *string
}

// WithInput seeds the input variable.
func WithInput(input string) RunOption {
	return func(o *runOptions) { o.input = &input }
}

// WithInputVariables seeds the pipeline variables.
func WithInputVariables(vars *orchestration.Variables) RunOption {
	return func(o *runOptions) { o.vars = vars }
}

// WithInputContext runs the pipeline on an existing Context. Variables and
// input given with the other options only fill what the Context lacks.
func WithInputContext(kctx *orchestration.Context) RunOption {
	return func(o *runOptions) { o.kctx = kctx }
}

func (k *Kernel) seedContext(opts []RunOption) *orchestration.Context {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.kctx != nil {
		o.kctx.Variables.Merge(o.vars, false)
		if o.input != nil && o.kctx.Variables.Input() == "" {
			o.kctx.Variables.Update(*o.input)
		}
		if o.kctx.Skills() == nil {
			o.kctx.SetSkills(k.Skills())
		}
		return o.kctx
	}

	var vars *orchestration.Variables
	switch {
	case o.input != nil && o.vars != nil:
		vars = orchestration.NewVariables(*o.input).Merge(o.vars, false)
	case o.input != nil:
		vars = orchestration.NewVariables(*o.input)
	case o.vars != nil:
		vars = o.vars
	default:
		vars = orchestration.NewVariables("")
	}
	return k.CreateNewContext(vars)
}

func checkPipeline(functions []*orchestration.Function) error {
	for i, fn := range functions {
		if fn == nil {
			return kerrors.New(kerrors.CodeInvalidInput,
				fmt.Sprintf("pipeline step %d is not a function", i), nil)
		}
	}
	return nil
}

// Run invokes functions in order on one Context and returns it.
//
// A step that fails marks the Context and stops the pipeline; the failure
// is reported through Context.ErrorOccurred, not through the returned
// error. The error is set only for a malformed pipeline.
func (k *Kernel) Run(ctx context.Context, functions []*orchestration.Function, opts ...RunOption) (*orchestration.Context, error) {
	if err := checkPipeline(functions); err != nil {
		return nil, err
	}
	kctx := k.seedContext(opts)

	ctx, runID := core.EnsureRunID(ctx)
	ctx, span := k.tracer.Start(ctx, "Kernel.Run",
		trace.WithAttributes(
			attribute.String(telemetry.AttrRunID, runID),
			attribute.Int("semkernel.run.functions", len(functions)),
		),
	)
	defer span.End()

	logger := k.logger.With(slog.String("run_id", runID))
	logger.Info("kernel.run.start", slog.Int("functions", len(functions)))
	k.emitter.Emit(ctx, core.NewEvent(core.EventRunStarted, runID, "", "", 0,
		map[string]any{"functions": len(functions)}))

	kctx, cancelled := k.pipeline(ctx, logger, runID, functions, kctx)

	status := "completed"
	switch {
	case kctx.ErrorOccurred():
		status = "failed"
		span.SetStatus(codes.Error, kctx.LastErrorDescription())
	case cancelled:
		status = "cancelled"
	}
	span.SetAttributes(attribute.String("semkernel.run.status", status))
	logger.Info("kernel.run.end", slog.String("status", status))

	eventType := core.EventRunCompleted
	if cancelled {
		eventType = core.EventRunCancelled
	}
	k.emitter.Emit(ctx, core.NewEvent(eventType, runID, "", "", 0, map[string]any{
		"status":         status,
		"error_occurred": kctx.ErrorOccurred(),
		"error":          kctx.LastErrorDescription(),
	}))
	return kctx, nil
}

func (k *Kernel) pipeline(ctx context.Context, logger *slog.Logger, runID string, functions []*orchestration.Function, kctx *orchestration.Context) (*orchestration.Context, bool) {
	for step, fn := range functions {
		for {
			if kctx.ErrorOccurred() {
				logger.Error("kernel.run.failed",
					slog.Int("step", step),
					slog.String("error", kctx.LastErrorDescription()),
				)
				return kctx, false
			}

			view := fn.Describe()
			if args := k.onFunctionInvoking(ctx, &FunctionInvokingEventArgs{
				Function: view, Context: kctx, RunID: runID, Step: step,
			}); args != nil {
				if args.IsCancelRequested() {
					logger.Info("kernel.function.cancelled",
						slog.Int("step", step),
						slog.String("function", view.FullyQualifiedName()),
						slog.String("event", "invoking"),
					)
					return kctx, true
				}
				if args.IsSkipRequested() {
					logger.Info("kernel.function.skipped",
						slog.Int("step", step),
						slog.String("function", view.FullyQualifiedName()),
					)
					k.emitter.Emit(ctx, core.NewEvent(core.EventFunctionSkipped, runID, fn.SkillName(), fn.Name(), step, nil))
					break
				}
			}

			kctx = k.invoke(ctx, runID, step, fn, kctx)
			if kctx.ErrorOccurred() {
				logger.Error("kernel.function.failed",
					slog.Int("step", step),
					slog.String("function", view.FullyQualifiedName()),
					slog.String("error", kctx.LastErrorDescription()),
				)
				return kctx, false
			}

			args := k.onFunctionInvoked(ctx, &FunctionInvokedEventArgs{
				Function: view, Context: kctx, RunID: runID, Step: step,
			})
			if args != nil && args.IsCancelRequested() {
				logger.Info("kernel.function.cancelled",
					slog.Int("step", step),
					slog.String("function", view.FullyQualifiedName()),
					slog.String("event", "invoked"),
				)
				return kctx, true
			}
			if args != nil && args.IsRepeatRequested() {
				logger.Info("kernel.function.repeated",
					slog.Int("step", step),
					slog.String("function", view.FullyQualifiedName()),
				)
				k.emitter.Emit(ctx, core.NewEvent(core.EventFunctionRepeated, runID, fn.SkillName(), fn.Name(), step, nil))
				continue
			}
			break
		}
	}
	return kctx, false
}

// invoke runs one step. Faults always end up on the returned Context.
func (k *Kernel) invoke(ctx context.Context, runID string, step int, fn *orchestration.Function, kctx *orchestration.Context, opts ...orchestration.InvokeOption) *orchestration.Context {
	kind := fn.Kind().String()
	ctx, span := k.tracer.Start(ctx, "Kernel.Function",
		trace.WithAttributes(telemetry.FunctionAttributes(runID, fn.SkillName(), fn.Name(), kind, step)...),
	)
	defer span.End()

	k.emitter.Emit(ctx, core.NewEvent(core.EventFunctionInvoking, runID, fn.SkillName(), fn.Name(), step, nil))

	start := time.Now()
	out, err := fn.Invoke(ctx, append([]orchestration.InvokeOption{orchestration.WithContext(kctx)}, opts...)...)
	if out == nil {
		out = kctx
	}
	if err != nil && !out.ErrorOccurred() {
		out.Fail(err.Error(), err)
	}
	elapsed := time.Since(start)

	var fault error
	if out.ErrorOccurred() {
		fault = out.LastError()
		if fault == nil {
			fault = kerrors.New(kerrors.CodeInvocation, out.LastErrorDescription(), nil)
		}
		span.RecordError(fault)
		span.SetStatus(codes.Error, out.LastErrorDescription())
	}
	span.SetAttributes(attribute.Bool(telemetry.AttrSuccess, fault == nil))
	k.metrics.RecordInvocation(ctx, fn.SkillName(), fn.Name(), kind, elapsed, fault)

	eventType := core.EventFunctionInvoked
	payload := map[string]any{"duration_ms": elapsed.Milliseconds()}
	if fault != nil {
		eventType = core.EventFunctionFailed
		payload["error"] = out.LastErrorDescription()
		payload["error_code"] = string(kerrors.CodeOf(fault))
	}
	k.emitter.Emit(ctx, core.NewEvent(eventType, runID, fn.SkillName(), fn.Name(), step, payload))
	return out
}

// failedStream yields the single error chunk reported when the Context is
// already failed before the streamed function starts.
func failedStream(fn *orchestration.Function, kctx *orchestration.Context) <-chan llm.StreamChunk {
	fault := kerrors.New(kerrors.CodeInvocation, "error occurred while invoking stream function", kctx.LastError()).
		WithAttribute("function", fn.String())
	out := make(chan llm.StreamChunk, 1)
	out <- llm.StreamChunk{Error: fault}
	close(out)
	return out
}

// RunStream runs every function but the last through Run and streams the
// output of the last one. No invocation events fire for the streamed
// function.
//
// The channel must be drained. A fault in the streamed function marks the
// Context failed and arrives as a final chunk whose Error is a
// CodeInvocation error. When the preceding functions fail, or the input
// Context is already failed, the streamed function does not run and the
// channel yields that single error chunk.
func (k *Kernel) RunStream(ctx context.Context, functions []*orchestration.Function, opts ...RunOption) (*orchestration.Context, <-chan llm.StreamChunk, error) {
	if len(functions) == 0 {
		return nil, nil, kerrors.New(kerrors.CodeInvalidInput, "no functions passed to run", nil)
	}
	if err := checkPipeline(functions); err != nil {
		return nil, nil, err
	}

	ctx, runID := core.EnsureRunID(ctx)
	last := functions[len(functions)-1]
	logger := k.logger.With(slog.String("run_id", runID))

	var kctx *orchestration.Context
	if len(functions) > 1 {
		var err error
		kctx, err = k.Run(ctx, functions[:len(functions)-1], opts...)
		if err != nil {
			return nil, nil, err
		}
	} else {
		kctx = k.seedContext(opts)
	}
	if kctx.ErrorOccurred() {
		logger.Warn("kernel.stream.skipped", slog.String("function", last.String()), slog.String("error", kctx.LastErrorDescription()))
		return kctx, failedStream(last, kctx), nil
	}

	step := len(functions) - 1
	ctx, span := k.tracer.Start(ctx, "Kernel.RunStream",
		trace.WithAttributes(telemetry.FunctionAttributes(runID, last.SkillName(), last.Name(), last.Kind().String(), step)...),
	)
	span.SetAttributes(attribute.Bool(telemetry.AttrStream, true))

	logger.Info("kernel.stream.start", slog.String("function", last.String()))
	k.emitter.Emit(ctx, core.NewEvent(core.EventStreamStarted, runID, last.SkillName(), last.Name(), step, nil))

	start := time.Now()
	kctx, in, err := last.InvokeStream(ctx, orchestration.WithContext(kctx))
	if err != nil {
		logger.Error("kernel.stream.error", slog.String("function", last.String()), slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		k.metrics.RecordInvocation(ctx, last.SkillName(), last.Name(), last.Kind().String(), time.Since(start), err)
		return kctx, nil, err
	}

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		defer span.End()

		var fault error
		chunks := 0
		for chunk := range in {
			if chunk.Error != nil {
				fault = chunk.Error
				logger.Error("kernel.stream.error",
					slog.String("function", last.String()),
					slog.String("error", chunk.Error.Error()),
				)
			} else {
				chunks++
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				if fault == nil {
					fault = ctx.Err()
				}
				// Drain so the producer can exit.
				for range in {
				}
				k.finishStream(ctx, span, runID, last, step, start, chunks, fault)
				return
			}
		}
		k.finishStream(ctx, span, runID, last, step, start, chunks, fault)
	}()
	return kctx, out, nil
}

func (k *Kernel) finishStream(ctx context.Context, span trace.Span, runID string, fn *orchestration.Function, step int, start time.Time, chunks int, fault error) {
	elapsed := time.Since(start)
	if fault != nil {
		span.RecordError(fault)
		span.SetStatus(codes.Error, fault.Error())
	}
	span.SetAttributes(attribute.Int("semkernel.stream.chunks", chunks))
	k.metrics.RecordInvocation(ctx, fn.SkillName(), fn.Name(), fn.Kind().String(), elapsed, fault)

	payload := map[string]any{"chunks": chunks, "duration_ms": elapsed.Milliseconds()}
	if fault != nil {
		payload["error"] = fault.Error()
	}
	k.emitter.Emit(ctx, core.NewEvent(core.EventStreamCompleted, runID, fn.SkillName(), fn.Name(), step, payload))
	k.logger.Info("kernel.stream.end",
		slog.String("run_id", runID),
		slog.String("function", fn.String()),
		slog.Int("chunks", chunks),
		slog.Bool("failed", fault != nil),
	)
}
