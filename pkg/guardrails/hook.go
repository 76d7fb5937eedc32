package guardrails

import (
	"context"
	"fmt"
	"log/slog"

	kerrors "github.com/jllopis/semkernel/pkg/errors"
	"github.com/jllopis/semkernel/pkg/kernel"
	"github.com/jllopis/semkernel/pkg/orchestration"
)

// Refs identifies the handlers installed by Attach.
type Refs struct {
	Invoking *kernel.HandlerRef
	Invoked  *kernel.HandlerRef
}

// Detach removes the handlers from k.
func (r Refs) Detach(k *kernel.Kernel) {
	k.RemoveFunctionInvokingHandler(r.Invoking)
	k.RemoveFunctionInvokedHandler(r.Invoked)
}

// Attach guards the semantic functions run by k. Every context variable is
// checked before the function runs; a blocked variable fails the Context
// and cancels the pipeline. The completion is filtered after the function
// ran. Native functions are left alone.
func (g *Guard) Attach(k *kernel.Kernel, logger *slog.Logger) Refs {
	if logger == nil {
		logger = k.Logger()
	}
	invoking := k.AddFunctionInvokingHandler(func(ctx context.Context, _ *kernel.Kernel, args *kernel.FunctionInvokingEventArgs) {
		if !args.Function.IsSemantic {
			return
		}
		res := g.CheckContext(ctx, args.Context)
		if !res.Blocked {
			return
		}
		logger.Warn("guardrails.blocked",
			slog.String("function", args.Function.FullyQualifiedName()),
			slog.String("guardrail", res.GuardrailID),
			slog.String("variable", res.Variable),
			slog.String("run_id", args.RunID),
		)
		msg := fmt.Sprintf("input of %s blocked by %s: %s", args.Function.FullyQualifiedName(), res.GuardrailID, res.Reason)
		args.Context.Fail(msg, kerrors.New(kerrors.CodeInvalidInput, msg, nil).
			WithAttribute("guardrail", res.GuardrailID).
			WithAttribute("variable", res.Variable))
		args.Cancel()
	})
	invoked := k.AddFunctionInvokedHandler(func(ctx context.Context, _ *kernel.Kernel, args *kernel.FunctionInvokedEventArgs) {
		if !args.Function.IsSemantic {
			return
		}
		res := g.FilterOutput(ctx, args.Context.Result())
		if !res.Modified {
			return
		}
		args.Context.Variables.Update(res.Content)
		logger.Info("guardrails.filtered",
			slog.String("function", args.Function.FullyQualifiedName()),
			slog.Int("redactions", len(res.Redactions)),
			slog.String("run_id", args.RunID),
		)
	})
	return Refs{Invoking: invoking, Invoked: invoked}
}

// CheckContext checks every variable of kctx in order.
func (g *Guard) CheckContext(ctx context.Context, kctx *orchestration.Context) CheckResult {
	for _, name := range kctx.Variables.Keys() {
		value, _ := kctx.Variables.Get(name)
		if res := g.CheckInput(ctx, value); res.Blocked {
			res.Variable = name
			return res
		}
	}
	return CheckResult{}
}
