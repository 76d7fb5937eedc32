package governance

import (
	"context"
	"fmt"
	"log/slog"

	kerrors "github.com/jllopis/semkernel/pkg/errors"
	"github.com/jllopis/semkernel/pkg/kernel"
	"github.com/jllopis/semkernel/pkg/orchestration"
)

// Attach evaluates every pipeline step of k against the rules. A denied
// function fails the Context and cancels the pipeline; a skipped one is
// passed over.
func (r *RuleSet) Attach(k *kernel.Kernel, logger *slog.Logger) *kernel.HandlerRef {
	if logger == nil {
		logger = k.Logger()
	}
	return k.AddFunctionInvokingHandler(func(_ context.Context, _ *kernel.Kernel, args *kernel.FunctionInvokingEventArgs) {
		d := r.Evaluate(args.Function.SkillName, args.Function.Name)
		switch d.Effect {
		case EffectDeny:
			logger.Warn("governance.denied",
				slog.String("function", args.Function.FullyQualifiedName()),
				slog.String("rule", d.RuleID),
				slog.String("run_id", args.RunID),
			)
			msg := fmt.Sprintf("function %s denied by policy %s", args.Function.FullyQualifiedName(), d.RuleID)
			if d.Reason != "" {
				msg += ": " + d.Reason
			}
			args.Context.Fail(msg, kerrors.New(kerrors.CodeInvocation, msg, nil))
			args.Cancel()
		case EffectSkip:
			logger.Info("governance.skipped",
				slog.String("function", args.Function.FullyQualifiedName()),
				slog.String("rule", d.RuleID),
			)
			args.Skip()
		}
	})
}

// Allows reports whether a function may be offered as a tool. It fits
// kernel.ToolFilter.Allow.
func (r *RuleSet) Allows(view orchestration.FunctionView) bool {
	return r.Evaluate(view.SkillName, view.Name).Allowed()
}
