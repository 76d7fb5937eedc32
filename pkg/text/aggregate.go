package text

import (
	"context"
	"strings"

	"github.com/jllopis/semkernel/pkg/orchestration"
)

// AggregateChunkedResults runs fn once per chunk on kctx and joins the
// results with newlines into the input of kctx. It stops at the first
// chunk that fails the Context.
func AggregateChunkedResults(ctx context.Context, fn *orchestration.Function, chunks []string, kctx *orchestration.Context) (*orchestration.Context, error) {
	results := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		kctx.Variables.Update(chunk)
		out, err := fn.Invoke(ctx, orchestration.WithContext(kctx))
		if err != nil {
			return out, err
		}
		if out.ErrorOccurred() {
			return out, nil
		}
		kctx = out
		results = append(results, kctx.Result())
	}
	kctx.Variables.Update(strings.Join(results, "\n"))
	return kctx, nil
}
