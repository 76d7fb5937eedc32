package coreskills

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	kerrors "github.com/jllopis/semkernel/pkg/errors"
	"github.com/jllopis/semkernel/pkg/orchestration"
)

// Wait pauses a pipeline.
//
//	{{wait.seconds 5}}
type Wait struct{}

// NativeFunctions implements kernel.NativeSkill.
func (Wait) NativeFunctions() []orchestration.NativeDefinition {
	return []orchestration.NativeDefinition{{
		Name:        "seconds",
		Description: "Wait for a certain number of seconds.",
		Input:       &orchestration.ParameterView{Name: "input", Description: "The number of seconds to wait"},
		Fn:          waitSeconds,
	}}
}

func waitSeconds(ctx context.Context, input string) error {
	seconds, err := strconv.ParseFloat(strings.TrimSpace(input), 64)
	if err != nil {
		return kerrors.New(kerrors.CodeInvalidInput, fmt.Sprintf("seconds text must be a number: %q", input), err)
	}
	if seconds <= 0 {
		return nil
	}
	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
