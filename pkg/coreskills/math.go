package coreskills

import (
	"fmt"
	"strconv"
	"strings"

	kerrors "github.com/jllopis/semkernel/pkg/errors"
	"github.com/jllopis/semkernel/pkg/orchestration"
)

// AmountParam is the variable holding the operand of Add and Subtract.
const AmountParam = "amount"

// Math adds to and subtracts from an integer input.
//
//	{{math.Add}} with input "10" and Amount "5" yields "15"
type Math struct{}

// NativeFunctions implements kernel.NativeSkill.
func (Math) NativeFunctions() []orchestration.NativeDefinition {
	amount := func(verb string) []orchestration.ParameterView {
		return []orchestration.ParameterView{{Name: "Amount", Description: "Amount to " + verb, Type: "number", Required: true}}
	}
	return []orchestration.NativeDefinition{
		{
			Name:        "Add",
			Description: "Adds value to a value",
			Input:       &orchestration.ParameterView{Name: "input", Description: "The value to add"},
			Parameters:  amount("add"),
			Fn: func(input string, kctx *orchestration.Context) (string, error) {
				return addOrSubtract(input, kctx, true)
			},
		},
		{
			Name:        "Subtract",
			Description: "Subtracts value to a value",
			Input:       &orchestration.ParameterView{Name: "input", Description: "The value to subtract"},
			Parameters:  amount("subtract"),
			Fn: func(input string, kctx *orchestration.Context) (string, error) {
				return addOrSubtract(input, kctx, false)
			},
		},
	}
}

func addOrSubtract(input string, kctx *orchestration.Context, add bool) (string, error) {
	initial, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return "", kerrors.New(kerrors.CodeInvalidInput,
			fmt.Sprintf("initial value provided is not in numeric format: %s", input), err)
	}
	raw, ok := kctx.Variables.Get(AmountParam)
	if !ok {
		return "", kerrors.New(kerrors.CodeInvalidInput, "context amount should not be empty", nil)
	}
	amount, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return "", kerrors.New(kerrors.CodeInvalidInput,
			fmt.Sprintf("context amount provided is not in numeric format: %s", raw), err)
	}
	if add {
		return strconv.Itoa(initial + amount), nil
	}
	return strconv.Itoa(initial - amount), nil
}
