package coreskills

import (
	"strings"

	"github.com/jllopis/semkernel/pkg/orchestration"
)

// Text provides string helpers.
//
//	{{text.trim $input}}
//	{{text.uppercase $input}}
type Text struct{}

// NativeFunctions implements kernel.NativeSkill.
func (Text) NativeFunctions() []orchestration.NativeDefinition {
	input := &orchestration.ParameterView{Name: "input", Description: "The text to transform"}
	return []orchestration.NativeDefinition{
		{Name: "trim", Description: "Trim whitespace from the start and end of a string.", Input: input, Fn: strings.TrimSpace},
		{Name: "trimStart", Description: "Trim whitespace from the start of a string.", Input: input, Fn: trimStart},
		{Name: "trimEnd", Description: "Trim whitespace from the end of a string.", Input: input, Fn: trimEnd},
		{Name: "uppercase", Description: "Convert a string to uppercase.", Input: input, Fn: strings.ToUpper},
		{Name: "lowercase", Description: "Convert a string to lowercase.", Input: input, Fn: strings.ToLower},
	}
}

func trimStart(s string) string { return strings.TrimLeft(s, " \t\r\n\v\f") }

func trimEnd(s string) string { return strings.TrimRight(s, " \t\r\n\v\f") }
