// Package coreskills provides the built-in native skills: text helpers,
// integer math, clock and calendar values, semantic memory recall, save
// and removal, waiting and conversation summaries.
//
// Import a skill with Kernel.ImportSkill:
//
//	k.ImportSkill(coreskills.Text{}, coreskills.TextSkillName)
package coreskills

import (
	"github.com/jllopis/semkernel/pkg/kernel"
)

// Default skill names used by Register.
const (
	TextSkillName    = "text"
	MathSkillName    = "math"
	TimeSkillName    = "time"
	MemorySkillName  = "memory"
	WaitSkillName    = "wait"
	SummarySkillName = "ConversationSummarySkill"
)

// Register imports the skills that need no AI service into k under their
// default names.
func Register(k *kernel.Kernel) error {
	skills := []struct {
		name  string
		skill kernel.NativeSkill
	}{
		{TextSkillName, Text{}},
		{MathSkillName, Math{}},
		{TimeSkillName, Time{}},
		{MemorySkillName, NewTextMemory(k.Logger())},
		{WaitSkillName, Wait{}},
	}
	for _, s := range skills {
		if _, err := k.ImportSkill(s.skill, s.name); err != nil {
			return err
		}
	}
	return nil
}
