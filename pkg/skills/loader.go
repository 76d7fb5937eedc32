package skills

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/jllopis/semkernel/pkg/template"
)

const (
	promptFile        = "skprompt.txt"
	maxDescriptionLen = 1024
)

var configFiles = []string{"config.json", "config.yaml", "config.yml"}

// SemanticSource is a prompt function read from disk, ready to be
// registered with a kernel.
type SemanticSource struct {
	Skill    string
	Name     string
	Template string
	Config   *template.PromptTemplateConfig
	Path     string
}

// LoadSemanticSkill reads the prompt functions of the skill stored in dir.
// Every subdirectory holding a skprompt.txt is a function; its config
// file is optional.
func LoadSemanticSkill(dir string) ([]SemanticSource, error) {
	skill := filepath.Base(filepath.Clean(dir))
	if err := ValidateName("skill", skill); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []SemanticSource
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		fnDir := filepath.Join(dir, entry.Name())
		promptPath := filepath.Join(fnDir, promptFile)
		if _, err := os.Stat(promptPath); err != nil {
			continue
		}
		src, err := loadFunction(skill, entry.Name(), fnDir)
		if err != nil {
			return nil, fmt.Errorf("load %s.%s: %w", skill, entry.Name(), err)
		}
		out = append(out, src)
	}
	return out, nil
}

// LoadDir loads every skill directory found under root.
func LoadDir(root string) ([]SemanticSource, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var out []SemanticSource
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		srcs, err := LoadSemanticSkill(filepath.Join(root, entry.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, srcs...)
	}
	return out, nil
}

func loadFunction(skill, name, dir string) (SemanticSource, error) {
	if err := ValidateName("function", name); err != nil {
		return SemanticSource{}, err
	}
	prompt, err := os.ReadFile(filepath.Join(dir, promptFile))
	if err != nil {
		return SemanticSource{}, err
	}

	cfg, err := loadConfig(dir)
	if err != nil {
		return SemanticSource{}, err
	}
	if err := validateConfig(cfg); err != nil {
		return SemanticSource{}, err
	}
	return SemanticSource{
		Skill:    skill,
		Name:     name,
		Template: string(prompt),
		Config:   cfg,
		Path:     dir,
	}, nil
}

func loadConfig(dir string) (*template.PromptTemplateConfig, error) {
	for _, name := range configFiles {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if strings.HasSuffix(name, ".json") {
			return template.ParseConfigJSON(data)
		}
		return template.ParseConfigYAML(data)
	}
	return template.NewConfig(), nil
}

func validateConfig(cfg *template.PromptTemplateConfig) error {
	if cfg.Type != template.TypeCompletion {
		return fmt.Errorf("unsupported prompt type %q", cfg.Type)
	}
	if utf8.RuneCountInString(strings.TrimSpace(cfg.Description)) > maxDescriptionLen {
		return fmt.Errorf("description exceeds %d characters", maxDescriptionLen)
	}
	return nil
}
