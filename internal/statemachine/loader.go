package statemachine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// frontmatter mirrors the YAML block at the top of each state markdown file,
// grounded directly on internal/skills/loader.go's extractFrontmatter shape
// (adapted to this domain's field names).
type frontmatter struct {
	Description      string `yaml:"description"`
	ExecutionPrompt  string `yaml:"execution_prompt"`
	MinRoundInterval *int   `yaml:"min_round_interval"`
	MaxRoundInterval *int   `yaml:"max_round_interval"`
}

// LoadStatesFromDir parses every *.md file in dir into a State, the file
// stem becoming the state name (spec.md §4.6). Files are returned sorted by
// name for deterministic registration order.
func LoadStatesFromDir(dir string) ([]State, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read states dir %s: %v", ErrConfiguration, dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)

	states := make([]State, 0, len(paths))
	for _, path := range paths {
		st, err := parseStateFile(path)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, nil
}

func parseStateFile(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, fmt.Errorf("%w: read %s: %v", ErrConfiguration, path, err)
	}
	fm, body, err := extractFrontmatter(string(data))
	if err != nil {
		return State{}, fmt.Errorf("%w: %s: %v", ErrConfiguration, path, err)
	}
	if strings.TrimSpace(fm.Description) == "" {
		return State{}, fmt.Errorf("%w: %s: missing field `description`", ErrConfiguration, path)
	}

	name := strings.TrimSuffix(filepath.Base(path), ".md")
	return State{
		Name:             name,
		Description:      fm.Description,
		Prompt:           strings.TrimSpace(body),
		ExecutionPrompt:  fm.ExecutionPrompt,
		MinRoundInterval: fm.MinRoundInterval,
		MaxRoundInterval: fm.MaxRoundInterval,
	}, nil
}

// extractFrontmatter splits a "---\nYAML\n---\nbody" document, mirroring
// internal/skills/loader.go's extractFrontmatter delimiter-walking approach,
// extended to also return the trailing body (the state's prompt text).
func extractFrontmatter(contents string) (frontmatter, string, error) {
	const delim = "---"
	lines := strings.Split(contents, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != delim {
		return frontmatter{}, "", fmt.Errorf("missing YAML frontmatter delimited by ---")
	}
	var fmLines []string
	i := 1
	closed := false
	for ; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == delim {
			closed = true
			i++
			break
		}
		fmLines = append(fmLines, lines[i])
	}
	if !closed || len(fmLines) == 0 {
		return frontmatter{}, "", fmt.Errorf("missing YAML frontmatter delimited by ---")
	}

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(strings.Join(fmLines, "\n")), &fm); err != nil {
		return frontmatter{}, "", fmt.Errorf("invalid YAML: %w", err)
	}

	body := strings.Join(lines[i:], "\n")
	return fm, body, nil
}
