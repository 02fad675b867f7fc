package assets

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// frontmatter holds the handful of scalar keys the scanner actually
// consumes (spec §4.6: "Parses only YAML frontmatter"). A full YAML
// parser is deliberately not used here — see DESIGN.md — since the keys
// consumed are a fixed, small, flat set.
type frontmatter map[string]string

func (f frontmatter) get(key string) string { return f[key] }

func (f frontmatter) capabilities() map[string]bool {
	caps := map[string]bool{}
	if v := strings.ToLower(f.get("exec")); v == "true" {
		caps["exec"] = true
	}
	if v := strings.ToLower(f.get("network")); v == "true" {
		caps["network"] = true
	}
	return caps
}

// readFrontmatter reads path's leading "---"-delimited YAML frontmatter
// block and extracts it with a line-oriented "key: value" reader. A file
// with no frontmatter block returns (nil, nil) rather than an error —
// absence is not malformed.
func readFrontmatter(path string) (frontmatter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	text := string(data)
	if !strings.HasPrefix(text, "---\n") && !strings.HasPrefix(text, "---\r\n") {
		return nil, nil
	}
	rest := text[strings.Index(text, "\n")+1:]
	end := strings.Index(rest, "\n---")
	if end == -1 {
		return nil, fmt.Errorf("unterminated frontmatter block (missing closing ---)")
	}
	block := rest[:end]

	fm := frontmatter{}
	var currentKey string
	for _, line := range strings.Split(block, "\n") {
		trimmed := strings.TrimRight(line, "\r")
		if strings.TrimSpace(trimmed) == "" {
			continue
		}
		if strings.HasPrefix(trimmed, " ") || strings.HasPrefix(trimmed, "\t") {
			// continuation of a block scalar or list item; appended verbatim
			// to the current key rather than parsed structurally, since the
			// scanner only consumes flat scalar values.
			if currentKey != "" {
				fm[currentKey] = strings.TrimSpace(fm[currentKey] + " " + strings.TrimSpace(trimmed))
			}
			continue
		}
		idx := strings.Index(trimmed, ":")
		if idx == -1 {
			continue
		}
		key := strings.TrimSpace(trimmed[:idx])
		val := strings.TrimSpace(trimmed[idx+1:])
		val = strings.Trim(val, `"'`)
		fm[key] = val
		currentKey = key
	}
	return fm, nil
}

const (
	pep723Start = "# /// script"
	pep723End   = "# ///"
)

type pep723Payload struct {
	RequiresPython string   `toml:"requires-python"`
	Dependencies   []string `toml:"dependencies"`
}

// readPep723 extracts and parses the first "# /// script" metadata block
// from a Python source file, following the structural grammar of
// original_source/botpack/pep723.py: a run of comment lines between the
// start and end markers, each stripped of its leading "# " prefix, is
// valid TOML describing the script's own dependencies.
func readPep723(path string) (*PythonScriptMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	payload, err := extractPep723Toml(string(data))
	if err != nil {
		return nil, err
	}
	if payload == "" {
		return nil, nil
	}
	var p pep723Payload
	if err := toml.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("malformed PEP 723 block: %w", err)
	}
	return &PythonScriptMeta{RequiresPython: p.RequiresPython, Dependencies: p.Dependencies}, nil
}

func extractPep723Toml(source string) (string, error) {
	lines := strings.Split(source, "\n")
	start := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == pep723Start {
			start = i
			break
		}
	}
	if start == -1 {
		return "", nil
	}
	var payload []string
	for j := start + 1; j < len(lines); j++ {
		marker := strings.TrimSpace(lines[j])
		if marker == pep723End {
			return strings.Join(payload, "\n"), nil
		}
		raw := strings.TrimLeft(lines[j], " \t")
		if !strings.HasPrefix(raw, "#") {
			return "", fmt.Errorf("PEP 723 block lines must be comments starting with '#'")
		}
		content := strings.TrimPrefix(raw, "#")
		content = strings.TrimPrefix(content, " ")
		payload = append(payload, content)
	}
	return "", fmt.Errorf("PEP 723 block start found but end marker %q missing", pep723End)
}
