package hemelb

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/squarefactory/polcloud-submit/polcloud"
)

// LoadTemplate reads a JSON job template.
func LoadTemplate(path string) (polcloud.JobSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading job template: %w", err)
	}
	var tmpl polcloud.JobSpec
	if err := json.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("parsing job template %s: %w", path, err)
	}
	return tmpl, nil
}

// Vars are the placeholders available to command expressions.
type Vars struct {
	XMLFile string
	GmyFile string
}

func (v Vars) lookup() map[string]string {
	return map[string]string{
		"xml_file": v.XMLFile,
		"gmy_file": v.GmyFile,
		"$":        "$",
	}
}

// BuildSpec fills tmpl in place for one run: inputs is set to the bundle id
// and every commands[].expression has its $name and ${name} placeholders
// substituted. A placeholder with no value is an error.
func BuildSpec(tmpl polcloud.JobSpec, inputs string, vars Vars) (polcloud.JobSpec, error) {
	commands, ok := tmpl["commands"].([]any)
	if !ok {
		return nil, fmt.Errorf("job template has no commands list")
	}

	values := vars.lookup()
	for i, c := range commands {
		command, ok := c.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("command %d is not an object", i)
		}
		expr, ok := command["expression"].(string)
		if !ok {
			return nil, fmt.Errorf("command %d has no expression", i)
		}
		out, err := substitute(expr, values)
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
		command["expression"] = out
	}
	tmpl["inputs"] = inputs
	return tmpl, nil
}

func substitute(expr string, values map[string]string) (string, error) {
	if err := checkPlaceholders(expr); err != nil {
		return "", err
	}
	missing := map[string]struct{}{}
	out := os.Expand(expr, func(name string) string {
		v, ok := values[name]
		if !ok {
			missing[name] = struct{}{}
		}
		return v
	})
	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for name := range missing {
			names = append(names, name)
		}
		sort.Strings(names)
		return "", fmt.Errorf("unknown placeholder %s in %q", strings.Join(names, ", "), expr)
	}
	return out, nil
}

// checkPlaceholders rejects what os.Expand would silently drop or mangle.
// Every $ must be followed by $, a name, or a braced name.
func checkPlaceholders(expr string) error {
	for i := 0; i < len(expr); i++ {
		if expr[i] != '$' {
			continue
		}
		rest := expr[i+1:]
		switch {
		case strings.HasPrefix(rest, "$"):
			i++
		case strings.HasPrefix(rest, "{"):
			end := strings.IndexByte(rest, '}')
			if end < 0 {
				return fmt.Errorf("unterminated placeholder at offset %d in %q", i, expr)
			}
			if n := nameLen(rest[1:end]); n == 0 || n != end-1 {
				return fmt.Errorf("invalid placeholder %q in %q", "$"+rest[:end+1], expr)
			}
			i += end + 1
		default:
			n := nameLen(rest)
			if n == 0 {
				return fmt.Errorf("invalid placeholder at offset %d in %q", i, expr)
			}
			i += n
		}
	}
	return nil
}

// nameLen returns the length of the placeholder name s starts with.
func nameLen(s string) int {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case '0' <= c && c <= '9' && i > 0:
		default:
			return i
		}
	}
	return len(s)
}
