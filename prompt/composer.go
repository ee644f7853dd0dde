package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/promptline/promptline/logger"
	"gopkg.in/yaml.v3"
)

// Role tags a message with its conversational origin.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the supported roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is one role-tagged unit of a composed prompt. Ordering is
// significant; providers apply messages in list order.
type Message struct {
	Role    Role   `yaml:"role" json:"role"`
	Content string `yaml:"content" json:"content"`
}

// Loader is the template source the composer reads from.
type Loader interface {
	Load(name string) (string, error)
}

// Composer renders named templates against a context mapping and
// assembles the role-tagged fragments they produce into one ordered
// message list. Each template must render to a YAML sequence (or single
// mapping) of role/content pairs.
type Composer struct {
	loader Loader
	logger logger.Logger
}

func NewComposer(loader Loader, log logger.Logger) *Composer {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Composer{loader: loader, logger: log}
}

// Templates see only the render context plus these pure string helpers.
var composeFuncs = template.FuncMap{
	"lower":     strings.ToLower,
	"upper":     strings.ToUpper,
	"trim":      strings.TrimSpace,
	"join":      strings.Join,
	"contains":  strings.Contains,
	"hasPrefix": strings.HasPrefix,
	"hasSuffix": strings.HasSuffix,
	"toJson": func(v interface{}) (string, error) {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", err
		}
		return string(b), nil
	},
	"indent": func(n int, s string) string {
		pad := strings.Repeat(" ", n)
		lines := strings.Split(s, "\n")
		for i, line := range lines {
			if line != "" {
				lines[i] = pad + line
			}
		}
		return strings.Join(lines, "\n")
	},
}

var missingKeyRe = regexp.MustCompile(`map has no entry for key "([^"]+)"`)

// Compose loads and renders each named template against context, in order,
// and concatenates the resulting fragments into one flat message list,
// preserving relative order within and across templates. An undefined
// variable reference fails the render; it is never substituted with empty
// text.
func (c *Composer) Compose(names []string, context map[string]interface{}) ([]Message, error) {
	var messages []Message
	for _, name := range names {
		rendered, err := c.render(name, context)
		if err != nil {
			return nil, err
		}
		fragment, err := parseFragment(name, rendered)
		if err != nil {
			return nil, err
		}
		messages = append(messages, fragment...)
	}
	c.logger.WithField("templates", len(names)).WithField("messages", len(messages)).Debug("composed prompt")
	return messages, nil
}

func (c *Composer) render(name string, context map[string]interface{}) (string, error) {
	text, err := c.loader.Load(name)
	if err != nil {
		return "", err
	}

	tmpl, err := template.New(name).Funcs(composeFuncs).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", &RenderError{Template: name, Err: err}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, context); err != nil {
		renderErr := &RenderError{Template: name, Err: err}
		if m := missingKeyRe.FindStringSubmatch(err.Error()); m != nil {
			renderErr.Var = m[1]
		}
		return "", renderErr
	}
	return buf.String(), nil
}

type rawMessage struct {
	Role    string `yaml:"role"`
	Content string `yaml:"content"`
}

// parseFragment interprets one rendered template as a YAML message list.
// A single mapping is accepted and wrapped in a one-element list.
func parseFragment(name, rendered string) ([]Message, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(rendered), &doc); err != nil {
		return nil, &ComposeError{Template: name, Reason: fmt.Sprintf("rendered fragment is not valid YAML: %v", err)}
	}
	if len(doc.Content) == 0 {
		return nil, &ComposeError{Template: name, Reason: "rendered fragment is empty"}
	}

	root := doc.Content[0]
	var raw []rawMessage
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&raw); err != nil {
			return nil, &ComposeError{Template: name, Reason: fmt.Sprintf("fragment is not a list of role/content pairs: %v", err)}
		}
	case yaml.MappingNode:
		var one rawMessage
		if err := root.Decode(&one); err != nil {
			return nil, &ComposeError{Template: name, Reason: fmt.Sprintf("fragment is not a role/content pair: %v", err)}
		}
		raw = []rawMessage{one}
	default:
		return nil, &ComposeError{Template: name, Reason: "fragment must be a sequence or mapping of role/content pairs"}
	}

	messages := make([]Message, 0, len(raw))
	for i, m := range raw {
		if m.Role == "" {
			return nil, &ComposeError{Template: name, Reason: fmt.Sprintf("message %d is missing a role", i)}
		}
		role := Role(m.Role)
		if !role.Valid() {
			return nil, &ComposeError{Template: name, Reason: fmt.Sprintf("message %d has unknown role %q", i, m.Role)}
		}
		if m.Content == "" {
			return nil, &ComposeError{Template: name, Reason: fmt.Sprintf("message %d is missing content", i)}
		}
		messages = append(messages, Message{Role: role, Content: m.Content})
	}
	return messages, nil
}
