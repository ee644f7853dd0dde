package prompt

import "fmt"

// NotFoundError reports a template name with no backing file in the store.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("template %q not found", e.Name)
}

// RenderError reports a failed template render. Var carries the missing
// variable name when the failure was an undefined reference.
type RenderError struct {
	Template string
	Var      string
	Err      error
}

func (e *RenderError) Error() string {
	if e.Var != "" {
		return fmt.Sprintf("rendering template %q: undefined variable %q", e.Template, e.Var)
	}
	return fmt.Sprintf("rendering template %q: %v", e.Template, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// ComposeError reports a rendered fragment that does not form a valid
// message list.
type ComposeError struct {
	Template string
	Reason   string
}

func (e *ComposeError) Error() string {
	return fmt.Sprintf("composing template %q: %s", e.Template, e.Reason)
}
