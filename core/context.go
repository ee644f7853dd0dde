package core

import "sort"

// Context is the shared mutable state a chain's steps communicate
// through. Writing to an existing key overwrites the previous value.
// A Context belongs to exactly one run; it is not synchronized, so
// concurrent runs each need their own.
type Context struct {
	values map[string]interface{}
}

func NewContext() *Context {
	return &Context{values: make(map[string]interface{})}
}

func (c *Context) Set(key string, value interface{}) {
	c.values[key] = value
}

func (c *Context) Get(key string) (interface{}, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Value returns the value under key, or nil when absent.
func (c *Context) Value(key string) interface{} {
	return c.values[key]
}

func (c *Context) Has(key string) bool {
	_, ok := c.values[key]
	return ok
}

func (c *Context) Len() int {
	return len(c.values)
}

func (c *Context) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a shallow copy of the current values, suitable for
// use as a template render context.
func (c *Context) Snapshot() map[string]interface{} {
	snapshot := make(map[string]interface{}, len(c.values))
	for k, v := range c.values {
		snapshot[k] = v
	}
	return snapshot
}
