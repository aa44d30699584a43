package protocol

import (
	"strconv"
	"strings"
)

// Properties is an ordered string to string mapping. Keys keep the order in
// which they were first set; overwriting a key keeps its original position.
type Properties struct {
	keys   []string
	values map[string]string
}

// NewProperties creates an empty property set
func NewProperties() *Properties {
	return &Properties{values: make(map[string]string)}
}

// Set stores value under key
func (p *Properties) Set(key, value string) {
	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Get returns the raw value for key
func (p *Properties) Get(key string) (string, bool) {
	value, ok := p.values[key]
	return value, ok
}

// Has reports whether key is present
func (p *Properties) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// Delete removes key. Deleting a missing key is a no-op.
func (p *Properties) Delete(key string) {
	if _, exists := p.values[key]; !exists {
		return
	}
	delete(p.values, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order
func (p *Properties) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Len returns the number of keys
func (p *Properties) Len() int {
	return len(p.keys)
}

// Merge copies every pair of other into p, in other's order
func (p *Properties) Merge(other *Properties) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		p.Set(k, other.values[k])
	}
}

// Clone returns an independent copy
func (p *Properties) Clone() *Properties {
	c := NewProperties()
	c.Merge(p)
	return c
}

// Map returns a plain map copy, for JSON encoding at API boundaries
func (p *Properties) Map() map[string]string {
	out := make(map[string]string, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// String returns the value for key, or def when absent
func (p *Properties) String(key, def string) string {
	if value, ok := p.values[key]; ok {
		return value
	}
	return def
}

// Bool interprets the value for key as a boolean ("true", "1", "yes", "on").
// Absent or unparsable values yield def.
func (p *Properties) Bool(key string, def bool) bool {
	value, ok := p.values[key]
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return def
	}
}

// Int interprets the value for key as a base-10 integer, or def
func (p *Properties) Int(key string, def int) int {
	value, ok := p.values[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return def
	}
	return n
}
