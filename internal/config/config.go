// Package config provides typed access over an already-parsed key/value
// store. Reading the store from a file or the command line is out of scope
// for the core — this package only wraps whatever
// map the caller already produced, the way the pack's ftl-panacotta/core/cfg
// wraps a loaded key/value section with typed getters.
package config

import (
	"strconv"
	"strings"
)

// Store is an immutable, already-parsed key/value configuration. It is
// handed to the daemon and every subsystem that needs a tunable; nothing in
// the core mutates it after startup.
type Store struct {
	values map[string]string
}

// New wraps a parsed key/value map. The map is copied so later mutation by
// the caller cannot leak into the daemon's view of its own configuration.
func New(values map[string]string) Store {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[strings.ToLower(k)] = v
	}
	return Store{values: copied}
}

func (s Store) lookup(key string) (string, bool) {
	v, ok := s.values[strings.ToLower(key)]
	return v, ok
}

// String returns the string value for key, or def if absent.
func (s Store) String(key, def string) string {
	if v, ok := s.lookup(key); ok {
		return v
	}
	return def
}

// Int returns the integer value for key, or def if absent or unparsable.
func (s Store) Int(key string, def int) int {
	v, ok := s.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// Float64 returns the float value for key, or def if absent or unparsable.
func (s Store) Float64(key string, def float64) float64 {
	v, ok := s.lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def
	}
	return f
}

// Bool returns the boolean value for key, or def if absent or unparsable.
func (s Store) Bool(key string, def bool) bool {
	v, ok := s.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

// Has reports whether key is present in the store at all, distinguishing
// "explicitly set to the zero value" from "not configured".
func (s Store) Has(key string) bool {
	_, ok := s.lookup(key)
	return ok
}
