package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DefaultGroup is the group applied when a caller supplies only a name.
const DefaultGroup = "DEFAULT"

// Key identifies a job or trigger by (name, group). Keys are immutable;
// equality and ordering derive from both fields.
type Key struct {
	Name  string `json:"name"`
	Group string `json:"group"`
}

// NewKey builds a key in the default group.
func NewKey(name string) Key {
	return Key{Name: name, Group: DefaultGroup}
}

// NewKeyWithGroup builds a key in the given group; an empty group maps to
// the default group.
func NewKeyWithGroup(name, group string) Key {
	if group == "" {
		group = DefaultGroup
	}
	return Key{Name: name, Group: group}
}

// UniqueKey builds a key with a generated unique name in the given group.
func UniqueKey(group string) Key {
	return NewKeyWithGroup(uuid.New().String(), group)
}

// IsZero reports whether the key is the zero value.
func (k Key) IsZero() bool { return k.Name == "" && k.Group == "" }

// String renders the key as "group.name".
func (k Key) String() string { return fmt.Sprintf("%s.%s", k.Group, k.Name) }

// Compare orders keys by group, then name. Returns -1, 0 or 1.
func (k Key) Compare(other Key) int {
	if c := strings.Compare(k.Group, other.Group); c != 0 {
		return c
	}
	return strings.Compare(k.Name, other.Name)
}
