package models

import "strings"

// Matcher is a predicate over job or trigger keys, used to select sets of
// entities for pause/resume, queries and listener registration.
type Matcher interface {
	Matches(key Key) bool
}

// StringOp is the comparison applied by name and group matchers.
type StringOp int

const (
	OpEquals StringOp = iota
	OpStartsWith
	OpEndsWith
	OpContains
)

func (op StringOp) apply(value, against string) bool {
	switch op {
	case OpStartsWith:
		return strings.HasPrefix(value, against)
	case OpEndsWith:
		return strings.HasSuffix(value, against)
	case OpContains:
		return strings.Contains(value, against)
	default:
		return value == against
	}
}

// KeyMatcher matches exactly one key.
type KeyMatcher struct{ Key Key }

func (m KeyMatcher) Matches(key Key) bool { return key == m.Key }

// GroupMatcher compares the key's group against a value.
type GroupMatcher struct {
	Op    StringOp
	Value string
}

func (m GroupMatcher) Matches(key Key) bool { return m.Op.apply(key.Group, m.Value) }

// NameMatcher compares the key's name against a value.
type NameMatcher struct {
	Op    StringOp
	Value string
}

func (m NameMatcher) Matches(key Key) bool { return m.Op.apply(key.Name, m.Value) }

// GroupEquals matches keys in exactly the given group.
func GroupEquals(group string) GroupMatcher {
	return GroupMatcher{Op: OpEquals, Value: group}
}

// GroupStartsWith matches keys whose group has the given prefix.
func GroupStartsWith(prefix string) GroupMatcher {
	return GroupMatcher{Op: OpStartsWith, Value: prefix}
}

// GroupEndsWith matches keys whose group has the given suffix.
func GroupEndsWith(suffix string) GroupMatcher {
	return GroupMatcher{Op: OpEndsWith, Value: suffix}
}

// GroupContains matches keys whose group contains the given substring.
func GroupContains(sub string) GroupMatcher {
	return GroupMatcher{Op: OpContains, Value: sub}
}

// NameEquals matches keys with exactly the given name.
func NameEquals(name string) NameMatcher {
	return NameMatcher{Op: OpEquals, Value: name}
}

// MatchKey matches exactly the given key.
func MatchKey(key Key) KeyMatcher { return KeyMatcher{Key: key} }

// EverythingMatcher matches all keys.
type EverythingMatcher struct{}

func (EverythingMatcher) Matches(Key) bool { return true }

// MatchEverything matches all keys.
func MatchEverything() EverythingMatcher { return EverythingMatcher{} }

// AndMatcher matches when all operands match.
type AndMatcher struct{ Operands []Matcher }

func (m AndMatcher) Matches(key Key) bool {
	for _, op := range m.Operands {
		if !op.Matches(key) {
			return false
		}
	}
	return true
}

// OrMatcher matches when any operand matches.
type OrMatcher struct{ Operands []Matcher }

func (m OrMatcher) Matches(key Key) bool {
	for _, op := range m.Operands {
		if op.Matches(key) {
			return true
		}
	}
	return false
}

// NotMatcher inverts its operand.
type NotMatcher struct{ Operand Matcher }

func (m NotMatcher) Matches(key Key) bool { return !m.Operand.Matches(key) }

// And combines matchers conjunctively.
func And(ms ...Matcher) AndMatcher { return AndMatcher{Operands: ms} }

// Or combines matchers disjunctively.
func Or(ms ...Matcher) OrMatcher { return OrMatcher{Operands: ms} }

// Not inverts a matcher.
func Not(m Matcher) NotMatcher { return NotMatcher{Operand: m} }
