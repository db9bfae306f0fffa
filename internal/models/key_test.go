package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewKeyUsesDefaultGroup(t *testing.T) {
	k := NewKey("reports")
	assert.Equal(t, "reports", k.Name)
	assert.Equal(t, DefaultGroup, k.Group)
	assert.Equal(t, "DEFAULT.reports", k.String())
}

func TestNewKeyWithGroupEmptyGroupFallsBack(t *testing.T) {
	assert.Equal(t, DefaultGroup, NewKeyWithGroup("j", "").Group)
	assert.Equal(t, "batch", NewKeyWithGroup("j", "batch").Group)
}

func TestUniqueKeyGeneratesDistinctNames(t *testing.T) {
	a := UniqueKey("manual")
	b := UniqueKey("manual")
	assert.Equal(t, "manual", a.Group)
	assert.NotEqual(t, a.Name, b.Name)
	assert.NotEmpty(t, a.Name)
}

func TestKeyCompareOrdersByGroupThenName(t *testing.T) {
	assert.Equal(t, 0, NewKey("a").Compare(NewKey("a")))
	assert.Equal(t, -1, NewKeyWithGroup("z", "a").Compare(NewKeyWithGroup("a", "b")))
	assert.Equal(t, 1, NewKeyWithGroup("b", "g").Compare(NewKeyWithGroup("a", "g")))
}

func TestKeyIsZero(t *testing.T) {
	assert.True(t, Key{}.IsZero())
	assert.False(t, NewKey("x").IsZero())
}
