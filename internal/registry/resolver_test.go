package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolver_GlobSingleSegment(t *testing.T) {
	r := New()
	r.Set("layers.0.weight", 1)
	r.Set("layers.0.bias", 2)
	r.Set("layers.1.weight", 3)
	r.Set("optimiser.lr", 0.1)

	res := NewResolver(r)
	matched := res.Resolve("layers.*.*")

	assert.ElementsMatch(t, []string{"layers.0.weight", "layers.0.bias", "layers.1.weight"}, matched)
}

func TestResolver_ExactMatch(t *testing.T) {
	r := New()
	r.Set("layers.0.weight", 1)
	r.Set("layers.0.bias", 2)

	res := NewResolver(r)
	matched := res.Resolve("layers.0.weight")

	assert.Equal(t, []string{"layers.0.weight"}, matched)
}

func TestResolver_CacheInvalidatedOnMutation(t *testing.T) {
	r := New()
	r.Set("layers.0.weight", 1)

	res := NewResolver(r)
	first := res.Resolve("layers.*.*")
	assert.Len(t, first, 1)

	r.Set("layers.1.weight", 2)

	second := res.Resolve("layers.*.*")
	assert.Len(t, second, 2)
}

func TestResolver_ResolvesAcrossParent(t *testing.T) {
	parent := New()
	parent.Set("layers.0.weight", 1)

	child := parent.NewChild()
	child.Set("layers.1.weight", 2)

	res := NewResolver(child)
	matched := res.Resolve("layers.*.*")

	assert.ElementsMatch(t, []string{"layers.0.weight", "layers.1.weight"}, matched)
}

func TestResolver_NoMatch(t *testing.T) {
	r := New()
	r.Set("optimiser.lr", 0.1)

	res := NewResolver(r)
	matched := res.Resolve("layers.*.*")

	assert.Empty(t, matched)
}
