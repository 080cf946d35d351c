package hook

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trainkit/trainkit/internal/registry"
)

func TestHook_Equals_PointerIdentity(t *testing.T) {
	h := &Hook{Name: "a"}
	assert.True(t, h.Equals(h))
}

func TestHook_Equals_FunctionalKey(t *testing.T) {
	a := &Hook{Name: "a", FunctionalKey: "loss"}
	b := &Hook{Name: "b", FunctionalKey: "loss"}
	assert.True(t, a.Equals(b))
}

func TestHook_Equals_EmptyKeyNeverMatchesAnotherHook(t *testing.T) {
	a := &Hook{Name: "a"}
	b := &Hook{Name: "b"}
	assert.False(t, a.Equals(b))
}

func TestHook_Equals_DifferentKeys(t *testing.T) {
	a := &Hook{Name: "a", FunctionalKey: "loss"}
	b := &Hook{Name: "b", FunctionalKey: "accuracy"}
	assert.False(t, a.Equals(b))
}

func TestHook_Invoke_CallsFn(t *testing.T) {
	called := false
	h := &Hook{Fn: func(reg *registry.Registry, res *registry.Resolver) { called = true }}
	h.Invoke(nil, nil)
	assert.True(t, called)
}
