package hook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainkit/trainkit/pkg/utils"
)

func TestHookSet_Attach_RejectsDuplicate(t *testing.T) {
	hs := NewLocalHookSet(2, nil)
	h := &Hook{Name: "a"}

	ok, err := hs.Attach(h)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hs.Attach(h)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, hs.Attached(), 1)
}

func TestHookSet_Attach_RejectsFunctionallyEqual(t *testing.T) {
	hs := NewLocalHookSet(2, nil)
	a := &Hook{Name: "a", FunctionalKey: "loss"}
	b := &Hook{Name: "b", FunctionalKey: "loss"}

	ok, err := hs.Attach(a)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hs.Attach(b)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, hs.Attached(), 1)
}

func TestHookSet_Attach_PullsInRequiredHooks(t *testing.T) {
	hs := NewLocalHookSet(2, nil)
	dep := &Hook{Name: "dep"}
	h := &Hook{Name: "h", RequiredHooks: []*Hook{dep}}

	ok, err := hs.Attach(h)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Len(t, hs.Attached(), 2)
	assert.Equal(t, []*Hook{dep}, hs.ResolvedRequired(h))
}

func TestHookSet_Attach_DedupsRequiredHookAgainstExisting(t *testing.T) {
	hs := NewLocalHookSet(2, nil)
	shared := &Hook{Name: "shared", FunctionalKey: "shared"}
	sharedEquivalent := &Hook{Name: "shared-equivalent", FunctionalKey: "shared"}

	_, err := hs.Attach(shared)
	require.NoError(t, err)

	h := &Hook{Name: "h", RequiredHooks: []*Hook{sharedEquivalent}}
	_, err = hs.Attach(h)
	require.NoError(t, err)

	assert.Equal(t, []*Hook{shared}, hs.ResolvedRequired(h))
	assert.Len(t, hs.Attached(), 2)
}

func TestHookSet_Attach_DetectsCycle(t *testing.T) {
	hs := NewLocalHookSet(2, nil)
	a := &Hook{Name: "a"}
	b := &Hook{Name: "b"}
	a.RequiredHooks = []*Hook{b}
	b.RequiredHooks = []*Hook{a}

	_, err := hs.Attach(a)
	assert.Error(t, err)
}

func TestHookSet_Detach_RefusesWithLiveDependents(t *testing.T) {
	hs := NewLocalHookSet(2, nil)
	dep := &Hook{Name: "dep"}
	h := &Hook{Name: "h", RequiredHooks: []*Hook{dep}}
	_, err := hs.Attach(h)
	require.NoError(t, err)

	ok, err := hs.Detach(dep)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestHookSet_Detach_CascadesOrphanedRequiredHooks(t *testing.T) {
	hs := NewLocalHookSet(2, nil)
	dep := &Hook{Name: "dep"}
	h := &Hook{Name: "h", RequiredHooks: []*Hook{dep}}
	_, err := hs.Attach(h)
	require.NoError(t, err)

	ok, err := hs.Detach(h)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, hs.Attached())
}

func TestHookSet_Detach_KeepsRequiredHookIfAlsoUserAttached(t *testing.T) {
	hs := NewLocalHookSet(2, nil)
	dep := &Hook{Name: "dep"}
	h := &Hook{Name: "h", RequiredHooks: []*Hook{dep}}

	_, err := hs.Attach(dep)
	require.NoError(t, err)
	_, err = hs.Attach(h)
	require.NoError(t, err)

	ok, err := hs.Detach(h)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, hs.Attached(), 1)
}

func TestHookSet_MarkDead_CollectsWhenAllWorkersClear(t *testing.T) {
	hs := NewLocalHookSet(2, utils.GetGlobalLogger())
	h := &Hook{Name: "h"}
	_, err := hs.Attach(h)
	require.NoError(t, err)

	hs.MarkDead(h, 0)
	assert.Len(t, hs.Attached(), 1)

	hs.MarkDead(h, 1)
	assert.Empty(t, hs.Attached())
}

func TestHookSet_MarkDead_LocalOnly(t *testing.T) {
	local := NewLocalHookSet(1, nil)
	global := NewGlobalHookSet(nil)

	h := &Hook{Name: "shared"}
	_, err := local.Attach(h)
	require.NoError(t, err)
	_, err = global.Attach(h)
	require.NoError(t, err)

	local.MarkDead(h, 0)

	assert.Empty(t, local.Attached())
	assert.Len(t, global.Attached(), 1)
}
