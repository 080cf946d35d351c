package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_SetGet(t *testing.T) {
	r := New()
	r.Set("epoch", 1)

	v, ok := r.Get("epoch")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_ParentFallthrough(t *testing.T) {
	parent := New()
	parent.Set("shared_value", 42)

	child := parent.NewChild("shared")
	v, ok := child.Get("shared_value")
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	// Child shadows parent.
	child.Set("shared_value", 99)
	v, ok = child.Get("shared_value")
	assert.True(t, ok)
	assert.Equal(t, 99, v)

	pv, _ := parent.Get("shared_value")
	assert.Equal(t, 42, pv)
}

func TestRegistry_Tags(t *testing.T) {
	r := New("shared", "local")
	assert.True(t, r.HasTag("shared"))
	assert.True(t, r.HasTag("local"))
	assert.False(t, r.HasTag("global"))
	assert.ElementsMatch(t, []string{"local", "shared"}, r.Tags())
}

func TestRegistry_Delete(t *testing.T) {
	r := New()
	r.Set("a", 1)
	r.Delete("a")
	assert.False(t, r.Has("a"))
}

func TestRegistry_Keys_ChildShadowsParentOrder(t *testing.T) {
	parent := New()
	parent.Set("a", 1)
	parent.Set("b", 2)

	child := parent.NewChild()
	child.Set("c", 3)
	child.Set("a", 10)

	keys := child.Keys()
	assert.ElementsMatch(t, []string{"a", "b", "c"}, keys)
}

func TestRegistry_Snapshot(t *testing.T) {
	r := New()
	r.Set("network", "net-ref")
	r.Set("epoch", 2)
	r.Set("iteration", 7)

	snap := r.Snapshot([]string{"network", "epoch", "missing"})
	assert.Equal(t, map[string]any{"network": "net-ref", "epoch": 2}, snap)
}

func TestRegistry_SnapshotIsolatedFromLaterWrites(t *testing.T) {
	r := New()
	r.Set("iteration", 1)

	snap := r.Snapshot([]string{"iteration"})
	r.Set("iteration", 2)

	assert.Equal(t, 1, snap["iteration"])
}
