package xtransport

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConsole(t *testing.T) *Transport {
	t.Helper()
	tr, err := NewConsole(ConsoleConfig{Writer: &bytes.Buffer{}})
	require.NoError(t, err)
	return tr
}

func TestRegistry_SetAndGet(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	tr := newTestConsole(t)
	defer tr.Close(context.Background()) //nolint:errcheck

	require.NoError(t, reg.Set("main", tr))

	got, ok := reg.Get("main")
	assert.True(t, ok)
	assert.Same(t, tr, got)

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_SetRejectsDuplicate(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	t1 := newTestConsole(t)
	t2 := newTestConsole(t)
	defer t1.Close(context.Background()) //nolint:errcheck
	defer t2.Close(context.Background()) //nolint:errcheck

	require.NoError(t, reg.Set("main", t1))
	assert.ErrorIs(t, reg.Set("main", t2), ErrAlreadyRegistered)

	got, _ := reg.Get("main")
	assert.Same(t, t1, got, "普通 Set 不得覆盖")
}

func TestRegistry_ForceSetOverrides(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	t1 := newTestConsole(t)
	t2 := newTestConsole(t)
	defer t1.Close(context.Background()) //nolint:errcheck
	defer t2.Close(context.Background()) //nolint:errcheck

	require.NoError(t, reg.Set("main", t1))
	old := reg.ForceSet("main", t2)

	assert.Same(t, t1, old, "返回被替换的旧实例")
	got, _ := reg.Get("main")
	assert.Same(t, t2, got)
}

func TestRegistry_NilTransport(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	assert.ErrorIs(t, reg.Set("x", nil), ErrNilTransport)
	assert.Nil(t, reg.ForceSet("x", nil))
}

func TestRegistry_CloseAll(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	t1 := newTestConsole(t)
	t2 := newTestConsole(t)
	require.NoError(t, reg.Set("a", t1))
	require.NoError(t, reg.Set("b", t2))

	require.NoError(t, reg.CloseAll(context.Background()))
	assert.Empty(t, reg.Names())

	// 关闭后的 Log 走拒绝路径，证明 transport 确已关闭
	t1.Log(entry("late"))
	assert.Equal(t, t1.Requested(), t1.Processed())
}
