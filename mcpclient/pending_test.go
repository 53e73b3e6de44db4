package mcpclient

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableResolveOnce(t *testing.T) {
	t.Parallel()
	tbl := NewTable(time.Minute)
	ch := tbl.Register(1, "tools/call")
	require.True(t, tbl.Has(1))

	assert.True(t, tbl.Resolve(1, json.RawMessage(`{"ok":true}`)))
	assert.False(t, tbl.Resolve(1, json.RawMessage(`{"ok":false}`)), "second settle must be ignored")
	assert.False(t, tbl.Reject(1, errors.New("late")))

	out := <-ch
	require.NoError(t, out.Err)
	assert.JSONEq(t, `{"ok":true}`, string(out.Result))
	assert.Equal(t, 0, tbl.Len())
}

func TestTableUnknownIDIsNoop(t *testing.T) {
	t.Parallel()
	tbl := NewTable(time.Minute)
	assert.False(t, tbl.Resolve(42, nil))
	assert.False(t, tbl.Reject(42, errors.New("x")))
}

func TestTableExpiry(t *testing.T) {
	t.Parallel()
	tbl := NewTable(20 * time.Millisecond)
	ch := tbl.Register(5, "tools/call")

	select {
	case out := <-ch:
		var te *TimeoutError
		require.ErrorAs(t, out.Err, &te)
		assert.Equal(t, "MCP request timeout for tools/call (ID: 5)", te.Error())
	case <-time.After(2 * time.Second):
		t.Fatal("entry never expired")
	}
	assert.False(t, tbl.Has(5))
	// a late response is discarded
	assert.False(t, tbl.Resolve(5, json.RawMessage(`{}`)))
}

func TestTableRejectAll(t *testing.T) {
	t.Parallel()
	tbl := NewTable(time.Minute)
	a := tbl.Register(1, "a")
	b := tbl.Register(2, "b")
	method, ok := tbl.Method(2)
	require.True(t, ok)
	assert.Equal(t, "b", method)

	assert.Equal(t, 2, tbl.RejectAll(ErrDisconnected))
	assert.ErrorIs(t, (<-a).Err, ErrDisconnected)
	assert.ErrorIs(t, (<-b).Err, ErrDisconnected)
	assert.Equal(t, 0, tbl.Len())
	assert.Equal(t, 0, tbl.RejectAll(ErrDisconnected))
}
