package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.Connect("u", "c1"), "first connection")
	assert.False(t, r.Connect("u", "c2"))
	assert.True(t, r.IsOnline("u"))
	assert.ElementsMatch(t, []string{"c1", "c2"}, r.Connections("u"))
	assert.Equal(t, 1, r.OnlineCount())

	assert.False(t, r.Disconnect("u", "c1"))
	assert.True(t, r.IsOnline("u"), "one connection remains")

	assert.False(t, r.Disconnect("u", "unknown"))
	assert.True(t, r.Disconnect("u", "c2"), "last connection")
	assert.False(t, r.IsOnline("u"))
	assert.Empty(t, r.Connections("u"))
	assert.Equal(t, 0, r.OnlineCount())

	assert.False(t, r.Disconnect("u", "c2"), "already gone")
}
