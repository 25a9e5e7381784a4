package core

import (
	"context"
	"testing"

	"agentchat/engine"
	"agentchat/engine/enginetest"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	logger, hook := test.NewNullLogger()
	registry := NewRegistry(logger)
	eng := &enginetest.Engine{}

	newSession := func() engine.Session {
		s, err := eng.CreateSession(context.Background(), engine.SessionConfig{})
		require.NoError(t, err)
		return s
	}
	first, second := newSession(), newSession()

	_, ok := registry.Get("conn-a")
	assert.False(t, ok)

	registry.Put("conn-a", first)
	registry.Put("conn-b", second)
	assert.Equal(t, 2, registry.Len())
	assert.Equal(t, 2, registry.Stats().TotalSessions)

	got, ok := registry.Get("conn-a")
	require.True(t, ok)
	assert.Equal(t, first.ID(), got.ID())

	removed, ok := registry.Remove("conn-a")
	require.True(t, ok)
	assert.Equal(t, first.ID(), removed.ID())
	_, ok = registry.Remove("conn-a")
	assert.False(t, ok)

	registry.Put("conn-b", first)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "Registry entry replaced without removal", hook.LastEntry().Message)

	drained := registry.Drain()
	assert.Len(t, drained, 1)
	assert.Equal(t, first.ID(), drained["conn-b"].ID())
	assert.Equal(t, 0, registry.Len())
	assert.Nil(t, registry.Stats().OldestSession)
}
