package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockEventHandler records the events it receives.
type MockEventHandler struct {
	HandledCount int
	LastEvent    *Event
	HandlerError error
}

// HandleEvent implements EventHandler.
func (m *MockEventHandler) HandleEvent(_ context.Context, event *Event) error {
	m.HandledCount++
	m.LastEvent = event
	return m.HandlerError
}

func TestNewEvent(t *testing.T) {
	type payload struct {
		Pending int    `json:"pending"`
		Error   string `json:"error"`
	}
	now := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)

	event, err := NewEvent(TypeStatusChanged, payload{Pending: 3, Error: "offline"}, now)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, TypeStatusChanged, event.Type)
	assert.Equal(t, now, event.CreatedAt)

	var decoded payload
	require.NoError(t, event.UnmarshalPayload(&decoded))
	assert.Equal(t, payload{Pending: 3, Error: "offline"}, decoded)

	_, err = NewEvent(TypeStatusChanged, make(chan int), now)
	assert.Error(t, err, "unserializable payload")
}

func TestHandlerFunc(t *testing.T) {
	called := false
	h := HandlerFunc(func(context.Context, *Event) error {
		called = true
		return errors.New("nope")
	})
	assert.EqualError(t, h.HandleEvent(context.Background(), &Event{}), "nope")
	assert.True(t, called)
}
