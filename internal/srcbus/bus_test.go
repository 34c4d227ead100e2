package srcbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/srcstate"
)

func TestBus_PublishFansOutToSubscribers(t *testing.T) {
	logger := zaptest.NewLogger(t)
	bus, err := New(Config{Driver: "gochannel", TopicPrefix: "test."}, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, bus.Start(ctx))
	defer bus.Stop()

	var mu sync.Mutex
	var received []srcstate.StateTransition
	done := make(chan struct{}, 1)

	bus.Subscribe(func(tr srcstate.StateTransition) {
		mu.Lock()
		received = append(received, tr)
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
	})

	transition := srcstate.StateTransition{
		ID:        "1",
		From:      srcstate.Running,
		To:        srcstate.HaltedSoft,
		Timestamp: time.Now(),
	}
	require.NoError(t, bus.PublishStateTransition(transition))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscriber fanout")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	require.Equal(t, srcstate.HaltedSoft, received[0].To)
}
