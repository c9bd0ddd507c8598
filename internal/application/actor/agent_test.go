package actor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/carfactory-go/internal/application/actor"
	"github.com/andrescamacho/carfactory-go/internal/domain/shared"
)

type ping struct {
	n     int
	reply chan<- int
}

func collectingHandler(mu *sync.Mutex, seen *[]int, done chan<- struct{}, want int) actor.Handler[ping] {
	return func(ctx context.Context, msg ping) {
		mu.Lock()
		defer mu.Unlock()
		*seen = append(*seen, msg.n)
		if len(*seen) == want {
			close(done)
		}
	}
}

func TestAgent_DeliversInSendOrder(t *testing.T) {
	// Arrange
	agent := actor.NewAgent[ping]("pinger", shared.NewMockClock(time.Time{}))
	var mu sync.Mutex
	var seen []int
	done := make(chan struct{})

	// Messages told before Start queue up
	for i := 1; i <= 50; i++ {
		require.True(t, agent.Tell(ping{n: i}))
	}

	// Act
	require.NoError(t, agent.Start(context.Background(), collectingHandler(&mu, &seen, done, 100)))
	for i := 51; i <= 100; i++ {
		require.True(t, agent.Tell(ping{n: i}))
	}

	// Assert
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not drain its mailbox")
	}
	agent.Stop()

	mu.Lock()
	defer mu.Unlock()
	for i, n := range seen {
		assert.Equal(t, i+1, n)
	}
	assert.Equal(t, uint64(100), agent.Processed())
	assert.Equal(t, shared.LifecycleStatusStopped, agent.Status())
}

func TestAgent_TellAfterStopIsDropped(t *testing.T) {
	agent := actor.NewAgent[ping]("pinger", nil)
	require.NoError(t, agent.Start(context.Background(), func(ctx context.Context, msg ping) {}))

	agent.Stop()

	assert.False(t, agent.Tell(ping{n: 1}))
	assert.Equal(t, 0, agent.Pending())
}

func TestAgent_TimerAfterStopIsDropped(t *testing.T) {
	// Arrange
	clock := shared.NewMockClock(time.Time{})
	agent := actor.NewAgent[ping]("pinger", clock)
	handled := make(chan int, 1)
	require.NoError(t, agent.Start(context.Background(), func(ctx context.Context, msg ping) {
		handled <- msg.n
	}))
	agent.TellAfter(time.Second, ping{n: 7})

	// Act
	agent.Stop()
	clock.Advance(2 * time.Second)

	// Assert
	select {
	case n := <-handled:
		t.Fatalf("stopped agent handled %d", n)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAgent_TellAfterDeliversOnExpiry(t *testing.T) {
	clock := shared.NewMockClock(time.Time{})
	agent := actor.NewAgent[ping]("pinger", clock)
	handled := make(chan int, 1)
	require.NoError(t, agent.Start(context.Background(), func(ctx context.Context, msg ping) {
		handled <- msg.n
	}))
	defer agent.Stop()

	agent.TellAfter(5*time.Second, ping{n: 3})
	clock.Advance(4 * time.Second)
	select {
	case <-handled:
		t.Fatal("timer fired early")
	case <-time.After(20 * time.Millisecond):
	}

	clock.Advance(time.Second)
	select {
	case n := <-handled:
		assert.Equal(t, 3, n)
	case <-time.After(time.Second):
		t.Fatal("timer never delivered")
	}
}

func TestAgent_SurvivesHandlerPanic(t *testing.T) {
	agent := actor.NewAgent[ping]("fragile", nil)
	handled := make(chan int, 2)
	require.NoError(t, agent.Start(context.Background(), func(ctx context.Context, msg ping) {
		if msg.n == 1 {
			panic("boom")
		}
		handled <- msg.n
	}))
	defer agent.Stop()

	agent.Tell(ping{n: 1})
	agent.Tell(ping{n: 2})

	select {
	case n := <-handled:
		assert.Equal(t, 2, n)
	case <-time.After(time.Second):
		t.Fatal("agent died after panic")
	}
	assert.Equal(t, uint64(1), agent.Panics())
}

func TestAgent_StartTwiceFails(t *testing.T) {
	agent := actor.NewAgent[ping]("pinger", nil)
	handler := func(ctx context.Context, msg ping) {}
	require.NoError(t, agent.Start(context.Background(), handler))
	defer agent.Stop()

	assert.Error(t, agent.Start(context.Background(), handler))
}

func TestAgent_ContextCancellationStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	agent := actor.NewAgent[ping]("pinger", nil)
	require.NoError(t, agent.Start(ctx, func(ctx context.Context, msg ping) {}))

	cancel()

	select {
	case <-agent.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not exit on cancellation")
	}
	agent.Stop()
	assert.Equal(t, shared.LifecycleStatusStopped, agent.Status())
}

func TestAsk_ReturnsReply(t *testing.T) {
	agent := actor.NewAgent[ping]("doubler", nil)
	require.NoError(t, agent.Start(context.Background(), func(ctx context.Context, msg ping) {
		msg.reply <- msg.n * 2
	}))
	defer agent.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := actor.Ask(ctx, actor.Ref[ping](agent), func(reply chan<- int) ping {
		return ping{n: 21, reply: reply}
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestAsk_TimesOutWithoutReply(t *testing.T) {
	agent := actor.NewAgent[ping]("silent", nil)
	require.NoError(t, agent.Start(context.Background(), func(ctx context.Context, msg ping) {}))
	defer agent.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := actor.Ask(ctx, actor.Ref[ping](agent), func(reply chan<- int) ping {
		return ping{reply: reply}
	})

	var timeout *actor.ErrAskTimeout
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "silent", timeout.Name)
}

func TestAsk_StoppedAgent(t *testing.T) {
	agent := actor.NewAgent[ping]("gone", nil)
	agent.Stop()

	_, err := actor.Ask(context.Background(), actor.Ref[ping](agent), func(reply chan<- int) ping {
		return ping{reply: reply}
	})

	var stopped *actor.ErrAgentStopped
	require.ErrorAs(t, err, &stopped)
}
