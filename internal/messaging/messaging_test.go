package messaging

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyNoise_ZeroIsNoOp(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	assert.Equal(t, "hello world", ApplyNoise("hello world", 0, rng))
	assert.Equal(t, "hello world", ApplyNoise("hello world", -0.5, rng))
}

func TestApplyNoise_FullGarblesSameLength(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	original := "meet me at the forge"
	garbled := ApplyNoise(original, 1.0, rng)
	assert.Len(t, garbled, len(original))
	assert.NotEqual(t, original, garbled)
	for _, r := range garbled {
		assert.Contains(t, noiseAlphabet, string(r))
	}
}

func TestApplyNoise_PartialCorruptionPreservesLength(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	original := "a longer message that will definitely see some corruption at 50 percent noise"
	noisy := ApplyNoise(original, 0.5, rng)
	assert.Len(t, noisy, len(original))
	assert.NotEqual(t, original, noisy)
}

func TestApplyNoise_DeterministicWithSeed(t *testing.T) {
	a := ApplyNoise("same message", 0.5, rand.New(rand.NewSource(7)))
	b := ApplyNoise("same message", 0.5, rand.New(rand.NewSource(7)))
	assert.Equal(t, a, b)
}

func TestReadability_Labels(t *testing.T) {
	assert.Equal(t, "crystal clear", Readability(0))
	assert.Equal(t, "minor static", Readability(0.05))
	assert.Equal(t, "noticeable interference", Readability(0.2))
	assert.Equal(t, "heavy distortion", Readability(0.4))
	assert.Equal(t, "barely legible", Readability(0.7))
	assert.Equal(t, "complete garbling", Readability(0.95))
}

func TestBus_DeliverAndInbox(t *testing.T) {
	bus := NewBus()
	bus.Deliver(1, "alice", "bob", "first", 0, "nexus", "nexus")
	bus.Deliver(3, "alice", "bob", "second", 0, "nexus", "nexus")
	bus.Deliver(3, "carol", "bob", "third", 0, "forge", "nexus")

	all := bus.Inbox("bob", 0)
	require.Len(t, all, 3)
	assert.Equal(t, "msg_00000000", all[0].ID)
	assert.Equal(t, "first", all[0].Content)

	// since_tick is inclusive.
	since := bus.Inbox("bob", 3)
	require.Len(t, since, 2)
	assert.Equal(t, "second", since[0].Content)

	assert.Empty(t, bus.Inbox("alice", 0))
	assert.Equal(t, 3, bus.Count())
}

func TestBus_NoiseAppliedInTransit(t *testing.T) {
	bus := NewBus()
	bus.Deliver(1, "alice", "bob", "important coordinates follow", 1.0, "nexus", "void")

	inbox := bus.Inbox("bob", 0)
	require.Len(t, inbox, 1)
	msg := inbox[0]
	assert.NotEqual(t, "important coordinates follow", msg.Content, "full noise must garble")
	assert.Len(t, msg.Content, len("important coordinates follow"))
	assert.Equal(t, 1.0, msg.NoiseFactor)
	assert.Equal(t, "complete garbling", msg.Readability)
	assert.Equal(t, "nexus", msg.SenderRegion)
	assert.Equal(t, "void", msg.ReceiverRegion)
}

func TestBus_AllMessagesOrderedWithLimit(t *testing.T) {
	bus := NewBus()
	bus.Deliver(1, "a", "b", "one", 0, "nexus", "nexus")
	bus.Deliver(2, "b", "c", "two", 0, "nexus", "nexus")
	bus.Deliver(3, "c", "a", "three", 0, "nexus", "nexus")

	all := bus.AllMessages(0)
	require.Len(t, all, 3)
	assert.Equal(t, "one", all[0].Content)
	assert.Equal(t, "three", all[2].Content)

	limited := bus.AllMessages(2)
	require.Len(t, limited, 2)
	assert.Equal(t, "two", limited[0].Content, "limit keeps the newest messages")
}
