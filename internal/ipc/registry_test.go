package ipc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillos/kernel/internal/cap"
)

func TestCreateChannelPair(t *testing.T) {
	t.Run("endpoints are mutual peers", func(t *testing.T) {
		r := NewRegistry(nil)

		idA, idB, err := r.CreateChannelPair(1)
		require.NoError(t, err)
		require.NotEqual(t, idA, idB)

		chA, err := r.Channel(idA)
		require.NoError(t, err)
		chB, err := r.Channel(idB)
		require.NoError(t, err)

		assert.Equal(t, idB, chA.Peer())
		assert.Equal(t, idA, chB.Peer())
	})

	t.Run("per process bound", func(t *testing.T) {
		r := NewRegistry(nil)

		for i := 0; i < MaxChannelsPerProcess/2; i++ {
			_, _, err := r.CreateChannelPair(1)
			require.NoError(t, err)
		}

		_, _, err := r.CreateChannelPair(1)
		assert.ErrorIs(t, err, ErrTooManyChannels)

		// Other processes are unaffected.
		_, _, err = r.CreateChannelPair(2)
		assert.NoError(t, err)
	})
}

func TestSendReceive(t *testing.T) {
	t.Run("send lands on peer queue", func(t *testing.T) {
		r := NewRegistry(nil)
		idA, idB, err := r.CreateChannelPair(1)
		require.NoError(t, err)

		msg := NewData([]byte{1, 2, 3})
		msg.SetSequence(7)
		require.NoError(t, r.Send(idA, msg))

		// Nothing arrives on the sender's own queue.
		_, err = r.Receive(idA)
		assert.ErrorIs(t, err, ErrQueueEmpty)

		got, err := r.Receive(idB)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3}, got.Data())
		assert.Equal(t, uint64(7), got.Sequence())
	})

	t.Run("fifo across many messages", func(t *testing.T) {
		r := NewRegistry(nil)
		idA, idB, err := r.CreateChannelPair(1)
		require.NoError(t, err)

		for i := 0; i < 50; i++ {
			msg := NewData([]byte{byte(i)})
			require.NoError(t, r.Send(idA, msg))
		}
		for i := 0; i < 50; i++ {
			got, err := r.Receive(idB)
			require.NoError(t, err)
			assert.Equal(t, byte(i), got.Data()[0])
		}
	})

	t.Run("payload size bound", func(t *testing.T) {
		r := NewRegistry(nil)
		idA, _, err := r.CreateChannelPair(1)
		require.NoError(t, err)

		big := NewData(make([]byte, MaxMessageSize+1))
		assert.ErrorIs(t, r.Send(idA, big), ErrMessageTooLarge)

		exact := NewData(make([]byte, MaxMessageSize))
		assert.NoError(t, r.Send(idA, exact))
	})

	t.Run("peer queue bound backpressures sender", func(t *testing.T) {
		r := NewRegistry(nil)
		r.SetDefaultQueueLimit(4)
		idA, idB, err := r.CreateChannelPair(1)
		require.NoError(t, err)

		for i := 0; i < 4; i++ {
			require.NoError(t, r.Send(idA, NewData(nil)))
		}
		assert.ErrorIs(t, r.Send(idA, NewData(nil)), ErrQueueFull)

		ch, err := r.Channel(idB)
		require.NoError(t, err)
		assert.Equal(t, 4, ch.Len())
	})

	t.Run("unknown channel", func(t *testing.T) {
		r := NewRegistry(nil)
		assert.ErrorIs(t, r.Send(999, NewData(nil)), ErrChannelNotFound)
		_, err := r.Receive(999)
		assert.ErrorIs(t, err, ErrChannelNotFound)
	})
}

func TestCloseChannel(t *testing.T) {
	t.Run("send after close fails both ways", func(t *testing.T) {
		r := NewRegistry(nil)
		idA, idB, err := r.CreateChannelPair(1)
		require.NoError(t, err)

		require.NoError(t, r.CloseChannel(idA))
		assert.ErrorIs(t, r.Send(idA, NewData(nil)), ErrChannelClosed)
		assert.ErrorIs(t, r.Send(idB, NewData(nil)), ErrChannelClosed)
	})

	t.Run("pending messages drain after close", func(t *testing.T) {
		r := NewRegistry(nil)
		idA, idB, err := r.CreateChannelPair(1)
		require.NoError(t, err)

		msg := NewData([]byte{1, 2, 3})
		msg.SetSequence(7)
		require.NoError(t, r.Send(idA, msg))
		require.NoError(t, r.CloseChannel(idA))

		got, err := r.Receive(idB)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3}, got.Data())

		_, err = r.Receive(idB)
		assert.ErrorIs(t, err, ErrQueueEmpty)
	})

	t.Run("remove unmaps and frees owner slot", func(t *testing.T) {
		r := NewRegistry(nil)
		idA, idB, err := r.CreateChannelPair(1)
		require.NoError(t, err)

		require.NoError(t, r.CloseChannel(idA))
		require.NoError(t, r.RemoveChannel(idA))
		require.NoError(t, r.RemoveChannel(idB))

		_, err = r.Channel(idA)
		assert.ErrorIs(t, err, ErrChannelNotFound)
		assert.ErrorIs(t, r.RemoveChannel(idA), ErrChannelNotFound)
	})
}

func TestCapabilities(t *testing.T) {
	t.Run("create and validate", func(t *testing.T) {
		r := NewRegistry(nil)

		id := r.CreateCapabilityFull(cap.TypeChannel, 42, 1)
		c, err := r.ValidateCapability(id)
		require.NoError(t, err)
		assert.Equal(t, cap.TypeChannel, c.Type())
		assert.Equal(t, uint64(42), c.Resource())
	})

	t.Run("unknown id fails validation", func(t *testing.T) {
		r := NewRegistry(nil)
		_, err := r.ValidateCapability(999)
		assert.ErrorIs(t, err, ErrInvalidCapability)
	})

	t.Run("derive narrows rights", func(t *testing.T) {
		r := NewRegistry(nil)
		parentID := r.CreateCapabilityFull(cap.TypeFile, 0, 1)

		childID, err := r.DeriveCapability(parentID, cap.RightRead|cap.RightWrite)
		require.NoError(t, err)

		child, err := r.ValidateCapability(childID)
		require.NoError(t, err)
		assert.Equal(t, cap.RightRead|cap.RightWrite, child.Rights())
		assert.Equal(t, parentID, child.Parent())
	})

	t.Run("derive requires derive right", func(t *testing.T) {
		r := NewRegistry(nil)
		id := r.CreateCapability(cap.TypeFile)

		_, err := r.DeriveCapability(id, cap.RightRead)
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})

	t.Run("clock stamps creation", func(t *testing.T) {
		r := NewRegistry(nil)
		r.SetClock(func() uint64 { return 123 })

		id := r.CreateCapability(cap.TypeMemory)
		c, err := r.ValidateCapability(id)
		require.NoError(t, err)
		assert.Equal(t, uint64(123), c.CreatedAt())
	})
}

func TestRevokeCascade(t *testing.T) {
	t.Run("revokes whole subtree", func(t *testing.T) {
		r := NewRegistry(nil)
		rootID := r.CreateCapabilityFull(cap.TypeFile, 0, 1)

		childID, err := r.DeriveCapability(rootID, cap.RightsAll)
		require.NoError(t, err)
		grandID, err := r.DeriveCapability(childID, cap.RightRead|cap.RightDerive)
		require.NoError(t, err)

		n, err := r.RevokeCapability(rootID)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		_, err = r.ValidateCapability(rootID)
		assert.ErrorIs(t, err, ErrInvalidCapability)
		_, err = r.ValidateCapability(childID)
		assert.ErrorIs(t, err, ErrInvalidCapability)
		_, err = r.ValidateCapability(grandID)
		assert.ErrorIs(t, err, ErrInvalidCapability)
	})

	t.Run("revoking a branch spares the root", func(t *testing.T) {
		r := NewRegistry(nil)
		rootID := r.CreateCapabilityFull(cap.TypeFile, 0, 1)
		childID, err := r.DeriveCapability(rootID, cap.RightsAll)
		require.NoError(t, err)

		n, err := r.RevokeCapability(childID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = r.ValidateCapability(rootID)
		assert.NoError(t, err)
	})

	t.Run("revoking unknown id fails", func(t *testing.T) {
		r := NewRegistry(nil)
		_, err := r.RevokeCapability(999)
		assert.ErrorIs(t, err, ErrInvalidCapability)
	})
}

func TestPurgeProcess(t *testing.T) {
	r := NewRegistry(nil)

	idA, idB, err := r.CreateChannelPair(1)
	require.NoError(t, err)
	otherA, _, err := r.CreateChannelPair(2)
	require.NoError(t, err)

	chOther, err := r.Channel(otherA)
	require.NoError(t, err)
	chOther.AddWaiter(77)

	r.PurgeProcess(1, []uint64{77})

	_, err = r.Channel(idA)
	assert.ErrorIs(t, err, ErrChannelNotFound)
	_, err = r.Channel(idB)
	assert.ErrorIs(t, err, ErrChannelNotFound)

	// Process 2's channel survives but the dead task's waiter slot is
	// gone.
	ch, err := r.Channel(otherA)
	require.NoError(t, err)
	assert.Empty(t, ch.Waiters())
}

func TestRegistryStats(t *testing.T) {
	r := NewRegistry(nil)

	idA, idB, err := r.CreateChannelPair(1)
	require.NoError(t, err)
	require.NoError(t, r.Send(idA, NewData(nil)))
	require.NoError(t, r.Send(idA, NewData(nil)))
	r.CreateCapability(cap.TypeChannel)

	stats := r.GetStats()
	assert.Equal(t, 2, stats.Channels)
	assert.Equal(t, 2, stats.OpenChannels)
	assert.Equal(t, 1, stats.Capabilities)
	assert.Equal(t, 2, stats.Pending)

	require.NoError(t, r.CloseChannel(idB))
	stats = r.GetStats()
	assert.Equal(t, 0, stats.OpenChannels)

	infos := r.Channels()
	require.Len(t, infos, 2)
	assert.Equal(t, uint64(idA), infos[0].ID)
	assert.Equal(t, "closed", infos[0].State)
}
