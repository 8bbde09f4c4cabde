package socket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionSendMessageDropsWhenBufferFull(t *testing.T) {
	c := NewConnection("c1", "player-1", nil, nil)
	for i := 0; i < sendBufferSize; i++ {
		assert.True(t, c.SendMessage([]byte("x")))
	}
	assert.False(t, c.SendMessage([]byte("overflow")))
}

func TestConnectionJoinLeaveRoom(t *testing.T) {
	c := NewConnection("c1", "player-1", nil, nil)
	c.JoinRoom("game-1")
	assert.True(t, c.rooms["game-1"])
	c.LeaveRoom("game-1")
	assert.False(t, c.rooms["game-1"])
}

func TestRoomAddRemoveEmpty(t *testing.T) {
	r := NewRoom("game-1")
	assert.True(t, r.Empty())

	c := NewConnection("c1", "player-1", nil, nil)
	r.Add(c)
	assert.False(t, r.Empty())

	r.Remove(c.ID)
	assert.True(t, r.Empty())
}

func TestRoomBroadcastDeliversToAllMembers(t *testing.T) {
	r := NewRoom("game-1")
	c1 := NewConnection("c1", "player-1", nil, nil)
	c2 := NewConnection("c2", "player-2", nil, nil)
	r.Add(c1)
	r.Add(c2)

	r.Broadcast([]byte("hello"), nil)

	assert.Equal(t, []byte("hello"), <-c1.Send)
	assert.Equal(t, []byte("hello"), <-c2.Send)
}

func TestRoomBroadcastReportsDroppedDeliveries(t *testing.T) {
	r := NewRoom("game-1")
	c := NewConnection("c1", "player-1", nil, nil)
	for i := 0; i < sendBufferSize; i++ {
		c.SendMessage([]byte("x"))
	}
	r.Add(c)

	var dropped string
	r.Broadcast([]byte("overflow"), func(connID string) { dropped = connID })
	assert.Equal(t, "c1", dropped)
}
