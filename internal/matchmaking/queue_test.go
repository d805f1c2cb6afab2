// internal/matchmaking/queue_test.go
package matchmaking

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchside/pitchside/internal/models"
)

func soloTicket(mode string) *Ticket {
	return &Ticket{
		ID:      uuid.New(),
		Players: []models.Player{{ID: uuid.New(), Nickname: "solo"}},
		Mode:    mode,
	}
}

func partyTicket(mode string, size int) *Ticket {
	t := &Ticket{ID: uuid.New(), PartyID: uuid.New(), Mode: mode}
	for i := 0; i < size; i++ {
		t.Players = append(t.Players, models.Player{ID: uuid.New(), Nickname: "member"})
	}
	return t
}

func TestEnqueueRejectsDuplicatePlayer(t *testing.T) {
	q := NewQueue("1v1")
	tk := soloTicket("1v1")
	require.True(t, q.Enqueue(tk))

	dup := &Ticket{ID: uuid.New(), Players: tk.Players, Mode: "1v1"}
	assert.False(t, q.Enqueue(dup))
	assert.Equal(t, 1, q.Len())
}

func TestTakeMatchPairsTwoSolos(t *testing.T) {
	q := NewQueue("1v1")
	a, b := soloTicket("1v1"), soloTicket("1v1")
	require.True(t, q.Enqueue(a))
	require.True(t, q.Enqueue(b))

	red, blue := q.TakeMatch(1)
	require.Len(t, red, 1)
	require.Len(t, blue, 1)
	assert.Equal(t, a.ID, red[0].ID, "first in goes to red")
	assert.Equal(t, b.ID, blue[0].ID)
	assert.Equal(t, 0, q.Len())
	assert.False(t, q.Contains(a.Players[0].ID))
}

func TestTakeMatchInsufficientLeavesQueueUntouched(t *testing.T) {
	q := NewQueue("2v2")
	require.True(t, q.Enqueue(soloTicket("2v2")))
	require.True(t, q.Enqueue(soloTicket("2v2")))
	require.True(t, q.Enqueue(soloTicket("2v2")))

	red, blue := q.TakeMatch(2)
	assert.Nil(t, red)
	assert.Nil(t, blue)
	assert.Equal(t, 3, q.Len())
}

func TestTakeMatchKeepsPartyWhole(t *testing.T) {
	q := NewQueue("2v2")
	party := partyTicket("2v2", 2)
	s1, s2 := soloTicket("2v2"), soloTicket("2v2")
	require.True(t, q.Enqueue(party))
	require.True(t, q.Enqueue(s1))
	require.True(t, q.Enqueue(s2))

	red, blue := q.TakeMatch(2)
	require.NotNil(t, red)
	require.NotNil(t, blue)

	// The party must land entirely on one side.
	sides := [][]*Ticket{red, blue}
	var partySide []*Ticket
	for _, side := range sides {
		for _, tk := range side {
			if tk.ID == party.ID {
				partySide = side
			}
		}
	}
	require.NotNil(t, partySide)
	assert.Len(t, partySide, 1)
	assert.Equal(t, 0, q.Len())
}

func TestTakeMatchSkipsTicketThatFitsNeitherSide(t *testing.T) {
	q := NewQueue("2v2")
	a := soloTicket("2v2")
	party := partyTicket("2v2", 2)
	c := soloTicket("2v2")
	d := soloTicket("2v2")
	for _, tk := range []*Ticket{a, party, c, d} {
		require.True(t, q.Enqueue(tk))
	}

	// a and c fill red, the party fills blue; d arrived last and is passed
	// over, staying queued.
	red, blue := q.TakeMatch(2)
	require.NotNil(t, red)
	require.NotNil(t, blue)
	assert.Equal(t, 1, q.Len())
	assert.True(t, q.Contains(d.Players[0].ID))
}

func TestPushFrontRestoresOrderAheadOfLaterArrivals(t *testing.T) {
	q := NewQueue("1v1")
	late := soloTicket("1v1")
	require.True(t, q.Enqueue(late))

	first, second := soloTicket("1v1"), soloTicket("1v1")
	q.PushFront([]*Ticket{first, second})

	red, blue := q.TakeMatch(1)
	require.NotNil(t, red)
	assert.Equal(t, first.ID, red[0].ID)
	assert.Equal(t, second.ID, blue[0].ID)
	assert.True(t, q.Contains(late.Players[0].ID), "late arrival still waiting")
}

func TestPushFrontDropsTicketWhosePlayerRequeued(t *testing.T) {
	q := NewQueue("1v1")
	old := soloTicket("1v1")
	fresh := &Ticket{
		ID:      uuid.New(),
		Players: []models.Player{old.Players[0]},
		Mode:    "1v1",
	}
	require.True(t, q.Enqueue(fresh))

	other := soloTicket("1v1")
	q.PushFront([]*Ticket{old, other})

	// The stale ticket is discarded; the player stays queued exactly once.
	assert.Equal(t, 2, q.Len())
	red, blue := q.TakeMatch(1)
	require.NotNil(t, red)
	assert.Equal(t, other.ID, red[0].ID)
	assert.Equal(t, fresh.ID, blue[0].ID)
	assert.Equal(t, 0, q.Len())
}

func TestRemovePlayerPullsWholeTicket(t *testing.T) {
	q := NewQueue("3v3")
	party := partyTicket("3v3", 3)
	require.True(t, q.Enqueue(party))

	got := q.RemovePlayer(party.Players[1].ID)
	require.NotNil(t, got)
	assert.Equal(t, party.ID, got.ID)
	assert.Equal(t, 0, q.Len())
	for _, p := range party.Players {
		assert.False(t, q.Contains(p.ID))
	}

	assert.Nil(t, q.RemovePlayer(uuid.New()))
}
