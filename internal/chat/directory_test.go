package chat

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectory_JoinLeave(t *testing.T) {
	d := NewDirectory(0)

	d.Join("general", "alice")
	d.Join("general", "bob")
	d.Join("general", "alice")

	room, ok := d.Get("general")
	require.True(t, ok)
	assert.Equal(t, []string{"alice", "bob"}, room.Members())

	d.Leave("general", "alice")
	d.Leave("general", "nobody")
	d.Leave("missing", "bob")
	assert.Equal(t, []string{"bob"}, room.Members())

	d.Leave("general", "bob")
	info := room.Info()
	assert.Equal(t, RoomInfo{Name: "general", Users: []string{}, MessageCount: 0}, info)

	_, ok = d.Get("general")
	assert.True(t, ok, "empty rooms are kept")
}

func TestDirectory_AppendUnknownRoom(t *testing.T) {
	d := NewDirectory(0)
	_, err := d.Append("nowhere", Message{Body: "hi"})
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestDirectory_HistoryRetention(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		sent  int
		first string
		want  int
	}{
		{"unbounded", 0, 5, "m0", 5},
		{"under limit", 10, 5, "m0", 5},
		{"at limit", 5, 5, "m0", 5},
		{"evicts oldest", 3, 5, "m2", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDirectory(tt.limit)
			d.Ensure("general")
			for i := 0; i < tt.sent; i++ {
				_, err := d.Append("general", Message{ID: fmt.Sprintf("m%d", i)})
				require.NoError(t, err)
			}
			h := d.History("general")
			require.Len(t, h, tt.want)
			assert.Equal(t, tt.first, h[0].ID)
			assert.Equal(t, fmt.Sprintf("m%d", tt.sent-1), h[len(h)-1].ID)
		})
	}
}

func TestDirectory_HistoryIsACopy(t *testing.T) {
	d := NewDirectory(0)
	d.Ensure("general")
	_, err := d.Append("general", Message{ID: "m0", Body: "hello"})
	require.NoError(t, err)

	h := d.History("general")
	h[0].Body = "tampered"

	assert.Equal(t, "hello", d.History("general")[0].Body)
	assert.NotNil(t, d.History("unknown"))
	assert.Empty(t, d.History("unknown"))
}

func TestDirectory_ListInCreationOrder(t *testing.T) {
	d := NewDirectory(0)
	d.Join("zeta", "alice")
	d.Ensure("alpha")
	_, err := d.Append("zeta", Message{ID: "1"})
	require.NoError(t, err)

	assert.Equal(t, []RoomSummary{
		{Name: "zeta", Users: 1, Messages: 1},
		{Name: "alpha", Users: 0, Messages: 0},
	}, d.List())
	assert.NotNil(t, NewDirectory(0).List())
}
