package state

import (
	"fmt"
	"testing"

	"github.com/dmitrijs2005/lantern/internal/client/histcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendChannel_CapsAtMax(t *testing.T) {
	s := New("alice", 3)

	for i := 0; i < 5; i++ {
		s.AppendChannel(fmt.Sprintf("[bob]: %d", i), false)
	}

	got := s.Channel()
	require.Len(t, got, 3)
	assert.Equal(t, "[bob]: 2", got[0].Text)
	assert.Equal(t, "[bob]: 4", got[2].Text)
}

func TestSetChannel_ReplacesAndTrims(t *testing.T) {
	s := New("alice", 2)
	s.AppendChannel("[bob]: old", false)

	s.SetChannel([]histcache.Line{
		{Text: "[a]: 1"}, {Text: "[a]: 2"}, {Text: "[a]: 3"},
	})

	got := s.Channel()
	require.Len(t, got, 2)
	assert.Equal(t, "[a]: 2", got[0].Text)
}

func TestDMConversationsAreIndependent(t *testing.T) {
	s := New("alice", 10)

	s.AppendDM("bob", "[alice -> bob]: hi", true)
	s.AppendDM("carol", "[carol -> alice]: hey", false)

	require.Len(t, s.DM("bob"), 1)
	require.Len(t, s.DM("carol"), 1)
	assert.True(t, s.DM("bob")[0].Self)
	assert.False(t, s.DM("carol")[0].Self)
	assert.Equal(t, []string{"bob", "carol"}, s.DMPartners())
}

func TestViewSwitching(t *testing.T) {
	s := New("alice", 10)

	view, target := s.CurrentView()
	assert.Equal(t, ViewChannel, view)
	assert.Empty(t, target)

	s.SwitchToDM("bob")
	view, target = s.CurrentView()
	assert.Equal(t, ViewDM, view)
	assert.Equal(t, "bob", target)

	// opening a DM view creates the conversation
	assert.Equal(t, []string{"bob"}, s.DMPartners())

	s.SwitchToChannel()
	view, target = s.CurrentView()
	assert.Equal(t, ViewChannel, view)
	assert.Empty(t, target)
}

func TestDMHistoryTarget_ConsumedOnce(t *testing.T) {
	s := New("alice", 10)

	s.MarkDMHistoryRequested("bob")
	assert.Equal(t, "bob", s.TakeDMHistoryTarget())
	assert.Empty(t, s.TakeDMHistoryTarget())
}

func TestDMHistoryTarget_LastRequestWins(t *testing.T) {
	s := New("alice", 10)

	s.MarkDMHistoryRequested("bob")
	s.MarkDMHistoryRequested("carol")
	assert.Equal(t, "carol", s.TakeDMHistoryTarget())
}

func TestSetUsername(t *testing.T) {
	s := New("alice", 10)
	s.SetUsername("alice2")
	assert.Equal(t, "alice2", s.Username())
}
