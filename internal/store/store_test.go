package store

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudip6164/sajilokaam-sub003/internal/models"
)

func msg(id int64, sender, content string) models.Message {
	return models.Message{
		ID:             id,
		ConversationID: "c1",
		SenderID:       sender,
		SenderName:     sender,
		Content:        content,
		Timestamp:      time.Now().UTC(),
	}
}

func newStore() *Store {
	s := New("me")
	s.SetConversations([]models.Conversation{
		{ID: "c1", Participant: models.Participant{ID: "u1", DisplayName: "Asha"}},
	})
	return s
}

func TestUpsertAppendsInArrivalOrder(t *testing.T) {
	s := newStore()
	s.Upsert("c1", msg(1, "u1", "hi"))
	s.Upsert("c1", msg(2, "me", "hello"))
	s.Upsert("c1", msg(3, "u1", "how's the logo going?"))

	list := s.Messages("c1")
	require.Len(t, list, 3)
	assert.Equal(t, []int64{1, 2, 3}, ids(list))
}

func TestUpsertNeverDuplicatesIDs(t *testing.T) {
	// Property from the sync contract: any sequence of upserts leaves at most
	// one entry per distinct id, regardless of order or repetition.
	s := newStore()
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		id := int64(rng.Intn(20) + 1)
		s.Upsert("c1", msg(id, "u1", fmt.Sprintf("v%d", i)))
	}

	seen := make(map[int64]int)
	for _, m := range s.Messages("c1") {
		seen[m.ID]++
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "id %d appears %d times", id, n)
	}
}

func TestUpsertReplacesInPlaceForEdits(t *testing.T) {
	s := newStore()
	s.Upsert("c1", msg(1, "u1", "hi"))
	s.Upsert("c1", msg(2, "u1", "typo"))
	s.Upsert("c1", msg(3, "u1", "bye"))

	edited := msg(2, "u1", "fixed")
	edited.IsEdited = true
	s.Upsert("c1", edited)

	list := s.Messages("c1")
	require.Len(t, list, 3)
	assert.Equal(t, []int64{1, 2, 3}, ids(list), "edit must preserve position")
	assert.Equal(t, "fixed", list[1].Content)
	assert.True(t, list[1].IsEdited)
	assert.Equal(t, "hi", list[0].Content)
	assert.Equal(t, "bye", list[2].Content)
}

func TestSoftDeleteKeepsEntryInList(t *testing.T) {
	s := newStore()
	s.Upsert("c1", msg(1, "u1", "hi"))
	s.Upsert("c1", msg(2, "u1", "oops"))
	s.SoftDelete("c1", 2)

	list := s.Messages("c1")
	require.Len(t, list, 2)
	assert.True(t, list[1].IsDeleted)

	// The preview must skip the deleted message
	c, ok := s.Conversation("c1")
	require.True(t, ok)
	require.NotNil(t, c.LastMessage)
	assert.Equal(t, "hi", c.LastMessage.Content)
}

func TestSummaryTracksLatestNonDeletedMessage(t *testing.T) {
	s := newStore()

	c, _ := s.Conversation("c1")
	assert.Nil(t, c.LastMessage)

	s.Upsert("c1", msg(1, "u1", "first"))
	s.Upsert("c1", msg(2, "me", "second"))

	c, _ = s.Conversation("c1")
	require.NotNil(t, c.LastMessage)
	assert.Equal(t, "second", c.LastMessage.Content)
	assert.True(t, c.LastMessage.IsRead, "own message is read in own view")

	// Deleting everything leaves no preview
	s.SoftDelete("c1", 1)
	s.SoftDelete("c1", 2)
	c, _ = s.Conversation("c1")
	assert.Nil(t, c.LastMessage)
}

func TestReconcileRESTFirstThenEcho(t *testing.T) {
	// spec'd scenario: [{id:1,"hi"}], optimistic send id -1, server confirms
	// id 2 before the echo arrives; the echo is then a no-op.
	s := newStore()
	s.Upsert("c1", msg(1, "u1", "hi"))

	prov := msg(-1, "me", "hello")
	prov.Pending = true
	s.Upsert("c1", prov)

	s.Reconcile("c1", -1, msg(2, "me", "hello"))

	list := s.Messages("c1")
	require.Len(t, list, 2)
	assert.Equal(t, []int64{1, 2}, ids(list))

	// Late push echo for id 2
	s.Upsert("c1", msg(2, "me", "hello"))
	list = s.Messages("c1")
	require.Len(t, list, 2, "echo must not duplicate")
}

func TestReconcileEchoFirstThenREST(t *testing.T) {
	s := newStore()
	prov := msg(-1, "me", "hello")
	prov.Pending = true
	s.Upsert("c1", prov)

	// Echo wins the race
	s.Reconcile("c1", -1, msg(2, "me", "hello"))
	// REST response lands second, going through Reconcile again
	s.Reconcile("c1", -1, msg(2, "me", "hello"))

	list := s.Messages("c1")
	require.Len(t, list, 1)
	assert.Equal(t, int64(2), list[0].ID)
	assert.False(t, list[0].Pending)
}

func TestMarkFailedKeepsProvisionalEntry(t *testing.T) {
	s := newStore()
	prov := msg(-1, "me", "hello")
	prov.Pending = true
	s.Upsert("c1", prov)

	s.MarkFailed("c1", -1)

	list := s.Messages("c1")
	require.Len(t, list, 1)
	assert.True(t, list[0].Failed)
	assert.False(t, list[0].Pending)

	// Failed sends never become the conversation preview
	c, _ := s.Conversation("c1")
	assert.Nil(t, c.LastMessage)
}

func TestUnreadCounter(t *testing.T) {
	s := newStore()
	s.Upsert("c1", msg(1, "u1", "hi"))
	s.IncrementUnread("c1")
	s.IncrementUnread("c1")

	c, _ := s.Conversation("c1")
	assert.Equal(t, 2, c.UnreadCount)
	require.NotNil(t, c.LastMessage)
	assert.False(t, c.LastMessage.IsRead)

	s.ClearUnread("c1")
	c, _ = s.Conversation("c1")
	assert.Equal(t, 0, c.UnreadCount)
	assert.True(t, c.LastMessage.IsRead)
}

func TestDeleteConversationPurgesMessages(t *testing.T) {
	s := newStore()
	s.Upsert("c1", msg(1, "u1", "hi"))

	s.DeleteConversation("c1")

	_, ok := s.Conversation("c1")
	assert.False(t, ok)
	assert.Empty(t, s.Messages("c1"))
	assert.Empty(t, s.Conversations())
}

func TestSetHistoryKeepsProvisionalTail(t *testing.T) {
	s := newStore()
	prov := msg(-1, "me", "in flight")
	prov.Pending = true
	s.Upsert("c1", prov)

	s.SetHistory("c1", []models.Message{msg(1, "u1", "hi"), msg(2, "u1", "there")})

	list := s.Messages("c1")
	require.Len(t, list, 3)
	assert.Equal(t, []int64{1, 2, -1}, ids(list))
}

func TestConversationsOrderedByPinThenRecency(t *testing.T) {
	s := New("me")
	s.SetConversations([]models.Conversation{
		{ID: "a", Participant: models.Participant{ID: "u1", DisplayName: "Asha"}},
		{ID: "b", Participant: models.Participant{ID: "u2", DisplayName: "Bibek"}, Pinned: true},
		{ID: "c", Participant: models.Participant{ID: "u3", DisplayName: "Chandra"}},
	})

	old := models.Message{ID: 1, ConversationID: "a", SenderID: "u1", Content: "old",
		Timestamp: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)}
	fresh := models.Message{ID: 2, ConversationID: "c", SenderID: "u3", Content: "fresh",
		Timestamp: time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)}
	s.Upsert("a", old)
	s.Upsert("c", fresh)

	got := s.Conversations()
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0].ID, "pinned first")
	assert.Equal(t, "c", got[1].ID, "then most recent")
	assert.Equal(t, "a", got[2].ID)
}

func ids(list []models.Message) []int64 {
	out := make([]int64, len(list))
	for i, m := range list {
		out[i] = m.ID
	}
	return out
}
