package devserver

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudip6164/sajilokaam-sub003/internal/api"
	"github.com/sudip6164/sajilokaam-sub003/internal/models"
	"github.com/sudip6164/sajilokaam-sub003/internal/session"
	"github.com/sudip6164/sajilokaam-sub003/internal/store"
	"github.com/sudip6164/sajilokaam-sub003/internal/transport"
)

// startSession wires a real REST client, transport adapter and session
// against the dev server, exactly as cmd/sajilochat does.
func startSession(t *testing.T, httpSrv *httptest.Server, self models.Identity) (*session.Session, *store.Store) {
	t.Helper()

	token := "dev:" + self.ID + ":" + self.Name
	restClient := api.NewClient(httpSrv.URL, token)
	adapter := transport.NewAdapter(transport.Config{
		BaseURL:           "ws" + strings.TrimPrefix(httpSrv.URL, "http"),
		Token:             token,
		MinReconnectDelay: 10 * time.Millisecond,
	})

	st := store.New(self.ID)
	sess := session.New(restClient, func(id string, h transport.Handler) io.Closer {
		return adapter.Subscribe(id, h)
	}, st, self)
	t.Cleanup(sess.Close)

	require.NoError(t, sess.Refresh(context.Background()))
	return sess, st
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestFullFlowSendEchoEditDelete(t *testing.T) {
	srv := New()
	conv := srv.Svc.CreateConversation(models.Participant{ID: "u1", DisplayName: "Asha", Role: "freelancer"}, "Logo design")

	httpSrv := httptest.NewServer(srv.Router([]string{"*"}))
	defer httpSrv.Close()

	me := models.Identity{ID: "me", Name: "Me"}
	sess, st := startSession(t, httpSrv, me)
	require.NoError(t, sess.Open(context.Background(), conv.ID))

	// Optimistic send: the REST response and the push echo race; exactly one
	// entry must remain either way.
	_, err := sess.Send(context.Background(), conv.ID, "hello", nil)
	require.NoError(t, err)

	waitFor(t, func() bool {
		list := st.Messages(conv.ID)
		return len(list) == 1 && list[0].ID > 0 && !list[0].Pending
	}, "send confirmation")

	// Give the echo time to arrive too, then verify it did not duplicate
	time.Sleep(100 * time.Millisecond)
	list := st.Messages(conv.ID)
	require.Len(t, list, 1, "echo must not create a duplicate")
	msgID := list[0].ID

	// A second participant sees the message arrive over push
	other, otherStore := startSession(t, httpSrv, models.Identity{ID: "u1", Name: "Asha"})
	require.NoError(t, other.Open(context.Background(), conv.ID))
	waitFor(t, func() bool { return len(otherStore.Messages(conv.ID)) == 1 }, "history visible to peer")

	// Edit propagates to the peer in place
	require.NoError(t, sess.Edit(context.Background(), conv.ID, msgID, "hello there"))
	waitFor(t, func() bool {
		peer := otherStore.Messages(conv.ID)
		return len(peer) == 1 && peer[0].IsEdited && peer[0].Content == "hello there"
	}, "edit push")

	// Soft delete keeps the entry, flagged deleted, on both sides
	require.NoError(t, sess.Delete(context.Background(), conv.ID, msgID))
	waitFor(t, func() bool {
		peer := otherStore.Messages(conv.ID)
		return len(peer) == 1 && peer[0].IsDeleted
	}, "delete push")

	list = st.Messages(conv.ID)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsDeleted)
}

func TestPeerReceivesNewMessagesLive(t *testing.T) {
	srv := New()
	conv := srv.Svc.CreateConversation(models.Participant{ID: "u1", DisplayName: "Asha"}, "")

	httpSrv := httptest.NewServer(srv.Router([]string{"*"}))
	defer httpSrv.Close()

	alice, aliceStore := startSession(t, httpSrv, models.Identity{ID: "u1", Name: "Asha"})
	require.NoError(t, alice.Open(context.Background(), conv.ID))

	bob, bobStore := startSession(t, httpSrv, models.Identity{ID: "me", Name: "Me"})
	require.NoError(t, bob.Open(context.Background(), conv.ID))

	// Wait out each send so the server assigns ids in send order
	for i, text := range []string{"first", "second", "third"} {
		_, err := bob.Send(context.Background(), conv.ID, text, nil)
		require.NoError(t, err)
		want := i + 1
		waitFor(t, func() bool {
			list := bobStore.Messages(conv.ID)
			return len(list) == want && list[want-1].ID > 0
		}, "send confirmation")
	}

	waitFor(t, func() bool { return len(aliceStore.Messages(conv.ID)) == 3 }, "live delivery")

	got := aliceStore.Messages(conv.ID)
	contents := make([]string, len(got))
	for i, m := range got {
		contents[i] = m.Content
	}
	assert.Equal(t, []string{"first", "second", "third"}, contents, "arrival order preserved")

	// Sender's own list converges to the same three, no duplicates
	waitFor(t, func() bool {
		list := bobStore.Messages(conv.ID)
		if len(list) != 3 {
			return false
		}
		for _, m := range list {
			if m.ID <= 0 || m.Pending {
				return false
			}
		}
		return true
	}, "sender convergence")
}

func TestDeleteConversationEndToEnd(t *testing.T) {
	srv := New()
	conv := srv.Svc.CreateConversation(models.Participant{ID: "u1", DisplayName: "Asha"}, "")

	httpSrv := httptest.NewServer(srv.Router([]string{"*"}))
	defer httpSrv.Close()

	sess, st := startSession(t, httpSrv, models.Identity{ID: "me", Name: "Me"})
	require.NoError(t, sess.Open(context.Background(), conv.ID))

	_, err := sess.Send(context.Background(), conv.ID, "bye", nil)
	require.NoError(t, err)
	waitFor(t, func() bool {
		list := st.Messages(conv.ID)
		return len(list) == 1 && list[0].ID > 0
	}, "send confirmation")

	require.NoError(t, sess.DeleteConversation(context.Background(), conv.ID))

	_, ok := st.Conversation(conv.ID)
	assert.False(t, ok)
	assert.Empty(t, st.Messages(conv.ID))
	assert.Empty(t, srv.Svc.ListConversations())

	_, err = srv.Svc.GetMessages(conv.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestServiceValidation(t *testing.T) {
	svc := NewChatService()

	_, err := svc.AddMessage("nope", models.Identity{ID: "me"}, models.SendMessageRequest{Content: "x"})
	assert.ErrorIs(t, err, ErrConversationNotFound)

	conv := svc.CreateConversation(models.Participant{ID: "u1", DisplayName: "Asha"}, "")
	_, err = svc.EditMessage(conv.ID, 99, "x")
	assert.ErrorIs(t, err, ErrMessageNotFound)

	msg, err := svc.AddMessage(conv.ID, models.Identity{ID: "me", Name: "Me"}, models.SendMessageRequest{Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.ID)

	deleted, err := svc.DeleteMessage(conv.ID, msg.ID)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)

	// Soft-deleted messages stay in the listing
	msgs, err := svc.GetMessages(conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsDeleted)

	// And are skipped by the conversation preview
	convs := svc.ListConversations()
	require.Len(t, convs, 1)
	assert.Nil(t, convs[0].LastMessage)
}
