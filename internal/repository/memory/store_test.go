package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/convo/internal/models"
	"github.com/lalith-99/convo/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedClock advances only when told to.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) (*repository.Store, *fixedClock) {
	t.Helper()
	clock := &fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewStore(clock.Now), clock
}

func seedConversation(t *testing.T, store *repository.Store) *models.Conversation {
	t.Helper()
	conv, err := store.Conversations.Create(context.Background(), models.NewConversation{
		Title: "Website inquiry",
		Owner: models.ProjectOwner(uuid.New()),
	})
	require.NoError(t, err)
	return conv
}

func appendText(t *testing.T, store *repository.Store, convID uuid.UUID, sender uuid.UUID, body string) *models.Message {
	t.Helper()
	msg, err := store.Messages.Append(context.Background(), models.NewMessage{
		ConversationID: convID,
		Sender:         models.UserOwner(sender),
		SenderUserID:   &sender,
		Body:           body,
		Type:           models.TypeText,
	})
	require.NoError(t, err)
	return msg
}

func TestMessages_ListOrderedByCreatedAtThenID(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, store)
	author := uuid.New()

	first := appendText(t, store, conv.ID, author, "one")
	second := appendText(t, store, conv.ID, author, "two")
	clock.Advance(time.Second)
	third := appendText(t, store, conv.ID, author, "three")

	msgs, err := store.Messages.List(ctx, models.MessageQuery{ConversationID: conv.ID})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []int64{first.ID, second.ID, third.ID}, []int64{msgs[0].ID, msgs[1].ID, msgs[2].ID})

	page, err := store.Messages.List(ctx, models.MessageQuery{ConversationID: conv.ID, AfterID: first.ID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, second.ID, page[0].ID)
}

func TestMessages_CursorFollowsCreatedAtNotID(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, store)
	author := uuid.New()

	// The lower id gets the later timestamp.
	late := appendText(t, store, conv.ID, author, "late")
	clock.Advance(-time.Second)
	early := appendText(t, store, conv.ID, author, "early")
	require.Less(t, late.ID, early.ID)

	page, err := store.Messages.List(ctx, models.MessageQuery{ConversationID: conv.ID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, early.ID, page[0].ID)

	page, err = store.Messages.List(ctx, models.MessageQuery{ConversationID: conv.ID, AfterID: page[0].ID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, late.ID, page[0].ID)

	page, err = store.Messages.List(ctx, models.MessageQuery{ConversationID: conv.ID, AfterID: late.ID})
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestMessages_CursorOnDeletedMessageFallsBackToID(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, store)
	author := uuid.New()

	first := appendText(t, store, conv.ID, author, "one")
	clock.Advance(time.Second)
	second := appendText(t, store, conv.ID, author, "two")
	require.NoError(t, store.Messages.Delete(ctx, first.ID))

	page, err := store.Messages.List(ctx, models.MessageQuery{ConversationID: conv.ID, AfterID: first.ID})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, second.ID, page[0].ID)
}

func TestMessages_InternalNotesHiddenUnlessRequested(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, store)
	author := uuid.New()

	appendText(t, store, conv.ID, author, "visible")
	_, err := store.Messages.Append(ctx, models.NewMessage{
		ConversationID: conv.ID,
		Sender:         models.UserOwner(author),
		SenderUserID:   &author,
		Body:           "staff only",
		Type:           models.TypeText,
		IsInternal:     true,
	})
	require.NoError(t, err)

	public, err := store.Messages.List(ctx, models.MessageQuery{ConversationID: conv.ID})
	require.NoError(t, err)
	assert.Len(t, public, 1)

	all, err := store.Messages.List(ctx, models.MessageQuery{ConversationID: conv.ID, IncludeInternal: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	got, err := store.Conversations.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.UnreadCount, "internal notes do not count as unread")
	require.NotNil(t, got.LastMessageAt)
}

func TestMessages_AppendRejectsClosedConversation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, store)

	_, err := store.Conversations.SetStatus(ctx, conv.ID, models.StatusClosed)
	require.NoError(t, err)

	_, err = store.Messages.Append(ctx, models.NewMessage{
		ConversationID: conv.ID,
		Body:           "too late",
		Type:           models.TypeText,
	})
	assert.True(t, models.IsValidation(err))
}

func TestMessages_AppendRejectsForeignReply(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	a := seedConversation(t, store)
	b := seedConversation(t, store)
	parent := appendText(t, store, a.ID, uuid.New(), "parent")

	_, err := store.Messages.Append(ctx, models.NewMessage{
		ConversationID: b.ID,
		Body:           "reply",
		Type:           models.TypeText,
		ReplyToID:      &parent.ID,
	})
	assert.True(t, models.IsValidation(err))
}

func TestReactions_OneReactionPerUser(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, store)
	msg := appendText(t, store, conv.ID, uuid.New(), "hello")
	u := uuid.New()

	_, err := store.Reactions.Add(ctx, msg.ID, u, "👍")
	require.NoError(t, err)
	buckets, err := store.Reactions.Add(ctx, msg.ID, u, "❤️")
	require.NoError(t, err)

	require.Len(t, buckets, 1)
	assert.Equal(t, "❤️", buckets[0].Emoji)
	assert.Equal(t, []uuid.UUID{u}, buckets[0].Users)
	assert.Equal(t, 1, buckets[0].Count)

	// Re-adding the same emoji is a no-op.
	buckets, err = store.Reactions.Add(ctx, msg.ID, u, "❤️")
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, 1, buckets[0].Count)
}

func TestReactions_ConcurrentAddsKeepCountsConsistent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, store)
	msg := appendText(t, store, conv.ID, uuid.New(), "hello")

	const users = 50
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Reactions.Add(ctx, msg.ID, uuid.New(), "🎉")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	buckets, err := store.Reactions.Buckets(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, users, buckets[0].Count)
	assert.Len(t, buckets[0].Users, users)

	got, err := store.Messages.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, buckets, got.Reactions)
}

func TestReactions_RemoveDropsEmptyBucket(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, store)
	msg := appendText(t, store, conv.ID, uuid.New(), "hello")
	u := uuid.New()

	_, err := store.Reactions.Add(ctx, msg.ID, u, "👍")
	require.NoError(t, err)
	buckets, err := store.Reactions.Remove(ctx, msg.ID, u, "👍")
	require.NoError(t, err)
	assert.Empty(t, buckets)

	// Absent reaction is a no-op.
	_, err = store.Reactions.Remove(ctx, msg.ID, u, "👍")
	assert.NoError(t, err)

	_, err = store.Reactions.Add(ctx, 9999, u, "👍")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMessages_EditSnapshotsOriginalOnce(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, store)
	author := uuid.New()
	msg := appendText(t, store, conv.ID, author, "A")

	edited, err := store.Messages.Edit(ctx, msg.ID, "B", author, nil)
	require.NoError(t, err)
	edited, err = store.Messages.Edit(ctx, msg.ID, "C", author, nil)
	require.NoError(t, err)

	assert.Equal(t, "C", edited.Body)
	require.NotNil(t, edited.OriginalBody)
	assert.Equal(t, "A", *edited.OriginalBody)
	assert.True(t, edited.IsEdited)

	history, err := store.Messages.EditHistory(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "A", history[0].PreviousBody)
	assert.Equal(t, "B", history[1].PreviousBody)
}

func TestMessages_EditAuthorizerRejectionChangesNothing(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, store)
	author := uuid.New()
	msg := appendText(t, store, conv.ID, author, "A")

	denied := models.NewAuthorizationError("nope")
	_, err := store.Messages.Edit(ctx, msg.ID, "B", author, func(*models.Message) error { return denied })
	assert.ErrorIs(t, err, denied)

	got, err := store.Messages.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Body)
	assert.False(t, got.IsEdited)
	assert.Nil(t, got.OriginalBody)
}

func TestMessages_DeliveryStatusOnlyMovesForward(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, store)
	msg := appendText(t, store, conv.ID, uuid.New(), "hi")

	read, err := store.Messages.MarkRead(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryRead, read.Status)
	assert.True(t, read.IsRead)
	require.NotNil(t, read.DeliveredAt)

	again, err := store.Messages.MarkDelivered(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryRead, again.Status)
}

func TestMessages_PinKeepsFirstPinner(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, store)
	msg := appendText(t, store, conv.ID, uuid.New(), "pin me")
	first, second := uuid.New(), uuid.New()

	_, err := store.Messages.Pin(ctx, msg.ID, first)
	require.NoError(t, err)
	pinned, err := store.Messages.Pin(ctx, msg.ID, second)
	require.NoError(t, err)
	require.NotNil(t, pinned.PinnedBy)
	assert.Equal(t, first, *pinned.PinnedBy)

	list, err := store.Messages.ListPinned(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	unpinned, err := store.Messages.Unpin(ctx, msg.ID)
	require.NoError(t, err)
	assert.False(t, unpinned.IsPinned)
	assert.Nil(t, unpinned.PinnedBy)
}

func TestMessages_DeleteClearsReplyReferences(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, store)
	author := uuid.New()
	parent := appendText(t, store, conv.ID, author, "parent")

	reply, err := store.Messages.Append(ctx, models.NewMessage{
		ConversationID: conv.ID,
		Body:           "reply",
		Type:           models.TypeText,
		ReplyToID:      &parent.ID,
	})
	require.NoError(t, err)

	require.NoError(t, store.Messages.Delete(ctx, parent.ID))
	assert.ErrorIs(t, store.Messages.Delete(ctx, parent.ID), models.ErrNotFound)

	got, err := store.Messages.GetByID(ctx, reply.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.ReplyToID)
}

func TestConversations_MarkReadForResetsUnread(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, store)
	viewer, other := uuid.New(), uuid.New()

	appendText(t, store, conv.ID, other, "1")
	appendText(t, store, conv.ID, other, "2")
	own := appendText(t, store, conv.ID, viewer, "mine")

	marked, err := store.Conversations.MarkReadFor(ctx, conv.ID, viewer)
	require.NoError(t, err)
	assert.EqualValues(t, 2, marked)

	got, err := store.Conversations.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.UnreadCount)

	msgs, err := store.Messages.List(ctx, models.MessageQuery{ConversationID: conv.ID})
	require.NoError(t, err)
	for _, m := range msgs {
		if m.ID == own.ID {
			assert.Equal(t, models.DeliverySent, m.Status)
			continue
		}
		assert.True(t, m.IsRead)
		assert.NotNil(t, m.ReadAt)
	}

	marked, err = store.Conversations.MarkReadFor(ctx, conv.ID, viewer)
	require.NoError(t, err)
	assert.Zero(t, marked)
}

func TestConversations_StatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		path    []models.ConversationStatus
		wantErr bool
	}{
		{"archive and reopen", []models.ConversationStatus{models.StatusArchived, models.StatusActive}, false},
		{"close from active", []models.ConversationStatus{models.StatusClosed}, false},
		{"close from archived", []models.ConversationStatus{models.StatusArchived, models.StatusClosed}, true},
		{"reopen closed", []models.ConversationStatus{models.StatusClosed, models.StatusActive}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newTestStore(t)
			conv := seedConversation(t, store)
			var err error
			for _, st := range tt.path {
				if _, err = store.Conversations.SetStatus(context.Background(), conv.ID, st); err != nil {
					break
				}
			}
			if tt.wantErr {
				assert.True(t, models.IsValidation(err), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConversations_ParticipantsHaveSetSemantics(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, store)
	u := uuid.New()

	require.NoError(t, store.Conversations.AddParticipant(ctx, conv.ID, u))
	require.NoError(t, store.Conversations.AddParticipant(ctx, conv.ID, u))
	got, err := store.Conversations.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{u}, got.ParticipantIDs)

	require.NoError(t, store.Conversations.RemoveParticipant(ctx, conv.ID, u))
	require.NoError(t, store.Conversations.RemoveParticipant(ctx, conv.ID, u))
	got, err = store.Conversations.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ParticipantIDs)

	assert.ErrorIs(t, store.Conversations.AddParticipant(ctx, uuid.New(), u), models.ErrNotFound)
}

func TestConversations_AssignRequiresExistingUser(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, store)

	missing := uuid.New()
	_, err := store.Conversations.Assign(ctx, conv.ID, &missing)
	assert.True(t, models.IsValidation(err))

	agent, err := store.Users.Create(ctx, "agent@example.com", "Agent", models.RoleAgent, "hash")
	require.NoError(t, err)
	got, err := store.Conversations.Assign(ctx, conv.ID, &agent.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AssignedTo)
	assert.Equal(t, agent.ID, *got.AssignedTo)

	got, err = store.Conversations.Assign(ctx, conv.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, got.AssignedTo)
}

func TestGuests_GetOrCreateIsIdempotentUnderRace(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	const callers = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = make(map[uuid.UUID]struct{})
		created int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g, isNew, err := store.Guests.GetOrCreate(ctx, "sess-1", fmt.Sprintf("10.0.0.%d", i), "ua")
			if !assert.NoError(t, err) {
				return
			}
			conv, _, err := store.Conversations.GetOrCreateForGuest(ctx, g.ID, "Guest chat")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			ids[conv.ID] = struct{}{}
			if isNew {
				created++
			}
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, ids, 1)
}

func TestGuests_ClosedConversationIsReplacedOnNextSend(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	g, _, err := store.Guests.GetOrCreate(ctx, "sess-3", "1.1.1.1", "ua")
	require.NoError(t, err)
	first, created, err := store.Conversations.GetOrCreateForGuest(ctx, g.ID, "Guest chat")
	require.NoError(t, err)
	require.True(t, created)

	_, err = store.Conversations.SetStatus(ctx, first.ID, models.StatusClosed)
	require.NoError(t, err)

	shown, err := store.Conversations.GetForGuest(ctx, g.ID)
	require.NoError(t, err)
	require.NotNil(t, shown)
	assert.Equal(t, first.ID, shown.ID)

	next, created, err := store.Conversations.GetOrCreateForGuest(ctx, g.ID, "Guest chat")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, next.ID)
	assert.Equal(t, models.StatusActive, next.Status)

	again, created, err := store.Conversations.GetOrCreateForGuest(ctx, g.ID, "Guest chat")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, next.ID, again.ID)

	old, err := store.Conversations.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, old.Status)
}

func TestGuests_FirstWriteWinsForClientInfo(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	g, created, err := store.Guests.GetOrCreate(ctx, "sess-2", "1.1.1.1", "first")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := store.Guests.GetOrCreate(ctx, "sess-2", "2.2.2.2", "second")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, g.ID, again.ID)
	assert.Equal(t, "1.1.1.1", again.IPAddress)
	assert.Equal(t, "first", again.UserAgent)

	clock.Advance(time.Hour)
	n, err := store.Guests.CountActiveSince(ctx, clock.Now().Add(-models.GuestActiveWindow))
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, store.Guests.TouchActivity(ctx, g.ID))
	n, err = store.Guests.CountActiveSince(ctx, clock.Now().Add(-models.GuestActiveWindow))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestUsers_DuplicateEmailConflicts(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Users.Create(ctx, "a@example.com", "A", models.RoleStaff, "hash")
	require.NoError(t, err)
	_, err = store.Users.Create(ctx, "a@example.com", "A2", models.RoleStaff, "hash")
	assert.True(t, errors.Is(err, models.ErrConflict))

	staff, err := store.Users.ListByRoles(ctx, models.StaffRoles)
	require.NoError(t, err)
	assert.Len(t, staff, 1)
}
