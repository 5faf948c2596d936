package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/convo/internal/models"
	"github.com/lalith-99/convo/internal/notify"
	"github.com/lalith-99/convo/internal/realtime"
	"github.com/lalith-99/convo/internal/repository"
	"github.com/lalith-99/convo/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev realtime.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) kinds() []realtime.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]realtime.EventKind, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Kind)
	}
	return out
}

type recordingDispatcher struct {
	mu    sync.Mutex
	notes []notify.Notification
	err   error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, notes []notify.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.notes = append(d.notes, notes...)
	return nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc    *Service
	store  *repository.Store
	events *recordingPublisher
	notes  *recordingDispatcher
	clock  *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	store := memory.NewStore(clock.Now)
	events := &recordingPublisher{}
	notes := &recordingDispatcher{}
	svc := NewService(store, events, notes, zap.NewNop(), WithClock(clock.Now))
	return &fixture{svc: svc, store: store, events: events, notes: notes, clock: clock}
}

func (f *fixture) staff(t *testing.T, email, role string) *models.User {
	t.Helper()
	u, err := f.store.Users.Create(context.Background(), email, strings.Split(email, "@")[0], role, "hash")
	require.NoError(t, err)
	return u
}

func (f *fixture) staffConversation(t *testing.T, creator uuid.UUID) *models.Conversation {
	t.Helper()
	conv, err := f.svc.CreateConversation(context.Background(), models.NewConversation{
		Title:     "Project kickoff",
		Owner:     models.ProjectOwner(uuid.New()),
		CreatedBy: &creator,
	})
	require.NoError(t, err)
	return conv
}

func TestSendGuestMessage_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agent := f.staff(t, "agent@example.com", models.RoleAgent)

	res, err := f.svc.SendGuestMessage(ctx, GuestMessage{
		SessionID: "abc",
		Client:    ClientInfo{IP: "203.0.113.7", UserAgent: "widget"},
		Body:      "Hello",
	})
	require.NoError(t, err)

	assert.True(t, res.NewConversation)
	assert.Equal(t, models.StatusActive, res.Conversation.Status)
	assert.Equal(t, models.PriorityNormal, res.Conversation.Priority)
	assert.Empty(t, res.Conversation.ParticipantIDs)
	assert.Nil(t, res.Conversation.CreatedBy)
	assert.Equal(t, models.GuestOwner(res.Guest.ID), res.Conversation.Owner)

	assert.Equal(t, "Hello", res.Message.Body)
	assert.Equal(t, models.TypeText, res.Message.Type)
	assert.Equal(t, models.DeliverySent, res.Message.Status)

	assert.Equal(t, 1, res.Conversation.UnreadCount)
	require.NotNil(t, res.Conversation.LastMessageAt)

	assert.Contains(t, f.events.kinds(), realtime.MessageCreated)
	require.Len(t, f.notes.notes, 1)
	assert.Equal(t, agent.ID, f.notes.notes[0].RecipientID)
	assert.Equal(t, "/conversations/"+res.Conversation.ID.String(), f.notes.notes[0].Link)

	marked, err := f.svc.MarkConversationRead(ctx, res.Conversation.ID, agent.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, marked)

	conv, err := f.svc.GetConversation(ctx, res.Conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, conv.UnreadCount)
}

func TestSendGuestMessage_ReusesConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.SendGuestMessage(ctx, GuestMessage{SessionID: "abc", Body: "one"})
	require.NoError(t, err)
	second, err := f.svc.SendGuestMessage(ctx, GuestMessage{SessionID: "abc", Body: "two"})
	require.NoError(t, err)

	assert.Equal(t, first.Guest.ID, second.Guest.ID)
	assert.Equal(t, first.Conversation.ID, second.Conversation.ID)
	assert.False(t, second.NewConversation)
	assert.Equal(t, 2, second.Conversation.UnreadCount)
}

func TestSendGuestMessage_RacingFirstMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const senders = 20
	var wg sync.WaitGroup
	convs := make([]uuid.UUID, senders)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.SendGuestMessage(ctx, GuestMessage{SessionID: "race", Body: "hi"})
			if assert.NoError(t, err) {
				convs[i] = res.Conversation.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range convs {
		assert.Equal(t, convs[0], id)
	}
	list, err := f.svc.ListConversations(ctx, models.ConversationFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, senders, list[0].UnreadCount)
}

func TestSendGuestMessage_ValidationWritesNothing(t *testing.T) {
	tests := []struct {
		name string
		in   GuestMessage
	}{
		{"empty body", GuestMessage{SessionID: "v", Body: "   "}},
		{"body too long", GuestMessage{SessionID: "v", Body: strings.Repeat("x", 5001)}},
		{"attachment too large", GuestMessage{SessionID: "v", Body: "see file", Attachments: []models.Attachment{
			{Name: "big.zip", Path: "uploads/big.zip", Size: 10<<20 + 1, MimeType: "application/zip"},
		}}},
		{"missing session", GuestMessage{Body: "hi"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.SendGuestMessage(context.Background(), tt.in)
			assert.True(t, models.IsValidation(err), "got %v", err)

			guest, err := f.store.Guests.GetBySessionID(context.Background(), "v")
			require.NoError(t, err)
			assert.Nil(t, guest)
			assert.Empty(t, f.events.kinds())
		})
	}
}

func TestSendGuestMessage_BodyAtLimitAccepted(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.SendGuestMessage(context.Background(), GuestMessage{SessionID: "lim", Body: strings.Repeat("é", 5000)})
	require.NoError(t, err)
	assert.Equal(t, models.TypeText, res.Message.Type)
}

func TestSendGuestMessage_AttachmentOnlyIsFile(t *testing.T) {
	f := newFixture(t)
	f.staff(t, "staff@example.com", models.RoleStaff)
	res, err := f.svc.SendGuestMessage(context.Background(), GuestMessage{
		SessionID:   "att",
		Attachments: []models.Attachment{{Name: "invoice.pdf", Path: "uploads/invoice.pdf", Size: 2048, MimeType: "application/pdf"}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.TypeFile, res.Message.Type)
	require.Len(t, f.notes.notes, 1)
	assert.Equal(t, "Sent invoice.pdf", f.notes.notes[0].Summary)
}

func TestSendGuestMessage_NotifiesAssigneeOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.staff(t, "a@example.com", models.RoleStaff)
	assignee := f.staff(t, "b@example.com", models.RoleAgent)

	first, err := f.svc.SendGuestMessage(ctx, GuestMessage{SessionID: "n", Body: "first"})
	require.NoError(t, err)
	assert.Len(t, f.notes.notes, 2)

	_, err = f.svc.Assign(ctx, first.Conversation.ID, &assignee.ID)
	require.NoError(t, err)

	long := strings.Repeat("z", 80)
	_, err = f.svc.SendGuestMessage(ctx, GuestMessage{SessionID: "n", Body: long})
	require.NoError(t, err)

	require.Len(t, f.notes.notes, 3)
	last := f.notes.notes[2]
	assert.Equal(t, assignee.ID, last.RecipientID)
	assert.Equal(t, strings.Repeat("z", 50)+"...", last.Summary)
}

func TestSendGuestMessage_NotificationFailureIsNotReturned(t *testing.T) {
	f := newFixture(t)
	f.staff(t, "a@example.com", models.RoleStaff)
	f.notes.err = errors.New("broker down")

	res, err := f.svc.SendGuestMessage(context.Background(), GuestMessage{SessionID: "fail", Body: "hi"})
	require.NoError(t, err)
	assert.NotNil(t, res.Message)
}

func TestSendGuestMessage_ClosedConversationStartsFreshOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.SendGuestMessage(ctx, GuestMessage{SessionID: "closed", Body: "hi"})
	require.NoError(t, err)
	_, err = f.svc.SetStatus(ctx, res.Conversation.ID, models.StatusClosed)
	require.NoError(t, err)

	hist, err := f.svc.GuestHistory(ctx, "closed", ClientInfo{}, 0, 0)
	require.NoError(t, err)
	require.NotNil(t, hist.Conversation)
	assert.Equal(t, res.Conversation.ID, hist.Conversation.ID)

	next, err := f.svc.SendGuestMessage(ctx, GuestMessage{SessionID: "closed", Body: "again"})
	require.NoError(t, err)
	assert.True(t, next.NewConversation)
	assert.NotEqual(t, res.Conversation.ID, next.Conversation.ID)
	assert.Equal(t, models.StatusActive, next.Conversation.Status)
	assert.Equal(t, res.Guest.ID, next.Guest.ID)

	old, err := f.store.Conversations.GetByID(ctx, res.Conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, old.Status)

	hist, err = f.svc.GuestHistory(ctx, "closed", ClientInfo{}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, next.Conversation.ID, hist.Conversation.ID)
	require.Len(t, hist.Messages, 1)
	assert.Equal(t, "again", hist.Messages[0].Body)
}

func TestGuestHistory_HidesInternalNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agent := f.staff(t, "agent@example.com", models.RoleAgent)

	empty, err := f.svc.GuestHistory(ctx, "hist", ClientInfo{}, 0, 0)
	require.NoError(t, err)
	assert.Nil(t, empty.Conversation)
	assert.Empty(t, empty.Messages)

	res, err := f.svc.SendGuestMessage(ctx, GuestMessage{SessionID: "hist", Body: "question"})
	require.NoError(t, err)
	_, err = f.svc.SendStaffMessage(ctx, StaffMessage{ConversationID: res.Conversation.ID, SenderID: agent.ID, Body: "answer"})
	require.NoError(t, err)
	_, err = f.svc.SendStaffMessage(ctx, StaffMessage{ConversationID: res.Conversation.ID, SenderID: agent.ID, Body: "vip", IsInternal: true})
	require.NoError(t, err)

	hist, err := f.svc.GuestHistory(ctx, "hist", ClientInfo{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, hist.Messages, 2)
	assert.Equal(t, "question", hist.Messages[0].Body)
	assert.Equal(t, "answer", hist.Messages[1].Body)

	staffView, err := f.svc.ListMessages(ctx, res.Conversation.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, staffView, 3)
}

func TestGuestSession_ActiveAndProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.GuestSession(ctx, "prof", ClientInfo{IP: "1.2.3.4"})
	require.NoError(t, err)
	assert.True(t, view.Active)
	assert.True(t, strings.HasPrefix(view.DisplayName, "Guest "))

	_, err = f.svc.UpdateGuestProfile(ctx, "prof", ClientInfo{}, models.GuestProfile{Email: "not-an-email"})
	assert.True(t, models.IsValidation(err))

	g, err := f.svc.UpdateGuestProfile(ctx, "prof", ClientInfo{}, models.GuestProfile{
		Name: " Ada ", Email: "ada@example.com", InquiryType: models.InquirySales,
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada", g.Name)
	assert.Equal(t, models.InquirySales, g.InquiryType)
	assert.Equal(t, "1.2.3.4", g.IPAddress)
}

func TestSendStaffMessage_AddsSenderAsParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator := f.staff(t, "c@example.com", models.RoleStaff)
	other := f.staff(t, "o@example.com", models.RoleAgent)
	conv := f.staffConversation(t, creator.ID)
	assert.Equal(t, []uuid.UUID{creator.ID}, conv.ParticipantIDs)

	_, err := f.svc.SendStaffMessage(ctx, StaffMessage{ConversationID: conv.ID, SenderID: other.ID, Body: "joining"})
	require.NoError(t, err)

	got, err := f.svc.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{creator.ID, other.ID}, got.ParticipantIDs)

	_, err = f.svc.SendStaffMessage(ctx, StaffMessage{ConversationID: uuid.New(), SenderID: other.ID, Body: "lost"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestEditMessage_WindowBoundary(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		allowed bool
	}{
		{"fresh", 0, true},
		{"14m59s", 14*time.Minute + 59*time.Second, true},
		{"exactly 15m", 15 * time.Minute, true},
		{"15m1s", 15*time.Minute + time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			author := f.staff(t, "a@example.com", models.RoleStaff)
			conv := f.staffConversation(t, author.ID)
			msg, err := f.svc.SendStaffMessage(ctx, StaffMessage{ConversationID: conv.ID, SenderID: author.ID, Body: "draft"})
			require.NoError(t, err)

			f.clock.Advance(tt.elapsed)
			edited, err := f.svc.EditMessage(ctx, msg.ID, author.ID, "final")
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, "final", edited.Body)
				return
			}
			assert.True(t, models.IsAuthorization(err), "got %v", err)
			got, err := f.svc.GetMessage(ctx, msg.ID)
			require.NoError(t, err)
			assert.Equal(t, "draft", got.Body)
		})
	}
}

func TestEditMessage_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author := f.staff(t, "a@example.com", models.RoleStaff)
	other := f.staff(t, "b@example.com", models.RoleStaff)
	conv := f.staffConversation(t, author.ID)

	msg, err := f.svc.SendStaffMessage(ctx, StaffMessage{ConversationID: conv.ID, SenderID: author.ID, Body: "A"})
	require.NoError(t, err)

	_, err = f.svc.EditMessage(ctx, msg.ID, other.ID, "hijack")
	assert.True(t, models.IsAuthorization(err))

	_, err = f.svc.EditMessage(ctx, msg.ID, author.ID, "")
	assert.True(t, models.IsValidation(err))

	for _, body := range []string{"B", "C", "D"} {
		_, err = f.svc.EditMessage(ctx, msg.ID, author.ID, body)
		require.NoError(t, err)
	}
	got, err := f.svc.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.NotNil(t, got.OriginalBody)
	assert.Equal(t, "A", *got.OriginalBody)
	assert.Equal(t, "D", got.Body)

	history, err := f.svc.EditHistory(ctx, msg.ID)
	require.NoError(t, err)
	assert.Len(t, history, 3)

	system, err := f.svc.SendStaffMessage(ctx, StaffMessage{ConversationID: conv.ID, SenderID: author.ID, Body: "joined", Type: models.TypeSystem})
	require.NoError(t, err)
	_, err = f.svc.EditMessage(ctx, system.ID, author.ID, "changed")
	assert.True(t, models.IsAuthorization(err))
}

func TestReact_SingleReactionPerUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.staff(t, "a@example.com", models.RoleStaff)
	conv := f.staffConversation(t, u.ID)
	msg, err := f.svc.SendStaffMessage(ctx, StaffMessage{ConversationID: conv.ID, SenderID: u.ID, Body: "ship it"})
	require.NoError(t, err)

	for _, emoji := range []string{"👍", "🎉", "🚀"} {
		_, err := f.svc.React(ctx, msg.ID, u.ID, emoji)
		require.NoError(t, err)
	}
	change, err := f.svc.React(ctx, msg.ID, u.ID, "🚀")
	require.NoError(t, err)
	require.Len(t, change.Reactions, 1)
	assert.Equal(t, "🚀", change.Reactions[0].Emoji)
	assert.Equal(t, 1, change.Reactions[0].Count)

	change, err = f.svc.Unreact(ctx, msg.ID, u.ID, "🚀")
	require.NoError(t, err)
	assert.Empty(t, change.Reactions)

	_, err = f.svc.React(ctx, msg.ID, u.ID, "thumbs up")
	assert.True(t, models.IsValidation(err))
	_, err = f.svc.React(ctx, 424242, u.ID, "👍")
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.Contains(t, f.events.kinds(), realtime.MessageReaction)
}

func TestDeleteMessage_AuthorOrAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author := f.staff(t, "a@example.com", models.RoleStaff)
	other := f.staff(t, "b@example.com", models.RoleAgent)
	admin := f.staff(t, "root@example.com", models.RoleAdmin)
	conv := f.staffConversation(t, author.ID)

	first, err := f.svc.SendStaffMessage(ctx, StaffMessage{ConversationID: conv.ID, SenderID: author.ID, Body: "one"})
	require.NoError(t, err)
	second, err := f.svc.SendStaffMessage(ctx, StaffMessage{ConversationID: conv.ID, SenderID: author.ID, Body: "two"})
	require.NoError(t, err)

	err = f.svc.DeleteMessage(ctx, first.ID, Actor{UserID: other.ID, Role: other.Role})
	assert.True(t, models.IsAuthorization(err))

	require.NoError(t, f.svc.DeleteMessage(ctx, first.ID, Actor{UserID: author.ID, Role: author.Role}))
	require.NoError(t, f.svc.DeleteMessage(ctx, second.ID, Actor{UserID: admin.ID, Role: admin.Role}))

	assert.ErrorIs(t, f.svc.DeleteMessage(ctx, first.ID, Actor{UserID: author.ID}), models.ErrNotFound)
	assert.Contains(t, f.events.kinds(), realtime.MessageDeleted)
}

func TestPinAndDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.staff(t, "a@example.com", models.RoleStaff)
	conv := f.staffConversation(t, u.ID)
	msg, err := f.svc.SendStaffMessage(ctx, StaffMessage{ConversationID: conv.ID, SenderID: u.ID, Body: "agenda"})
	require.NoError(t, err)

	pinned, err := f.svc.Pin(ctx, msg.ID, u.ID)
	require.NoError(t, err)
	assert.True(t, pinned.IsPinned)

	pins, err := f.svc.ListPinned(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, pins, 1)

	_, err = f.svc.Unpin(ctx, msg.ID)
	require.NoError(t, err)
	pins, err = f.svc.ListPinned(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, pins)

	delivered, err := f.svc.MarkDelivered(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryDelivered, delivered.Status)
	read, err := f.svc.MarkRead(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryRead, read.Status)
}

func TestConversationAdministration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator := f.staff(t, "a@example.com", models.RoleStaff)
	helper := f.staff(t, "b@example.com", models.RoleAgent)
	conv := f.staffConversation(t, creator.ID)

	_, err := f.svc.SetStatus(ctx, conv.ID, "paused")
	assert.True(t, models.IsValidation(err))

	_, err = f.svc.SetPriority(ctx, conv.ID, models.PriorityUrgent)
	require.NoError(t, err)

	tagged, err := f.svc.SetTags(ctx, conv.ID, []string{" billing ", "billing", "", "vip"})
	require.NoError(t, err)
	assert.Equal(t, []string{"billing", "vip"}, tagged.Tags)

	withHelper, err := f.svc.AddParticipant(ctx, conv.ID, helper.ID)
	require.NoError(t, err)
	assert.Contains(t, withHelper.ParticipantIDs, helper.ID)

	_, err = f.svc.AddParticipant(ctx, conv.ID, uuid.New())
	assert.True(t, models.IsValidation(err))

	without, err := f.svc.RemoveParticipant(ctx, conv.ID, helper.ID)
	require.NoError(t, err)
	assert.NotContains(t, without.ParticipantIDs, helper.ID)

	assigned, err := f.svc.Assign(ctx, conv.ID, &helper.ID)
	require.NoError(t, err)
	assert.Contains(t, assigned.ParticipantIDs, helper.ID)

	archived, err := f.svc.SetStatus(ctx, conv.ID, models.StatusArchived)
	require.NoError(t, err)
	assert.Equal(t, models.StatusArchived, archived.Status)

	_, err = f.svc.SetStatus(ctx, conv.ID, models.StatusClosed)
	assert.True(t, models.IsValidation(err))

	byAssignee, err := f.svc.ListConversations(ctx, models.ConversationFilter{AssignedTo: &helper.ID})
	require.NoError(t, err)
	assert.Len(t, byAssignee, 1)

	_, err = f.svc.CreateConversation(ctx, models.NewConversation{Title: " "})
	assert.True(t, models.IsValidation(err))
}
