package triggers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/courier/internal/communication"
	"github.com/MarcoPoloResearchLab/courier/internal/storage"
	"github.com/MarcoPoloResearchLab/courier/internal/storage/storagetest"
	"github.com/stretchr/testify/require"
)

var messageTime = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

type sequenceIDs struct {
	prefix string
	next   int
}

func (s *sequenceIDs) NewID() (string, error) {
	s.next++
	return fmt.Sprintf("%s-%d", s.prefix, s.next), nil
}

type staticResolver map[communication.SocialID]communication.AccountID

func (r staticResolver) ResolveAccount(_ context.Context, social communication.SocialID) (communication.AccountID, bool, error) {
	account, ok := r[social]
	return account, ok, nil
}

func newTestTriggers(t *testing.T, adapter communication.DbAdapter, resolver AccountResolver) *Triggers {
	t.Helper()
	triggers, err := New(Config{Adapter: adapter, IDProvider: &sequenceIDs{prefix: "gen"}, Resolver: resolver})
	require.NoError(t, err)
	return triggers
}

func messageCreated(id communication.MessageID, card communication.CardID, creator communication.SocialID, created time.Time) communication.MessageCreated {
	return communication.MessageCreated{
		Message:  communication.Message{ID: id, Card: card, Content: "hello", Creator: creator, Created: created},
		CardType: "card:class:Card",
	}
}

func kinds(events []communication.Event) []communication.EventKind {
	result := make([]communication.EventKind, len(events))
	for index, event := range events {
		result[index] = event.Kind()
	}
	return result
}

func TestMessageCreatedNotifiesEveryCollaborator(t *testing.T) {
	ctx := context.Background()
	adapter := storagetest.NewAdapter(t, "ws-1")
	_, err := adapter.AddCollaborators(ctx, "C1", "card:class:Card", []communication.AccountID{"A", "B"}, messageTime.Add(-time.Hour))
	require.NoError(t, err)
	triggers := newTestTriggers(t, adapter, staticResolver{})

	events, err := triggers.Process(ctx, communication.ConnectionInfo{}, messageCreated("m1", "C1", "outsider", messageTime))
	require.NoError(t, err)
	require.Equal(t, []communication.EventKind{
		communication.EventNotificationContextCreated,
		communication.EventNotificationContextCreated,
		communication.EventNotificationCreated,
		communication.EventNotificationCreated,
	}, kinds(events))

	created := events[0].(communication.NotificationContextCreated).Context
	require.Equal(t, messageTime, created.LastUpdate)
	require.Equal(t, messageTime, created.LastNotify)
	require.Equal(t, time.Unix(0, 0).UTC(), created.LastView)

	contexts, err := adapter.FindContexts(ctx, communication.FindNotificationContextParams{Cards: []communication.CardID{"C1"}})
	require.NoError(t, err)
	require.Len(t, contexts, 2)
	total, err := adapter.CountNotifications(ctx, communication.FindNotificationsParams{})
	require.NoError(t, err)
	require.Equal(t, 2, total)

	later := messageTime.Add(time.Minute)
	events, err = triggers.Process(ctx, communication.ConnectionInfo{}, messageCreated("m2", "C1", "outsider", later))
	require.NoError(t, err)
	require.Equal(t, []communication.EventKind{
		communication.EventNotificationContextUpdated,
		communication.EventNotificationContextUpdated,
		communication.EventNotificationCreated,
		communication.EventNotificationCreated,
	}, kinds(events))
	updated := events[0].(communication.NotificationContextUpdated)
	require.Equal(t, later, *updated.Update.LastUpdate)
	require.Equal(t, later, *updated.Update.LastNotify)

	contexts, err = adapter.FindContexts(ctx, communication.FindNotificationContextParams{Cards: []communication.CardID{"C1"}})
	require.NoError(t, err)
	require.Len(t, contexts, 2, "repeated triggers must not duplicate contexts")
}

func TestMessageCreatedSkipsNewerContexts(t *testing.T) {
	ctx := context.Background()
	adapter := storagetest.NewAdapter(t, "ws-1")
	require.NoError(t, adapter.CreateContext(ctx, communication.NotificationContext{
		ID: "viewer", Card: "C1", Account: "V", LastView: messageTime, LastUpdate: messageTime.Add(time.Hour), LastNotify: messageTime,
	}))
	triggers := newTestTriggers(t, adapter, nil)

	events, err := triggers.Process(ctx, communication.ConnectionInfo{}, messageCreated("m1", "C1", "outsider", messageTime))
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestCreatorIsSubscribedAndNotNotified(t *testing.T) {
	ctx := context.Background()
	adapter := storagetest.NewAdapter(t, "ws-1")
	_, err := adapter.AddCollaborators(ctx, "C1", "card:class:Card", []communication.AccountID{"B"}, messageTime.Add(-time.Hour))
	require.NoError(t, err)
	triggers := newTestTriggers(t, adapter, staticResolver{"social-a": "A"})

	events, err := triggers.Process(ctx, communication.ConnectionInfo{}, messageCreated("m1", "C1", "social-a", messageTime))
	require.NoError(t, err)
	require.Equal(t, []communication.EventKind{
		communication.EventCollaboratorsAdded,
		communication.EventNotificationContextCreated,
		communication.EventNotificationCreated,
	}, kinds(events))
	added := events[0].(communication.CollaboratorsAdded)
	require.Equal(t, []communication.AccountID{"A"}, added.Collaborators)
	require.Equal(t, communication.AccountID("B"), events[2].(communication.NotificationCreated).Account)

	events, err = triggers.Process(ctx, communication.ConnectionInfo{}, messageCreated("m2", "C1", "social-a", messageTime.Add(time.Minute)))
	require.NoError(t, err)
	for _, event := range events {
		require.NotEqual(t, communication.EventCollaboratorsAdded, event.Kind())
		if created, ok := event.(communication.NotificationCreated); ok {
			require.Equal(t, communication.AccountID("B"), created.Account)
		}
	}
}

// racingAdapter lets another writer create the context first.
type racingAdapter struct {
	*storage.Adapter
}

func (r racingAdapter) CreateContext(ctx context.Context, notificationContext communication.NotificationContext) error {
	winner := notificationContext
	winner.ID = "winner"
	if err := r.Adapter.CreateContext(ctx, winner); err != nil {
		return err
	}
	return r.Adapter.CreateContext(ctx, notificationContext)
}

func TestConcurrentContextCreationIsReconciled(t *testing.T) {
	ctx := context.Background()
	adapter := storagetest.NewAdapter(t, "ws-1")
	_, err := adapter.AddCollaborators(ctx, "C1", "card:class:Card", []communication.AccountID{"A"}, messageTime.Add(-time.Hour))
	require.NoError(t, err)
	triggers := newTestTriggers(t, racingAdapter{Adapter: adapter}, nil)

	events, err := triggers.Process(ctx, communication.ConnectionInfo{}, messageCreated("m1", "C1", "outsider", messageTime))
	require.NoError(t, err)
	require.Equal(t, []communication.EventKind{communication.EventNotificationCreated}, kinds(events))
	require.Equal(t, communication.ContextID("winner"), events[0].(communication.NotificationCreated).Notification.Context)

	contexts, err := adapter.FindContexts(ctx, communication.FindNotificationContextParams{Cards: []communication.CardID{"C1"}})
	require.NoError(t, err)
	require.Len(t, contexts, 1)
}

func TestThreadRepliesFollowMessages(t *testing.T) {
	ctx := context.Background()
	adapter := storagetest.NewAdapter(t, "ws-1")
	require.NoError(t, adapter.CreateThread(ctx, communication.Thread{Card: "parent", Message: "root", Thread: "T1"}))
	triggers := newTestTriggers(t, adapter, nil)

	events, err := triggers.Process(ctx, communication.ConnectionInfo{}, messageCreated("reply", "T1", "outsider", messageTime))
	require.NoError(t, err)
	require.Len(t, events, 1)
	thread := events[0].(communication.ThreadUpdated).Thread
	require.Equal(t, 1, thread.RepliesCount)
	require.Equal(t, messageTime, *thread.LastReply)

	events, err = triggers.Process(ctx, communication.ConnectionInfo{}, communication.MessageRemoved{Card: "T1", Message: "reply"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, 0, events[0].(communication.ThreadUpdated).Thread.RepliesCount)

	events, err = triggers.Process(ctx, communication.ConnectionInfo{}, communication.MessageRemoved{Card: "not-a-thread", Message: "x"})
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestCollaboratorEventsMaintainSubscriptionLabels(t *testing.T) {
	ctx := context.Background()
	adapter := storagetest.NewAdapter(t, "ws-1")
	triggers := newTestTriggers(t, adapter, nil)

	events, err := triggers.Process(ctx, communication.ConnectionInfo{}, communication.CollaboratorsAdded{
		Card: "C1", CardType: "card:class:Card", Collaborators: []communication.AccountID{"A", "B"}, Date: messageTime,
	})
	require.NoError(t, err)
	require.Empty(t, events)
	labels, err := adapter.FindLabels(ctx, communication.FindLabelsParams{Labels: []communication.LabelID{communication.SubscriptionLabel}})
	require.NoError(t, err)
	require.Len(t, labels, 2)

	_, err = triggers.Process(ctx, communication.ConnectionInfo{}, communication.CollaboratorsRemoved{
		Card: "C1", Collaborators: []communication.AccountID{"A"},
	})
	require.NoError(t, err)
	labels, err = adapter.FindLabels(ctx, communication.FindLabelsParams{Cards: []communication.CardID{"C1"}})
	require.NoError(t, err)
	require.Len(t, labels, 1)
	require.Equal(t, communication.AccountID("B"), labels[0].Account)
}
