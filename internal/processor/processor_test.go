package processor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/courier/internal/communication"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 5, 1, 10, 0, 0, 123456789, time.UTC)

type sequenceIDs struct {
	next int
}

func (s *sequenceIDs) NewID() (string, error) {
	s.next++
	return fmt.Sprintf("id-%d", s.next), nil
}

// fakeAdapter records writes; methods not overridden panic through the nil
// embedded interface, which flags unexpected storage calls.
type fakeAdapter struct {
	communication.DbAdapter

	err             error
	messages        []communication.Message
	removeCreators  []communication.SocialID
	removedMessages []communication.MessageID
	reactionRows    int64
	contexts        map[communication.ContextID]communication.NotificationContext
	createdContexts []communication.NotificationContext
	notifications   []communication.Notification
	contextQueries  []communication.ContextQuery
	updatedRows     int64
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{contexts: map[communication.ContextID]communication.NotificationContext{}}
}

func (f *fakeAdapter) Workspace() communication.WorkspaceID { return "ws-1" }

func (f *fakeAdapter) CreateMessage(_ context.Context, message communication.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeAdapter) RemoveMessages(_ context.Context, _ communication.CardID, _ []communication.MessageID, creators []communication.SocialID) ([]communication.MessageID, error) {
	f.removeCreators = creators
	return f.removedMessages, f.err
}

func (f *fakeAdapter) RemoveReaction(context.Context, communication.CardID, communication.MessageID, string, communication.SocialID) (int64, error) {
	return f.reactionRows, f.err
}

func (f *fakeAdapter) CreateContext(_ context.Context, notificationContext communication.NotificationContext) error {
	if f.err != nil {
		return f.err
	}
	f.createdContexts = append(f.createdContexts, notificationContext)
	return nil
}

func (f *fakeAdapter) UpdateContext(_ context.Context, contextQuery communication.ContextQuery, _ communication.ContextUpdate) (*communication.NotificationContext, error) {
	f.contextQueries = append(f.contextQueries, contextQuery)
	found, ok := f.contexts[contextQuery.Context]
	if !ok || (contextQuery.Account != "" && found.Account != contextQuery.Account) {
		return nil, f.err
	}
	return &found, f.err
}

func (f *fakeAdapter) FindContexts(_ context.Context, params communication.FindNotificationContextParams) ([]communication.NotificationContext, error) {
	var result []communication.NotificationContext
	for _, id := range params.IDs {
		if found, ok := f.contexts[id]; ok {
			result = append(result, found)
		}
	}
	return result, f.err
}

func (f *fakeAdapter) CreateNotification(_ context.Context, notification communication.Notification) (communication.NotificationContext, error) {
	found, ok := f.contexts[notification.Context]
	if !ok {
		return communication.NotificationContext{}, communication.ErrNotFound
	}
	f.notifications = append(f.notifications, notification)
	return found, nil
}

func (f *fakeAdapter) UpdateNotifications(context.Context, communication.NotificationQuery, communication.NotificationUpdate) (int64, error) {
	return f.updatedRows, f.err
}

func newTestProcessor(t *testing.T, adapter *fakeAdapter) *Processor {
	t.Helper()
	processor, err := New(Config{
		Adapter:    adapter,
		IDProvider: &sequenceIDs{},
		Clock:      func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return processor
}

func TestNewRequiresAdapterAndIDs(t *testing.T) {
	_, err := New(Config{IDProvider: &sequenceIDs{}})
	require.ErrorIs(t, err, errMissingAdapter)
	_, err = New(Config{Adapter: newFakeAdapter()})
	require.ErrorIs(t, err, errMissingIDProvider)
}

func TestCreateMessageAssignsIdentityAndTime(t *testing.T) {
	adapter := newFakeAdapter()
	processor := newTestProcessor(t, adapter)

	result, err := processor.Process(context.Background(), communication.ConnectionInfo{Account: "acc-1"},
		communication.CreateMessage{Card: "card-1", Content: "hello", Creator: "social-1"})
	require.NoError(t, err)
	require.Equal(t, "id-1", result.Result.ID)
	require.Len(t, adapter.messages, 1)

	event, ok := result.Event.(communication.MessageCreated)
	require.True(t, ok, "expected MessageCreated, got %T", result.Event)
	require.Equal(t, adapter.messages[0], event.Message)
	require.Equal(t, DefaultCardType, event.CardType)
	require.Equal(t, communication.Normalize(fixedNow), event.Message.Created)
}

func TestInvalidCommandNeverReachesStorage(t *testing.T) {
	adapter := newFakeAdapter()
	processor := newTestProcessor(t, adapter)

	_, err := processor.Process(context.Background(), communication.ConnectionInfo{}, communication.CreateMessage{Card: "card-1"})
	require.ErrorIs(t, err, communication.ErrInvalidCommand)
	require.Empty(t, adapter.messages)

	_, err = processor.Process(context.Background(), communication.ConnectionInfo{}, nil)
	require.ErrorIs(t, err, communication.ErrUnknownCommand)
}

func TestStorageErrorsPropagate(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.err = errors.New("connection reset")
	processor := newTestProcessor(t, adapter)

	result, err := processor.Process(context.Background(), communication.ConnectionInfo{},
		communication.CreateMessage{Card: "card-1", Creator: "social-1"})
	require.ErrorIs(t, err, adapter.err)
	require.Nil(t, result.Event)

	var serviceErr *ServiceError
	require.ErrorAs(t, err, &serviceErr)
	require.Equal(t, "processor.process.storage", serviceErr.Code())
}

func TestRemoveReactionAnnouncesZeroRowRemoval(t *testing.T) {
	adapter := newFakeAdapter()
	processor := newTestProcessor(t, adapter)

	result, err := processor.Process(context.Background(), communication.ConnectionInfo{},
		communication.RemoveReaction{Card: "card-1", Message: "m1", Reaction: "+1", Creator: "social-1"})
	require.NoError(t, err)
	require.Equal(t, communication.ReactionRemoved{Card: "card-1", Message: "m1", Reaction: "+1", Creator: "social-1"}, result.Event)
}

func TestRemoveMessageRestrictsToCallerSocialIDs(t *testing.T) {
	adapter := newFakeAdapter()
	processor := newTestProcessor(t, adapter)
	info := communication.ConnectionInfo{Account: "acc-1", SocialIDs: []communication.SocialID{"social-1"}}

	result, err := processor.Process(context.Background(), info, communication.RemoveMessage{Card: "card-1", Message: "m1"})
	require.NoError(t, err)
	require.Nil(t, result.Event)
	require.Equal(t, info.SocialIDs, adapter.removeCreators)

	adapter.removedMessages = []communication.MessageID{"m1"}
	result, err = processor.Process(context.Background(), communication.ConnectionInfo{IsSystem: true},
		communication.RemoveMessage{Card: "card-1", Message: "m1"})
	require.NoError(t, err)
	require.Nil(t, adapter.removeCreators)
	require.Equal(t, communication.MessageRemoved{Card: "card-1", Message: "m1"}, result.Event)
}

func TestCreateNotificationContextUsesCallerAccount(t *testing.T) {
	adapter := newFakeAdapter()
	processor := newTestProcessor(t, adapter)

	_, err := processor.Process(context.Background(), communication.ConnectionInfo{}, communication.CreateNotificationContext{Card: "card-1"})
	require.ErrorIs(t, err, errMissingAccount)

	result, err := processor.Process(context.Background(), communication.ConnectionInfo{Account: "acc-1"},
		communication.CreateNotificationContext{Card: "card-1"})
	require.NoError(t, err)
	require.Len(t, adapter.createdContexts, 1)
	created := adapter.createdContexts[0]
	require.Equal(t, communication.AccountID("acc-1"), created.Account)
	require.Equal(t, created.LastUpdate, created.LastNotify)
	require.Equal(t, communication.NotificationContextCreated{Context: created}, result.Event)
}

func TestUpdateContextIsOwnerScoped(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.contexts["ctx-1"] = communication.NotificationContext{ID: "ctx-1", Card: "card-1", Account: "acc-1"}
	processor := newTestProcessor(t, adapter)
	view := fixedNow

	result, err := processor.Process(context.Background(), communication.ConnectionInfo{Account: "acc-2"},
		communication.UpdateNotificationContext{Context: "ctx-1", Update: communication.ContextUpdate{LastView: &view}})
	require.NoError(t, err)
	require.Nil(t, result.Event)

	result, err = processor.Process(context.Background(), communication.ConnectionInfo{Account: "acc-1"},
		communication.UpdateNotificationContext{Context: "ctx-1", Update: communication.ContextUpdate{LastView: &view}})
	require.NoError(t, err)
	event, ok := result.Event.(communication.NotificationContextUpdated)
	require.True(t, ok)
	require.Equal(t, communication.AccountID("acc-1"), event.Account)
	require.Equal(t, communication.CardID("card-1"), event.Card)
	require.Equal(t, communication.Normalize(view), *event.Update.LastView)

	_, err = processor.Process(context.Background(), communication.ConnectionInfo{IsSystem: true},
		communication.UpdateNotificationContext{Context: "ctx-1", Update: communication.ContextUpdate{LastView: &view}})
	require.NoError(t, err)
	require.Equal(t, communication.AccountID(""), adapter.contextQueries[len(adapter.contextQueries)-1].Account)
}

func TestCreateNotificationAddressesContextOwner(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.contexts["ctx-1"] = communication.NotificationContext{ID: "ctx-1", Card: "card-1", Account: "acc-1"}
	processor := newTestProcessor(t, adapter)

	result, err := processor.Process(context.Background(), communication.ConnectionInfo{IsSystem: true},
		communication.CreateNotification{Context: "ctx-1", Message: "m1"})
	require.NoError(t, err)
	event, ok := result.Event.(communication.NotificationCreated)
	require.True(t, ok)
	require.Equal(t, communication.AccountID("acc-1"), event.Account)
	require.Equal(t, communication.NotificationTypeMessage, event.Notification.Type)

	_, err = processor.Process(context.Background(), communication.ConnectionInfo{IsSystem: true},
		communication.CreateNotification{Context: "missing", Message: "m1"})
	require.ErrorIs(t, err, communication.ErrNotFound)
}

func TestUpdateNotificationResolvesOwnerForSystemCallers(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.contexts["ctx-1"] = communication.NotificationContext{ID: "ctx-1", Card: "card-1", Account: "acc-1"}
	adapter.updatedRows = 2
	processor := newTestProcessor(t, adapter)
	read := true

	result, err := processor.Process(context.Background(), communication.ConnectionInfo{IsSystem: true},
		communication.UpdateNotification{Context: "ctx-1", Update: communication.NotificationUpdate{Read: &read}})
	require.NoError(t, err)
	event, ok := result.Event.(communication.NotificationUpdated)
	require.True(t, ok)
	require.Equal(t, communication.AccountID("acc-1"), event.Account)
}
