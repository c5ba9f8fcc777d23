package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/courier/internal/communication"
	"github.com/MarcoPoloResearchLab/courier/internal/database"
	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func openMigratedDatabase(testContext *testing.T) (*gorm.DB, database.Dialect) {
	testContext.Helper()
	dsn := filepath.Join(testContext.TempDir(), "storage.db")
	db, dialect, err := database.Open(dsn, database.PoolConfig{})
	if err != nil {
		testContext.Fatalf("open database: %v", err)
	}
	testContext.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	migrator := database.NewSchemaMigrator(database.SchemaMigratorConfig{})
	if err := migrator.EnsureSchema(context.Background(), dsn, db, dialect); err != nil {
		testContext.Fatalf("ensure schema: %v", err)
	}
	return db, dialect
}

func newTestAdapter(testContext *testing.T, db *gorm.DB, dialect database.Dialect, workspace communication.WorkspaceID) *Adapter {
	testContext.Helper()
	adapter, err := NewAdapter(AdapterConfig{DB: db, Style: dialect.Style(), Workspace: workspace})
	if err != nil {
		testContext.Fatalf("new adapter: %v", err)
	}
	return adapter
}

func createMessage(testContext *testing.T, adapter *Adapter, id communication.MessageID, card communication.CardID, created time.Time) {
	testContext.Helper()
	err := adapter.CreateMessage(context.Background(), communication.Message{
		ID: id, Card: card, Content: "hello " + string(id), Creator: "social-1", Created: created,
	})
	if err != nil {
		testContext.Fatalf("create message %s: %v", id, err)
	}
}

func TestNewAdapterRequiresWorkspace(testContext *testing.T) {
	db, dialect := openMigratedDatabase(testContext)
	if _, err := NewAdapter(AdapterConfig{DB: db, Style: dialect.Style()}); err == nil {
		testContext.Fatalf("expected missing workspace error")
	}
}

func TestMessageLifecycle(testContext *testing.T) {
	db, dialect := openMigratedDatabase(testContext)
	adapter := newTestAdapter(testContext, db, dialect, "ws-1")
	ctx := context.Background()

	createMessage(testContext, adapter, "m1", "card-1", baseTime)
	createMessage(testContext, adapter, "m2", "card-1", baseTime.Add(time.Minute))

	if err := adapter.CreatePatch(ctx, communication.Patch{Message: "m1", Card: "card-1", Content: "edited", Creator: "social-1", Created: baseTime.Add(2 * time.Minute)}); err != nil {
		testContext.Fatalf("create patch: %v", err)
	}
	if err := adapter.CreatePatch(ctx, communication.Patch{Message: "missing", Card: "card-1", Content: "x", Creator: "social-1", Created: baseTime}); !errors.Is(err, communication.ErrNotFound) {
		testContext.Fatalf("expected ErrNotFound for unknown message, got %v", err)
	}

	reaction := communication.Reaction{Message: "m1", Card: "card-1", Reaction: "+1", Creator: "social-2", Created: baseTime}
	for attempt := 0; attempt < 2; attempt++ {
		if err := adapter.CreateReaction(ctx, reaction); err != nil {
			testContext.Fatalf("create reaction attempt %d: %v", attempt, err)
		}
	}
	if err := adapter.CreateAttachment(ctx, communication.Attachment{ID: "f1", Message: "m1", Card: "card-1", Type: "image/png", Name: "a.png", Size: 42, Creator: "social-1", Created: baseTime}); err != nil {
		testContext.Fatalf("create attachment: %v", err)
	}

	messages, err := adapter.FindMessages(ctx, communication.FindMessagesParams{Card: "card-1", Order: communication.SortAscending, Reactions: true, Files: true})
	if err != nil {
		testContext.Fatalf("find messages: %v", err)
	}
	if len(messages) != 2 || messages[0].ID != "m1" || messages[1].ID != "m2" {
		testContext.Fatalf("unexpected messages %+v", messages)
	}
	first := messages[0]
	if first.Content != "edited" || first.Edited == nil || !first.Edited.Equal(baseTime.Add(2*time.Minute)) {
		testContext.Fatalf("expected latest patch applied, got %+v", first)
	}
	if first.ReactionCount != 1 || len(first.Reactions) != 1 || first.AttachmentCount != 1 || len(first.Attachments) != 1 {
		testContext.Fatalf("unexpected derived counts %+v", first)
	}
	if !first.Created.Equal(baseTime) {
		testContext.Fatalf("expected created %v, got %v", baseTime, first.Created)
	}

	after := baseTime.Add(30 * time.Second)
	ranged, err := adapter.FindMessages(ctx, communication.FindMessagesParams{Card: "card-1", Created: communication.TimeRange{Greater: &after}})
	if err != nil {
		testContext.Fatalf("find ranged: %v", err)
	}
	if len(ranged) != 1 || ranged[0].ID != "m2" {
		testContext.Fatalf("expected only m2 in range, got %+v", ranged)
	}

	removedRows, err := adapter.RemoveReaction(ctx, "card-1", "m1", "heart", "social-2")
	if err != nil || removedRows != 0 {
		testContext.Fatalf("expected zero-row removal without error, got %d, %v", removedRows, err)
	}

	removed, err := adapter.RemoveMessages(ctx, "card-1", []communication.MessageID{"m1", "m2"}, []communication.SocialID{"social-1"})
	if err != nil || len(removed) != 2 {
		testContext.Fatalf("remove messages: %v %v", removed, err)
	}
	remaining, err := adapter.FindMessages(ctx, communication.FindMessagesParams{Card: "card-1"})
	if err != nil || len(remaining) != 0 {
		testContext.Fatalf("expected no messages left, got %v %v", remaining, err)
	}
}

func TestRemoveMessagesRestrictedToCreators(testContext *testing.T) {
	db, dialect := openMigratedDatabase(testContext)
	adapter := newTestAdapter(testContext, db, dialect, "ws-1")
	createMessage(testContext, adapter, "m1", "card-1", baseTime)

	removed, err := adapter.RemoveMessages(context.Background(), "card-1", []communication.MessageID{"m1"}, []communication.SocialID{"someone-else"})
	if err != nil || len(removed) != 0 {
		testContext.Fatalf("expected nothing removed for another creator, got %v %v", removed, err)
	}
}

func TestWorkspaceIsolation(testContext *testing.T) {
	db, dialect := openMigratedDatabase(testContext)
	first := newTestAdapter(testContext, db, dialect, "ws-1")
	second := newTestAdapter(testContext, db, dialect, "ws-2")
	createMessage(testContext, first, "m1", "card-1", baseTime)

	messages, err := second.FindMessages(context.Background(), communication.FindMessagesParams{Card: "card-1"})
	if err != nil || len(messages) != 0 {
		testContext.Fatalf("expected workspace isolation, got %v %v", messages, err)
	}
}

func TestExternalIDIsUniquePerCard(testContext *testing.T) {
	db, dialect := openMigratedDatabase(testContext)
	adapter := newTestAdapter(testContext, db, dialect, "ws-1")
	ctx := context.Background()
	message := communication.Message{ID: "m1", Card: "card-1", Content: "a", Creator: "s", Created: baseTime, ExternalID: "mail-1"}
	if err := adapter.CreateMessage(ctx, message); err != nil {
		testContext.Fatalf("create: %v", err)
	}
	message.ID = "m2"
	if err := adapter.CreateMessage(ctx, message); !errors.Is(err, communication.ErrDuplicate) {
		testContext.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func createContext(testContext *testing.T, adapter *Adapter, id communication.ContextID, card communication.CardID, account communication.AccountID, lastUpdate time.Time) {
	testContext.Helper()
	err := adapter.CreateContext(context.Background(), communication.NotificationContext{
		ID: id, Card: card, Account: account, LastView: time.Unix(0, 0), LastUpdate: lastUpdate, LastNotify: lastUpdate,
	})
	if err != nil {
		testContext.Fatalf("create context %s: %v", id, err)
	}
}

func createNotification(testContext *testing.T, adapter *Adapter, id communication.NotificationID, contextID communication.ContextID, created time.Time) {
	testContext.Helper()
	_, err := adapter.CreateNotification(context.Background(), communication.Notification{
		ID: id, Context: contextID, Message: communication.MessageID("msg-" + string(id)), Created: created,
	})
	if err != nil {
		testContext.Fatalf("create notification %s: %v", id, err)
	}
}

func TestCreateContextRejectsDuplicates(testContext *testing.T) {
	db, dialect := openMigratedDatabase(testContext)
	adapter := newTestAdapter(testContext, db, dialect, "ws-1")
	createContext(testContext, adapter, "ctx-1", "card-1", "acc-1", baseTime)

	err := adapter.CreateContext(context.Background(), communication.NotificationContext{
		ID: "ctx-2", Card: "card-1", Account: "acc-1", LastView: baseTime, LastUpdate: baseTime, LastNotify: baseTime,
	})
	if !errors.Is(err, communication.ErrDuplicate) {
		testContext.Fatalf("expected ErrDuplicate, got %v", err)
	}

	other := newTestAdapter(testContext, db, dialect, "ws-2")
	createContext(testContext, other, "ctx-3", "card-1", "acc-1", baseTime)
}

func TestFindContextsWithLatestNotifications(testContext *testing.T) {
	db, dialect := openMigratedDatabase(testContext)
	adapter := newTestAdapter(testContext, db, dialect, "ws-1")
	ctx := context.Background()

	createContext(testContext, adapter, "ctx-busy", "card-1", "acc-1", baseTime.Add(time.Hour))
	createContext(testContext, adapter, "ctx-quiet", "card-2", "acc-1", baseTime)
	createContext(testContext, adapter, "ctx-foreign", "card-1", "acc-2", baseTime)
	for index, id := range []communication.NotificationID{"n1", "n2", "n3"} {
		createNotification(testContext, adapter, id, "ctx-busy", baseTime.Add(time.Duration(index)*time.Minute))
	}

	contexts, err := adapter.FindContexts(ctx, communication.FindNotificationContextParams{
		Accounts:      []communication.AccountID{"acc-1"},
		Notifications: &communication.ContextNotificationsParams{Limit: 2, Total: true},
	})
	if err != nil {
		testContext.Fatalf("find contexts: %v", err)
	}
	if len(contexts) != 2 || contexts[0].ID != "ctx-busy" || contexts[1].ID != "ctx-quiet" {
		testContext.Fatalf("unexpected contexts %+v", contexts)
	}
	busy := contexts[0]
	if len(busy.Notifications) != 2 || busy.Notifications[0].ID != "n3" || busy.Notifications[1].ID != "n2" {
		testContext.Fatalf("expected latest two notifications newest first, got %+v", busy.Notifications)
	}
	if busy.TotalNotifications == nil || *busy.TotalNotifications != 3 {
		testContext.Fatalf("expected total 3, got %v", busy.TotalNotifications)
	}
	quiet := contexts[1]
	if len(quiet.Notifications) != 0 || quiet.TotalNotifications == nil || *quiet.TotalNotifications != 0 {
		testContext.Fatalf("expected empty quiet context, got %+v", quiet)
	}

	plain, err := adapter.FindContexts(ctx, communication.FindNotificationContextParams{Cards: []communication.CardID{"card-1"}, Order: communication.SortAscending})
	if err != nil {
		testContext.Fatalf("find plain contexts: %v", err)
	}
	if len(plain) != 2 || plain[0].ID != "ctx-foreign" {
		testContext.Fatalf("unexpected plain contexts %+v", plain)
	}

	total, err := adapter.CountNotifications(ctx, communication.FindNotificationsParams{Accounts: []communication.AccountID{"acc-1"}})
	if err != nil || total != 3 {
		testContext.Fatalf("expected three notifications, got %d %v", total, err)
	}
}

func TestFindContextsDefaultsNotificationLimitToOne(testContext *testing.T) {
	db, dialect := openMigratedDatabase(testContext)
	adapter := newTestAdapter(testContext, db, dialect, "ws-1")
	ctx := context.Background()

	createContext(testContext, adapter, "ctx-1", "card-1", "acc-1", baseTime)
	createNotification(testContext, adapter, "older", "ctx-1", baseTime)
	createNotification(testContext, adapter, "newer", "ctx-1", baseTime.Add(time.Minute))

	contexts, err := adapter.FindContexts(ctx, communication.FindNotificationContextParams{
		Notifications: &communication.ContextNotificationsParams{Total: true},
	})
	if err != nil {
		testContext.Fatalf("find contexts: %v", err)
	}
	if len(contexts) != 1 {
		testContext.Fatalf("expected one context, got %+v", contexts)
	}
	found := contexts[0]
	if len(found.Notifications) != 1 || found.Notifications[0].ID != "newer" {
		testContext.Fatalf("expected only the latest notification, got %+v", found.Notifications)
	}
	if found.TotalNotifications == nil || *found.TotalNotifications != 2 {
		testContext.Fatalf("expected total 2, got %v", found.TotalNotifications)
	}
}

func TestUpdateContextLastViewMarksNotificationsRead(testContext *testing.T) {
	db, dialect := openMigratedDatabase(testContext)
	adapter := newTestAdapter(testContext, db, dialect, "ws-1")
	ctx := context.Background()

	createContext(testContext, adapter, "ctx-1", "card-1", "acc-1", baseTime)
	createNotification(testContext, adapter, "old", "ctx-1", baseTime)
	createNotification(testContext, adapter, "new", "ctx-1", baseTime.Add(time.Hour))

	view := baseTime.Add(time.Minute)
	stranger, err := adapter.UpdateContext(ctx, communication.ContextQuery{Context: "ctx-1", Account: "acc-2"}, communication.ContextUpdate{LastView: &view})
	if err != nil || stranger != nil {
		testContext.Fatalf("expected no update for a different owner, got %v %v", stranger, err)
	}

	updated, err := adapter.UpdateContext(ctx, communication.ContextQuery{Context: "ctx-1", Account: "acc-1"}, communication.ContextUpdate{LastView: &view})
	if err != nil || updated == nil {
		testContext.Fatalf("update context: %v %v", updated, err)
	}
	if !updated.LastView.Equal(view) || updated.Card != "card-1" {
		testContext.Fatalf("unexpected updated context %+v", updated)
	}

	unread := false
	notifications, err := adapter.FindNotifications(ctx, communication.FindNotificationsParams{Contexts: []communication.ContextID{"ctx-1"}, Read: &unread})
	if err != nil {
		testContext.Fatalf("find unread: %v", err)
	}
	if len(notifications) != 1 || notifications[0].ID != "new" {
		testContext.Fatalf("expected only the newer notification unread, got %+v", notifications)
	}

	archived := true
	affected, err := adapter.UpdateNotifications(ctx, communication.NotificationQuery{Context: "ctx-1", Account: "acc-1", IDs: []communication.NotificationID{"new"}}, communication.NotificationUpdate{Archived: &archived})
	if err != nil || affected != 1 {
		testContext.Fatalf("archive notification: %d %v", affected, err)
	}
	affected, err = adapter.UpdateNotifications(ctx, communication.NotificationQuery{Context: "ctx-1", Account: "acc-2"}, communication.NotificationUpdate{Archived: &archived})
	if err != nil || affected != 0 {
		testContext.Fatalf("expected foreign owner to update nothing, got %d %v", affected, err)
	}
}

func TestRemoveContextRemovesNotifications(testContext *testing.T) {
	db, dialect := openMigratedDatabase(testContext)
	adapter := newTestAdapter(testContext, db, dialect, "ws-1")
	ctx := context.Background()

	createContext(testContext, adapter, "ctx-1", "card-1", "acc-1", baseTime)
	createNotification(testContext, adapter, "n1", "ctx-1", baseTime)

	removed, err := adapter.RemoveContext(ctx, communication.ContextQuery{Context: "ctx-1", Account: "acc-1"})
	if err != nil || removed == nil || removed.Card != "card-1" {
		testContext.Fatalf("remove context: %v %v", removed, err)
	}
	count, err := adapter.CountNotifications(ctx, communication.FindNotificationsParams{})
	if err != nil || count != 0 {
		testContext.Fatalf("expected notifications removed with context, got %d %v", count, err)
	}
	again, err := adapter.RemoveContext(ctx, communication.ContextQuery{Context: "ctx-1", Account: "acc-1"})
	if err != nil || again != nil {
		testContext.Fatalf("expected nothing to remove, got %v %v", again, err)
	}

	if _, err := adapter.CreateNotification(ctx, communication.Notification{ID: "n2", Context: "ctx-1", Message: "m", Created: baseTime}); !errors.Is(err, communication.ErrNotFound) {
		testContext.Fatalf("expected ErrNotFound for removed context, got %v", err)
	}
}

func TestCollaboratorsAndLabels(testContext *testing.T) {
	db, dialect := openMigratedDatabase(testContext)
	adapter := newTestAdapter(testContext, db, dialect, "ws-1")
	ctx := context.Background()

	added, err := adapter.AddCollaborators(ctx, "card-1", "card:class:Card", []communication.AccountID{"acc-1", "acc-2", "acc-1"}, baseTime)
	if err != nil || len(added) != 2 {
		testContext.Fatalf("add collaborators: %v %v", added, err)
	}
	added, err = adapter.AddCollaborators(ctx, "card-1", "card:class:Card", []communication.AccountID{"acc-2", "acc-3"}, baseTime.Add(time.Minute))
	if err != nil || len(added) != 1 || added[0] != "acc-3" {
		testContext.Fatalf("expected only acc-3 added, got %v %v", added, err)
	}

	collaborators, err := adapter.FindCollaborators(ctx, communication.FindCollaboratorsParams{Card: "card-1"})
	if err != nil || len(collaborators) != 3 {
		testContext.Fatalf("find collaborators: %v %v", collaborators, err)
	}
	if _, err := adapter.RemoveCollaborators(ctx, "card-1", []communication.AccountID{"acc-1"}); err != nil {
		testContext.Fatalf("remove collaborator: %v", err)
	}
	collaborators, _ = adapter.FindCollaborators(ctx, communication.FindCollaboratorsParams{Card: "card-1", Accounts: []communication.AccountID{"acc-1"}})
	if len(collaborators) != 0 {
		testContext.Fatalf("expected acc-1 removed")
	}

	label := communication.Label{Label: communication.SubscriptionLabel, Card: "card-1", CardType: "card:class:Card", Account: "acc-2", Created: baseTime}
	if err := adapter.CreateLabels(ctx, []communication.Label{label, label}); err != nil {
		testContext.Fatalf("create labels: %v", err)
	}
	labels, err := adapter.FindLabels(ctx, communication.FindLabelsParams{Accounts: []communication.AccountID{"acc-2"}})
	if err != nil || len(labels) != 1 {
		testContext.Fatalf("expected a single label, got %v %v", labels, err)
	}
	if _, err := adapter.RemoveLabels(ctx, communication.SubscriptionLabel, "card-1", []communication.AccountID{"acc-2"}); err != nil {
		testContext.Fatalf("remove labels: %v", err)
	}
	labels, _ = adapter.FindLabels(ctx, communication.FindLabelsParams{})
	if len(labels) != 0 {
		testContext.Fatalf("expected labels removed, got %v", labels)
	}
}

func TestThreadsAndGroups(testContext *testing.T) {
	db, dialect := openMigratedDatabase(testContext)
	adapter := newTestAdapter(testContext, db, dialect, "ws-1")
	ctx := context.Background()

	if err := adapter.CreateThread(ctx, communication.Thread{Card: "card-1", Message: "m1", Thread: "thread-1"}); err != nil {
		testContext.Fatalf("create thread: %v", err)
	}
	if err := adapter.CreateThread(ctx, communication.Thread{Card: "card-1", Message: "m1", Thread: "thread-2"}); !errors.Is(err, communication.ErrDuplicate) {
		testContext.Fatalf("expected one thread per message, got %v", err)
	}

	reply := baseTime.Add(time.Minute)
	thread, err := adapter.UpdateThread(ctx, "thread-1", 1, &reply)
	if err != nil || thread == nil || thread.RepliesCount != 1 || thread.LastReply == nil || !thread.LastReply.Equal(reply) {
		testContext.Fatalf("increment thread: %+v %v", thread, err)
	}
	thread, err = adapter.UpdateThread(ctx, "thread-1", -5, nil)
	if err != nil || thread.RepliesCount != 0 {
		testContext.Fatalf("expected replies clamped at zero, got %+v %v", thread, err)
	}
	missing, err := adapter.UpdateThread(ctx, "unknown", 1, nil)
	if err != nil || missing != nil {
		testContext.Fatalf("expected nil for unknown thread, got %v %v", missing, err)
	}

	group := communication.MessagesGroup{Card: "card-1", BlobID: "blob-1", FromDate: baseTime, ToDate: baseTime.Add(time.Hour), Count: 10}
	if err := adapter.CreateMessagesGroup(ctx, group); err != nil {
		testContext.Fatalf("create group: %v", err)
	}
	groups, err := adapter.FindMessagesGroups(ctx, communication.FindMessagesGroupsParams{Card: "card-1"})
	if err != nil || len(groups) != 1 || groups[0].Count != 10 || !groups[0].ToDate.Equal(group.ToDate) {
		testContext.Fatalf("find groups: %+v %v", groups, err)
	}
	if affected, err := adapter.RemoveMessagesGroup(ctx, "card-1", "blob-1"); err != nil || affected != 1 {
		testContext.Fatalf("remove group: %d %v", affected, err)
	}
}

func TestPeersUpsert(testContext *testing.T) {
	db, dialect := openMigratedDatabase(testContext)
	adapter := newTestAdapter(testContext, db, dialect, "ws-1")
	ctx := context.Background()

	peer := communication.Peer{Card: "card-1", Kind: "mail", Value: "thread@example.com", Extra: map[string]any{"subject": "hi"}, Created: baseTime}
	if err := adapter.AddPeer(ctx, peer); err != nil {
		testContext.Fatalf("add peer: %v", err)
	}
	peer.Extra = map[string]any{"subject": "re: hi"}
	if err := adapter.AddPeer(ctx, peer); err != nil {
		testContext.Fatalf("re-add peer: %v", err)
	}
	peers, err := adapter.FindPeers(ctx, communication.FindPeersParams{Kind: "mail"})
	if err != nil || len(peers) != 1 || peers[0].Extra["subject"] != "re: hi" {
		testContext.Fatalf("expected upserted peer, got %+v %v", peers, err)
	}
	if affected, err := adapter.RemovePeer(ctx, "card-1", "mail", "thread@example.com"); err != nil || affected != 1 {
		testContext.Fatalf("remove peer: %d %v", affected, err)
	}
}
