package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Snapshot models describe each table as a migration left it. They are
// frozen: later schema changes add new snapshots instead of editing these.

type messageV1 struct {
	WorkspaceID string    `gorm:"column:workspace_id;primaryKey;size:64"`
	CardID      string    `gorm:"column:card_id;primaryKey;size:255"`
	ID          string    `gorm:"column:id;primaryKey;size:64"`
	Content     string    `gorm:"column:content;type:text;not null"`
	Creator     string    `gorm:"column:creator;size:255;not null"`
	Created     time.Time `gorm:"column:created;not null"`
}

func (messageV1) TableName() string { return "messages" }

type messagesGroupV1 struct {
	WorkspaceID string    `gorm:"column:workspace_id;primaryKey;size:64"`
	CardID      string    `gorm:"column:card_id;primaryKey;size:255"`
	BlobID      string    `gorm:"column:blob_id;primaryKey;size:255"`
	FromSec     time.Time `gorm:"column:from_sec;not null"`
	ToSec       time.Time `gorm:"column:to_sec;not null"`
	Count       int       `gorm:"column:count;not null"`
}

func (messagesGroupV1) TableName() string { return "messages_groups" }

type patchV1 struct {
	ID                string    `gorm:"column:id;primaryKey;size:64"`
	WorkspaceID       string    `gorm:"column:workspace_id;size:64;not null;index:idx_patches_workspace_card_message,priority:1"`
	CardID            string    `gorm:"column:card_id;size:255;not null;index:idx_patches_workspace_card_message,priority:2"`
	MessageID         string    `gorm:"column:message_id;size:64;not null;index:idx_patches_workspace_card_message,priority:3"`
	Content           string    `gorm:"column:content;type:text;not null"`
	Creator           string    `gorm:"column:creator;size:255;not null"`
	Created           time.Time `gorm:"column:created;not null"`
	MessageCreatedSec time.Time `gorm:"column:message_created_sec;not null"`
}

func (patchV1) TableName() string { return "patches" }

type reactionV1 struct {
	WorkspaceID string    `gorm:"column:workspace_id;primaryKey;size:64"`
	MessageID   string    `gorm:"column:message_id;primaryKey;size:64"`
	Reaction    string    `gorm:"column:reaction;primaryKey;size:255"`
	Creator     string    `gorm:"column:creator;primaryKey;size:255"`
	CardID      string    `gorm:"column:card_id;size:255;not null"`
	Created     time.Time `gorm:"column:created;not null"`
}

func (reactionV1) TableName() string { return "reactions" }

type attachmentV1 struct {
	WorkspaceID string    `gorm:"column:workspace_id;primaryKey;size:64"`
	MessageID   string    `gorm:"column:message_id;primaryKey;size:64"`
	ID          string    `gorm:"column:id;primaryKey;size:64"`
	CardID      string    `gorm:"column:card_id;size:255;not null"`
	Type        string    `gorm:"column:type;size:255;not null"`
	Name        string    `gorm:"column:name;size:255;not null"`
	Size        int64     `gorm:"column:size;not null"`
	Creator     string    `gorm:"column:creator;size:255;not null"`
	Created     time.Time `gorm:"column:created;not null"`
}

func (attachmentV1) TableName() string { return "attachments" }

type threadV1 struct {
	WorkspaceID  string     `gorm:"column:workspace_id;primaryKey;size:64;uniqueIndex:idx_thread_index_workspace_card_message,priority:1"`
	ThreadID     string     `gorm:"column:thread_id;primaryKey;size:255"`
	CardID       string     `gorm:"column:card_id;size:255;not null;uniqueIndex:idx_thread_index_workspace_card_message,priority:2"`
	MessageID    string     `gorm:"column:message_id;size:64;not null;uniqueIndex:idx_thread_index_workspace_card_message,priority:3"`
	RepliesCount int        `gorm:"column:replies_count;not null;default:0"`
	LastReply    *time.Time `gorm:"column:last_reply"`
}

func (threadV1) TableName() string { return "thread_index" }

type notificationContextV1 struct {
	ID          string    `gorm:"column:id;primaryKey;size:64"`
	WorkspaceID string    `gorm:"column:workspace_id;size:64;not null;uniqueIndex:idx_notification_contexts_workspace_card_account,priority:1"`
	CardID      string    `gorm:"column:card_id;size:255;not null;uniqueIndex:idx_notification_contexts_workspace_card_account,priority:2"`
	Account     string    `gorm:"column:account;size:255;not null;uniqueIndex:idx_notification_contexts_workspace_card_account,priority:3"`
	LastView    time.Time `gorm:"column:last_view;not null"`
	LastUpdate  time.Time `gorm:"column:last_update;not null"`
}

func (notificationContextV1) TableName() string { return "notification_contexts" }

type notificationV1 struct {
	ID        string    `gorm:"column:id;primaryKey;size:64"`
	ContextID string    `gorm:"column:context_id;size:64;not null;index:idx_notifications_context"`
	MessageID string    `gorm:"column:message_id;size:64;not null"`
	Created   time.Time `gorm:"column:created;not null"`
	Content   string    `gorm:"column:content;type:text;not null;default:''"`
}

func (notificationV1) TableName() string { return "notifications" }

type collaboratorV1 struct {
	WorkspaceID string    `gorm:"column:workspace_id;primaryKey;size:64"`
	CardID      string    `gorm:"column:card_id;primaryKey;size:255"`
	Account     string    `gorm:"column:account;primaryKey;size:255"`
	Date        time.Time `gorm:"column:date;not null"`
}

func (collaboratorV1) TableName() string { return "collaborators" }

type labelV2 struct {
	WorkspaceID string    `gorm:"column:workspace_id;size:64;not null;uniqueIndex:idx_labels_workspace_card_label_account,priority:1"`
	Label       string    `gorm:"column:label;size:255;not null;uniqueIndex:idx_labels_workspace_card_label_account,priority:3"`
	CardID      string    `gorm:"column:card_id;size:255;not null;uniqueIndex:idx_labels_workspace_card_label_account,priority:2"`
	CardType    string    `gorm:"column:card_type;size:255;not null"`
	Account     string    `gorm:"column:account;size:255;not null;uniqueIndex:idx_labels_workspace_card_label_account,priority:4"`
	Created     time.Time `gorm:"column:created;not null"`
}

func (labelV2) TableName() string { return "labels" }

type collaboratorV3 struct {
	CardType string `gorm:"column:card_type;size:255;not null;default:'card:class:Card'"`
}

func (collaboratorV3) TableName() string { return "collaborators" }

type messageCreatedV4 struct {
	WorkspaceID string    `gorm:"column:workspace_id;primaryKey;size:64;index:idx_message_created_workspace_card_created,priority:1"`
	CardID      string    `gorm:"column:card_id;primaryKey;size:255;index:idx_message_created_workspace_card_created,priority:2"`
	MessageID   string    `gorm:"column:message_id;primaryKey;size:64"`
	Created     time.Time `gorm:"column:created;not null;index:idx_message_created_workspace_card_created,priority:3"`
}

func (messageCreatedV4) TableName() string { return "message_created" }

type peerV5 struct {
	WorkspaceID string    `gorm:"column:workspace_id;primaryKey;size:64"`
	CardID      string    `gorm:"column:card_id;primaryKey;size:255"`
	Kind        string    `gorm:"column:kind;primaryKey;size:255"`
	Value       string    `gorm:"column:value;primaryKey;size:255"`
	Extra       string    `gorm:"column:extra;type:text;not null;default:'{}'"`
	Created     time.Time `gorm:"column:created;not null"`
}

func (peerV5) TableName() string { return "peers" }

type messagesGroupV6 struct {
	FromDate *time.Time `gorm:"column:from_date"`
	ToDate   *time.Time `gorm:"column:to_date"`
}

func (messagesGroupV6) TableName() string { return "messages_groups" }

type patchV6 struct {
	MessageCreated *time.Time `gorm:"column:message_created"`
}

func (patchV6) TableName() string { return "patches" }

type messagesGroupV8 struct {
	FromDate time.Time `gorm:"column:from_date;not null"`
	ToDate   time.Time `gorm:"column:to_date;not null"`
}

func (messagesGroupV8) TableName() string { return "messages_groups" }

type patchV8 struct {
	WorkspaceID    string    `gorm:"column:workspace_id;size:64;not null;index:idx_patches_workspace_card_message,priority:1"`
	CardID         string    `gorm:"column:card_id;size:255;not null;index:idx_patches_workspace_card_message,priority:2"`
	MessageID      string    `gorm:"column:message_id;size:64;not null;index:idx_patches_workspace_card_message,priority:3"`
	MessageCreated time.Time `gorm:"column:message_created;not null"`
}

func (patchV8) TableName() string { return "patches" }

type notificationV10 struct {
	Type     string  `gorm:"column:type;size:64;not null;default:'message'"`
	BlobID   *string `gorm:"column:blob_id;size:255"`
	Read     bool    `gorm:"column:read;not null;default:false"`
	Archived bool    `gorm:"column:archived;not null;default:false"`
	Creator  string  `gorm:"column:creator;size:255;not null;default:''"`
}

func (notificationV10) TableName() string { return "notifications" }

type notificationContextV10 struct {
	LastNotify *time.Time `gorm:"column:last_notify"`
}

func (notificationContextV10) TableName() string { return "notification_contexts" }

type notificationContextV12 struct {
	WorkspaceID string    `gorm:"column:workspace_id;size:64;not null;uniqueIndex:idx_notification_contexts_workspace_card_account,priority:1"`
	CardID      string    `gorm:"column:card_id;size:255;not null;uniqueIndex:idx_notification_contexts_workspace_card_account,priority:2"`
	Account     string    `gorm:"column:account;size:255;not null;uniqueIndex:idx_notification_contexts_workspace_card_account,priority:3"`
	LastNotify  time.Time `gorm:"column:last_notify;not null"`
}

func (notificationContextV12) TableName() string { return "notification_contexts" }

type labelV13 struct {
	WorkspaceID string `gorm:"column:workspace_id;size:64;not null;uniqueIndex:idx_labels_workspace_label_card_account,priority:1"`
	LabelID     string `gorm:"column:label_id;size:255;not null;uniqueIndex:idx_labels_workspace_label_card_account,priority:2"`
	CardID      string `gorm:"column:card_id;size:255;not null;uniqueIndex:idx_labels_workspace_label_card_account,priority:3"`
	Account     string `gorm:"column:account;size:255;not null;uniqueIndex:idx_labels_workspace_label_card_account,priority:4"`
}

func (labelV13) TableName() string { return "labels" }

type collaboratorV14 struct {
	JoinedDate *time.Time `gorm:"column:joined_date"`
}

func (collaboratorV14) TableName() string { return "collaborators" }

type collaboratorV15 struct {
	JoinedDate time.Time `gorm:"column:joined_date;not null"`
}

func (collaboratorV15) TableName() string { return "collaborators" }

type messageV17 struct {
	WorkspaceID string  `gorm:"column:workspace_id;size:64;uniqueIndex:idx_messages_workspace_card_external_id,priority:1"`
	CardID      string  `gorm:"column:card_id;size:255;uniqueIndex:idx_messages_workspace_card_external_id,priority:2"`
	ExternalID  *string `gorm:"column:external_id;size:255;uniqueIndex:idx_messages_workspace_card_external_id,priority:3"`
}

func (messageV17) TableName() string { return "messages" }

type socialIdentityV18 struct {
	SocialID string    `gorm:"column:social_id;primaryKey;size:255"`
	Account  string    `gorm:"column:account;size:255;not null;index:idx_social_identities_account"`
	Created  time.Time `gorm:"column:created;not null"`
}

func (socialIdentityV18) TableName() string { return "social_identities" }

// Migrations returns the schema history in application order.
func Migrations() []Migration {
	return []Migration{
		{Name: "init_tables_01", Apply: createTables(
			&messageV1{}, &messagesGroupV1{}, &patchV1{}, &reactionV1{}, &attachmentV1{},
			&threadV1{}, &notificationContextV1{}, &notificationV1{}, &collaboratorV1{},
		)},
		{Name: "init_labels_02", Apply: createTables(&labelV2{})},
		{Name: "add_collaborator_card_type_03", Apply: addColumns(&collaboratorV3{}, "CardType")},
		{Name: "init_message_created_04", Apply: initMessageCreated},
		{Name: "init_peers_05", Apply: createTables(&peerV5{})},
		{Name: "add_date_columns_06", Apply: func(tx *gorm.DB) error {
			if err := addColumns(&messagesGroupV6{}, "FromDate", "ToDate")(tx); err != nil {
				return err
			}
			return addColumns(&patchV6{}, "MessageCreated")(tx)
		}},
		{Name: "backfill_date_columns_07", Apply: backfillDateColumns},
		{Name: "enforce_date_columns_08", Apply: enforceDateColumns},
		{Name: "drop_seconds_columns_09", Apply: dropSecondsColumns},
		{Name: "add_notification_columns_10", Apply: func(tx *gorm.DB) error {
			if err := addColumns(&notificationV10{}, "Type", "BlobID", "Read", "Archived", "Creator")(tx); err != nil {
				return err
			}
			return addColumns(&notificationContextV10{}, "LastNotify")(tx)
		}},
		{Name: "backfill_last_notify_11", Apply: func(tx *gorm.DB) error {
			return tx.Exec("UPDATE notification_contexts SET last_notify = last_update WHERE last_notify IS NULL").Error
		}},
		{Name: "enforce_last_notify_12", Apply: func(tx *gorm.DB) error {
			if err := setNotNull(tx, &notificationContextV12{}, "LastNotify", "notification_contexts", "last_notify"); err != nil {
				return err
			}
			return ensureIndex(tx, &notificationContextV12{}, "idx_notification_contexts_workspace_card_account")
		}},
		{Name: "rename_label_column_13", Apply: renameLabelColumn},
		{Name: "stage_collaborator_joined_date_14", Apply: stageCollaboratorJoinedDate},
		{Name: "enforce_collaborator_joined_date_15", Apply: func(tx *gorm.DB) error {
			return setNotNull(tx, &collaboratorV15{}, "JoinedDate", "collaborators", "joined_date")
		}},
		{Name: "drop_collaborator_date_old_16", Apply: dropColumns(&collaboratorV15{}, "date_old")},
		{Name: "add_message_external_id_17", Apply: func(tx *gorm.DB) error {
			if err := addColumns(&messageV17{}, "ExternalID")(tx); err != nil {
				return err
			}
			return ensureIndex(tx, &messageV17{}, "idx_messages_workspace_card_external_id")
		}},
		{Name: "init_social_identities_18", Apply: createTables(&socialIdentityV18{})},
	}
}

func createTables(models ...any) func(*gorm.DB) error {
	return func(tx *gorm.DB) error {
		for _, model := range models {
			if tx.Migrator().HasTable(model) {
				continue
			}
			if err := tx.Migrator().CreateTable(model); err != nil {
				return err
			}
		}
		return nil
	}
}

func addColumns(model any, fields ...string) func(*gorm.DB) error {
	return func(tx *gorm.DB) error {
		for _, field := range fields {
			if tx.Migrator().HasColumn(model, field) {
				continue
			}
			if err := tx.Migrator().AddColumn(model, field); err != nil {
				return fmt.Errorf("add column %s: %w", field, err)
			}
		}
		return nil
	}
}

func dropColumns(model any, columns ...string) func(*gorm.DB) error {
	return func(tx *gorm.DB) error {
		for _, column := range columns {
			if !tx.Migrator().HasColumn(model, column) {
				continue
			}
			if err := tx.Migrator().DropColumn(model, column); err != nil {
				return fmt.Errorf("drop column %s: %w", column, err)
			}
		}
		return nil
	}
}

func ensureIndex(tx *gorm.DB, model any, name string) error {
	if tx.Migrator().HasIndex(model, name) {
		return nil
	}
	return tx.Migrator().CreateIndex(model, name)
}

// setNotNull enforces NOT NULL on a backfilled column. SQLite cannot alter
// a column in place, so the table is rebuilt there and callers re-ensure
// the table's indexes afterwards.
func setNotNull(tx *gorm.DB, model any, field, table, column string) error {
	if tx.Dialector.Name() == string(DialectPostgres) {
		return tx.Exec(fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", table, column)).Error
	}
	return tx.Migrator().AlterColumn(model, field)
}

func initMessageCreated(tx *gorm.DB) error {
	if err := createTables(&messageCreatedV4{})(tx); err != nil {
		return err
	}
	return tx.Exec(`INSERT INTO message_created (workspace_id, card_id, message_id, created)
		SELECT m.workspace_id, m.card_id, m.id, m.created FROM messages m
		WHERE NOT EXISTS (
			SELECT 1 FROM message_created mc
			WHERE mc.workspace_id = m.workspace_id AND mc.card_id = m.card_id AND mc.message_id = m.id
		)`).Error
}

func backfillDateColumns(tx *gorm.DB) error {
	if tx.Migrator().HasColumn(&messagesGroupV1{}, "from_sec") {
		if err := tx.Exec("UPDATE messages_groups SET from_date = from_sec, to_date = to_sec WHERE from_date IS NULL OR to_date IS NULL").Error; err != nil {
			return err
		}
	}
	if tx.Migrator().HasColumn(&patchV1{}, "message_created_sec") {
		if err := tx.Exec("UPDATE patches SET message_created = message_created_sec WHERE message_created IS NULL").Error; err != nil {
			return err
		}
	}
	return nil
}

func enforceDateColumns(tx *gorm.DB) error {
	if err := setNotNull(tx, &messagesGroupV8{}, "FromDate", "messages_groups", "from_date"); err != nil {
		return err
	}
	if err := setNotNull(tx, &messagesGroupV8{}, "ToDate", "messages_groups", "to_date"); err != nil {
		return err
	}
	if err := setNotNull(tx, &patchV8{}, "MessageCreated", "patches", "message_created"); err != nil {
		return err
	}
	return ensureIndex(tx, &patchV8{}, "idx_patches_workspace_card_message")
}

func dropSecondsColumns(tx *gorm.DB) error {
	if err := dropColumns(&messagesGroupV8{}, "from_sec", "to_sec")(tx); err != nil {
		return err
	}
	if err := dropColumns(&patchV8{}, "message_created_sec")(tx); err != nil {
		return err
	}
	return ensureIndex(tx, &patchV8{}, "idx_patches_workspace_card_message")
}

// renameLabelColumn drops the unique index that depends on the column,
// renames the column and recreates the index under its new name.
func renameLabelColumn(tx *gorm.DB) error {
	migrator := tx.Migrator()
	if migrator.HasIndex(&labelV2{}, "idx_labels_workspace_card_label_account") {
		if err := migrator.DropIndex(&labelV2{}, "idx_labels_workspace_card_label_account"); err != nil {
			return err
		}
	}
	if migrator.HasColumn(&labelV2{}, "label") {
		if err := migrator.RenameColumn(&labelV13{}, "label", "label_id"); err != nil {
			return err
		}
	}
	return ensureIndex(tx, &labelV13{}, "idx_labels_workspace_label_card_account")
}

// stageCollaboratorJoinedDate adds the replacement column, backfills it and
// parks the old column under an _old name until it is dropped.
func stageCollaboratorJoinedDate(tx *gorm.DB) error {
	migrator := tx.Migrator()
	if err := addColumns(&collaboratorV14{}, "JoinedDate")(tx); err != nil {
		return err
	}
	if migrator.HasColumn(&collaboratorV1{}, "date") {
		if err := tx.Exec(`UPDATE collaborators SET joined_date = "date" WHERE joined_date IS NULL`).Error; err != nil {
			return err
		}
		if err := migrator.RenameColumn(&collaboratorV14{}, "date", "date_old"); err != nil {
			return err
		}
	}
	return nil
}
