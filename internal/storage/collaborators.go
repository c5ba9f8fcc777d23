package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/MarcoPoloResearchLab/courier/internal/communication"
	"github.com/MarcoPoloResearchLab/courier/internal/query"
)

// AddCollaborators inserts the accounts as collaborators of the card and
// returns the ones that were not collaborators already.
func (a *Adapter) AddCollaborators(ctx context.Context, card communication.CardID, cardType communication.CardType, accounts []communication.AccountID, date time.Time) ([]communication.AccountID, error) {
	if len(accounts) == 0 {
		return nil, nil
	}
	joined := normalize(date)
	seen := make(map[communication.AccountID]bool, len(accounts))
	values := make([][]any, 0, len(accounts))
	for _, account := range accounts {
		if seen[account] {
			continue
		}
		seen[account] = true
		values = append(values, []any{string(a.workspace), string(card), string(account), string(cardType), joined})
	}

	args := a.args()
	statement, err := query.Insert{
		Table:     "collaborators",
		Columns:   []string{"workspace_id", "card_id", "account", "card_type", "joined_date"},
		Rows:      values,
		Conflict:  &query.OnConflict{Columns: []string{"workspace_id", "card_id", "account"}, DoNothing: true},
		Returning: []string{"account"},
	}.Build(args)
	if err != nil {
		return nil, err
	}

	var added []communication.AccountID
	err = a.query(ctx, a.db, statement, args, func(rows *sql.Rows) error {
		var account string
		if err := rows.Scan(&account); err != nil {
			return err
		}
		added = append(added, communication.AccountID(account))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

func (a *Adapter) RemoveCollaborators(ctx context.Context, card communication.CardID, accounts []communication.AccountID) (int64, error) {
	if len(accounts) == 0 {
		return 0, nil
	}
	args := a.args()
	where, err := a.scoped(args, "workspace_id")
	if err != nil {
		return 0, err
	}
	where.Eq("card_id", string(card))
	query.In(where, "account", strs(accounts))
	return a.exec(ctx, a.db, "DELETE FROM collaborators "+where.String(), args)
}

func (a *Adapter) FindCollaborators(ctx context.Context, params communication.FindCollaboratorsParams) ([]communication.Collaborator, error) {
	args := a.args()
	where, err := a.scoped(args, "workspace_id")
	if err != nil {
		return nil, err
	}
	if params.Card != "" {
		where.Eq("card_id", string(params.Card))
	}
	query.In(where, "account", strs(params.Accounts))
	statement := "SELECT card_id, account, card_type, joined_date FROM collaborators " + where.String() + " " +
		query.OrderBy(query.Ascending, "joined_date", "account") + " " +
		query.Limit(args, params.Limit)

	var collaborators []communication.Collaborator
	err = a.query(ctx, a.db, statement, args, func(rows *sql.Rows) error {
		var (
			cardID, account, cardType string
			joined                    nullTime
		)
		if err := rows.Scan(&cardID, &account, &cardType, &joined); err != nil {
			return err
		}
		collaborators = append(collaborators, communication.Collaborator{
			Card:       communication.CardID(cardID),
			Account:    communication.AccountID(account),
			CardType:   communication.CardType(cardType),
			JoinedDate: joined.Time,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return collaborators, nil
}

// CreateLabels is idempotent per (label, card, account).
func (a *Adapter) CreateLabels(ctx context.Context, labels []communication.Label) error {
	if len(labels) == 0 {
		return nil
	}
	values := make([][]any, len(labels))
	for index, label := range labels {
		values[index] = []any{
			string(a.workspace), string(label.Label), string(label.Card), string(label.CardType),
			string(label.Account), normalize(label.Created),
		}
	}
	args := a.args()
	statement, err := query.Insert{
		Table:    "labels",
		Columns:  []string{"workspace_id", "label_id", "card_id", "card_type", "account", "created"},
		Rows:     values,
		Conflict: &query.OnConflict{Columns: []string{"workspace_id", "label_id", "card_id", "account"}, DoNothing: true},
	}.Build(args)
	if err != nil {
		return err
	}
	_, err = a.exec(ctx, a.db, statement, args)
	return err
}

func (a *Adapter) RemoveLabels(ctx context.Context, label communication.LabelID, card communication.CardID, accounts []communication.AccountID) (int64, error) {
	args := a.args()
	where, err := a.scoped(args, "workspace_id")
	if err != nil {
		return 0, err
	}
	where.Eq("label_id", string(label)).Eq("card_id", string(card))
	query.In(where, "account", strs(accounts))
	return a.exec(ctx, a.db, "DELETE FROM labels "+where.String(), args)
}

func (a *Adapter) FindLabels(ctx context.Context, params communication.FindLabelsParams) ([]communication.Label, error) {
	args := a.args()
	where, err := a.scoped(args, "workspace_id")
	if err != nil {
		return nil, err
	}
	query.In(where, "label_id", strs(params.Labels))
	query.In(where, "card_id", strs(params.Cards))
	query.In(where, "account", strs(params.Accounts))
	statement := "SELECT label_id, card_id, card_type, account, created FROM labels " + where.String() + " " +
		query.OrderBy(query.Ascending, "created", "card_id") + " " +
		query.Limit(args, params.Limit)

	var labels []communication.Label
	err = a.query(ctx, a.db, statement, args, func(rows *sql.Rows) error {
		var (
			label, cardID, cardType, account string
			created                          nullTime
		)
		if err := rows.Scan(&label, &cardID, &cardType, &account, &created); err != nil {
			return err
		}
		labels = append(labels, communication.Label{
			Label:    communication.LabelID(label),
			Card:     communication.CardID(cardID),
			CardType: communication.CardType(cardType),
			Account:  communication.AccountID(account),
			Created:  created.Time,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return labels, nil
}
