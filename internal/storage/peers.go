package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/MarcoPoloResearchLab/courier/internal/communication"
	"github.com/MarcoPoloResearchLab/courier/internal/query"
)

// AddPeer links a card to a peer; re-adding replaces the extra payload.
func (a *Adapter) AddPeer(ctx context.Context, peer communication.Peer) error {
	extra := "{}"
	if len(peer.Extra) > 0 {
		encoded, err := json.Marshal(peer.Extra)
		if err != nil {
			return fmt.Errorf("encode peer extra: %w", err)
		}
		extra = string(encoded)
	}
	args := a.args()
	statement, err := query.Insert{
		Table:   "peers",
		Columns: []string{"workspace_id", "card_id", "kind", "value", "extra", "created"},
		Rows: [][]any{{
			string(a.workspace), string(peer.Card), peer.Kind, peer.Value, extra, normalize(peer.Created),
		}},
		Conflict: &query.OnConflict{Columns: []string{"workspace_id", "card_id", "kind", "value"}, Update: []string{"extra"}},
	}.Build(args)
	if err != nil {
		return err
	}
	_, err = a.exec(ctx, a.db, statement, args)
	return err
}

func (a *Adapter) RemovePeer(ctx context.Context, card communication.CardID, kind, value string) (int64, error) {
	args := a.args()
	where, err := a.scoped(args, "workspace_id")
	if err != nil {
		return 0, err
	}
	where.Eq("card_id", string(card)).Eq("kind", kind).Eq("value", value)
	return a.exec(ctx, a.db, "DELETE FROM peers "+where.String(), args)
}

func (a *Adapter) FindPeers(ctx context.Context, params communication.FindPeersParams) ([]communication.Peer, error) {
	args := a.args()
	where, err := a.scoped(args, "workspace_id")
	if err != nil {
		return nil, err
	}
	if params.Card != "" {
		where.Eq("card_id", string(params.Card))
	}
	if params.Kind != "" {
		where.Eq("kind", params.Kind)
	}
	if params.Value != "" {
		where.Eq("value", params.Value)
	}
	statement := "SELECT card_id, kind, value, extra, created FROM peers " + where.String() + " " +
		query.OrderBy(query.Ascending, "created", "card_id")

	var peers []communication.Peer
	err = a.query(ctx, a.db, statement, args, func(rows *sql.Rows) error {
		var (
			peer          communication.Peer
			cardID, extra string
			created       nullTime
		)
		if err := rows.Scan(&cardID, &peer.Kind, &peer.Value, &extra, &created); err != nil {
			return err
		}
		peer.Card = communication.CardID(cardID)
		peer.Created = created.Time
		if extra != "" && extra != "{}" {
			if err := json.Unmarshal([]byte(extra), &peer.Extra); err != nil {
				return fmt.Errorf("decode peer extra: %w", err)
			}
		}
		peers = append(peers, peer)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return peers, nil
}
