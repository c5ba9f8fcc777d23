package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/MarcoPoloResearchLab/courier/internal/communication"
	"github.com/MarcoPoloResearchLab/courier/internal/pipeline"
	"github.com/MarcoPoloResearchLab/courier/internal/processor"
)

// Frame types shared by the websocket protocol and the HTTP routes.
const (
	frameFindMessages       = "find_messages"
	frameFindContexts       = "find_contexts"
	frameFindNotifications  = "find_notifications"
	frameFindMessagesGroups = "find_messages_groups"
	frameFindCollaborators  = "find_collaborators"
	frameFindPeers          = "find_peers"
	frameEvent              = "event"
	frameUnsubscribe        = "unsubscribe"
	frameSession            = "session"
	frameResult             = "result"
	frameError              = "error"
)

var errInvalidRequest = errors.New("invalid request")

// clientFrame is a request sent by a websocket client. Find requests that
// carry a query id stay subscribed until unsubscribed.
type clientFrame struct {
	ID      string                  `json:"id"`
	Type    string                  `json:"type"`
	QueryID string                  `json:"query_id,omitempty"`
	Params  json.RawMessage         `json:"params,omitempty"`
	Command *communication.Envelope `json:"command,omitempty"`
}

type serverFrame struct {
	Type   string          `json:"type"`
	ID     string          `json:"id,omitempty"`
	Result any             `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Code   string          `json:"code,omitempty"`
	Event  json.RawMessage `json:"event,omitempty"`
}

// Pipeline is the workspace API the transport drives.
type Pipeline interface {
	FindMessages(ctx context.Context, info communication.ConnectionInfo, params communication.FindMessagesParams, queryID string) ([]communication.Message, error)
	FindNotificationContexts(ctx context.Context, info communication.ConnectionInfo, params communication.FindNotificationContextParams, queryID string) ([]communication.NotificationContext, error)
	FindNotifications(ctx context.Context, info communication.ConnectionInfo, params communication.FindNotificationsParams, queryID string) (pipeline.FindNotificationsResult, error)
	FindMessagesGroups(ctx context.Context, info communication.ConnectionInfo, params communication.FindMessagesGroupsParams) ([]communication.MessagesGroup, error)
	FindCollaborators(ctx context.Context, info communication.ConnectionInfo, params communication.FindCollaboratorsParams) ([]communication.Collaborator, error)
	FindPeers(ctx context.Context, info communication.ConnectionInfo, params communication.FindPeersParams) ([]communication.Peer, error)
	Event(ctx context.Context, info communication.ConnectionInfo, command communication.Command) (communication.EventResult, error)
	Register(info communication.ConnectionInfo) error
	UnsubscribeQuery(info communication.ConnectionInfo, queryID string)
	CloseSession(sessionID string)
}

func decodeParams[T any](raw json.RawMessage) (T, error) {
	var params T
	if len(raw) == 0 {
		return params, nil
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return params, fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	return params, nil
}

// execute runs one request against the pipeline.
func execute(ctx context.Context, api Pipeline, info communication.ConnectionInfo, frame clientFrame) (any, error) {
	switch frame.Type {
	case frameFindMessages:
		params, err := decodeParams[communication.FindMessagesParams](frame.Params)
		if err != nil {
			return nil, err
		}
		return api.FindMessages(ctx, info, params, frame.QueryID)
	case frameFindContexts:
		params, err := decodeParams[communication.FindNotificationContextParams](frame.Params)
		if err != nil {
			return nil, err
		}
		return api.FindNotificationContexts(ctx, info, params, frame.QueryID)
	case frameFindNotifications:
		params, err := decodeParams[communication.FindNotificationsParams](frame.Params)
		if err != nil {
			return nil, err
		}
		return api.FindNotifications(ctx, info, params, frame.QueryID)
	case frameFindMessagesGroups:
		params, err := decodeParams[communication.FindMessagesGroupsParams](frame.Params)
		if err != nil {
			return nil, err
		}
		return api.FindMessagesGroups(ctx, info, params)
	case frameFindCollaborators:
		params, err := decodeParams[communication.FindCollaboratorsParams](frame.Params)
		if err != nil {
			return nil, err
		}
		return api.FindCollaborators(ctx, info, params)
	case frameFindPeers:
		params, err := decodeParams[communication.FindPeersParams](frame.Params)
		if err != nil {
			return nil, err
		}
		return api.FindPeers(ctx, info, params)
	case frameEvent:
		if frame.Command == nil {
			return nil, fmt.Errorf("%w: command required", errInvalidRequest)
		}
		command, err := frame.Command.Command()
		if err != nil {
			return nil, err
		}
		return api.Event(ctx, info, command)
	case frameUnsubscribe:
		if frame.QueryID == "" {
			return nil, fmt.Errorf("%w: query_id required", errInvalidRequest)
		}
		api.UnsubscribeQuery(info, frame.QueryID)
		return communication.EventResult{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown frame type %q", errInvalidRequest, frame.Type)
	}
}

// classify maps an error to its HTTP status and a stable code for clients.
func classify(err error) (int, string) {
	code := "internal_error"
	var serviceErr *processor.ServiceError
	if errors.As(err, &serviceErr) {
		code = serviceErr.Code()
	}
	switch {
	case errors.Is(err, errInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, communication.ErrUnknownCommand), errors.Is(err, communication.ErrInvalidCommand):
		if code == "internal_error" {
			code = "invalid_command"
		}
		return http.StatusBadRequest, code
	case errors.Is(err, communication.ErrNotFound):
		return http.StatusNotFound, code
	case errors.Is(err, communication.ErrDuplicate):
		return http.StatusConflict, code
	default:
		return http.StatusInternalServerError, code
	}
}
