// Package pipeline is the server API over one workspace: reads with live
// query registration, command events, and subscription lifecycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/courier/internal/communication"
	"github.com/MarcoPoloResearchLab/courier/internal/database"
	"github.com/MarcoPoloResearchLab/courier/internal/processor"
	"github.com/MarcoPoloResearchLab/courier/internal/session"
	"github.com/MarcoPoloResearchLab/courier/internal/storage"
	"github.com/MarcoPoloResearchLab/courier/internal/triggers"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TracerName identifies spans emitted by the pipeline.
const TracerName = "courier/pipeline"

var (
	errMissingRegistry = errors.New("connection registry is required")
	errMissingDSN      = errors.New("database url is required")
)

type Config struct {
	Registry    *database.Registry
	DatabaseURL string
	Workspace   communication.WorkspaceID
	Broadcast   session.BroadcastFunc
	Resolver    triggers.AccountResolver
	IDProvider  communication.IDProvider
	Clock       func() time.Time
	Logger      *zap.Logger
}

// Api serves one workspace over a shared registry connection.
type Api struct {
	reference *database.Reference
	adapter   *storage.Adapter
	manager   *session.Manager
	tracer    trace.Tracer
	logger    *zap.Logger
}

// FindNotificationsResult carries the page and, when requested, the total
// number of matching notifications.
type FindNotificationsResult struct {
	Notifications []communication.Notification `json:"notifications"`
	Total         *int                         `json:"total,omitempty"`
}

func New(ctx context.Context, cfg Config) (*Api, error) {
	if cfg.Registry == nil {
		return nil, errMissingRegistry
	}
	if cfg.DatabaseURL == "" {
		return nil, errMissingDSN
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ids := cfg.IDProvider
	if ids == nil {
		ids = communication.NewUUIDProvider()
	}

	reference, err := cfg.Registry.Acquire(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("acquire database: %w", err)
	}
	api, err := build(reference, cfg, ids, logger)
	if err != nil {
		_ = reference.Close()
		return nil, err
	}
	return api, nil
}

func build(reference *database.Reference, cfg Config, ids communication.IDProvider, logger *zap.Logger) (*Api, error) {
	adapter, err := storage.NewAdapter(storage.AdapterConfig{
		DB:        reference.DB(),
		Style:     reference.Dialect().Style(),
		Workspace: cfg.Workspace,
		NewID:     ids.NewID,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	eventProcessor, err := processor.New(processor.Config{
		Adapter:    adapter,
		IDProvider: ids,
		Clock:      cfg.Clock,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	engine, err := triggers.New(triggers.Config{
		Adapter:    adapter,
		IDProvider: ids,
		Resolver:   cfg.Resolver,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	manager, err := session.NewManager(session.Config{
		Processor: eventProcessor,
		Triggers:  engine,
		Broadcast: cfg.Broadcast,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	return &Api{
		reference: reference,
		adapter:   adapter,
		manager:   manager,
		tracer:    otel.Tracer(TracerName),
		logger:    logger,
	}, nil
}

func (a *Api) Workspace() communication.WorkspaceID { return a.adapter.Workspace() }

func (a *Api) start(ctx context.Context, name string, info communication.ConnectionInfo, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("courier.workspace", string(a.adapter.Workspace())),
		attribute.String("courier.session", info.SessionID),
	)
	return a.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// register subscribes the query after the read has completed. An event
// committed between the read and the registration is not delivered.
func (a *Api) register(info communication.ConnectionInfo, kind session.QueryKind, queryID string, params any) error {
	if queryID == "" || info.SessionID == "" {
		return nil
	}
	return a.manager.Subscribe(info, kind, queryID, params)
}

func (a *Api) FindMessages(ctx context.Context, info communication.ConnectionInfo, params communication.FindMessagesParams, queryID string) (messages []communication.Message, err error) {
	ctx, span := a.start(ctx, "pipeline.FindMessages", info, attribute.String("courier.card", string(params.Card)))
	defer func() { finish(span, err) }()

	messages, err = a.adapter.FindMessages(ctx, params)
	if err != nil {
		return nil, err
	}
	if err := a.register(info, session.QueryMessages, queryID, params); err != nil {
		return nil, err
	}
	return messages, nil
}

func (a *Api) FindNotificationContexts(ctx context.Context, info communication.ConnectionInfo, params communication.FindNotificationContextParams, queryID string) (contexts []communication.NotificationContext, err error) {
	ctx, span := a.start(ctx, "pipeline.FindNotificationContexts", info)
	defer func() { finish(span, err) }()

	contexts, err = a.adapter.FindContexts(ctx, params)
	if err != nil {
		return nil, err
	}
	if err := a.register(info, session.QueryContexts, queryID, params); err != nil {
		return nil, err
	}
	return contexts, nil
}

func (a *Api) FindNotifications(ctx context.Context, info communication.ConnectionInfo, params communication.FindNotificationsParams, queryID string) (result FindNotificationsResult, err error) {
	ctx, span := a.start(ctx, "pipeline.FindNotifications", info)
	defer func() { finish(span, err) }()

	notifications, err := a.adapter.FindNotifications(ctx, params)
	if err != nil {
		return FindNotificationsResult{}, err
	}
	result.Notifications = notifications
	if params.Total {
		countParams := params
		countParams.Limit = 0
		total, err := a.adapter.CountNotifications(ctx, countParams)
		if err != nil {
			return FindNotificationsResult{}, err
		}
		result.Total = &total
	}
	if err := a.register(info, session.QueryNotifications, queryID, params); err != nil {
		return FindNotificationsResult{}, err
	}
	return result, nil
}

func (a *Api) FindMessagesGroups(ctx context.Context, info communication.ConnectionInfo, params communication.FindMessagesGroupsParams) (groups []communication.MessagesGroup, err error) {
	ctx, span := a.start(ctx, "pipeline.FindMessagesGroups", info)
	defer func() { finish(span, err) }()
	return a.adapter.FindMessagesGroups(ctx, params)
}

func (a *Api) FindCollaborators(ctx context.Context, info communication.ConnectionInfo, params communication.FindCollaboratorsParams) (collaborators []communication.Collaborator, err error) {
	ctx, span := a.start(ctx, "pipeline.FindCollaborators", info)
	defer func() { finish(span, err) }()
	return a.adapter.FindCollaborators(ctx, params)
}

func (a *Api) FindPeers(ctx context.Context, info communication.ConnectionInfo, params communication.FindPeersParams) (peers []communication.Peer, err error) {
	ctx, span := a.start(ctx, "pipeline.FindPeers", info)
	defer func() { finish(span, err) }()
	return a.adapter.FindPeers(ctx, params)
}

// Event runs the command through the processor, broadcasts the result and
// everything its triggers derive.
func (a *Api) Event(ctx context.Context, info communication.ConnectionInfo, command communication.Command) (result communication.EventResult, err error) {
	kind := "nil"
	if command != nil {
		kind = string(command.Kind())
	}
	ctx, span := a.start(ctx, "pipeline.Event", info, attribute.String("courier.command", kind))
	defer func() { finish(span, err) }()
	return a.manager.Event(ctx, info, command)
}

// Register records a session that has not subscribed to anything yet.
func (a *Api) Register(info communication.ConnectionInfo) error {
	return a.manager.Register(info)
}

func (a *Api) UnsubscribeQuery(info communication.ConnectionInfo, queryID string) {
	a.manager.Unsubscribe(info.SessionID, queryID)
}

func (a *Api) CloseSession(sessionID string) {
	a.manager.CloseSession(sessionID)
}

// Close releases the connection reference. It is safe to call repeatedly.
func (a *Api) Close() error {
	return a.reference.Close()
}
