package server

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/MarcoPoloResearchLab/courier/internal/communication"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const defaultStreamBuffer = 64

// Hub owns the outbound stream of every live websocket session. Session ids
// are ULIDs so they sort by connection time.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]*hubClient
	bufferSize int
	logger     *zap.Logger
}

type hubClient struct {
	id     string
	stream chan []byte
	done   chan struct{}
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]*hubClient),
		bufferSize: defaultStreamBuffer,
		logger:     logger,
	}
}

// Connect allocates a session id and its stream. The session is dropped by
// the returned cleanup or when ctx ends; the stream itself is never closed.
func (h *Hub) Connect(ctx context.Context) (string, <-chan []byte, func()) {
	client := &hubClient{
		id:     ulid.Make().String(),
		stream: make(chan []byte, h.bufferSize),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() { h.disconnect(client.id) })
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return client.id, client.stream, cleanup
}

func (h *Hub) disconnect(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(client.done)
	}
}

// Broadcast encodes event once and queues it on each listed session. A
// session whose stream is full misses the event; its client re-reads on
// reconnect.
func (h *Hub) Broadcast(_ context.Context, sessionIDs []string, event communication.Event) error {
	encoded, err := communication.EncodeEvent(event)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(serverFrame{Type: frameEvent, Event: encoded})
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, id := range sessionIDs {
		client, ok := h.clients[id]
		if !ok {
			continue
		}
		select {
		case client.stream <- frame:
		default:
			h.logger.Warn("session stream full, event dropped",
				zap.String("session", id),
				zap.String("event", string(event.Kind())))
		}
	}
	return nil
}

// send queues a response frame for one session, waiting for room.
func (h *Hub) send(ctx context.Context, id string, frame []byte) bool {
	h.mu.RLock()
	client, ok := h.clients[id]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	select {
	case client.stream <- frame:
		return true
	case <-client.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
