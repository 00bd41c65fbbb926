package sse

import (
  "encoding/json"
  "fmt"
  "net/http"
  "strings"
  "sync"
  "time"
  "github.com/google/uuid"
  "github.com/twinforge/twinforge-backend/internal/logger"
)

// SSEEvent names the lifecycle notifications pushed to twin owners.
type SSEEvent string

const (
  SSEEventIngestionProgress  SSEEvent = "IngestionJobProgress"
  SSEEventIngestionCompleted SSEEvent = "IngestionJobCompleted"
  SSEEventIngestionFailed    SSEEvent = "IngestionJobFailed"
  SSEEventLearningPublished  SSEEvent = "LearningJobPublished"
  SSEEventLearningRejected   SSEEvent = "LearningJobRejected"
)

const (
  outboundBuffer    = 10
  heartbeatInterval = 15 * time.Second
)

// TwinChannel is the canonical channel name for a twin's lifecycle stream.
func TwinChannel(twinID uuid.UUID) string {
  return "twin:" + twinID.String()
}

type SSEMessage struct {
  Channel string   `json:"channel"`
  Event   SSEEvent `json:"event"`
  Data    any      `json:"data,omitempty"`
}

type SSEClient struct {
  ID       uuid.UUID
  UserID   uuid.UUID
  Channels map[string]bool
  Outbound chan SSEMessage
  done     chan struct{}
}

// SSEHub fans lifecycle messages out to connected owner streams. Delivery is
// best-effort per client: a slow consumer drops messages rather than blocking
// the publisher.
type SSEHub struct {
  mu     sync.RWMutex
  logger *logger.Logger
  subs   map[string]map[*SSEClient]struct{}
}

func NewSSEHub(log *logger.Logger) *SSEHub {
  return &SSEHub{
    logger: log.With("component", "SSEHub"),
    subs:   make(map[string]map[*SSEClient]struct{}),
  }
}

func (hub *SSEHub) NewSSEClient(userID uuid.UUID) *SSEClient {
  return &SSEClient{
    ID:       uuid.New(),
    UserID:   userID,
    Channels: make(map[string]bool),
    Outbound: make(chan SSEMessage, outboundBuffer),
    done:     make(chan struct{}),
  }
}

func (hub *SSEHub) AddChannel(client *SSEClient, channel string) {
  channel = strings.TrimSpace(channel)
  if channel == "" {
    return
  }

  hub.mu.Lock()
  defer hub.mu.Unlock()

  client.Channels[channel] = true
  if hub.subs[channel] == nil {
    hub.subs[channel] = make(map[*SSEClient]struct{})
  }
  hub.subs[channel][client] = struct{}{}
  hub.logger.Debug("SSE client subscribed", "clientID", client.ID, "channel", channel)
}

func (hub *SSEHub) RemoveClient(client *SSEClient) {
  hub.mu.Lock()
  defer hub.mu.Unlock()

  for ch := range client.Channels {
    if members, ok := hub.subs[ch]; ok {
      delete(members, client)
      if len(members) == 0 {
        delete(hub.subs, ch)
      }
    }
  }
  client.Channels = make(map[string]bool)
  hub.logger.Debug("SSE client unsubscribed", "clientID", client.ID)
}

func (hub *SSEHub) Broadcast(msg SSEMessage) {
  if msg.Channel == "" {
    return
  }

  hub.mu.RLock()
  defer hub.mu.RUnlock()

  for client := range hub.subs[msg.Channel] {
    select {
    case client.Outbound <- msg:
    default:
      hub.logger.Warn("Dropping SSE message; outbound buffer full",
        "clientID", client.ID, "channel", msg.Channel, "event", string(msg.Event))
    }
  }
}

// ServeHTTP streams the client's outbound queue until the request context or
// the client is closed, emitting comment heartbeats to keep proxies from
// timing out idle connections.
func (hub *SSEHub) ServeHTTP(w http.ResponseWriter, r *http.Request, client *SSEClient) {
  w.Header().Set("Content-Type", "text/event-stream")
  w.Header().Set("Cache-Control", "no-cache")
  w.Header().Set("Connection", "keep-alive")
  w.Header().Set("X-Accel-Buffering", "no")

  flusher, ok := w.(http.Flusher)
  if !ok {
    http.Error(w, "streaming unsupported", http.StatusInternalServerError)
    return
  }

  heartbeat := time.NewTicker(heartbeatInterval)
  defer heartbeat.Stop()

  for {
    select {
    case <-r.Context().Done():
      hub.logger.Debug("SSE client disconnected", "clientID", client.ID)
      return
    case <-client.done:
      return
    case <-heartbeat.C:
      fmt.Fprint(w, ": ping\n\n")
      flusher.Flush()
    case msg := <-client.Outbound:
      payload, err := json.Marshal(msg)
      if err != nil {
        hub.logger.Warn("Failed to marshal SSE message", "error", err)
        continue
      }
      fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, payload)
      flusher.Flush()
    }
  }
}

func (hub *SSEHub) CloseClient(client *SSEClient) {
  close(client.done)
  hub.RemoveClient(client)
  close(client.Outbound)
}
