package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/pageforge/api/internal/model"
	"github.com/pageforge/api/internal/registry"
)

// GenerationStarter triggers a pipeline run for a draft job. Implemented by
// the generation service; a conflict from a concurrent subscriber is not an
// error here, it means someone else already started the run.
type GenerationStarter interface {
	StartGeneration(ctx context.Context, jobID string) (*model.GenerateResponse, error)
}

// Client represents a WebSocket subscriber for one job.
type Client struct {
	JobID string
	Conn  *websocket.Conn
	Send  chan []byte
}

// Hub broadcasts progress events for a job id to its connected subscribers.
// A terminal event (complete or failed) closes every stream of that job;
// each subscription sees exactly one terminal event.
type Hub struct {
	// Clients grouped by job ID
	clients map[string]map[*Client]bool

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	// Broadcast messages to job subscribers
	broadcast chan *BroadcastMessage

	registry registry.Registry
	starter  GenerationStarter

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast. Terminal messages tear
// down every subscription of the job after delivery.
type BroadcastMessage struct {
	JobID    string
	Message  []byte
	Terminal bool
}

// NewHub creates a new Hub
func NewHub(reg registry.Registry) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		registry:   reg,
	}
}

// SetStarter wires the generation service in after construction; the service
// itself has no dependency on the hub.
func (h *Hub) SetStarter(s GenerationStarter) {
	h.starter = s
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.JobID] == nil {
				h.clients[client.JobID] = make(map[*Client]bool)
			}
			h.clients[client.JobID][client] = true
			h.mu.Unlock()
			log.Printf("Subscriber registered for job %s", client.JobID)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.JobID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(h.clients, client.JobID)
					}
				}
			}
			h.mu.Unlock()
			log.Printf("Subscriber unregistered from job %s", client.JobID)

		case msg := <-h.broadcast:
			h.mu.Lock()
			if clients, ok := h.clients[msg.JobID]; ok {
				for client := range clients {
					select {
					case client.Send <- msg.Message:
					default:
						close(client.Send)
						delete(clients, client)
					}
				}
				if msg.Terminal {
					for client := range clients {
						close(client.Send)
						delete(clients, client)
					}
					delete(h.clients, msg.JobID)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Progress implements the orchestrator's sink for advancement events.
func (h *Hub) Progress(jobID string, ev model.ProgressEvent) {
	h.send(jobID, model.WSProgressMessage{
		Type:        model.WSMessageTypeProgress,
		JobID:       jobID,
		Stage:       ev.Stage,
		Message:     ev.Message,
		Attempt:     ev.Attempt,
		MaxAttempts: ev.MaxAttempts,
		Score:       ev.Score,
	}, false)
}

// Complete broadcasts the terminal event for a run that passed.
func (h *Hub) Complete(jobID string, run *model.PipelineRun) {
	h.send(jobID, model.WSCompleteMessage{
		Type:          model.WSMessageTypeComplete,
		JobID:         jobID,
		Score:         run.Score,
		RevisionCount: run.RevisionCount,
	}, true)
}

// Failed broadcasts the terminal event for a run that did not pass.
func (h *Hub) Failed(jobID string, run *model.PipelineRun) {
	msg := model.WSFailedMessage{
		Type:          model.WSMessageTypeFailed,
		JobID:         jobID,
		Error:         run.Error,
		RevisionCount: run.RevisionCount,
	}
	if len(run.Attempts) > 0 {
		score := run.Score
		msg.Score = &score
	}
	h.send(jobID, msg, true)
}

func (h *Hub) send(jobID string, msg interface{}, terminal bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal broadcast message: %v", err)
		return
	}
	h.broadcast <- &BroadcastMessage{JobID: jobID, Message: data, Terminal: terminal}
}

// HandleConnection handles a WebSocket subscription for one job. A job whose
// run already settled gets a single synthetic terminal event reconstructed
// from its status; a draft job gets its run started by the subscription.
func (h *Hub) HandleConnection(c *websocket.Conn, jobID string) {
	ctx := context.Background()

	job, err := h.registry.Get(ctx, jobID)
	if err != nil {
		writeJSON(c, model.WSFailedMessage{
			Type:  model.WSMessageTypeFailed,
			JobID: jobID,
			Error: "job not found",
		})
		return
	}

	if job.Status.IsRunSettled() {
		writeJSON(c, model.WSConnectedMessage{
			Type:   model.WSMessageTypeConnected,
			JobID:  jobID,
			Status: job.Status,
		})
		writeJSON(c, syntheticTerminal(job))
		return
	}

	client := &Client{
		JobID: jobID,
		Conn:  c,
		Send:  make(chan []byte, 256),
	}

	greeting, _ := json.Marshal(model.WSConnectedMessage{
		Type:   model.WSMessageTypeConnected,
		JobID:  jobID,
		Status: job.Status,
	})
	client.Send <- greeting

	h.Register(client)
	defer h.Unregister(client)

	// Subscribe-triggers-start: the state machine's start transition is the
	// mutual-exclusion lock, so a racing second subscriber just gets a
	// conflict here and piggybacks on the running pipeline.
	if job.Status == model.JobStatusDraft && h.starter != nil {
		if _, err := h.starter.StartGeneration(ctx, jobID); err != nil {
			log.Printf("Subscribe-triggered start for job %s not needed: %v", jobID, err)
		}
	}

	done := make(chan struct{})

	// Writer goroutine
	go func() {
		defer close(done)
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				// Send ping for keep-alive
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
			select {
			case client.Send <- pong:
			case <-done:
				return
			}
		}
	}
	<-done
}

// syntheticTerminal reconstructs the terminal event a late subscriber missed
// from the job's current state, without re-running anything.
func syntheticTerminal(job *model.Job) interface{} {
	var run model.PipelineRun
	if len(job.PipelineResult) > 0 {
		_ = json.Unmarshal(job.PipelineResult, &run)
	}

	if job.Status == model.JobStatusFactoryFailed {
		reason := run.Error
		if job.FailureReason != nil {
			reason = *job.FailureReason
		}
		msg := model.WSFailedMessage{
			Type:          model.WSMessageTypeFailed,
			JobID:         job.ID,
			Error:         reason,
			RevisionCount: job.RevisionCount,
		}
		if len(run.Attempts) > 0 {
			score := run.Score
			msg.Score = &score
		}
		return msg
	}

	return model.WSCompleteMessage{
		Type:          model.WSMessageTypeComplete,
		JobID:         job.ID,
		Score:         run.Score,
		RevisionCount: job.RevisionCount,
	}
}

func writeJSON(c *websocket.Conn, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	_ = c.WriteMessage(websocket.TextMessage, data)
}
