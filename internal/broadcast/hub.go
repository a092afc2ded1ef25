package broadcast

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"wharf/internal/config"
	"wharf/internal/logging"
	"wharf/internal/queue"
)

// Hub fans queue state out to websocket clients. The engine and API layer
// feed it through TaskAdded, TaskUpdated, and TaskRemoved; per-task updates
// are merged by id and flushed on the batch interval so progress-heavy
// transfers do not flood slow clients.
type Hub struct {
	store    *queue.Store
	logger   *slog.Logger
	upgrader websocket.Upgrader

	batchInterval time.Duration
	statsInterval time.Duration

	mu      sync.Mutex
	clients map[*client]struct{}
	pending map[int64]TaskState
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewHub creates a hub over the queue store. Call Start before mounting
// HandleUpgrade.
func NewHub(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Hub {
	return &Hub{
		store:  store,
		logger: logging.NewComponentLogger(logger, "broadcast"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		batchInterval: cfg.BatchInterval(),
		statsInterval: cfg.StatsInterval(),
		clients:       make(map[*client]struct{}),
		pending:       make(map[int64]TaskState),
	}
}

// Start launches the batch and stats tickers.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return errors.New("broadcast hub already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.running = true
	h.wg.Add(1)
	h.mu.Unlock()

	go h.run(runCtx)

	h.logger.Info("broadcast hub started",
		logging.Duration("batch_interval", h.batchInterval),
		logging.Duration("stats_interval", h.statsInterval))
	return nil
}

// Stop disconnects every client and waits for the tickers and write pumps
// to drain.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	cancel := h.cancel
	h.running = false
	h.cancel = nil
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, c)
	}
	h.mu.Unlock()

	cancel()
	for _, c := range clients {
		close(c.send)
		c.conn.Close()
	}
	h.wg.Wait()
	h.logger.Info("broadcast hub stopped")
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// TaskAdded announces a new task immediately.
func (h *Hub) TaskAdded(task *queue.Task) {
	if task == nil {
		return
	}
	state := newTaskState(task)
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.pending, state.ID)
	h.broadcastLocked(Message{Type: MessageTaskAdded, Tasks: []TaskState{state}})
}

// TaskUpdated merges the task into the current batch window. The latest
// state per id wins; the flush on the batch tick sends it out.
func (h *Hub) TaskUpdated(task *queue.Task) {
	if task == nil {
		return
	}
	state := newTaskState(task)
	h.mu.Lock()
	h.pending[state.ID] = state
	h.mu.Unlock()
}

// TaskRemoved announces a deletion immediately and drops any buffered state
// so a removed task never resurfaces in a later batch.
func (h *Hub) TaskRemoved(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.pending, id)
	h.broadcastLocked(Message{Type: MessageTaskRemoved, Removed: []int64{id}})
}

// HandleUpgrade upgrades the request to the sync socket, sends the snapshot
// as the first frame, and blocks serving the connection until the client
// disconnects.
func (h *Hub) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	running := h.running
	h.mu.Unlock()
	if !running {
		http.Error(w, "sync unavailable", http.StatusServiceUnavailable)
		return
	}

	snapshot, err := h.snapshot(r.Context())
	if err != nil {
		h.logger.Error("snapshot build failed", logging.Error(err))
		http.Error(w, "snapshot unavailable", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan Message, sendBuffer),
	}
	c.send <- snapshot

	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.wg.Add(1)
	h.mu.Unlock()

	h.logger.Info("sync client connected",
		logging.String("client_id", c.id),
		logging.Int("clients", count))

	go func() {
		defer h.wg.Done()
		c.writePump()
	}()

	c.readPump()
	h.deregister(c)
	h.logger.Info("sync client disconnected", logging.String("client_id", c.id))
}

func (h *Hub) run(ctx context.Context) {
	defer h.wg.Done()

	batch := time.NewTicker(h.batchInterval)
	defer batch.Stop()
	stats := time.NewTicker(h.statsInterval)
	defer stats.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-batch.C:
			h.flush()
		case <-stats.C:
			h.publishStats(ctx)
		}
	}
}

// flush drains the batch window. A single changed task goes out as
// task_updated, several as one tasks_updated frame.
func (h *Hub) flush() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.pending) == 0 {
		return
	}
	states := make([]TaskState, 0, len(h.pending))
	for _, state := range h.pending {
		states = append(states, state)
	}
	clear(h.pending)
	slices.SortFunc(states, func(a, b TaskState) int { return cmp.Compare(a.ID, b.ID) })

	msg := Message{Type: MessageTasksUpdated, Tasks: states}
	if len(states) == 1 {
		msg.Type = MessageTaskUpdated
	}
	h.broadcastLocked(msg)
}

func (h *Hub) publishStats(ctx context.Context) {
	aggregate, err := h.store.Aggregate(ctx)
	if err != nil {
		if ctx.Err() == nil {
			h.logger.Warn("stats aggregate failed", logging.Error(err))
		}
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(Message{Type: MessageStats, Stats: newStats(aggregate)})
}

// snapshot reads the full task list and aggregate counters. Events emitted
// between this read and registration are lost to the new client; the next
// stats frame and batch flush bring it back in line.
func (h *Hub) snapshot(ctx context.Context) (Message, error) {
	tasks, err := h.store.List(ctx)
	if err != nil {
		return Message{}, err
	}
	aggregate, err := h.store.Aggregate(ctx)
	if err != nil {
		return Message{}, err
	}
	states := make([]TaskState, 0, len(tasks))
	for _, task := range tasks {
		states = append(states, newTaskState(task))
	}
	return Message{Type: MessageSnapshot, Tasks: states, Stats: newStats(aggregate)}, nil
}

// broadcastLocked sends to every client, dropping any whose send buffer is
// full rather than stalling the hub. Callers hold h.mu.
func (h *Hub) broadcastLocked(msg Message) {
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			delete(h.clients, c)
			close(c.send)
			c.conn.Close()
			h.logger.Warn("dropped slow sync client", logging.String("client_id", c.id))
		}
	}
}

func (h *Hub) deregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	h.mu.Unlock()
	if ok {
		close(c.send)
		c.conn.Close()
	}
}
