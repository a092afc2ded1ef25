package sabnzbd

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"wharf/internal/api"
	"wharf/internal/config"
	"wharf/internal/logging"
	"wharf/internal/services"
)

// sabVersion is what the version probe reports. Clients gate features on
// it, so it names a release they all accept.
const sabVersion = "4.3.2"

const nzoPrefix = "SABnzbd_nzo_"

// QueueService is the slice of the service layer the download-client
// façade needs.
type QueueService interface {
	Add(ctx context.Context, req api.AddRequest) (api.AddResult, error)
	Queue(ctx context.Context) ([]api.Task, error)
	History(ctx context.Context, limit int) ([]api.Task, error)
	Stats(ctx context.Context) (api.Stats, error)
	PauseTasks(ctx context.Context, ids []int64) (api.BatchResult, error)
	ResumeTasks(ctx context.Context, ids []int64) (api.BatchResult, error)
	RemoveTasks(ctx context.Context, ids []int64, deleteFiles bool) (api.BatchResult, error)
	PauseAll(ctx context.Context) (int64, error)
	ResumeAll(ctx context.Context) (int64, error)
	ClearHistory(ctx context.Context) (int64, error)
}

// Handler serves the SABnzbd API surface: mode-selected JSON over GET.
// Like the indexer façade it authenticates inside the handler, because
// clients read failures from the JSON body rather than HTTP statuses.
type Handler struct {
	svc         QueueService
	apiKey      string
	downloadDir string
	categories  []string
	logger      *slog.Logger
}

func NewHandler(cfg *config.Config, svc QueueService, logger *slog.Logger) *Handler {
	return &Handler{
		svc:         svc,
		apiKey:      cfg.API.APIKey,
		downloadDir: cfg.Paths.DownloadDir,
		categories:  cfg.Search.Categories,
		logger:      logging.NewComponentLogger(logger, "sabnzbd"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode := query.Get("mode")

	// The version probe answers before authentication; it is how clients
	// discover the endpoint in the first place.
	if mode == "version" {
		writeJSON(w, versionResponse{Version: sabVersion})
		return
	}
	if h.apiKey != "" && query.Get("apikey") != h.apiKey {
		h.writeError(w, "API Key Incorrect")
		return
	}

	switch mode {
	case "":
		h.writeError(w, "expects a mode parameter")
	case "addurl", "addid":
		h.handleAdd(w, r, mode)
	case "queue":
		h.handleQueue(w, r)
	case "history":
		h.handleHistory(w, r)
	case "pause":
		h.handleAllTasks(w, r, "pause", h.svc.PauseAll)
	case "resume":
		h.handleAllTasks(w, r, "resume", h.svc.ResumeAll)
	case "get_cats":
		h.handleGetCats(w)
	case "get_config":
		h.handleGetConfig(w)
	default:
		h.writeError(w, "Not implemented")
	}
}

// handleAdd accepts a download by enclosure URL or bare reference. The add
// always answers with an nzo id; a reference that fails validation shows
// up in history as failed, which is where clients look for grab outcomes.
func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request, mode string) {
	query := r.URL.Query()
	name := strings.TrimSpace(query.Get("name"))
	if name == "" {
		h.writeError(w, mode+" expects one parameter (name)")
		return
	}

	reference := name
	if mode == "addurl" {
		reference = referenceFromURL(name)
	}

	result, err := h.svc.Add(r.Context(), api.AddRequest{
		Reference: reference,
		Filename:  strings.TrimSpace(query.Get("nzbname")),
		Category:  normalizeCategory(query.Get("cat")),
		Priority:  taskPriority(query.Get("priority")),
	})
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			h.writeError(w, "invalid name parameter")
			return
		}
		h.serviceError(w, mode, err)
		return
	}

	writeJSON(w, addResponse{Status: true, NzoIDs: []string{nzoID(result.Task.ID)}})
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if name := query.Get("name"); name != "" {
		h.handleQueueAction(w, r, name, query)
		return
	}

	tasks, err := h.svc.Queue(r.Context())
	if err != nil {
		h.serviceError(w, "queue", err)
		return
	}
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		h.serviceError(w, "queue stats", err)
		return
	}
	writeJSON(w, queueResponse{Queue: buildQueue(tasks, stats)})
}

func (h *Handler) handleQueueAction(w http.ResponseWriter, r *http.Request, name string, query url.Values) {
	ctx := r.Context()
	value := strings.TrimSpace(query.Get("value"))
	if value == "" {
		h.writeError(w, name+" expects a value parameter")
		return
	}

	var err error
	switch name {
	case "pause":
		_, err = h.svc.PauseTasks(ctx, parseNzoIDs(value))
	case "resume":
		_, err = h.svc.ResumeTasks(ctx, parseNzoIDs(value))
	case "delete":
		deleteFiles := query.Get("del_files") == "1"
		ids := parseNzoIDs(value)
		if value == "all" {
			if ids, err = h.queueTaskIDs(ctx); err != nil {
				h.serviceError(w, "queue purge", err)
				return
			}
		}
		_, err = h.svc.RemoveTasks(ctx, ids, deleteFiles)
	default:
		h.writeError(w, "Not implemented")
		return
	}
	if err != nil {
		h.serviceError(w, "queue "+name, err)
		return
	}
	writeJSON(w, statusResponse{Status: true})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	ctx := r.Context()

	if name := query.Get("name"); name != "" {
		if name != "delete" {
			h.writeError(w, "Not implemented")
			return
		}
		value := strings.TrimSpace(query.Get("value"))
		switch value {
		case "":
			h.writeError(w, "delete expects a value parameter")
			return
		case "all":
			if _, err := h.svc.ClearHistory(ctx); err != nil {
				h.serviceError(w, "history clear", err)
				return
			}
		default:
			if _, err := h.svc.RemoveTasks(ctx, parseNzoIDs(value), false); err != nil {
				h.serviceError(w, "history delete", err)
				return
			}
		}
		writeJSON(w, statusResponse{Status: true})
		return
	}

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	tasks, err := h.svc.History(ctx, limit)
	if err != nil {
		h.serviceError(w, "history", err)
		return
	}
	slots := buildHistory(tasks)
	writeJSON(w, historyResponse{History: historyPayload{NoOfSlots: len(slots), Slots: slots}})
}

func (h *Handler) handleAllTasks(w http.ResponseWriter, r *http.Request, operation string, apply func(context.Context) (int64, error)) {
	if _, err := apply(r.Context()); err != nil {
		h.serviceError(w, operation, err)
		return
	}
	writeJSON(w, statusResponse{Status: true})
}

func (h *Handler) handleGetCats(w http.ResponseWriter) {
	cats := make([]string, 0, len(h.categories)+1)
	cats = append(cats, "*")
	cats = append(cats, h.categories...)
	writeJSON(w, catsResponse{Categories: cats})
}

func (h *Handler) handleGetConfig(w http.ResponseWriter) {
	payload := configPayload{Misc: configMisc{CompleteDir: h.downloadDir}}
	for _, cat := range h.categories {
		payload.Categories = append(payload.Categories, configCategory{Name: cat})
	}
	writeJSON(w, configResponse{Config: payload})
}

func (h *Handler) queueTaskIDs(ctx context.Context) ([]int64, error) {
	tasks, err := h.svc.Queue(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	return ids, nil
}

func (h *Handler) serviceError(w http.ResponseWriter, operation string, err error) {
	h.logger.Warn("facade operation failed",
		logging.String("operation", operation),
		logging.Error(err))
	h.writeError(w, "internal error")
}

func (h *Handler) writeError(w http.ResponseWriter, message string) {
	writeJSON(w, errorResponse{Status: false, Error: message})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func nzoID(id int64) string {
	return nzoPrefix + strconv.FormatInt(id, 10)
}

// parseNzoID accepts both the prefixed form this façade hands out and a
// bare numeric id.
func parseNzoID(value string) (int64, bool) {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, nzoPrefix)
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func parseNzoIDs(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		if id, ok := parseNzoID(part); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// referenceFromURL digs the acquisition reference out of an enclosure URL.
// The indexer façade embeds it as the id query parameter; other shapes
// fall back to the last path segment without its extension, and a bare
// reference passes through untouched.
func referenceFromURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if id := strings.TrimSpace(parsed.Query().Get("id")); id != "" {
		return id
	}
	segment := strings.TrimSuffix(path.Base(parsed.Path), ".nzb")
	if segment != "" && segment != "." && segment != "/" {
		return segment
	}
	return raw
}

// normalizeCategory maps the client's wildcard and default markers onto an
// unset category.
func normalizeCategory(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "*" || raw == "default" {
		return ""
	}
	return raw
}

// taskPriority translates the client's priority scale onto the scheduler's,
// where larger always means sooner.
func taskPriority(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	switch {
	case n >= 2:
		return 20
	case n == 1:
		return 10
	case n == -1:
		return -10
	}
	return 0
}
