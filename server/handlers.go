package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/toeic4all/question-api/pkg/query"
	"github.com/toeic4all/question-api/pkg/question"
	"github.com/toeic4all/question-api/pkg/redisstore"
)

// StatusReporter reports the document store's health for the admin surface.
type StatusReporter interface {
	ServerStatus(ctx context.Context) (map[string]interface{}, error)
}

func newHandlers(queries *query.CachedService, rdb *redis.Client, status StatusReporter, debug bool) *handlers {
	return &handlers{
		queries: queries,
		rdb:     rdb,
		status:  status,
		debug:   debug,
		started: time.Now(),
	}
}

type handlers struct {
	queries *query.CachedService
	rdb     *redis.Client
	status  StatusReporter
	debug   bool
	started time.Time
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Errorf("failed to encode response: %v", err)
	}
}

// writeError hides internal detail unless debug mode is on.
func (h *handlers) writeError(w http.ResponseWriter, status int, err error) {
	msg := http.StatusText(status)
	if h.debug && err != nil {
		msg = err.Error()
	}
	if err != nil {
		log.Errorf("request failed: %v", err)
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func intQuery(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}

// useCache is true unless the caller opts out with skip_cache=true, the
// debug override that reads straight from the document store.
func useCache(r *http.Request) bool {
	return r.URL.Query().Get("skip_cache") != "true"
}

func (h *handlers) listPart5(w http.ResponseWriter, r *http.Request) {
	f := query.Part5Filter{
		Category:   r.URL.Query().Get("category"),
		Subtype:    r.URL.Query().Get("subtype"),
		Difficulty: r.URL.Query().Get("difficulty"),
		Keyword:    r.URL.Query().Get("keyword"),
	}
	limit := intQuery(r, "limit", 10)
	page := intQuery(r, "page", 1)

	questions, err := h.queries.ListPart5(r.Context(), f, limit, page, useCache(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"questions": questions,
		"count":     len(questions),
		"limit":     limit,
		"page":      page,
	})
}

func (h *handlers) countPart5(w http.ResponseWriter, r *http.Request) {
	f := query.Part5Filter{
		Category:   r.URL.Query().Get("category"),
		Subtype:    r.URL.Query().Get("subtype"),
		Difficulty: r.URL.Query().Get("difficulty"),
		Keyword:    r.URL.Query().Get("keyword"),
	}
	total, err := h.queries.CountPart5(r.Context(), f, useCache(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"total": total})
}

func (h *handlers) part5Answer(w http.ResponseWriter, r *http.Request) {
	answer, err := h.queries.Part5Answer(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if answer == nil {
		h.writeError(w, http.StatusNotFound, nil)
		return
	}
	h.writeJSON(w, http.StatusOK, answer)
}

func (h *handlers) part5Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.queries.Part5Categories(r.Context(), useCache(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"categories": categories})
}

func (h *handlers) part5Subtypes(w http.ResponseWriter, r *http.Request) {
	subtypes, err := h.queries.Part5Subtypes(r.Context(), r.URL.Query().Get("category"), useCache(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"subtypes": subtypes})
}

func (h *handlers) part5Difficulties(w http.ResponseWriter, r *http.Request) {
	difficulties, err := h.queries.Part5Difficulties(r.Context(), useCache(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"difficulties": difficulties})
}

func (h *handlers) listPart6(w http.ResponseWriter, r *http.Request) {
	f := query.Part6Filter{
		PassageType: r.URL.Query().Get("passage_type"),
		Difficulty:  r.URL.Query().Get("difficulty"),
	}
	limit := intQuery(r, "limit", 2)
	page := intQuery(r, "page", 1)

	sets, err := h.queries.ListPart6Sets(r.Context(), f, limit, page, useCache(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sets":  sets,
		"count": len(sets),
		"limit": limit,
		"page":  page,
	})
}

func (h *handlers) countPart6(w http.ResponseWriter, r *http.Request) {
	f := query.Part6Filter{
		PassageType: r.URL.Query().Get("passage_type"),
		Difficulty:  r.URL.Query().Get("difficulty"),
	}
	total, err := h.queries.CountPart6Sets(r.Context(), f, useCache(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"total": total})
}

func (h *handlers) part6PassageTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.queries.Part6PassageTypes(r.Context(), useCache(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"passage_types": types})
}

func (h *handlers) part6Difficulties(w http.ResponseWriter, r *http.Request) {
	difficulties, err := h.queries.Part6Difficulties(r.Context(), r.URL.Query().Get("passage_type"), useCache(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"difficulties": difficulties})
}

func (h *handlers) part6Answer(w http.ResponseWriter, r *http.Request) {
	h.setAnswer(w, r, h.queries.Part6Answer)
}

func (h *handlers) listPart7(w http.ResponseWriter, r *http.Request) {
	f := query.Part7Filter{
		SetType:    r.URL.Query().Get("set_type"),
		Difficulty: r.URL.Query().Get("difficulty"),
	}
	if raw := r.URL.Query().Get("passage_types"); raw != "" {
		f.PassageTypes = strings.Split(raw, ",")
	}
	limit := intQuery(r, "limit", 1)
	page := intQuery(r, "page", 1)

	sets, err := h.queries.ListPart7Sets(r.Context(), f, limit, page, useCache(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sets":  sets,
		"count": len(sets),
		"limit": limit,
		"page":  page,
	})
}

func (h *handlers) countPart7(w http.ResponseWriter, r *http.Request) {
	f := query.Part7Filter{
		SetType:    r.URL.Query().Get("set_type"),
		Difficulty: r.URL.Query().Get("difficulty"),
	}
	if raw := r.URL.Query().Get("passage_types"); raw != "" {
		f.PassageTypes = strings.Split(raw, ",")
	}
	total, err := h.queries.CountPart7Sets(r.Context(), f, useCache(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"total": total})
}

func (h *handlers) part7Answer(w http.ResponseWriter, r *http.Request) {
	h.setAnswer(w, r, h.queries.Part7Answer)
}

func (h *handlers) part7SetTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.queries.Part7SetTypes(r.Context(), useCache(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"set_types": types})
}

func (h *handlers) part7PassageTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.queries.Part7PassageTypes(r.Context(), r.URL.Query().Get("set_type"), useCache(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"passage_types": types})
}

// Fallback combinations served when the store holds none for the set type.
var defaultCombinations = map[string][][]string{
	"Double": {
		{"Email", "Letter"},
		{"Article", "Form"},
		{"Notice", "Memo"},
		{"Advertisement", "Email"},
	},
	"Triple": {
		{"Email", "Schedule", "Notice"},
		{"Chat", "Article", "Form"},
		{"Memo", "Letter", "Form"},
	},
}

func (h *handlers) part7PassageCombinations(w http.ResponseWriter, r *http.Request) {
	setType := r.URL.Query().Get("set_type")
	if setType != "Double" && setType != "Triple" {
		h.writeError(w, http.StatusBadRequest, errors.New("set_type must be Double or Triple"))
		return
	}

	combinations, err := h.queries.Part7PassageCombinations(r.Context(), setType, useCache(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if len(combinations) == 0 {
		combinations = defaultCombinations[setType]
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"combinations": combinations})
}

func (h *handlers) part7Difficulties(w http.ResponseWriter, r *http.Request) {
	difficulties, err := h.queries.Part7Difficulties(r.Context(), r.URL.Query().Get("set_type"), useCache(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"difficulties": difficulties})
}

func (h *handlers) setAnswer(w http.ResponseWriter, r *http.Request, lookup func(context.Context, string, int) (*question.Answer, error)) {
	vars := mux.Vars(r)
	seq, err := strconv.Atoi(vars["seq"])
	if err != nil {
		h.writeError(w, http.StatusBadRequest, errors.New("seq must be an integer"))
		return
	}

	answer, err := lookup(r.Context(), vars["setID"], seq)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if answer == nil {
		h.writeError(w, http.StatusNotFound, nil)
		return
	}
	h.writeJSON(w, http.StatusOK, answer)
}

var cacheResources = map[string]bool{
	"part5":    true,
	"part6":    true,
	"part7":    true,
	"metadata": true,
}

// clearCache serializes concurrent clears behind the distributed lock; a
// busy lock maps to service-unavailable.
func (h *handlers) clearCache(w http.ResponseWriter, r *http.Request) {
	resource := mux.Vars(r)["resource"]
	if resource != "" && !cacheResources[resource] {
		h.writeError(w, http.StatusNotFound, errors.Errorf("unknown cache resource %q", resource))
		return
	}

	lock := redisstore.NewLock(h.rdb, "cache-clear",
		redisstore.WithAcquireTimeout(2*time.Second))

	var removed int
	err := lock.WithLock(r.Context(), func(ctx context.Context) error {
		var err error
		removed, err = h.queries.ClearCache(ctx, resource)
		return err
	})
	if errors.Is(err, redisstore.ErrLockNotAcquired) {
		h.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	name := resource
	if name == "" {
		name = "all"
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"resource": name,
		"cleared":  removed,
	})
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "online",
		"message":        "TOEIC Question API is running",
		"version":        Version,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}

func (h *handlers) dbStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.status.ServerStatus(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h *handlers) root(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "online",
		"message": "TOEIC Question API is running",
	})
}
