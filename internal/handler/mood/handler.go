package mood

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/serene/backend/internal/auth"
	"github.com/zhouzirui/serene/backend/internal/model/wellness"
	"github.com/zhouzirui/serene/backend/internal/store"
	"github.com/zhouzirui/serene/backend/pkg/utils"
)

const defaultRecentLimit = 10

// Handler 心情记录的HTTP处理器
type Handler struct {
	moods store.Moods
}

// New 创建心情处理器
func New(moods store.Moods) *Handler {
	return &Handler{moods: moods}
}

// RegisterRoutes 注册心情相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/mood", h.handleRecordMood)
	r.Get("/moods", h.handleListMoods)
	r.Get("/mood/recent", h.handleRecentMoods)
}

// handleRecordMood 追加一条心情记录，mood 必须是数字
func (h *Handler) handleRecordMood(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserID(r.Context())

	var payload struct {
		Mood json.RawMessage `json:"mood"`
		Note *string         `json:"note"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondServiceError(w, err, "")
		return
	}
	if len(payload.Mood) == 0 || string(payload.Mood) == "null" || payload.Note == nil {
		utils.RespondError(w, http.StatusBadRequest, "Incomplete mood data provided")
		return
	}

	var value float64
	if err := json.Unmarshal(payload.Mood, &value); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "mood must be a number")
		return
	}

	entry, err := h.moods.AddMood(r.Context(), uid, wellness.MoodEntry{Mood: value, Note: *payload.Note})
	if err != nil {
		utils.RespondServiceError(w, err, "")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"success": true, "id": entry.ID})
}

// handleListMoods 返回最近 days 天（默认 30）的记录，按时间升序
func (h *Handler) handleListMoods(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserID(r.Context())

	days, err := utils.QueryInt(r, "days", store.DefaultMoodWindowDays)
	if err != nil {
		utils.RespondServiceError(w, err, "")
		return
	}

	entries, err := h.moods.ListMoods(r.Context(), uid, days)
	if err != nil {
		utils.RespondServiceError(w, err, "")
		return
	}
	utils.RespondJSON(w, http.StatusOK, entries)
}

// handleRecentMoods 返回最新的 limit 条记录，按时间倒序
func (h *Handler) handleRecentMoods(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserID(r.Context())

	limit, err := utils.QueryInt(r, "limit", defaultRecentLimit)
	if err != nil {
		utils.RespondServiceError(w, err, "")
		return
	}

	entries, err := h.moods.RecentMoods(r.Context(), uid, limit)
	if err != nil {
		utils.RespondServiceError(w, err, "")
		return
	}
	utils.RespondJSON(w, http.StatusOK, entries)
}
