package journal

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/serene/backend/internal/auth"
	"github.com/zhouzirui/serene/backend/internal/model/wellness"
	"github.com/zhouzirui/serene/backend/internal/store"
	"github.com/zhouzirui/serene/backend/pkg/utils"
)

const defaultEntriesLimit = 10

// Handler 日记的HTTP处理器
type Handler struct {
	journals store.Journals
}

// New 创建日记处理器
func New(journals store.Journals) *Handler {
	return &Handler{journals: journals}
}

// RegisterRoutes 注册日记相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/journal", h.handleCreateJournal)
	r.Get("/journals", h.handleListJournals)
	r.Get("/journal/entries", h.handleJournalEntries)
}

// handleCreateJournal 新建日记
func (h *Handler) handleCreateJournal(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserID(r.Context())

	var payload struct {
		Title       *string `json:"title"`
		Content     *string `json:"content"`
		ShareWithAI bool    `json:"share_with_ai"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondServiceError(w, err, "")
		return
	}
	if payload.Title == nil || payload.Content == nil || strings.TrimSpace(*payload.Content) == "" {
		utils.RespondError(w, http.StatusBadRequest, "Incomplete journal data provided")
		return
	}

	entry, err := h.journals.AddJournal(r.Context(), uid, wellness.JournalEntry{
		Title:       strings.TrimSpace(*payload.Title),
		Content:     *payload.Content,
		ShareWithAI: payload.ShareWithAI,
	})
	if err != nil {
		utils.RespondServiceError(w, err, "")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"success": true, "id": entry.ID})
}

// handleListJournals 返回全部日记，最新在前
func (h *Handler) handleListJournals(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserID(r.Context())

	entries, err := h.journals.ListJournals(r.Context(), uid, 0)
	if err != nil {
		utils.RespondServiceError(w, err, "")
		return
	}
	utils.RespondJSON(w, http.StatusOK, entries)
}

// handleJournalEntries 返回最新的 limit 篇日记
func (h *Handler) handleJournalEntries(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserID(r.Context())

	limit, err := utils.QueryInt(r, "limit", defaultEntriesLimit)
	if err != nil {
		utils.RespondServiceError(w, err, "")
		return
	}

	entries, err := h.journals.ListJournals(r.Context(), uid, limit)
	if err != nil {
		utils.RespondServiceError(w, err, "")
		return
	}
	utils.RespondJSON(w, http.StatusOK, entries)
}
