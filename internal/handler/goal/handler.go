package goal

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/serene/backend/internal/auth"
	"github.com/zhouzirui/serene/backend/internal/model"
	"github.com/zhouzirui/serene/backend/internal/model/wellness"
	"github.com/zhouzirui/serene/backend/internal/store"
	"github.com/zhouzirui/serene/backend/pkg/utils"
)

const goalNotFound = "Goal not found"

// Handler 目标管理的HTTP处理器
type Handler struct {
	goals store.Goals
}

// New 创建目标处理器
func New(goals store.Goals) *Handler {
	return &Handler{goals: goals}
}

// RegisterRoutes 注册目标相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/goals", h.handleCreateGoal)
	r.Get("/goals", h.handleListGoals)
	r.Put("/goal/{goalID}", h.handleUpdateGoal)
}

// handleCreateGoal 新建目标，target_date 也可用 due_date 传入
func (h *Handler) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserID(r.Context())

	var payload struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Category    string `json:"category"`
		TargetDate  string `json:"target_date"`
		DueDate     string `json:"due_date"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondServiceError(w, err, "")
		return
	}

	title := strings.TrimSpace(payload.Title)
	rawDate := payload.TargetDate
	if strings.TrimSpace(rawDate) == "" {
		rawDate = payload.DueDate
	}
	if title == "" || strings.TrimSpace(rawDate) == "" {
		utils.RespondError(w, http.StatusBadRequest, "Incomplete goal data provided")
		return
	}

	date, err := wellness.NormalizeDate(rawDate)
	if err != nil {
		utils.RespondServiceError(w, err, "")
		return
	}
	category := strings.TrimSpace(payload.Category)
	if category == "" {
		category = wellness.DefaultGoalCategory
	}

	created, err := h.goals.AddGoal(r.Context(), uid, wellness.Goal{
		Title:       title,
		Description: payload.Description,
		Category:    category,
		TargetDate:  date,
	})
	if err != nil {
		utils.RespondServiceError(w, err, "")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"success": true, "id": created.ID})
}

// handleListGoals 按目标日期升序返回
func (h *Handler) handleListGoals(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserID(r.Context())

	goals, err := h.goals.ListGoals(r.Context(), uid)
	if err != nil {
		utils.RespondServiceError(w, err, "")
		return
	}
	utils.RespondJSON(w, http.StatusOK, goals)
}

// handleUpdateGoal 部分更新目标，任何字段校验失败时不做修改
func (h *Handler) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserID(r.Context())

	var fields map[string]json.RawMessage
	if err := utils.DecodeJSON(r, &fields); err != nil {
		utils.RespondServiceError(w, err, "")
		return
	}
	if len(fields) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "No data provided")
		return
	}

	patch, err := parsePatch(fields)
	if err != nil {
		utils.RespondServiceError(w, err, "")
		return
	}

	if _, err := h.goals.UpdateGoal(r.Context(), uid, chi.URLParam(r, "goalID"), patch); err != nil {
		utils.RespondServiceError(w, err, goalNotFound)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// parsePatch 严格校验字段类型：文本字段必须是字符串，completed 必须是布尔值
func parsePatch(fields map[string]json.RawMessage) (wellness.GoalPatch, error) {
	var patch wellness.GoalPatch

	for _, f := range []struct {
		key string
		dst **string
	}{
		{"title", &patch.Title},
		{"description", &patch.Description},
		{"category", &patch.Category},
	} {
		raw, ok := fields[f.key]
		if !ok {
			continue
		}
		var s string
		if isNull(raw) || json.Unmarshal(raw, &s) != nil {
			return wellness.GoalPatch{}, model.Invalid("%s must be a string", f.key)
		}
		*f.dst = &s
	}

	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return wellness.GoalPatch{}, model.Invalid("title must not be empty")
	}

	dateKey := "target_date"
	raw, ok := fields[dateKey]
	if !ok {
		dateKey = "due_date"
		raw, ok = fields[dateKey]
	}
	if ok {
		var s string
		if isNull(raw) || json.Unmarshal(raw, &s) != nil {
			return wellness.GoalPatch{}, model.Invalid("%s must be a string", dateKey)
		}
		date, err := wellness.NormalizeDate(s)
		if err != nil {
			return wellness.GoalPatch{}, err
		}
		patch.TargetDate = &date
	}

	if raw, ok := fields["completed"]; ok {
		var completed bool
		if isNull(raw) || json.Unmarshal(raw, &completed) != nil {
			return wellness.GoalPatch{}, model.Invalid("completed must be a boolean")
		}
		patch.Completed = &completed
	}

	return patch, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
