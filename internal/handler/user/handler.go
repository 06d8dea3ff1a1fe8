package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/serene/backend/internal/auth"
	"github.com/zhouzirui/serene/backend/internal/model"
	"github.com/zhouzirui/serene/backend/internal/model/wellness"
	"github.com/zhouzirui/serene/backend/internal/store"
	"github.com/zhouzirui/serene/backend/pkg/utils"
)

const multipartOverhead = 1 << 20

// StatsService 汇总用户活动数据
type StatsService interface {
	Summary(ctx context.Context, uid string) (wellness.Stats, error)
}

// ImageStore 保存头像并返回可访问的 URL
type ImageStore interface {
	SaveProfileImage(uid, filename string, r io.Reader) (string, error)
	RemoveProfileImage(imageURL string) error
	MaxBytes() int64
}

// Handler 用户资料的HTTP处理器
type Handler struct {
	directory auth.Directory
	profiles  store.Profiles
	stats     StatsService
	images    ImageStore
}

// New 创建用户处理器
func New(directory auth.Directory, profiles store.Profiles, stats StatsService, images ImageStore) *Handler {
	return &Handler{
		directory: directory,
		profiles:  profiles,
		stats:     stats,
		images:    images,
	}
}

// RegisterRoutes 注册用户相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/user/profile", h.handleGetProfile)
	r.Put("/user/profile", h.handleUpdateProfile)
	r.Get("/user/stats", h.handleStats)
	r.Post("/user/profile/image", h.handleUploadImage)
}

// loadProfile 合并身份服务记录与存储中的资料，存储中的值仅在身份记录为空时生效
func (h *Handler) loadProfile(ctx context.Context, uid string) (wellness.Profile, error) {
	identity, err := h.directory.GetUser(ctx, uid)
	if err != nil {
		return wellness.Profile{}, fmt.Errorf("get identity: %w", err)
	}
	doc, err := h.profiles.GetProfile(ctx, uid)
	if err != nil {
		return wellness.Profile{}, fmt.Errorf("get profile: %w", err)
	}

	profile := wellness.Profile{
		UID:           uid,
		Email:         identity.Email,
		DisplayName:   identity.DisplayName,
		PhotoURL:      identity.PhotoURL,
		EmailVerified: identity.EmailVerified,
		CreatedAt:     identity.CreatedAt,
		Bio:           doc.Bio,
		Preferences:   doc.Preferences,
	}
	if profile.DisplayName == "" {
		profile.DisplayName = doc.DisplayName
	}
	if profile.PhotoURL == "" {
		profile.PhotoURL = doc.PhotoURL
	}
	if profile.Preferences == nil {
		profile.Preferences = map[string]any{}
	}
	return profile, nil
}

// handleGetProfile 返回用户资料
func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserID(r.Context())

	profile, err := h.loadProfile(r.Context(), uid)
	if err != nil {
		utils.RespondServiceError(w, err, "User not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, profile)
}

// handleUpdateProfile 更新 displayName、bio、preferences，其余字段忽略
func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserID(r.Context())

	var fields map[string]json.RawMessage
	if err := utils.DecodeJSON(r, &fields); err != nil {
		utils.RespondServiceError(w, err, "")
		return
	}

	patch, err := parseProfilePatch(fields)
	if err != nil {
		utils.RespondServiceError(w, err, "")
		return
	}
	if patch.Empty() {
		utils.RespondError(w, http.StatusBadRequest, "No data provided")
		return
	}

	if patch.DisplayName != nil {
		if err := h.directory.UpdateUser(r.Context(), uid, auth.IdentityUpdate{DisplayName: patch.DisplayName}); err != nil {
			utils.RespondServiceError(w, fmt.Errorf("update identity: %w", err), "User not found")
			return
		}
	}
	if _, err := h.profiles.SaveProfile(r.Context(), uid, patch); err != nil {
		utils.RespondServiceError(w, err, "")
		return
	}

	profile, err := h.loadProfile(r.Context(), uid)
	if err != nil {
		utils.RespondServiceError(w, err, "User not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, profile)
}

func parseProfilePatch(fields map[string]json.RawMessage) (wellness.ProfilePatch, error) {
	var patch wellness.ProfilePatch

	for _, f := range []struct {
		key string
		dst **string
	}{
		{"displayName", &patch.DisplayName},
		{"bio", &patch.Bio},
	} {
		raw, ok := fields[f.key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return wellness.ProfilePatch{}, model.Invalid("%s must be a string", f.key)
		}
		*f.dst = &s
	}

	if raw, ok := fields["preferences"]; ok {
		var prefs map[string]any
		if err := json.Unmarshal(raw, &prefs); err != nil || prefs == nil {
			return wellness.ProfilePatch{}, model.Invalid("preferences must be an object")
		}
		patch.Preferences = prefs
	}
	return patch, nil
}

// handleStats 返回用户活动统计
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserID(r.Context())

	stats, err := h.stats.Summary(r.Context(), uid)
	if err != nil {
		utils.RespondServiceError(w, err, "")
		return
	}
	utils.RespondJSON(w, http.StatusOK, stats)
}

// handleUploadImage 上传头像，并同步到资料与身份服务
func (h *Handler) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserID(r.Context())
	maxBytes := h.images.MaxBytes()

	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			utils.RespondError(w, http.StatusBadRequest, "Image is too large")
			return
		}
		utils.RespondError(w, http.StatusBadRequest, "No image provided")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("image")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "No image provided")
		return
	}
	defer file.Close()

	current, err := h.directory.GetUser(r.Context(), uid)
	if err != nil {
		utils.RespondServiceError(w, fmt.Errorf("load identity: %w", err), "User not found")
		return
	}

	imageURL, err := h.images.SaveProfileImage(uid, header.Filename, file)
	if err != nil {
		utils.RespondServiceError(w, err, "")
		return
	}

	if err := h.directory.UpdateUser(r.Context(), uid, auth.IdentityUpdate{PhotoURL: &imageURL}); err != nil {
		h.discardImage(uid, imageURL)
		utils.RespondServiceError(w, fmt.Errorf("update identity: %w", err), "User not found")
		return
	}
	if _, err := h.profiles.SaveProfile(r.Context(), uid, wellness.ProfilePatch{PhotoURL: &imageURL}); err != nil {
		// The identity already points at the new file; only drop it once that is undone.
		previous := current.PhotoURL
		if rbErr := h.directory.UpdateUser(r.Context(), uid, auth.IdentityUpdate{PhotoURL: &previous}); rbErr != nil {
			log.Error().Err(rbErr).Str("user_id", uid).Msg("failed to restore identity photo")
		} else {
			h.discardImage(uid, imageURL)
		}
		utils.RespondServiceError(w, err, "")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"message":  "Profile image uploaded successfully",
		"imageUrl": imageURL,
	})
}

func (h *Handler) discardImage(uid, imageURL string) {
	if err := h.images.RemoveProfileImage(imageURL); err != nil {
		log.Warn().Err(err).Str("user_id", uid).Str("image_url", imageURL).Msg("failed to remove orphaned profile image")
	}
}
