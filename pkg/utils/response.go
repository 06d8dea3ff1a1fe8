package utils

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/serene/backend/internal/model"
)

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}

// RespondServiceError 按错误类型映射状态码：校验 400，不存在 404，鉴权 401，其余 500 并返回错误原因。
func RespondServiceError(w http.ResponseWriter, err error, notFound string) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		RespondError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, model.ErrValidation):
		RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrNotFound):
		RespondError(w, http.StatusNotFound, notFound)
	case errors.Is(err, model.ErrUnauthorized):
		RespondError(w, http.StatusUnauthorized, "Unauthorized")
	default:
		log.Error().Stack().Err(err).Msg("request failed")
		RespondError(w, http.StatusInternalServerError, err.Error())
	}
}

// DecodeJSON 解析请求体，空或非法 JSON 返回校验错误
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return model.Invalid("No data provided")
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return model.Invalid("No data provided")
		}
		return model.Invalid("Invalid JSON body")
	}
	return nil
}

// QueryInt 读取正整数查询参数，缺省时返回 def
func QueryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, model.Invalid("%s must be a positive integer", key)
	}
	return n, nil
}
