package mood

import (
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/serene/backend/internal/handler/handlertest"
	"github.com/zhouzirui/serene/backend/internal/model/wellness"
	"github.com/zhouzirui/serene/backend/internal/store"
	"github.com/zhouzirui/serene/backend/internal/store/memory"
	"github.com/zhouzirui/serene/backend/internal/store/storetest"
)

func setupRouter(clock *storetest.Clock) (*handlertest.Env, *memory.Store) {
	st := memory.New(store.WithClock(clock.Now))
	env := handlertest.New(func(r chi.Router) { New(st).RegisterRoutes(r) })
	return env, st
}

func TestRecordMood(t *testing.T) {
	clock := storetest.NewClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	env, st := setupRouter(clock)

	resp := env.Do(t, http.MethodPost, "/mood", "u1", map[string]any{"mood": 7.5, "note": "calm day"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	body := handlertest.Decode[struct {
		Success bool   `json:"success"`
		ID      string `json:"id"`
	}](t, resp)
	assert.True(t, body.Success)
	assert.NotEmpty(t, body.ID)

	entries, err := st.RecentMoods(t.Context(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, body.ID, entries[0].ID)
	assert.Equal(t, 7.5, entries[0].Mood)
	assert.Equal(t, "calm day", entries[0].Note)
}

func TestRecordMoodValidation(t *testing.T) {
	env, _ := setupRouter(storetest.NewClock(time.Now()))

	tests := []struct {
		name string
		body any
		want string
	}{
		{"empty body", nil, "No data provided"},
		{"missing note", map[string]any{"mood": 3}, "Incomplete mood data provided"},
		{"missing mood", map[string]any{"note": "x"}, "Incomplete mood data provided"},
		{"null mood", `{"mood": null, "note": "x"}`, "Incomplete mood data provided"},
		{"string mood", map[string]any{"mood": "high", "note": "x"}, "mood must be a number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.Do(t, http.MethodPost, "/mood", "u1", tt.body)
			require.Equal(t, http.StatusBadRequest, resp.Code)
			assert.Equal(t, tt.want, handlertest.ErrorOf(t, resp))
		})
	}
}

func TestListMoodsWindow(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := storetest.NewClock(start)
	env, st := setupRouter(clock)

	for _, offset := range []int{-40, -10, 0} {
		clock.Set(start.AddDate(0, 0, offset))
		_, err := st.AddMood(t.Context(), "u1", wellness.MoodEntry{Mood: float64(offset + 50), Note: "n"})
		require.NoError(t, err)
	}
	clock.Set(start)

	resp := env.Do(t, http.MethodGet, "/moods", "u1", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	entries := handlertest.Decode[[]wellness.MoodEntry](t, resp)
	require.Len(t, entries, 2)
	assert.Equal(t, 40.0, entries[0].Mood)
	assert.Equal(t, 50.0, entries[1].Mood)

	resp = env.Do(t, http.MethodGet, "/moods?days=60", "u1", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, handlertest.Decode[[]wellness.MoodEntry](t, resp), 3)

	resp = env.Do(t, http.MethodGet, "/moods?days=abc", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestRecentMoods(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := storetest.NewClock(start)
	env, st := setupRouter(clock)

	for i := 1; i <= 12; i++ {
		clock.Advance(time.Minute)
		_, err := st.AddMood(t.Context(), "u1", wellness.MoodEntry{Mood: float64(i), Note: "n"})
		require.NoError(t, err)
	}

	resp := env.Do(t, http.MethodGet, "/mood/recent", "u1", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	entries := handlertest.Decode[[]wellness.MoodEntry](t, resp)
	require.Len(t, entries, 10)
	assert.Equal(t, 12.0, entries[0].Mood)
	assert.Equal(t, 3.0, entries[9].Mood)

	resp = env.Do(t, http.MethodGet, "/mood/recent?limit=2", "u1", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, handlertest.Decode[[]wellness.MoodEntry](t, resp), 2)

	resp = env.Do(t, http.MethodGet, "/mood/recent", "someone-else", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "[]\n", resp.Body.String())
}

func TestMoodRequiresToken(t *testing.T) {
	env, _ := setupRouter(storetest.NewClock(time.Now()))

	resp := env.Do(t, http.MethodGet, "/moods", "", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}
