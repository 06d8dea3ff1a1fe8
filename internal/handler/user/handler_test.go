package user

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/serene/backend/internal/auth"
	"github.com/zhouzirui/serene/backend/internal/config"
	"github.com/zhouzirui/serene/backend/internal/handler/handlertest"
	"github.com/zhouzirui/serene/backend/internal/model"
	"github.com/zhouzirui/serene/backend/internal/model/wellness"
	"github.com/zhouzirui/serene/backend/internal/service/stats"
	"github.com/zhouzirui/serene/backend/internal/service/upload"
	"github.com/zhouzirui/serene/backend/internal/store"
	"github.com/zhouzirui/serene/backend/internal/store/memory"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fakeDirectory struct {
	mu    sync.Mutex
	users map[string]auth.Identity
	// updateErr fails the next UpdateUser call.
	updateErr error
}

func (d *fakeDirectory) GetUser(_ context.Context, uid string) (auth.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	identity, ok := d.users[uid]
	if !ok {
		return auth.Identity{}, model.ErrNotFound
	}
	return identity, nil
}

func (d *fakeDirectory) UpdateUser(_ context.Context, uid string, update auth.IdentityUpdate) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.updateErr; err != nil {
		d.updateErr = nil
		return err
	}
	identity, ok := d.users[uid]
	if !ok {
		return model.ErrNotFound
	}
	if update.DisplayName != nil {
		identity.DisplayName = *update.DisplayName
	}
	if update.PhotoURL != nil {
		identity.PhotoURL = *update.PhotoURL
	}
	d.users[uid] = identity
	return nil
}

type testEnv struct {
	*handlertest.Env
	store     *memory.Store
	directory *fakeDirectory
	uploadDir string
}

// failingProfiles rejects profile writes.
type failingProfiles struct {
	*memory.Store
}

func (failingProfiles) SaveProfile(context.Context, string, wellness.ProfilePatch) (wellness.ProfileDoc, error) {
	return wellness.ProfileDoc{}, errors.New("profile store unavailable")
}

func setupRouter(t *testing.T, maxBytes int64) testEnv {
	t.Helper()
	return setupRouterWith(t, maxBytes, nil)
}

// setupRouterWith lets a test swap the profile store the handler writes to.
func setupRouterWith(t *testing.T, maxBytes int64, wrap func(*memory.Store) store.Profiles) testEnv {
	t.Helper()
	st := memory.New()
	var profiles store.Profiles = st
	if wrap != nil {
		profiles = wrap(st)
	}
	directory := &fakeDirectory{users: map[string]auth.Identity{
		"u1": {UID: "u1", Email: "u1@example.com", DisplayName: "Ada", EmailVerified: true, CreatedAt: 1700000000000},
	}}
	dir := t.TempDir()
	uploads := upload.NewService(config.UploadConfig{Dir: dir, MaxBytes: maxBytes}, "http://api.test")
	handler := New(directory, profiles, stats.NewService(st), uploads)

	env := handlertest.New(func(r chi.Router) { handler.RegisterRoutes(r) })
	return testEnv{Env: env, store: st, directory: directory, uploadDir: dir}
}

func TestGetProfileMergesIdentity(t *testing.T) {
	env := setupRouter(t, 1<<20)

	resp := env.Do(t, http.MethodGet, "/user/profile", "u1", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	profile := handlertest.Decode[wellness.Profile](t, resp)
	assert.Equal(t, "u1", profile.UID)
	assert.Equal(t, "u1@example.com", profile.Email)
	assert.Equal(t, "Ada", profile.DisplayName)
	assert.True(t, profile.EmailVerified)
	assert.Equal(t, int64(1700000000000), profile.CreatedAt)
	assert.Equal(t, "", profile.Bio)
	assert.NotNil(t, profile.Preferences)

	raw := handlertest.Decode[map[string]any](t, resp)
	assert.Equal(t, map[string]any{}, raw["preferences"])
}

func TestGetProfileUnknownUser(t *testing.T) {
	env := setupRouter(t, 1<<20)

	resp := env.Do(t, http.MethodGet, "/user/profile", "ghost", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "User not found", handlertest.ErrorOf(t, resp))
}

func TestUpdateProfile(t *testing.T) {
	env := setupRouter(t, 1<<20)

	resp := env.Do(t, http.MethodPut, "/user/profile", "u1", map[string]any{
		"displayName": "Ada L.",
		"bio":         "Learning to breathe",
		"preferences": map[string]any{"theme": "dark"},
		"email":       "ignored@example.com",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	profile := handlertest.Decode[wellness.Profile](t, resp)
	assert.Equal(t, "Ada L.", profile.DisplayName)
	assert.Equal(t, "Learning to breathe", profile.Bio)
	assert.Equal(t, "dark", profile.Preferences["theme"])
	assert.Equal(t, "u1@example.com", profile.Email)

	identity, err := env.directory.GetUser(t.Context(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", identity.DisplayName)

	doc, err := env.store.GetProfile(t.Context(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Learning to breathe", doc.Bio)
}

func TestUpdateProfileBioKeepsIdentityName(t *testing.T) {
	env := setupRouter(t, 1<<20)

	resp := env.Do(t, http.MethodPut, "/user/profile", "u1", map[string]any{"bio": "hi"})
	require.Equal(t, http.StatusOK, resp.Code)

	identity, err := env.directory.GetUser(t.Context(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", identity.DisplayName)
}

func TestUpdateProfileValidation(t *testing.T) {
	env := setupRouter(t, 1<<20)

	tests := []struct {
		name string
		body any
		want string
	}{
		{"empty body", nil, "No data provided"},
		{"no editable field", map[string]any{"email": "x@example.com"}, "No data provided"},
		{"bio number", map[string]any{"bio": 1}, "bio must be a string"},
		{"preferences list", map[string]any{"preferences": []string{"a"}}, "preferences must be an object"},
		{"preferences null", `{"preferences": null}`, "preferences must be an object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.Do(t, http.MethodPut, "/user/profile", "u1", tt.body)
			require.Equal(t, http.StatusBadRequest, resp.Code)
			assert.Equal(t, tt.want, handlertest.ErrorOf(t, resp))
		})
	}
}

func TestStats(t *testing.T) {
	env := setupRouter(t, 1<<20)
	ctx := t.Context()

	_, err := env.store.AddMood(ctx, "u1", wellness.MoodEntry{Mood: 4, Note: "a"})
	require.NoError(t, err)
	_, err = env.store.AddMood(ctx, "u1", wellness.MoodEntry{Mood: 8, Note: "b"})
	require.NoError(t, err)
	goal, err := env.store.AddGoal(ctx, "u1", wellness.Goal{Title: "g", TargetDate: "2025-07-01"})
	require.NoError(t, err)
	completed := true
	_, err = env.store.UpdateGoal(ctx, "u1", goal.ID, wellness.GoalPatch{Completed: &completed})
	require.NoError(t, err)
	_, err = env.store.AddJournal(ctx, "u1", wellness.JournalEntry{Title: "t", Content: "c"})
	require.NoError(t, err)

	resp := env.Do(t, http.MethodGet, "/user/stats", "u1", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	got := handlertest.Decode[wellness.Stats](t, resp)
	assert.Equal(t, 2, got.MoodCount)
	assert.Equal(t, 1, got.GoalCount)
	assert.Equal(t, 1, got.CompletedGoalCount)
	assert.Equal(t, 1, got.JournalCount)
	assert.Equal(t, 0, got.ConversationCount)
	require.NotNil(t, got.AverageMood)
	assert.InDelta(t, 6.0, *got.AverageMood, 1e-9)

	resp = env.Do(t, http.MethodGet, "/user/stats", "u2", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Nil(t, handlertest.Decode[map[string]any](t, resp)["averageMood"])
}

func imageRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("note", "no file"))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/user/profile/image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadProfileImage(t *testing.T) {
	env := setupRouter(t, 1<<20)

	content := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 64)...)
	resp := env.Send(t, imageRequest(t, "image", "me.png", content), "u1")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	body := handlertest.Decode[map[string]string](t, resp)
	assert.Equal(t, "Profile image uploaded successfully", body["message"])
	imageURL := body["imageUrl"]
	require.True(t, strings.HasPrefix(imageURL, "http://api.test/uploads/profile_images/u1/"), imageURL)
	assert.True(t, strings.HasSuffix(imageURL, "_me.png"), imageURL)

	rel := strings.TrimPrefix(imageURL, "http://api.test/uploads/")
	stored, err := os.ReadFile(filepath.Join(env.uploadDir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	assert.Equal(t, content, stored)

	identity, err := env.directory.GetUser(t.Context(), "u1")
	require.NoError(t, err)
	assert.Equal(t, imageURL, identity.PhotoURL)

	doc, err := env.store.GetProfile(t.Context(), "u1")
	require.NoError(t, err)
	assert.Equal(t, imageURL, doc.PhotoURL)
}

func TestUploadProfileImageRejects(t *testing.T) {
	env := setupRouter(t, 1024)

	resp := env.Send(t, imageRequest(t, "", "", nil), "u1")
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "No image provided", handlertest.ErrorOf(t, resp))

	resp = env.Send(t, imageRequest(t, "image", "notes.txt", []byte("plain text, not an image")), "u1")
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "File must be an image", handlertest.ErrorOf(t, resp))

	big := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 4096)...)
	resp = env.Send(t, imageRequest(t, "image", "big.png", big), "u1")
	require.Equal(t, http.StatusBadRequest, resp.Code)

	doc, err := env.store.GetProfile(t.Context(), "u1")
	require.NoError(t, err)
	assert.Empty(t, doc.PhotoURL)
}

// storedImages lists files written under the user's avatar directory.
func storedImages(t *testing.T, env testEnv, uid string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(env.uploadDir, "profile_images", uid))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestUploadProfileImageIdentityFailureRemovesFile(t *testing.T) {
	env := setupRouter(t, 1<<20)
	env.directory.updateErr = errors.New("identity provider unavailable")

	resp := env.Send(t, imageRequest(t, "image", "me.png", pngHeader), "u1")
	require.Equal(t, http.StatusInternalServerError, resp.Code)

	assert.Empty(t, storedImages(t, env, "u1"))
	identity, err := env.directory.GetUser(t.Context(), "u1")
	require.NoError(t, err)
	assert.Empty(t, identity.PhotoURL)
}

func TestUploadProfileImageProfileFailureRestoresIdentity(t *testing.T) {
	env := setupRouterWith(t, 1<<20, func(st *memory.Store) store.Profiles { return failingProfiles{st} })
	env.directory.users["u1"] = auth.Identity{UID: "u1", Email: "u1@example.com", PhotoURL: "http://cdn.test/old.png"}

	resp := env.Send(t, imageRequest(t, "image", "me.png", pngHeader), "u1")
	require.Equal(t, http.StatusInternalServerError, resp.Code)

	assert.Empty(t, storedImages(t, env, "u1"))
	identity, err := env.directory.GetUser(t.Context(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.test/old.png", identity.PhotoURL)
}

func TestUploadProfileImageUnknownUserStoresNothing(t *testing.T) {
	env := setupRouter(t, 1<<20)

	resp := env.Send(t, imageRequest(t, "image", "me.png", pngHeader), "ghost")
	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "User not found", handlertest.ErrorOf(t, resp))
	assert.Empty(t, storedImages(t, env, "ghost"))
}
