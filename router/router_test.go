package router

import (
	"PanShare/internal/handler"
	"PanShare/internal/repo"
	"PanShare/internal/service"
	"PanShare/internal/storage"
	"PanShare/model"
	"PanShare/utils"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	utils.PasswordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type apiEnv struct {
	t      *testing.T
	engine *gin.Engine
	store  *repo.Store
	tokens *utils.TokenIssuer
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := repo.OpenSQLite(fmt.Sprintf("file:router_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, repo.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	store := repo.NewStore(db)
	svc := service.New(service.Deps{
		Shares:      store,
		Files:       store,
		Permissions: store,
		Users:       store,
		Audits:      store,
		Stats:       store,
		Blobs:       storage.NewMemoryStore(),
		Bucket:      "pan-test",
		Audit:       service.NewDBAuditLog(store),
		BaseURL:     "http://pan.test",
	})
	tokens := utils.NewTokenIssuer("router-test-secret", time.Hour)
	h := handler.New(svc, tokens, store)
	return &apiEnv{t: t, engine: InitRouter(h, tokens, nil, []string{"https://app.pan.test"}), store: store, tokens: tokens}
}

func (e *apiEnv) createUser(name, role string) *model.User {
	e.t.Helper()
	hash, err := utils.HashPassword("password1")
	require.NoError(e.t, err)
	u := &model.User{UserName: name, Password: hash, Email: name + "@pan.test", Role: role, IsActive: true}
	require.NoError(e.t, e.store.CreateUser(context.Background(), u))
	return u
}

func (e *apiEnv) bearer(u *model.User) string {
	e.t.Helper()
	tok, err := e.tokens.GenerateToken(u.ID, u.UserName, u.Role)
	require.NoError(e.t, err)
	return "Bearer " + tok
}

func (e *apiEnv) do(method, path, auth string, body any, header map[string]string) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func (e *apiEnv) upload(auth, name, content string) uint64 {
	e.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(e.t, err)
	_, err = part.Write([]byte(content))
	require.NoError(e.t, err)
	require.NoError(e.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/file/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", auth)
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())

	var f model.UserFile
	decode(e.t, w, &f)
	return f.ID
}

func (e *apiEnv) createShare(auth string, body map[string]any) (id uint64, token string) {
	e.t.Helper()
	w := e.do(http.MethodPost, "/api/share", auth, body, nil)
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
	var res struct {
		ID    uint64 `json:"id"`
		Token string `json:"token"`
		URL   string `json:"url"`
	}
	decode(e.t, w, &res)
	require.Equal(e.t, "http://pan.test/s/"+res.Token, res.URL)
	return res.ID, res.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func msgOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode(t, w, nil).Msg
}

func TestHealthz(t *testing.T) {
	e := newAPIEnv(t)
	w := e.do(http.MethodGet, "/healthz", "", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogin(t *testing.T) {
	e := newAPIEnv(t)
	e.createUser("alice", model.RoleUser)

	w := e.do(http.MethodPost, "/api/login", "", map[string]string{"username": "alice", "password": "password1"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res struct {
		Token string     `json:"token"`
		User  model.User `json:"user"`
	}
	decode(t, w, &res)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, "alice", res.User.UserName)
	assert.NotContains(t, w.Body.String(), "pass_word")

	me := e.do(http.MethodGet, "/api/user/me", "Bearer "+res.Token, nil, nil)
	assert.Equal(t, http.StatusOK, me.Code)

	bad := e.do(http.MethodPost, "/api/login", "", map[string]string{"username": "alice", "password": "nope-nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, bad.Code)

	anon := e.do(http.MethodGet, "/api/user/me", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, anon.Code)
}

func TestRegisterPasswordMismatch(t *testing.T) {
	e := newAPIEnv(t)
	w := e.do(http.MethodPost, "/api/register", "", map[string]string{
		"username":        "bob",
		"first-password":  "password1",
		"second-password": "password2",
		"email":           "bob@pan.test",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPublicDownloadLimit(t *testing.T) {
	e := newAPIEnv(t)
	owner := e.bearer(e.createUser("owner", model.RoleUser))
	fileID := e.upload(owner, "notes.txt", "hello")
	_, token := e.createShare(owner, map[string]any{"file_id": fileID, "download_limit": 1})

	info := e.do(http.MethodGet, "/s/"+token, "", nil, nil)
	require.Equal(t, http.StatusOK, info.Code, info.Body.String())
	var pub struct {
		FileName           string `json:"file_name"`
		RemainingDownloads *int64 `json:"remaining_downloads"`
	}
	decode(t, info, &pub)
	assert.Equal(t, "notes.txt", pub.FileName)
	require.NotNil(t, pub.RemainingDownloads)
	assert.EqualValues(t, 1, *pub.RemainingDownloads)

	first := e.do(http.MethodGet, "/s/"+token+"/download", "", nil, nil)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "hello", first.Body.String())
	assert.Contains(t, first.Header().Get("Content-Disposition"), "attachment")

	second := e.do(http.MethodGet, "/s/"+token+"/download", "", nil, nil)
	assert.Equal(t, http.StatusGone, second.Code)
	assert.Equal(t, "link is no longer valid", msgOf(t, second))

	unknown := e.do(http.MethodGet, "/s/not-a-token/download", "", nil, nil)
	assert.Equal(t, http.StatusNotFound, unknown.Code)
	assert.Equal(t, "share not found", msgOf(t, unknown))
}

func TestPublicSharePassword(t *testing.T) {
	e := newAPIEnv(t)
	owner := e.bearer(e.createUser("owner", model.RoleUser))
	fileID := e.upload(owner, "secret.txt", "classified")
	_, token := e.createShare(owner, map[string]any{"file_id": fileID, "password": "letmein"})

	missing := e.do(http.MethodGet, "/s/"+token+"/download", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, missing.Code)
	assert.Equal(t, service.ErrBadPassword.Error(), msgOf(t, missing))

	wrong := e.do(http.MethodGet, "/s/"+token+"/download", "", nil, map[string]string{"X-Share-Password": "guess"})
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)

	ok := e.do(http.MethodPost, "/s/"+token+"/download", "", map[string]string{"password": "letmein"}, nil)
	require.Equal(t, http.StatusOK, ok.Code, ok.Body.String())
	assert.Equal(t, "classified", ok.Body.String())
}

func TestPublicPreview(t *testing.T) {
	e := newAPIEnv(t)
	owner := e.bearer(e.createUser("owner", model.RoleUser))
	fileID := e.upload(owner, "a.txt", "abc")
	_, closed := e.createShare(owner, map[string]any{"file_id": fileID})
	_, open := e.createShare(owner, map[string]any{"file_id": fileID, "allow_preview": true})

	denied := e.do(http.MethodGet, "/s/"+closed+"/preview", "", nil, nil)
	assert.Equal(t, http.StatusForbidden, denied.Code)
	assert.Equal(t, "preview disabled", msgOf(t, denied))

	w := e.do(http.MethodGet, "/s/"+open+"/preview", "", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "inline")
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")

	pageID := e.upload(owner, "page.html", "<html><body><script>alert(1)</script></body></html>")
	_, page := e.createShare(owner, map[string]any{"file_id": pageID, "allow_preview": true})
	w = e.do(http.MethodGet, "/s/"+page+"/preview", "", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "sandbox", w.Header().Get("Content-Security-Policy"))
}

func TestCORSPreflight(t *testing.T) {
	e := newAPIEnv(t)
	ok := e.do(http.MethodOptions, "/api/login", "", nil, map[string]string{"Origin": "https://app.pan.test"})
	assert.Equal(t, http.StatusNoContent, ok.Code)
	assert.Equal(t, "https://app.pan.test", ok.Header().Get("Access-Control-Allow-Origin"))

	denied := e.do(http.MethodOptions, "/api/login", "", nil, map[string]string{"Origin": "https://other.test"})
	assert.Equal(t, http.StatusForbidden, denied.Code)
}

func TestUpdateShareRejectsProtectedFields(t *testing.T) {
	e := newAPIEnv(t)
	owner := e.bearer(e.createUser("owner", model.RoleUser))
	other := e.bearer(e.createUser("other", model.RoleUser))
	fileID := e.upload(owner, "a.txt", "abc")
	id, _ := e.createShare(owner, map[string]any{"file_id": fileID})
	path := fmt.Sprintf("/api/share/%d", id)

	w := e.do(http.MethodPatch, path, owner, map[string]any{"download_count": 0}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, msgOf(t, w), "download_count")

	w = e.do(http.MethodPatch, path, owner, map[string]any{"download_limit": 5, "allow_preview": true}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"allow_preview":true`)

	w = e.do(http.MethodPatch, path, other, map[string]any{"download_limit": 9}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodDelete, path, owner, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = e.do(http.MethodDelete, path, owner, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRecycledFileBreaksLink(t *testing.T) {
	e := newAPIEnv(t)
	owner := e.bearer(e.createUser("owner", model.RoleUser))
	fileID := e.upload(owner, "a.txt", "abc")
	_, token := e.createShare(owner, map[string]any{"file_id": fileID})

	w := e.do(http.MethodDelete, fmt.Sprintf("/api/file/%d", fileID), owner, nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	gone := e.do(http.MethodGet, "/s/"+token+"/download", "", nil, nil)
	assert.Equal(t, http.StatusNotFound, gone.Code)
	assert.Equal(t, "share not found", msgOf(t, gone))

	w = e.do(http.MethodPost, fmt.Sprintf("/api/file/%d/restore", fileID), owner, nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	back := e.do(http.MethodGet, "/s/"+token+"/download", "", nil, nil)
	assert.Equal(t, http.StatusOK, back.Code)
}

func TestAdminRoutes(t *testing.T) {
	e := newAPIEnv(t)
	user := e.bearer(e.createUser("plain", model.RoleUser))
	admin := e.bearer(e.createUser("root", model.RoleAdmin))

	w := e.do(http.MethodGet, "/api/admin/stats", user, nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodGet, "/api/admin/stats", admin, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(http.MethodGet, "/api/admin/shares/expired?limit=5", admin, nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var pending []map[string]any
	decode(t, w, &pending)
	assert.Empty(t, pending)
	w = e.do(http.MethodGet, "/api/admin/shares/expired", user, nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodPost, "/api/admin/shares/sweep", admin, nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var sweep struct {
		Swept int64 `json:"swept"`
	}
	decode(t, w, &sweep)
	assert.Zero(t, sweep.Swept)
}

func TestBadIDParam(t *testing.T) {
	e := newAPIEnv(t)
	owner := e.bearer(e.createUser("owner", model.RoleUser))
	w := e.do(http.MethodGet, "/api/share/abc", owner, nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
