package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/d60-Lab/microblog/internal/api/handler"
	"github.com/d60-Lab/microblog/internal/auth"
	"github.com/d60-Lab/microblog/internal/indexer"
	"github.com/d60-Lab/microblog/internal/model"
	"github.com/d60-Lab/microblog/internal/repository"
	"github.com/d60-Lab/microblog/internal/search"
	"github.com/d60-Lab/microblog/internal/search/memsearch"
	"github.com/d60-Lab/microblog/internal/service"
	"github.com/d60-Lab/microblog/internal/store"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Post{}, &model.Follow{}))

	client := search.NewClient(memsearch.New(), nil)
	reg := search.NewRegistry().MustRegister(&model.Post{}, "body")
	s := store.New(db, indexer.New(client, reg, nil))

	userRepo := repository.NewUserRepository(s)
	postRepo := repository.NewPostRepository(s)
	users := service.NewUserService(userRepo)
	tokens := auth.NewTokenService("test-secret", time.Hour, 10*time.Minute)
	h := handler.New(
		users,
		service.NewPostService(postRepo, 10),
		service.NewRelationshipService(repository.NewFollowRepository(s), userRepo),
		service.NewFeedService(postRepo, nil, 10, nil),
		service.NewSearchService(client, postRepo, 10),
		tokens,
		nil,
	)
	return &testServer{t: t, router: NewRouter(RouterConfig{}, h, tokens, users, nil)}
}

func (s *testServer) do(method, path, token string, body any) (int, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

// signup registers and logs in, returning the user id and access token.
func (s *testServer) signup(name string) (uint, string) {
	s.t.Helper()
	code, _ := s.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{"username": name, "email": name + "@example.com", "password": "secret1"})
	require.Equal(s.t, http.StatusCreated, code)
	code, env := s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": name, "password": "secret1"})
	require.Equal(s.t, http.StatusOK, code)
	var out struct {
		Token string     `json:"token"`
		User  model.User `json:"user"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &out))
	return out.User.ID, out.Token
}

func decodePage(t *testing.T, env envelope) service.Page[model.Post] {
	t.Helper()
	var p service.Page[model.Post]
	require.NoError(t, json.Unmarshal(env.Data, &p))
	return p
}

func TestFeedFlow(t *testing.T) {
	s := newTestServer(t)
	_, john := s.signup("john")
	susanID, susan := s.signup("susan")

	code, _ := s.do(http.MethodPost, "/api/v1/posts", susan, gin.H{"body": "hello from susan"})
	require.Equal(t, http.StatusCreated, code)
	code, _ = s.do(http.MethodPost, "/api/v1/posts", john, gin.H{"body": "hello from john"})
	require.Equal(t, http.StatusCreated, code)

	code, env := s.do(http.MethodGet, "/api/v1/feed", john, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decodePage(t, env).Items, 1)

	code, _ = s.do(http.MethodPost, "/api/v1/relations/follow", john, gin.H{"user_id": susanID})
	require.Equal(t, http.StatusOK, code)
	code, env = s.do(http.MethodGet, "/api/v1/feed", john, nil)
	require.Equal(t, http.StatusOK, code)
	page := decodePage(t, env)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "hello from john", page.Items[0].Body)

	code, env = s.do(http.MethodGet, fmt.Sprintf("/api/v1/relations/%d/followers", susanID), "", nil)
	require.Equal(t, http.StatusOK, code)
	var followers service.Page[model.User]
	require.NoError(t, json.Unmarshal(env.Data, &followers))
	require.Len(t, followers.Items, 1)
	assert.Equal(t, "john", followers.Items[0].Username)
	assert.Contains(t, string(env.Data), `"username":"john"`)
	assert.NotContains(t, string(env.Data), "password")
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	johnID, john := s.signup("john")
	_, susan := s.signup("susan")

	code, _ := s.do(http.MethodGet, "/api/v1/feed", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{"username": "john", "email": "x@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = s.do(http.MethodPost, "/api/v1/relations/follow", john, gin.H{"user_id": johnID})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(http.MethodPost, "/api/v1/relations/follow", john, gin.H{"user_id": 999})
	assert.Equal(t, http.StatusNotFound, code)

	code, env := s.do(http.MethodPost, "/api/v1/posts", john, gin.H{"body": "mine"})
	require.Equal(t, http.StatusCreated, code)
	var p model.Post
	require.NoError(t, json.Unmarshal(env.Data, &p))

	code, _ = s.do(http.MethodDelete, fmt.Sprintf("/api/v1/posts/%d", p.ID), susan, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = s.do(http.MethodPut, fmt.Sprintf("/api/v1/posts/%d", p.ID), john, gin.H{"body": "edited"})
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(http.MethodDelete, fmt.Sprintf("/api/v1/posts/%d", p.ID), john, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(http.MethodDelete, fmt.Sprintf("/api/v1/posts/%d", p.ID), john, nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = s.do(http.MethodDelete, "/api/v1/posts/abc", john, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(http.MethodGet, "/api/v1/users/nobody", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSearchAndProfile(t *testing.T) {
	s := newTestServer(t)
	_, john := s.signup("john")
	for _, b := range []string{"the galaxy far away", "a quiet morning"} {
		code, _ := s.do(http.MethodPost, "/api/v1/posts", john, gin.H{"body": b})
		require.Equal(t, http.StatusCreated, code)
	}

	code, env := s.do(http.MethodGet, "/api/v1/search?q=galaxy", "", nil)
	require.Equal(t, http.StatusOK, code)
	page := decodePage(t, env)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "the galaxy far away", page.Items[0].Body)

	code, _ = s.do(http.MethodPut, "/api/v1/users/me", john, gin.H{"username": "johnny", "about_me": "stargazer"})
	require.Equal(t, http.StatusOK, code)
	code, env = s.do(http.MethodGet, "/api/v1/users/johnny", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"about_me":"stargazer"`)
	assert.Contains(t, string(env.Data), "gravatar.com/avatar/")

	code, env = s.do(http.MethodGet, "/api/v1/users/johnny/posts?page=1&page_size=1", "", nil)
	require.Equal(t, http.StatusOK, code)
	page = decodePage(t, env)
	assert.Len(t, page.Items, 1)
	assert.True(t, page.HasNext)
}

func TestPasswordReset(t *testing.T) {
	s := newTestServer(t)
	s.signup("john")

	code, env := s.do(http.MethodPost, "/api/v1/auth/reset-token", "", gin.H{"email": "john@example.com"})
	require.Equal(t, http.StatusOK, code)
	var out struct {
		ResetToken string `json:"reset_token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.NotEmpty(t, out.ResetToken)

	code, _ = s.do(http.MethodPost, "/api/v1/auth/reset", "", gin.H{"token": out.ResetToken, "password": "brandnew"})
	require.Equal(t, http.StatusOK, code)
	code, _ = s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "john", "password": "brandnew"})
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(http.MethodPost, "/api/v1/auth/reset", "", gin.H{"token": "bogus", "password": "brandnew"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env = s.do(http.MethodPost, "/api/v1/auth/reset-token", "", gin.H{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusOK, code)
	assert.NotContains(t, string(env.Data), "reset_token")
}
