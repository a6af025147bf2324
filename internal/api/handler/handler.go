package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/microblog/internal/api/middleware"
	"github.com/d60-Lab/microblog/internal/auth"
	"github.com/d60-Lab/microblog/internal/service"
	"github.com/d60-Lab/microblog/pkg/response"
)

// Handler 聚合所有 HTTP 处理函数依赖
type Handler struct {
	userService   service.UserService
	postService   service.PostService
	relService    service.RelationshipService
	feedService   service.FeedService
	searchService service.SearchService
	tokens        *auth.TokenService
	log           *zap.Logger
}

func New(
	users service.UserService,
	posts service.PostService,
	rels service.RelationshipService,
	feed service.FeedService,
	search service.SearchService,
	tokens *auth.TokenService,
	log *zap.Logger,
) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		userService:   users,
		postService:   posts,
		relService:    rels,
		feedService:   feed,
		searchService: search,
		tokens:        tokens,
		log:           log,
	}
}

// fail maps service errors onto the response envelope.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrFollowSelf):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, service.ErrForbidden):
		response.Forbidden(c, err.Error())
	case errors.Is(err, service.ErrUserNotFound), errors.Is(err, service.ErrPostNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrUsernameTaken), errors.Is(err, service.ErrEmailTaken):
		response.Conflict(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("page_size"))
	return page, pageSize
}

func uintParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

func currentUser(c *gin.Context) uint {
	id, _ := middleware.CurrentUserID(c)
	return id
}
