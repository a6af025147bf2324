package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/microblog/internal/model"
	"github.com/d60-Lab/microblog/internal/service"
	"github.com/d60-Lab/microblog/pkg/response"
)

type profileResponse struct {
	*model.User
	Avatar    string `json:"avatar"`
	Following int64  `json:"following"`
	Followers int64  `json:"followers"`
}

// GetUser 用户主页
// @Summary 用户资料
// @Tags 用户
// @Param username path string true "用户名"
// @Success 200 {object} response.Response{data=profileResponse}
// @Failure 404 {object} response.Response
// @Router /api/v1/users/{username} [get]
func (h *Handler) GetUser(c *gin.Context) {
	u, err := h.userService.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		h.fail(c, err)
		return
	}
	following, followers, err := h.relService.Counts(c.Request.Context(), u.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, profileResponse{User: u, Avatar: u.Avatar(128), Following: following, Followers: followers})
}

// UserPosts 用户发布的帖子
// @Summary 用户帖子
// @Tags 用户
// @Param username path string true "用户名"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=service.Page[model.Post]}
// @Failure 404 {object} response.Response
// @Router /api/v1/users/{username}/posts [get]
func (h *Handler) UserPosts(c *gin.Context) {
	u, err := h.userService.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		h.fail(c, err)
		return
	}
	page, pageSize := pageParams(c)
	res, err := h.postService.ByUser(c.Request.Context(), u.ID, page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, res)
}

// UpdateMe 修改自己的资料
// @Summary 修改资料
// @Tags 用户
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.ProfileInput true "用户名与简介"
// @Success 200 {object} response.Response{data=model.User}
// @Failure 409 {object} response.Response
// @Router /api/v1/users/me [put]
func (h *Handler) UpdateMe(c *gin.Context) {
	var req service.ProfileInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	u, err := h.userService.UpdateProfile(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, u)
}
