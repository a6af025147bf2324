package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/microblog/pkg/response"
)

type postRequest struct {
	Body string `json:"body" binding:"required"`
}

// CreatePost 发帖
// @Summary 发帖
// @Tags 帖子
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body postRequest true "正文（1-140 字）"
// @Success 201 {object} response.Response{data=model.Post}
// @Failure 400 {object} response.Response
// @Router /api/v1/posts [post]
func (h *Handler) CreatePost(c *gin.Context) {
	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	p, err := h.postService.Publish(c.Request.Context(), currentUser(c), req.Body)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, p)
}

// UpdatePost 编辑帖子（仅作者）
// @Summary 编辑帖子
// @Tags 帖子
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "帖子ID"
// @Param request body postRequest true "新正文"
// @Success 200 {object} response.Response{data=model.Post}
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/posts/{id} [put]
func (h *Handler) UpdatePost(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	p, err := h.postService.Edit(c.Request.Context(), currentUser(c), id, req.Body)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, p)
}

// DeletePost 删除帖子（仅作者）
// @Summary 删除帖子
// @Tags 帖子
// @Security BearerAuth
// @Param id path int true "帖子ID"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/posts/{id} [delete]
func (h *Handler) DeletePost(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.postService.Delete(c.Request.Context(), currentUser(c), id); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, nil)
}

// Explore 全站最新帖子
// @Summary 发现
// @Tags 帖子
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=service.Page[model.Post]}
// @Router /api/v1/explore [get]
func (h *Handler) Explore(c *gin.Context) {
	page, pageSize := pageParams(c)
	res, err := h.postService.Explore(c.Request.Context(), page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, res)
}

// Feed 关注流
// @Summary 关注流（自己 + 关注对象的帖子）
// @Tags 帖子
// @Security BearerAuth
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=service.Page[model.Post]}
// @Router /api/v1/feed [get]
func (h *Handler) Feed(c *gin.Context) {
	page, pageSize := pageParams(c)
	res, err := h.feedService.Feed(c.Request.Context(), currentUser(c), page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, res)
}

// Search 全文搜索帖子；搜索未启用时返回空结果
// @Summary 搜索帖子
// @Tags 帖子
// @Param q query string true "关键词"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=service.Page[model.Post]}
// @Router /api/v1/search [get]
func (h *Handler) Search(c *gin.Context) {
	page, pageSize := pageParams(c)
	res, err := h.searchService.SearchPosts(c.Request.Context(), c.Query("q"), page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, res)
}
