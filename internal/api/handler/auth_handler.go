package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/microblog/internal/service"
	"github.com/d60-Lab/microblog/pkg/response"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type resetTokenRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type resetRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register 注册
// @Summary 注册新用户
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body service.RegisterInput true "注册信息"
// @Success 201 {object} response.Response{data=model.User}
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var req service.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	u, err := h.userService.Register(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, u)
}

// Login 登录，返回 access token
// @Summary 登录
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body loginRequest true "用户名和密码"
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Failure 401 {object} response.Response
// @Router /api/v1/auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	u, err := h.userService.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	token, err := h.tokens.Issue(u.ID)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"token": token, "user": u})
}

// RequestReset 生成重置密码 token。邮件投递不在本服务内，token 直接返回给调用方转发
// @Summary 申请重置密码
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body resetTokenRequest true "注册邮箱"
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/auth/reset-token [post]
func (h *Handler) RequestReset(c *gin.Context) {
	var req resetTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	u, err := h.userService.GetByEmail(c.Request.Context(), req.Email)
	if errors.Is(err, service.ErrUserNotFound) {
		// 不暴露邮箱是否注册
		response.Success(c, gin.H{})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	token, err := h.tokens.IssueReset(u.ID)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"reset_token": token})
}

// ResetPassword 凭重置 token 设置新密码
// @Summary 重置密码
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body resetRequest true "token 与新密码"
// @Success 200 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /api/v1/auth/reset [post]
func (h *Handler) ResetPassword(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	id, err := h.tokens.VerifyReset(req.Token)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.userService.SetPassword(c.Request.Context(), id, req.Password); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, nil)
}
