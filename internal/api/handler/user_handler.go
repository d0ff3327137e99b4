package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/twissandra/pkg/response"
)

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register 注册用户
func (h *Handler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	u, err := h.userService.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Created(c, u)
}

// IssueToken 校验口令并签发 bearer token
func (h *Handler) IssueToken(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	u, err := h.userService.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	token, exp, err := h.auth.IssueToken(u.Username)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"token": token, "expires_at": exp})
}

// GetUser 查询用户
func (h *Handler) GetUser(c *gin.Context) {
	u, err := h.userService.Get(c.Request.Context(), c.Param("username"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, u)
}
