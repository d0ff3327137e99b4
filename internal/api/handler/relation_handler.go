package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/twissandra/internal/api/middleware"
	"github.com/d60-Lab/twissandra/pkg/response"
)

type followRequest struct {
	To []string `json:"to" binding:"required,min=1"`
}

// Follow 关注一个或多个用户（同时写 friends 与 followers）
func (h *Handler) Follow(c *gin.Context) {
	var req followRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.relService.Follow(c.Request.Context(), middleware.CurrentUser(c), req.To); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, nil)
}

// Unfollow 取消关注
func (h *Handler) Unfollow(c *gin.Context) {
	var req followRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.relService.Unfollow(c.Request.Context(), middleware.CurrentUser(c), req.To); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, nil)
}

// ListFriends 查询某用户关注的人；expand=users 返回用户记录
func (h *Handler) ListFriends(c *gin.Context) {
	username := c.Param("username")
	if c.Query("expand") == "users" {
		users, err := h.relService.Friends(c.Request.Context(), username)
		if err != nil {
			respondError(c, err)
			return
		}
		response.Success(c, gin.H{"list": users})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	list, err := h.relService.FriendsOf(c.Request.Context(), username, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"list": list})
}

// ListFollowers 查询某用户的粉丝
func (h *Handler) ListFollowers(c *gin.Context) {
	username := c.Param("username")
	if c.Query("expand") == "users" {
		users, err := h.relService.Followers(c.Request.Context(), username)
		if err != nil {
			respondError(c, err)
			return
		}
		response.Success(c, gin.H{"list": users})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	list, err := h.relService.FollowersOf(c.Request.Context(), username, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"list": list})
}

// ListInconsistentEdges 对比两份索引，列出单边关系
func (h *Handler) ListInconsistentEdges(c *gin.Context) {
	edges, err := h.relService.FindInconsistentEdges(c.Request.Context(), c.Param("username"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"list": edges})
}
