package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/twissandra/internal/api/middleware"
	"github.com/d60-Lab/twissandra/internal/ids"
	"github.com/d60-Lab/twissandra/internal/model"
	"github.com/d60-Lab/twissandra/internal/service"
	"github.com/d60-Lab/twissandra/pkg/response"
)

type postTweetRequest struct {
	Body string `json:"body" binding:"required"`
}

// PostTweet 发推并写扩散；部分扇出失败返回 202
func (h *Handler) PostTweet(c *gin.Context) {
	var req postTweetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	tweet, err := h.timelineService.PostTweet(c.Request.Context(), middleware.CurrentUser(c), req.Body)
	var partial *service.PartialFanOutError
	if errors.As(err, &partial) {
		reportWarning(c, err, map[string]string{"tweet": tweet.ID.String(), "author": tweet.Username})
		response.Accepted(c, "tweet saved, fan-out incomplete", gin.H{
			"tweet":           tweet,
			"failed_appends":  len(partial.Failures),
			"attempted_lines": partial.Attempted,
		})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	response.Created(c, tweet)
}

// GetTweet 查询单条推文
func (h *Handler) GetTweet(c *gin.Context) {
	id, err := ids.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid tweet id")
		return
	}
	tweet, err := h.timelineService.GetTweet(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, tweet)
}

func (h *Handler) GetUserline(c *gin.Context) {
	h.page(c, model.UserlineOf(c.Param("username")))
}

func (h *Handler) GetTimeline(c *gin.Context) {
	h.page(c, model.TimelineOf(c.Param("username")))
}

func (h *Handler) GetPublicLine(c *gin.Context) {
	h.page(c, model.PublicLine())
}

// page 按 cursor/limit 分页读取一条时间线
func (h *Handler) page(c *gin.Context, line model.LineRef) {
	limit := h.timelineService.Options().DefaultPageSize
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(c, "limit must be an integer")
			return
		}
		limit = n
	}
	p, err := h.timelineService.Page(c.Request.Context(), line, c.Query("cursor"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, p)
}
