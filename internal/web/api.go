package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	lottery "github.com/kydenul/lottery-checker"
	"github.com/kydenul/lottery-checker/extract"
)

// checkRequest is the body of POST /api/check. Either Numbers or Text must be set.
type checkRequest struct {
	Date    string  `json:"date"`
	Numbers [][]int `json:"numbers"`
	Text    string  `json:"text"`
}

type checkResponse struct {
	*lottery.CheckResult
	BestTier   lottery.Tier        `json:"best_tier"`
	Rejections []extract.Rejection `json:"rejections,omitempty"`
}

// LatestDraw returns the newest stored draw
func (s *Server) LatestDraw(c *gin.Context) {
	draw, err := s.store.Latest(c.Request.Context())
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, draw)
}

// DrawByNumber returns one draw by its number
func (s *Server) DrawByNumber(c *gin.Context) {
	no, err := strconv.Atoi(c.Param("no"))
	if err != nil || no <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "draw number must be a positive integer"})
		return
	}

	draw, err := s.store.FindByDrawNo(c.Request.Context(), no)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, draw)
}

// DrawByDate returns the draw held on ?date=, in any accepted date form
func (s *Server) DrawByDate(c *gin.Context) {
	date := strings.TrimSpace(c.Query("date"))
	if date == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "date is required"})
		return
	}

	draw, err := s.store.FindByDate(c.Request.Context(), date)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, draw)
}

// CheckNumbers classifies the given rows, or the rows found in free text
func (s *Server) CheckNumbers(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortWithError(c, lottery.NewMalformedInput("request body is not valid JSON", err))
		return
	}

	rows := req.Numbers
	var rejections []extract.Rejection
	if len(rows) == 0 && strings.TrimSpace(req.Text) != "" {
		res := extract.FromManual(req.Text)
		rows = res.Numbers()
		rejections = res.Rejections
	}

	result, err := s.checker.Check(c.Request.Context(), req.Date, rows)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, checkResponse{
		CheckResult: result,
		BestTier:    result.BestTier(),
		Rejections:  rejections,
	})
}

// TriggerSync runs one synchronization in the request; it is not a scheduler
func (s *Server) TriggerSync(c *gin.Context) {
	if s.syncer == nil || !s.config.EnableSync {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "synchronization is disabled"})
		return
	}

	report, err := s.syncer.Sync(c.Request.Context())
	if err != nil {
		status := statusFor(err)
		if lottery.IsCritical(err) {
			status = http.StatusInternalServerError
		}
		s.logger.Error("Manual sync failed: %v", err)
		c.AbortWithStatusJSON(status, gin.H{"error": lottery.UserMessage(err), "report": report})
		return
	}

	body := gin.H{"report": report}
	if report.FetchErr != nil {
		body["warning"] = lottery.UserMessage(report.FetchErr)
	}
	c.JSON(http.StatusOK, body)
}

// Health reports store, breaker and sync status
func (s *Server) Health(c *gin.Context) {
	body := gin.H{"status": "ok"}

	maxNo, err := s.store.MaxDrawNo(c.Request.Context())
	if err != nil {
		body["status"] = "degraded"
		body["store_error"] = err.Error()
	} else {
		body["max_draw_no"] = maxNo
	}

	if s.breaker != nil {
		body["source"] = s.breaker.HealthCheck()
	}
	if s.syncer != nil {
		m := s.syncer.Monitor().Snapshot()
		body["sync"] = gin.H{
			"metrics":            m,
			"average_fetch_time": m.AverageFetchTime().String(),
		}
	}

	status := http.StatusOK
	if body["status"] != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, body)
}
