package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	lottery "github.com/kydenul/lottery-checker"
	"github.com/kydenul/lottery-checker/extract"
	"github.com/kydenul/lottery-checker/ocr"
)

// cell is one ticket number as shown on the results page
type cell struct {
	N     int
	Hit   bool
	Bonus bool
}

type rowView struct {
	Cells []cell
	Label string
	Prize string
	Won   bool
	Error string
}

type prizeView struct {
	Label  string
	Amount string
}

// resultsView is everything results.html renders
type resultsView struct {
	Title      string
	Source     string
	TicketDate string
	Draw       *lottery.DrawRecord
	Prizes     []prizeView
	Rows       []rowView
	Rejections []extract.Rejection
	Error      string
}

// ShowIndex handles the request for the home page.
func (s *Server) ShowIndex(c *gin.Context) {
	data := gin.H{
		"Title":      "TOTO ticket checker",
		"OCREnabled": s.scanner != nil && s.scanner.Enabled(),
	}
	if draw, err := s.store.Latest(c.Request.Context()); err == nil {
		data["Latest"] = draw
	}
	c.HTML(http.StatusOK, "index.html", data)
}

// UploadTicket reads a ticket photo, extracts its rows and checks them
func (s *Server) UploadTicket(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxUploadBytes)

	file, _, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.HTML(http.StatusRequestEntityTooLarge, "results.html", resultsView{
				Title: "Ticket results",
				Error: "The photo is too large.",
			})
			return
		}
		s.redirectHome(c)
		return
	}
	defer file.Close()

	view := resultsView{Title: "Ticket results", Source: "photo"}

	if s.scanner == nil || !s.scanner.Enabled() {
		view.Error = "Photo recognition is not available. Please enter the numbers manually."
		c.HTML(http.StatusServiceUnavailable, "results.html", view)
		return
	}

	scan, err := s.scanner.Scan(c.Request.Context(), file)
	if err != nil {
		status := http.StatusBadGateway
		view.Error = "The ticket could not be read. Please try another photo or enter the numbers manually."
		if errors.Is(err, lottery.ErrMalformedInput) {
			status = http.StatusBadRequest
			view.Error = lottery.UserMessage(err)
		} else if errors.Is(err, ocr.ErrNoProvider) {
			status = http.StatusServiceUnavailable
		}
		c.HTML(status, "results.html", view)
		return
	}

	view.Rejections = scan.Rejections
	s.renderResults(c, view, scan.DrawDate, scan.Numbers())
}

// ManualEntry checks typed numbers against the draw for the given date
func (s *Server) ManualEntry(c *gin.Context) {
	date := strings.TrimSpace(c.PostForm("draw_date"))
	res := extract.FromManual(c.PostForm("numbers"))

	view := resultsView{Title: "Ticket results", Source: "manual", Rejections: res.Rejections}
	s.renderResults(c, view, date, res.Numbers())
}

// renderResults selects the draw, classifies rows and renders results.html
func (s *Server) renderResults(c *gin.Context, view resultsView, date string, rows [][]int) {
	ctx := c.Request.Context()
	view.TicketDate = date

	if len(rows) == 0 {
		view.Error = "No ticket numbers were found."
		// still show the draw so the user can compare by eye
		if draw, err := s.checker.SelectDraw(ctx, date); err == nil {
			s.fillDraw(&view, draw)
		}
		c.HTML(http.StatusOK, "results.html", view)
		return
	}

	result, err := s.checker.Check(ctx, date, rows)
	if err != nil {
		view.Error = lottery.UserMessage(err)
		c.HTML(statusFor(err), "results.html", view)
		return
	}

	s.fillDraw(&view, result.Draw)
	view.Rows = rowViews(result)
	s.logChecked(view)
	c.HTML(http.StatusOK, "results.html", view)
}

func (s *Server) fillDraw(view *resultsView, draw *lottery.DrawRecord) {
	view.Draw = draw
	view.Prizes = make([]prizeView, 0, len(lottery.Tiers))
	for _, tier := range lottery.Tiers {
		view.Prizes = append(view.Prizes, prizeView{Label: tier.Label(), Amount: draw.PrizeTable.Get(tier)})
	}
}

func (s *Server) logChecked(view resultsView) {
	won := 0
	for _, r := range view.Rows {
		if r.Won {
			won++
		}
	}
	s.logger.Info("Checked %d %s rows against draw %d, %d winning", len(view.Rows), view.Source, view.Draw.DrawNo, won)
}

func rowViews(result *lottery.CheckResult) []rowView {
	winning := make(map[int]bool, len(result.Draw.WinningNumbers))
	for _, n := range result.Draw.WinningNumbers {
		winning[n] = true
	}

	views := make([]rowView, 0, len(result.Rows))
	for _, row := range result.Rows {
		v := rowView{Error: row.Error}
		for _, n := range row.Numbers {
			v.Cells = append(v.Cells, cell{N: n, Hit: winning[n], Bonus: n == result.Draw.AdditionalNumber})
		}
		if cl := row.Classification; cl != nil {
			v.Label = cl.Tier.Label()
			v.Prize = cl.PrizeText
			v.Won = cl.Won()
		}
		views = append(views, v)
	}
	return views
}
