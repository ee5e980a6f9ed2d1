// Package source fetches official TOTO results from the Singapore Pools result page.
package source

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	lottery "github.com/kydenul/lottery-checker"
)

var (
	digitsRe   = regexp.MustCompile(`\d+`)
	winClassRe = regexp.MustCompile(`^win\d+$`)
	groupRe    = regexp.MustCompile(`(?i)group\s*(\d)`)
)

// SingaporePools implements lottery.DrawSource by scraping the result page
type SingaporePools struct {
	baseURL   string
	userAgent string
	client    *http.Client
	logger    lottery.Logger
}

// New creates the client; the http.Client timeout bounds each page request
func New(cfg *lottery.SourceConfig, logger lottery.Logger) *SingaporePools {
	if cfg == nil {
		cfg = lottery.DefaultSourceConfig()
	}
	if logger == nil {
		logger = lottery.NewSilentLogger()
	}
	return &SingaporePools{
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: cfg.Timeout},
		logger:    logger,
	}
}

// DrawURL builds the page URL for one draw: sppl carries base64("DrawNumber=N")
func (s *SingaporePools) DrawURL(drawNo int) string {
	sppl := base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("DrawNumber=%d", drawNo)))
	return s.baseURL + "?sppl=" + url.QueryEscape(sppl)
}

// LatestDrawNo reads the draw number shown on the landing page
func (s *SingaporePools) LatestDrawNo(ctx context.Context) (int, error) {
	doc, err := s.get(ctx, s.baseURL)
	if err != nil {
		return 0, err
	}

	n, err := drawNumber(doc)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("Latest published draw is %d", n)
	return n, nil
}

// FetchDraw reads one draw. The site answers an unknown draw number with the
// latest draw instead, which is reported as lottery.ErrNotYetPublished.
func (s *SingaporePools) FetchDraw(ctx context.Context, drawNo int) (*lottery.DrawRecord, error) {
	doc, err := s.get(ctx, s.DrawURL(drawNo))
	if err != nil {
		return nil, err
	}
	return ParseDrawPage(doc, drawNo)
}

func (s *SingaporePools) get(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		err := fmt.Errorf("result page returned status %d", resp.StatusCode)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, lottery.NewRetryableError(lottery.ErrCodeTransientFetch, "result page unavailable").WithCause(err)
		}
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse result page: %w", err)
	}
	return doc, nil
}

// ParseDrawPage extracts the draw fields from a result page requested for drawNo
func ParseDrawPage(doc *goquery.Document, drawNo int) (*lottery.DrawRecord, error) {
	shown, err := drawNumber(doc)
	if err != nil {
		return nil, err
	}
	if shown != drawNo {
		return nil, lottery.ErrNotYetPublished
	}

	date := strings.TrimSpace(doc.Find(".drawDate").First().Text())
	if date == "" {
		return nil, errors.New("result page has no draw date")
	}

	var winning []int
	doc.Find("[class*='win']").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if !hasWinClass(sel) {
			return true
		}
		n, err := strconv.Atoi(strings.TrimSpace(sel.Text()))
		if err != nil {
			return true
		}
		winning = append(winning, n)
		return len(winning) < lottery.NumbersPerDraw
	})
	if len(winning) != lottery.NumbersPerDraw {
		return nil, fmt.Errorf("result page shows %d winning numbers", len(winning))
	}

	additional, err := strconv.Atoi(strings.TrimSpace(doc.Find(".additional").First().Text()))
	if err != nil {
		return nil, fmt.Errorf("result page has no additional number: %w", err)
	}

	return &lottery.DrawRecord{
		DrawNo:           drawNo,
		DrawDate:         date,
		WinningNumbers:   winning,
		AdditionalNumber: additional,
		PrizeTable:       parsePrizeTable(doc),
	}, nil
}

// drawNumber reads the first number inside .drawNumber, e.g. "Draw No. 4057"
func drawNumber(doc *goquery.Document) (int, error) {
	text := strings.TrimSpace(doc.Find(".drawNumber").First().Text())
	m := digitsRe.FindString(text)
	if m == "" {
		return 0, errors.New("result page has no draw number")
	}
	return strconv.Atoi(m)
}

func hasWinClass(sel *goquery.Selection) bool {
	class, _ := sel.Attr("class")
	for _, c := range strings.Fields(class) {
		if winClassRe.MatchString(c) {
			return true
		}
	}
	return false
}

// parsePrizeTable reads table.tableWinningShares; the first body row is the header.
// Rows are matched to tiers by their "Group N" label, falling back to row order.
func parsePrizeTable(doc *goquery.Document) lottery.PrizeTable {
	table := lottery.PrizeTable{}

	doc.Find("table.tableWinningShares").First().Find("tbody tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cols := row.Find("td")
		if cols.Length() < 2 {
			return
		}

		tier := lottery.Tier(i)
		if m := groupRe.FindStringSubmatch(cols.Eq(0).Text()); m != nil {
			n, _ := strconv.Atoi(m[1])
			tier = lottery.Tier(n)
		}
		amount := strings.TrimSpace(cols.Eq(1).Text())
		if tier.Valid() && amount != "" {
			table[tier] = amount
		}
	})

	if len(table) == 0 {
		return nil
	}
	return table
}
