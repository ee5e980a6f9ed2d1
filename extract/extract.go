// Package extract turns OCR output or typed text into candidate ticket rows.
//
// Every line that carries numbers either becomes a Row or is recorded as a
// Rejection with its Reason, so callers can show why a line was ignored.
package extract

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	lottery "github.com/kydenul/lottery-checker"
)

var (
	// numberRe matches 1..49 with an optional leading zero
	numberRe = regexp.MustCompile(`\b(?:0?[1-9]|[1-4][0-9])\b`)
	dateRe   = regexp.MustCompile(`\d{2}/\d{2}/\d{2}`)
	yearRe   = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	clockRe  = regexp.MustCompile(`(?:\d|\b)[AP]M\b`)
)

// Reason explains why a line did not become a row
type Reason string

const (
	ReasonTooFewNumbers   Reason = "too_few_numbers"
	ReasonTooManyNumbers  Reason = "too_many_numbers"
	ReasonNonTicketMarker Reason = "non_ticket_marker"
	ReasonRepeatedNumber  Reason = "repeated_number"
	ReasonDuplicateRow    Reason = "duplicate_row"
)

// Row is one structurally valid candidate: 6..12 distinct numbers in [1,49]
type Row struct {
	Numbers []int `json:"numbers"`
}

// Tokens renders the numbers zero-padded, as printed on a ticket
func (r Row) Tokens() []string {
	out := make([]string, len(r.Numbers))
	for i, n := range r.Numbers {
		out[i] = fmt.Sprintf("%02d", n)
	}
	return out
}

func (r Row) String() string { return strings.Join(r.Tokens(), " ") }

// Rejection is a line that carried numbers but was not accepted
type Rejection struct {
	Line    int    `json:"line"`
	Text    string `json:"text"`
	Numbers []int  `json:"numbers,omitempty"`
	Reason  Reason `json:"reason"`
}

// Result is the output of one extraction
type Result struct {
	Rows       []Row       `json:"rows"`
	DrawDate   string      `json:"draw_date,omitempty"`
	Rejections []Rejection `json:"rejections,omitempty"`
}

// Numbers returns the rows as plain slices, ready for lottery.Checker
func (r *Result) Numbers() [][]int {
	out := make([][]int, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = slices.Clone(row.Numbers)
	}
	return out
}

// Empty reports whether no row was accepted
func (r *Result) Empty() bool { return len(r.Rows) == 0 }

// FromText splits OCR text into lines and extracts from them
func FromText(text string) *Result {
	return FromLines(strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n"))
}

// FromLines extracts rows and the draw date from OCR lines.
//
// A date on a line mentioning DRAW wins over any other; otherwise the first
// date found is used. Lines mentioning DRAW, a year or a clock time are
// treated as ticket furniture, not bet rows.
func FromLines(lines []string) *Result {
	res := &Result{}
	seen := make(map[string]bool)
	drawDateFromDrawLine := false

	for i, line := range lines {
		upper := strings.ToUpper(line)

		if d := dateRe.FindString(line); d != "" {
			switch {
			case strings.Contains(upper, "DRAW") && !drawDateFromDrawLine:
				res.DrawDate = d
				drawDateFromDrawLine = true
			case res.DrawDate == "":
				res.DrawDate = d
			}
		}

		nums := numbersIn(line)
		if len(nums) == 0 {
			continue
		}

		reject := func(reason Reason) {
			res.Rejections = append(res.Rejections, Rejection{Line: i + 1, Text: strings.TrimSpace(line), Numbers: nums, Reason: reason})
		}

		switch {
		case len(nums) < lottery.MinTicketNumbers:
			reject(ReasonTooFewNumbers)
		case len(nums) > lottery.MaxTicketNumbers:
			reject(ReasonTooManyNumbers)
		case hasMarker(upper):
			reject(ReasonNonTicketMarker)
		case hasRepeat(nums):
			reject(ReasonRepeatedNumber)
		case seen[rowKey(nums)]:
			reject(ReasonDuplicateRow)
		default:
			seen[rowKey(nums)] = true
			res.Rows = append(res.Rows, Row{Numbers: nums})
		}
	}

	return res
}

// FromManual reads typed numbers: one row per line, or, when no line forms a
// row by itself, every number in the text as a single row
func FromManual(text string) *Result {
	res := &Result{}
	seen := make(map[string]bool)
	var pending []Rejection

	for i, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		nums := numbersIn(line)
		if len(nums) == 0 {
			continue
		}
		rej := Rejection{Line: i + 1, Text: strings.TrimSpace(line), Numbers: nums}

		switch {
		case len(nums) < lottery.MinTicketNumbers:
			rej.Reason = ReasonTooFewNumbers
		case len(nums) > lottery.MaxTicketNumbers:
			rej.Reason = ReasonTooManyNumbers
		case hasRepeat(nums):
			rej.Reason = ReasonRepeatedNumber
		case seen[rowKey(nums)]:
			rej.Reason = ReasonDuplicateRow
		default:
			seen[rowKey(nums)] = true
			res.Rows = append(res.Rows, Row{Numbers: nums})
			continue
		}
		pending = append(pending, rej)
	}

	if len(res.Rows) > 0 {
		res.Rejections = pending
		return res
	}

	// e.g. "1 2 3" on one line and "4 5 6" on the next
	all := numbersIn(text)
	if len(all) == 0 {
		return res
	}
	rej := Rejection{Line: 0, Text: strings.Join(strings.Fields(text), " "), Numbers: all}
	switch {
	case len(all) < lottery.MinTicketNumbers:
		rej.Reason = ReasonTooFewNumbers
	case len(all) > lottery.MaxTicketNumbers:
		rej.Reason = ReasonTooManyNumbers
	case hasRepeat(all):
		rej.Reason = ReasonRepeatedNumber
	default:
		res.Rows = append(res.Rows, Row{Numbers: all})
		return res
	}
	res.Rejections = append(res.Rejections, rej)
	return res
}

func numbersIn(s string) []int {
	tokens := numberRe.FindAllString(s, -1)
	if len(tokens) == 0 {
		return nil
	}
	nums := make([]int, 0, len(tokens))
	for _, tok := range tokens {
		n, err := strconv.Atoi(tok)
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}
	return nums
}

func hasMarker(upper string) bool {
	return strings.Contains(upper, "DRAW") || yearRe.MatchString(upper) || clockRe.MatchString(upper)
}

func hasRepeat(nums []int) bool {
	seen := make(map[int]bool, len(nums))
	for _, n := range nums {
		if seen[n] {
			return true
		}
		seen[n] = true
	}
	return false
}

// rowKey identifies a number set regardless of print order
func rowKey(nums []int) string {
	sorted := slices.Clone(nums)
	slices.Sort(sorted)
	var b strings.Builder
	for i, n := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}
