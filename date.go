package lottery

import (
	"regexp"
	"strings"
	"time"
)

// DateForm tags which textual shape a draw date arrived in
type DateForm int

const (
	// FormUnparsed is anything that could not be read as a calendar date
	FormUnparsed DateForm = iota
	// FormSlash is "DD/MM/YY", the canonical form
	FormSlash
	// FormWeekday is "Mon, 23 Feb 2026" as printed by the result page
	FormWeekday
	// FormISO is "2026-02-23" as sent by HTML date inputs
	FormISO
)

const (
	layoutSlash   = "02/01/06"
	layoutWeekday = "Mon, 02 Jan 2006"
	layoutLong    = "2 Jan 2006"
	layoutISO     = "2006-01-02"
)

var slashDateRe = regexp.MustCompile(`^\d{2}/\d{2}/\d{2}$`)

func (f DateForm) String() string {
	switch f {
	case FormSlash:
		return "slash"
	case FormWeekday:
		return "weekday"
	case FormISO:
		return "iso"
	default:
		return "unparsed"
	}
}

// DrawDate is a date string classified on ingestion
type DrawDate struct {
	Raw  string
	Form DateForm
	Time time.Time
}

// ParseDrawDate classifies s; it never fails, unknown shapes become FormUnparsed
func ParseDrawDate(s string) DrawDate {
	d := DrawDate{Raw: s, Form: FormUnparsed}
	trimmed := strings.TrimSpace(s)

	if slashDateRe.MatchString(trimmed) {
		if t, err := time.Parse(layoutSlash, trimmed); err == nil {
			d.Form, d.Time = FormSlash, t
		}
		return d
	}

	if t, err := time.Parse(layoutISO, trimmed); err == nil {
		d.Form, d.Time = FormISO, t
		return d
	}

	body := trimmed
	if i := strings.Index(body, ","); i >= 0 {
		body = strings.TrimSpace(body[i+1:])
	}
	if t, err := time.Parse(layoutLong, body); err == nil {
		d.Form, d.Time = FormWeekday, t
	}
	return d
}

// Valid reports whether the date was understood
func (d DrawDate) Valid() bool { return d.Form != FormUnparsed }

// Canonical returns the comparable "DD/MM/YY" form; slash input and unparsed
// input come back exactly as given
func (d DrawDate) Canonical() string {
	switch d.Form {
	case FormSlash, FormUnparsed:
		return d.Raw
	default:
		return d.Time.Format(layoutSlash)
	}
}

// Format renders the same calendar date in another serialization
func (d DrawDate) Format(form DateForm) string {
	if !d.Valid() {
		return d.Raw
	}
	switch form {
	case FormSlash:
		return d.Time.Format(layoutSlash)
	case FormWeekday:
		return d.Time.Format(layoutWeekday)
	case FormISO:
		return d.Time.Format(layoutISO)
	default:
		return d.Raw
	}
}

// NormalizeDate maps any observed date shape to "DD/MM/YY"
func NormalizeDate(s string) string { return ParseDrawDate(s).Canonical() }
