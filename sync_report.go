package lottery

import (
	"errors"
	"time"
)

// ScanState is where a synchronization scan ended up
type ScanState int

const (
	ScanScanning ScanState = iota
	ScanStoppedNotPublished
	ScanStoppedError
	ScanComplete
)

func (s ScanState) String() string {
	switch s {
	case ScanScanning:
		return "scanning"
	case ScanStoppedNotPublished:
		return "stopped_not_published"
	case ScanStoppedError:
		return "stopped_error"
	case ScanComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON reports
func (s ScanState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// FetchOutcome classifies one draw request
type FetchOutcome int

const (
	OutcomeFound FetchOutcome = iota
	OutcomeNotPublished
	OutcomeTransportError
)

func (o FetchOutcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeNotPublished:
		return "not_published"
	default:
		return "transport_error"
	}
}

// MarshalText renders the outcome by name in JSON reports
func (o FetchOutcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// classifyFetch maps a source response to exactly one outcome
func classifyFetch(requested int, rec *DrawRecord, err error) (FetchOutcome, error) {
	switch {
	case errors.Is(err, ErrNotYetPublished):
		return OutcomeNotPublished, nil
	case err != nil:
		return OutcomeTransportError, err
	case rec == nil:
		return OutcomeTransportError, errors.New("source returned no draw")
	case rec.DrawNo != requested:
		return OutcomeNotPublished, nil
	}

	if verr := rec.Validate(); verr != nil {
		return OutcomeTransportError, verr
	}
	return OutcomeFound, nil
}

// DrawOutcome records what the source answered for one draw number
type DrawOutcome struct {
	DrawNo  int          `json:"draw_no"`
	Outcome FetchOutcome `json:"outcome"`
}

// SyncReport explains what a synchronization run did and why it stopped
type SyncReport struct {
	RemoteLatest int           `json:"remote_latest"`
	StartDrawNo  int           `json:"start_draw_no"`
	State        ScanState     `json:"state"`
	StopDrawNo   int           `json:"stop_draw_no,omitempty"`
	Outcomes     []DrawOutcome `json:"outcomes,omitempty"`
	Added        []int         `json:"added"`
	Skipped      []int         `json:"skipped,omitempty"`
	Recovered    []int         `json:"recovered,omitempty"`
	Degraded     bool          `json:"degraded,omitempty"`
	Duration     time.Duration `json:"duration"`

	// Pending holds fetched records that have not been written yet
	Pending []DrawRecord `json:"-"`

	// FetchErr is the TransientFetchError that stopped the scan, if any
	FetchErr error `json:"-"`
}

// UpToDate reports whether the store already held every published draw
func (r *SyncReport) UpToDate() bool {
	return r.State == ScanComplete && len(r.Outcomes) == 0
}
