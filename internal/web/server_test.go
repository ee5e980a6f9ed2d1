package web

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lottery "github.com/kydenul/lottery-checker"
	"github.com/kydenul/lottery-checker/ocr"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var prizes = lottery.PrizeTable{
	lottery.Tier1: "$2,904,170",
	lottery.Tier2: "$98,458",
	lottery.Tier3: "$1,660",
	lottery.Tier4: "$380",
	lottery.Tier5: "$50",
	lottery.Tier6: "$25",
	lottery.Tier7: "$10",
}

func seedStore(t *testing.T) *lottery.CSVStore {
	t.Helper()
	cfg := lottery.DefaultStoreConfig()
	cfg.CSVPath = filepath.Join(t.TempDir(), "toto_history.csv")
	store := lottery.NewCSVStore(cfg, nil)

	_, err := store.Append(context.Background(), []lottery.DrawRecord{
		{DrawNo: 4056, DrawDate: "Thu, 19 Feb 2026", WinningNumbers: []int{2, 9, 15, 22, 31, 40}, AdditionalNumber: 7, PrizeTable: prizes},
		{DrawNo: 4057, DrawDate: "Mon, 23 Feb 2026", WinningNumbers: []int{3, 11, 19, 27, 38, 45}, AdditionalNumber: 22, PrizeTable: prizes},
	})
	require.NoError(t, err)
	return store
}

type fakeProvider struct{ lines []string }

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Recognize(context.Context, image.Image) ([]string, error) {
	return f.lines, nil
}

type fakeSource struct {
	latest int
	draws  map[int]*lottery.DrawRecord
}

func (f *fakeSource) LatestDrawNo(context.Context) (int, error) { return f.latest, nil }

func (f *fakeSource) FetchDraw(_ context.Context, no int) (*lottery.DrawRecord, error) {
	if d, ok := f.draws[no]; ok {
		return d.Clone(), nil
	}
	return nil, lottery.ErrNotYetPublished
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	if opts.Store == nil {
		opts.Store = seedStore(t)
	}
	s, err := New(opts)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func uploadRequest(t *testing.T, field string) *http.Request {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	img.SetGray(1, 1, color.Gray{Y: 255})
	var pngBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, img))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, "ticket.png")
	require.NoError(t, err)
	_, err = fw.Write(pngBuf.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestShowIndex(t *testing.T) {
	s := newTestServer(t, Options{})

	w := do(t, s, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Latest draw 4057")
	assert.NotContains(t, w.Body.String(), `action="/upload"`)
}

func TestManualEntry(t *testing.T) {
	tests := []struct {
		name       string
		form       url.Values
		wantStatus int
		contains   []string
	}{
		{
			name:       "latest draw when date is blank",
			form:       url.Values{"numbers": {"03 11 19 27 38 45"}},
			wantStatus: http.StatusOK,
			contains:   []string{"Draw 4057", `class="won">Group 1`, "$2,904,170"},
		},
		{
			name:       "slash date selects the earlier draw",
			form:       url.Values{"draw_date": {"19/02/26"}, "numbers": {"2 9 15 22 7 1"}},
			wantStatus: http.StatusOK,
			contains:   []string{"Draw 4056", `class="won">Group 4`},
		},
		{
			name:       "unknown date",
			form:       url.Values{"draw_date": {"01/01/20"}, "numbers": {"1 2 3 4 5 6"}},
			wantStatus: http.StatusNotFound,
			contains:   []string{"No draw record was found for that date."},
		},
		{
			name:       "no numbers still shows the draw",
			form:       url.Values{"numbers": {"1 2"}},
			wantStatus: http.StatusOK,
			contains:   []string{"No ticket numbers were found.", "Draw 4057", "too_few_numbers"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, Options{})

			w := do(t, s, postForm("/manual", tt.form))

			assert.Equal(t, tt.wantStatus, w.Code)
			for _, want := range tt.contains {
				assert.Contains(t, w.Body.String(), want)
			}
		})
	}
}

func TestUploadTicket(t *testing.T) {
	t.Run("scanned rows are checked", func(t *testing.T) {
		scanner := ocr.NewScanner(&fakeProvider{lines: []string{
			"DRAW MON 23/02/26",
			"A. 03 11 19 27 01 02",
		}}, nil, nil)
		s := newTestServer(t, Options{Scanner: scanner})

		w := do(t, s, uploadRequest(t, "file"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Draw 4057")
		assert.Contains(t, w.Body.String(), `class="won">Group 5`)
	})

	t.Run("missing file redirects home", func(t *testing.T) {
		s := newTestServer(t, Options{Scanner: ocr.NewScanner(&fakeProvider{}, nil, nil)})

		w := do(t, s, uploadRequest(t, "photo"))

		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, "/", w.Header().Get("Location"))
	})

	t.Run("recognition disabled", func(t *testing.T) {
		s := newTestServer(t, Options{})

		w := do(t, s, uploadRequest(t, "file"))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "Photo recognition is not available")
	})

	t.Run("upload too large", func(t *testing.T) {
		cfg := lottery.DefaultWebConfig()
		cfg.MaxUploadBytes = 64
		s := newTestServer(t, Options{Scanner: ocr.NewScanner(&fakeProvider{}, nil, nil), Config: cfg})

		w := do(t, s, uploadRequest(t, "file"))

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}

func TestDrawAPI(t *testing.T) {
	s := newTestServer(t, Options{})

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantDrawNo int
		wantCode   string
	}{
		{name: "latest", path: "/api/draws/latest", wantStatus: http.StatusOK, wantDrawNo: 4057},
		{name: "by number", path: "/api/draws/4056", wantStatus: http.StatusOK, wantDrawNo: 4056},
		{name: "unknown number", path: "/api/draws/9999", wantStatus: http.StatusNotFound, wantCode: string(lottery.ErrCodeDrawNotFound)},
		{name: "bad number", path: "/api/draws/abc", wantStatus: http.StatusBadRequest},
		{name: "by weekday date", path: "/api/draws?date=" + url.QueryEscape("Mon, 23 Feb 2026"), wantStatus: http.StatusOK, wantDrawNo: 4057},
		{name: "by slash date", path: "/api/draws?date=19/02/26", wantStatus: http.StatusOK, wantDrawNo: 4056},
		{name: "missing date", path: "/api/draws", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			if tt.wantDrawNo != 0 {
				assert.EqualValues(t, tt.wantDrawNo, body["draw_no"])
			}
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, body["code"])
			}
		})
	}
}

func TestDrawAPI_EmptyStore(t *testing.T) {
	cfg := lottery.DefaultStoreConfig()
	cfg.CSVPath = filepath.Join(t.TempDir(), "empty.csv")
	s := newTestServer(t, Options{Store: lottery.NewCSVStore(cfg, nil)})

	w := do(t, s, httptest.NewRequest(http.MethodGet, "/api/draws/latest", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), string(lottery.ErrCodeStoreEmpty))
}

func TestCheckNumbers(t *testing.T) {
	s := newTestServer(t, Options{})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		check      func(t *testing.T, resp map[string]any)
	}{
		{
			name:       "rows",
			body:       `{"numbers": [[3, 11, 19, 27, 38, 22], [1, 2, 4, 5, 6, 7]]}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, resp map[string]any) {
				assert.EqualValues(t, 2, resp["best_tier"])
				rows := resp["rows"].([]any)
				require.Len(t, rows, 2)
				first := rows[0].(map[string]any)["classification"].(map[string]any)
				assert.Equal(t, "$98,458", first["prize_text"])
			},
		},
		{
			name:       "free text with date",
			body:       `{"date": "19/02/26", "text": "02 09 15 22 31 40"}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, resp map[string]any) {
				assert.EqualValues(t, 1, resp["best_tier"])
				assert.EqualValues(t, 4056, resp["draw"].(map[string]any)["draw_no"])
			},
		},
		{
			name:       "malformed row reported per row",
			body:       `{"numbers": [[3, 3, 19, 27, 38, 45]]}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, resp map[string]any) {
				assert.EqualValues(t, 0, resp["best_tier"])
				row := resp["rows"].([]any)[0].(map[string]any)
				assert.Contains(t, row["error"], "Malformed ticket")
			},
		},
		{
			name:       "nothing to check",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid json",
			body:       `{"numbers":`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/check", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")

			w := do(t, s, req)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			var resp map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			if tt.check != nil {
				tt.check(t, resp)
			}
		})
	}
}

func TestTriggerSync(t *testing.T) {
	store := seedStore(t)
	src := &fakeSource{latest: 4059, draws: map[int]*lottery.DrawRecord{
		4058: {DrawNo: 4058, DrawDate: "Thu, 26 Feb 2026", WinningNumbers: []int{1, 2, 3, 4, 5, 6}, AdditionalNumber: 7},
	}}
	syncCfg := lottery.DefaultSyncConfig()
	syncCfg.MinRequestDelay = 0
	syncer := lottery.NewSynchronizer(store, src, syncCfg)

	t.Run("disabled", func(t *testing.T) {
		cfg := lottery.DefaultWebConfig()
		cfg.EnableSync = false
		s := newTestServer(t, Options{Store: store, Syncer: syncer, Config: cfg})

		w := do(t, s, httptest.NewRequest(http.MethodPost, "/api/sync", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("runs one synchronization", func(t *testing.T) {
		cfg := lottery.DefaultWebConfig()
		cfg.EnableSync = true
		s := newTestServer(t, Options{Store: store, Syncer: syncer, Config: cfg})

		w := do(t, s, httptest.NewRequest(http.MethodPost, "/api/sync", nil))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp struct {
			Report struct {
				State string `json:"state"`
				Added []int  `json:"added"`
			} `json:"report"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "stopped_not_published", resp.Report.State)
		assert.Equal(t, []int{4058}, resp.Report.Added)

		latest, err := store.Latest(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 4058, latest.DrawNo)
	})
}

type fakeBreaker struct{}

func (fakeBreaker) HealthCheck() map[string]any { return map[string]any{"state": "closed"} }

func TestHealth(t *testing.T) {
	store := seedStore(t)
	syncer := lottery.NewSynchronizer(store, &fakeSource{latest: 4057}, nil)
	s := newTestServer(t, Options{Store: store, Syncer: syncer, Breaker: fakeBreaker{}})

	w := do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.EqualValues(t, 4057, resp["max_draw_no"])
	assert.Equal(t, "closed", resp["source"].(map[string]any)["state"])
	assert.Contains(t, resp, "sync")
}
