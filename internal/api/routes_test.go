package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kioskmedia/timeline-agent/internal/db"
	"github.com/kioskmedia/timeline-agent/internal/edit"
	"github.com/kioskmedia/timeline-agent/internal/editor"
	"github.com/kioskmedia/timeline-agent/internal/ledger"
	"github.com/kioskmedia/timeline-agent/internal/media"
	"github.com/kioskmedia/timeline-agent/internal/playback"
	"github.com/kioskmedia/timeline-agent/internal/session"
	"github.com/kioskmedia/timeline-agent/internal/waveform"
)

const testToken = "test-token-0123456789"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Fake media files hold their duration as text.

func writeClip(t *testing.T, path string, duration float64) {
	t.Helper()
	if err := os.WriteFile(path, []byte(strconv.FormatFloat(duration, 'f', -1, 64)), 0644); err != nil {
		t.Fatal(err)
	}
}

func clipDuration(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
}

type fakeProber struct{}

func (fakeProber) Inspect(ctx context.Context, path string) (*media.Metadata, error) {
	d, err := clipDuration(path)
	if err != nil {
		return nil, &media.ProbeError{Path: path, Err: err}
	}
	return &media.Metadata{
		DurationSeconds: d,
		SizeBytes:       1 << 20,
		Streams:         []media.Stream{{Type: "video", FrameRate: 25}, {Type: "audio"}},
	}, nil
}

type fakeExecutor struct {
	mu     sync.Mutex
	failOn media.Opcode
	gate   chan struct{}
}

func (f *fakeExecutor) Invoke(ctx context.Context, d media.Descriptor) (media.Result, error) {
	f.mu.Lock()
	failOn, gate := f.failOn, f.gate
	f.mu.Unlock()
	if gate != nil {
		if report := media.ProgressFrom(ctx); report != nil {
			report(media.Progress{Op: d.Op, Seconds: 40, Total: 100, Percent: 40})
		}
		<-gate
	}
	if d.Op == failOn {
		return media.Result{}, &media.CodecExecutionError{Op: d.Op, ExitCode: 1, StderrTail: "Invalid data found when processing input"}
	}

	var out float64
	switch p := d.Params.(type) {
	case media.TrimParams:
		out = p.Duration
	case media.ConcatParams, media.MergeParams:
		for _, in := range d.Inputs {
			v, _ := clipDuration(in)
			out += v
		}
	case media.SpeedParams:
		v, _ := clipDuration(d.Inputs[0])
		out = v / p.Factor
	default:
		out, _ = clipDuration(d.Inputs[0])
	}
	if err := os.WriteFile(d.Output, []byte(fmt.Sprint(out)), 0644); err != nil {
		return media.Result{}, err
	}
	return media.Result{OutputPath: d.Output}, nil
}

type fakeRenderer struct{}

func (fakeRenderer) Render(ctx context.Context, path string, rng *waveform.Range) (string, error) {
	return base64.StdEncoding.EncodeToString([]byte("PNG:" + filepath.Base(path))), nil
}

type testAPI struct {
	router http.Handler
	ed     *editor.Editor
	repo   *ledger.SQLiteRepository
	exec   *fakeExecutor
	dir    string
	src    string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "clip.mp4")
	writeClip(t, src, 100)

	database, err := db.New(filepath.Join(dir, "ledger.db"), nil)
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	repo := ledger.NewRepository(database.Conn())
	if err := repo.SetConfig(context.Background(), AuthTokenKey, testToken); err != nil {
		t.Fatal(err)
	}

	logger := testLogger()
	exec := &fakeExecutor{}
	mgr := session.NewManager(fakeProber{}, filepath.Join(dir, "work"), repo, logger)
	pipe := edit.New(exec, fakeProber{}, repo, logger)
	regen := waveform.New(fakeRenderer{}, time.Hour, logger)
	ed := editor.New(mgr, pipe, regen, logger)
	t.Cleanup(func() { ed.Shutdown(context.Background()) })

	doctor := media.NewDoctor("ffmpeg", "ffprobe", func(ctx context.Context, binary string) (string, error) {
		return binary + " version 7.0", nil
	}, logger)

	cfg := ServerConfig{
		Editor:         ed,
		Repository:     repo,
		Janitor:        ledger.NewJanitor(repo, time.Hour, time.Hour, logger),
		Doctor:         doctor,
		Prober:         fakeProber{},
		PlaybackServer: playback.NewServer(logger),
		OpTimeout:      time.Minute,
		Logger:         logger,
		StartTime:      time.Now(),
		DeviceID:       "test-device",
	}
	return &testAPI{router: NewRouter(cfg), ed: ed, repo: repo, exec: exec, dir: dir, src: src}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.RemoteAddr = "127.0.0.1:40000"
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func (a *testAPI) importClip(t *testing.T) {
	t.Helper()
	if rr := a.do(t, http.MethodPost, "/session", ImportRequest{Path: a.src}); rr.Code != http.StatusCreated {
		t.Fatalf("import status = %d: %s", rr.Code, rr.Body)
	}
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return body
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("status = %d, want %d: %s", rr.Code, status, rr.Body)
	}
	if got := decodeJSONBody(t, rr)["code"]; got != code {
		t.Errorf("code = %v, want %s", got, code)
	}
}

func TestHealth_NoAuth(t *testing.T) {
	a := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeJSONBody(t, rr)
	if body["status"] != "ok" || body["device_id"] != "test-device" {
		t.Errorf("body = %v", body)
	}
	if rr.Header().Get("X-Request-Id") == "" {
		t.Error("missing request id header")
	}
}

func TestStatus_ReportsOperationProgress(t *testing.T) {
	a := newTestAPI(t)
	a.importClip(t)

	gate := make(chan struct{})
	a.exec.mu.Lock()
	a.exec.gate = gate
	a.exec.mu.Unlock()

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- a.do(t, http.MethodPost, "/operations/filter", map[string]any{"name": "brightness", "value": 0.2})
	}()
	deadline := time.Now().Add(time.Second)
	for a.ed.Progress() == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	body := decodeJSONBody(t, a.do(t, http.MethodGet, "/status", nil))
	if body["state"] != "busy" || body["busy"] != "filter" {
		t.Errorf("status = %v", body)
	}
	progress, ok := body["progress"].(map[string]interface{})
	if !ok || progress["percent"] != 40.0 || progress["op"] != "filter" {
		t.Errorf("progress = %v", body["progress"])
	}

	close(gate)
	if rr := <-done; rr.Code != http.StatusOK {
		t.Fatalf("filter status = %d: %s", rr.Code, rr.Body)
	}
	body = decodeJSONBody(t, a.do(t, http.MethodGet, "/status", nil))
	if _, ok := body["progress"]; ok || body["state"] != "ready" {
		t.Errorf("status after operation = %v", body)
	}
}

func TestStatus_Lifecycle(t *testing.T) {
	a := newTestAPI(t)

	body := decodeJSONBody(t, a.do(t, http.MethodGet, "/status", nil))
	if body["state"] != "empty" {
		t.Errorf("state = %v, want empty", body["state"])
	}
	if _, ok := body["engine"]; ok {
		t.Error("engine reported before any doctor probe")
	}

	a.importClip(t)
	a.do(t, http.MethodGet, "/doctor", nil)

	body = decodeJSONBody(t, a.do(t, http.MethodGet, "/status", nil))
	if body["state"] != "ready" {
		t.Errorf("state = %v, want ready", body["state"])
	}
	engine, ok := body["engine"].(map[string]interface{})
	if !ok || engine["ready"] != true {
		t.Errorf("engine = %v", body["engine"])
	}

	a.exec.failOn = media.OpSpeed
	a.do(t, http.MethodPost, "/operations/speed", map[string]any{"factor": 2})
	body = decodeJSONBody(t, a.do(t, http.MethodGet, "/status", nil))
	if body["last_error"] == nil || body["last_error"] == "" {
		t.Errorf("last_error missing after failed operation: %v", body)
	}
}

func TestDoctor(t *testing.T) {
	a := newTestAPI(t)
	rr := a.do(t, http.MethodGet, "/doctor?refresh=true", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp DoctorResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if !resp.Ready || resp.Capabilities.FFmpeg.Version != "ffmpeg version 7.0" {
		t.Errorf("doctor = %+v", resp)
	}
}

func TestImport(t *testing.T) {
	a := newTestAPI(t)
	a.importClip(t)

	body := decodeJSONBody(t, a.do(t, http.MethodGet, "/session", nil))
	sess, ok := body["session"].(map[string]interface{})
	if !ok {
		t.Fatalf("snapshot has no session: %v", body)
	}
	if sess["active_path"] != a.src {
		t.Errorf("active_path = %v", sess["active_path"])
	}
	if body["file_name"] != "clip.mp4" || body["size"] != "1.0 MB" {
		t.Errorf("file_name/size = %v/%v", body["file_name"], body["size"])
	}
}

func TestImport_Errors(t *testing.T) {
	a := newTestAPI(t)

	expectError(t, a.do(t, http.MethodPost, "/session", ImportRequest{}), http.StatusBadRequest, "BAD_REQUEST")
	expectError(t, a.do(t, http.MethodPost, "/session", ImportRequest{Path: filepath.Join(a.dir, "nope.mp4")}),
		http.StatusUnprocessableEntity, "PROBE_ERROR")
}

func TestNoSession(t *testing.T) {
	a := newTestAPI(t)
	tests := []struct {
		method, path string
		body         any
	}{
		{http.MethodDelete, "/session", nil},
		{http.MethodPost, "/seek", SeekRequest{Time: 3}},
		{http.MethodPut, "/zoom", ZoomRequest{Start: 0.2, End: 0.4}},
		{http.MethodPost, "/pointer/down", PointerRequest{X: 10, WidthPx: 100}},
		{http.MethodPost, "/commit/trim", nil},
		{http.MethodPost, "/operations/speed", map[string]any{"factor": 2}},
		{http.MethodGet, "/operations", nil},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			expectError(t, a.do(t, tt.method, tt.path, tt.body), http.StatusConflict, "NO_SESSION")
		})
	}
}

func TestPointerGestureSelects(t *testing.T) {
	a := newTestAPI(t)
	a.importClip(t)

	rr := a.do(t, http.MethodPost, "/pointer/down", PointerRequest{X: 100, WidthPx: 1000})
	if rr.Code != http.StatusOK {
		t.Fatalf("down status = %d: %s", rr.Code, rr.Body)
	}
	a.do(t, http.MethodPost, "/pointer/move", PointerRequest{X: 200})
	rr = a.do(t, http.MethodPost, "/pointer/up", PointerRequest{X: 300})
	out := decodeJSONBody(t, rr)
	if out["kind"] != "select" {
		t.Fatalf("outcome = %v", out)
	}

	var sel SelectionResponse
	json.Unmarshal(a.do(t, http.MethodGet, "/selections/trim", nil).Body.Bytes(), &sel)
	if sel.Selection == nil || sel.Selection.Start != 10 || sel.Selection.End != 30 {
		t.Errorf("selection = %+v", sel.Selection)
	}
}

func TestPointer_BadInput(t *testing.T) {
	a := newTestAPI(t)
	a.importClip(t)

	expectError(t, a.do(t, http.MethodPost, "/pointer/down", PointerRequest{X: 1}), http.StatusBadRequest, "VALIDATION_ERROR")
	expectError(t, a.do(t, http.MethodPost, "/pointer/sideways", PointerRequest{X: 1}), http.StatusNotFound, "NOT_FOUND")
}

func TestZoomAndSeek(t *testing.T) {
	a := newTestAPI(t)
	a.importClip(t)

	rr := a.do(t, http.MethodPut, "/zoom", ZoomRequest{Start: 0.2, End: 0.4})
	if rr.Code != http.StatusOK {
		t.Fatalf("zoom status = %d: %s", rr.Code, rr.Body)
	}
	expectError(t, a.do(t, http.MethodPut, "/zoom", ZoomRequest{Start: 0.5, End: 0.5}), http.StatusBadRequest, "VALIDATION_ERROR")

	snap := decodeJSONBody(t, a.do(t, http.MethodDelete, "/zoom", nil))
	zoom := snap["zoom"].(map[string]interface{})
	if zoom["start"] != 0.0 || zoom["end"] != 1.0 {
		t.Errorf("zoom after reset = %v", zoom)
	}

	var seek SeekResponse
	json.Unmarshal(a.do(t, http.MethodPost, "/seek", SeekRequest{Time: 500}).Body.Bytes(), &seek)
	if seek.Playhead != 100 {
		t.Errorf("playhead = %v, want clamp to 100", seek.Playhead)
	}
}

func TestSelectionAndOptions(t *testing.T) {
	a := newTestAPI(t)
	a.importClip(t)

	expectError(t, a.do(t, http.MethodPut, "/selections/trim", SelectionRequest{Start: 5, End: 2}), http.StatusBadRequest, "VALIDATION_ERROR")
	expectError(t, a.do(t, http.MethodPut, "/selections/lasso", SelectionRequest{Start: 1, End: 2}), http.StatusBadRequest, "VALIDATION_ERROR")

	rr := a.do(t, http.MethodPut, "/selections/text", SelectionRequest{Start: 90, End: 150})
	var sel SelectionResponse
	json.Unmarshal(rr.Body.Bytes(), &sel)
	if sel.Selection == nil || sel.Selection.End != 100 {
		t.Errorf("selection = %+v, want end clamped to 100", sel.Selection)
	}

	rr = a.do(t, http.MethodPut, "/options/text", map[string]any{"content": "Hello", "position": "top"})
	if rr.Code != http.StatusOK {
		t.Fatalf("options status = %d: %s", rr.Code, rr.Body)
	}
	var opts editor.Options
	json.Unmarshal(rr.Body.Bytes(), &opts)
	if opts.Text.Content != "Hello" || opts.Text.Style.FontSize != 48 {
		t.Errorf("text options = %+v", opts.Text)
	}
	expectError(t, a.do(t, http.MethodPut, "/options/trim", map[string]any{"mode": "shred"}), http.StatusBadRequest, "VALIDATION_ERROR")
	expectError(t, a.do(t, http.MethodPut, "/options/zoom", map[string]any{}), http.StatusBadRequest, "VALIDATION_ERROR")

	if rr := a.do(t, http.MethodDelete, "/selections/text", nil); rr.Code != http.StatusNoContent {
		t.Errorf("clear status = %d", rr.Code)
	}
	json.Unmarshal(a.do(t, http.MethodGet, "/selections/text", nil).Body.Bytes(), &sel)
	if sel.Selection != nil {
		t.Errorf("selection after clear = %+v", sel.Selection)
	}
}

func TestPreview(t *testing.T) {
	a := newTestAPI(t)
	a.importClip(t)
	a.do(t, http.MethodPut, "/selections/trim", SelectionRequest{Start: 10, End: 20})

	var plan editor.PreviewPlan
	json.Unmarshal(a.do(t, http.MethodGet, "/preview/trim", nil).Body.Bytes(), &plan)
	if plan.Start != 10 || plan.End != 20 || !plan.SuppressAutoSkip {
		t.Errorf("plan = %+v", plan)
	}
	json.Unmarshal(a.do(t, http.MethodGet, "/preview/trim?edge=end", nil).Body.Bytes(), &plan)
	if plan.Start != 19 || plan.End != 21 {
		t.Errorf("edge plan = %+v", plan)
	}
	expectError(t, a.do(t, http.MethodGet, "/preview/text", nil), http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestCommitTrimRecordsHistory(t *testing.T) {
	a := newTestAPI(t)
	a.importClip(t)
	a.do(t, http.MethodPut, "/selections/trim", SelectionRequest{Start: 10, End: 40})

	rr := a.do(t, http.MethodPost, "/commit/trim", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("commit status = %d: %s", rr.Code, rr.Body)
	}
	var res edit.Result
	json.Unmarshal(rr.Body.Bytes(), &res)
	if res.AfterDuration != 30 || res.BeforeDuration != 100 {
		t.Errorf("result = %+v", res)
	}

	var hist OperationsResponse
	json.Unmarshal(a.do(t, http.MethodGet, "/operations", nil).Body.Bytes(), &hist)
	if len(hist.Operations) != 1 {
		t.Fatalf("history = %+v", hist)
	}
	op := hist.Operations[0]
	if op.Kind != "trim" || op.Status != ledger.OperationSucceeded {
		t.Errorf("operation = %+v", op)
	}

	rr = a.do(t, http.MethodGet, "/operations/"+op.ID, nil)
	if rr.Code != http.StatusOK {
		t.Errorf("get operation status = %d", rr.Code)
	}
	expectError(t, a.do(t, http.MethodGet, "/operations/missing", nil), http.StatusNotFound, "NOT_FOUND")
	expectError(t, a.do(t, http.MethodGet, "/operations?limit=-1", nil), http.StatusBadRequest, "BAD_REQUEST")
}

func TestApplyOperation(t *testing.T) {
	a := newTestAPI(t)
	a.importClip(t)

	rr := a.do(t, http.MethodPost, "/operations/speed", map[string]any{"factor": 2})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body)
	}
	var res edit.Result
	json.Unmarshal(rr.Body.Bytes(), &res)
	if res.AfterDuration != 50 {
		t.Errorf("after = %v, want 50", res.AfterDuration)
	}

	expectError(t, a.do(t, http.MethodPost, "/operations/rotate", map[string]any{}), http.StatusBadRequest, "VALIDATION_ERROR")
	expectError(t, a.do(t, http.MethodPost, "/operations/speed", map[string]any{"factor": 0}), http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestApplyOperation_CodecFailure(t *testing.T) {
	a := newTestAPI(t)
	a.importClip(t)
	a.exec.failOn = media.OpTrim

	expectError(t, a.do(t, http.MethodPost, "/operations/trim", map[string]any{"start": 1, "duration": 5}),
		http.StatusBadGateway, "CODEC_ERROR")

	sess, err := a.ed.Session()
	if err != nil || sess.ActivePath() != a.src {
		t.Errorf("active path changed after failure: %v", err)
	}
}

func TestPlaybackActive(t *testing.T) {
	a := newTestAPI(t)
	a.importClip(t)
	a.do(t, http.MethodPut, "/selections/trim", SelectionRequest{Start: 10, End: 20})

	req := httptest.NewRequest(http.MethodGet, "/playback/active?tool=trim", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	req.Header.Set("Range", "bytes=0-1")
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusPartialContent {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body)
	}
	if rr.Body.String() != "10" {
		t.Errorf("body = %q", rr.Body)
	}
	if rr.Header().Get(playback.HeaderPreviewStart) != "10.000" || rr.Header().Get(playback.HeaderSuppressAutoSkip) != "1" {
		t.Errorf("preview headers = %v", rr.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/playback/active", nil)
	req.RemoteAddr = "203.0.113.9:5000"
	rr = httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Errorf("remote client status = %d, want 403", rr.Code)
	}
}

func TestWaveformImage(t *testing.T) {
	a := newTestAPI(t)

	get := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/waveform/image", nil)
		req.RemoteAddr = "127.0.0.1:5000"
		rr := httptest.NewRecorder()
		a.router.ServeHTTP(rr, req)
		return rr
	}
	expectError(t, get(), http.StatusNotFound, "NOT_FOUND")

	a.importClip(t)
	deadline := time.Now().Add(2 * time.Second)
	for a.ed.Waveform().Image == "" {
		if time.Now().After(deadline) {
			t.Fatal("full waveform never rendered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	rr := get()
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if got := rr.Body.String(); got != "PNG:clip.mp4" {
		t.Errorf("body = %q", got)
	}
}

func TestExportClipAndEDL(t *testing.T) {
	a := newTestAPI(t)
	a.importClip(t)

	dst := filepath.Join(a.dir, "out.mp4")
	if rr := a.do(t, http.MethodPost, "/export/clip", ExportClipRequest{Destination: dst}); rr.Code != http.StatusOK {
		t.Fatalf("export clip status = %d: %s", rr.Code, rr.Body)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Errorf("exported clip missing: %v", err)
	}

	outDir := t.TempDir()
	expectError(t, a.do(t, http.MethodPost, "/export/edl", map[string]any{"output_dir": outDir, "source": "selection"}),
		http.StatusBadRequest, "VALIDATION_ERROR")

	a.do(t, http.MethodPut, "/selections/trim", SelectionRequest{Start: 2, End: 4})
	rr := a.do(t, http.MethodPost, "/export/edl", map[string]any{"output_dir": outDir, "project_name": "Cut/1"})
	if rr.Code != http.StatusOK {
		t.Fatalf("export edl status = %d: %s", rr.Code, rr.Body)
	}
	body := decodeJSONBody(t, rr)
	if body["output_path"] != filepath.Join(outDir, "Cut_1.edl") || body["clip_count"] != 1.0 {
		t.Errorf("response = %v", body)
	}
	data, _ := os.ReadFile(filepath.Join(outDir, "Cut_1.edl"))
	if !strings.Contains(string(data), "00:00:02:00 00:00:04:00") {
		t.Errorf("edl = %q", data)
	}

	expectError(t, a.do(t, http.MethodPost, "/export/edl", map[string]any{"output_dir": "relative"}), http.StatusBadRequest, "BAD_REQUEST")
}

func TestExportMergeEDL(t *testing.T) {
	a := newTestAPI(t)
	a.importClip(t)
	outDir := t.TempDir()

	expectError(t, a.do(t, http.MethodPost, "/export/edl", map[string]any{"output_dir": outDir, "source": "merge"}),
		http.StatusNotFound, "NOT_FOUND")

	b := filepath.Join(a.dir, "b.mp4")
	c := filepath.Join(a.dir, "c.mp4")
	writeClip(t, b, 10)
	writeClip(t, c, 20)
	rr := a.do(t, http.MethodPost, "/operations/merge", map[string]any{"clips": []string{b, c}, "include_active": true})
	if rr.Code != http.StatusOK {
		t.Fatalf("merge status = %d: %s", rr.Code, rr.Body)
	}

	rr = a.do(t, http.MethodPost, "/export/edl", map[string]any{"output_dir": outDir, "source": "merge"})
	if rr.Code != http.StatusOK {
		t.Fatalf("export status = %d: %s", rr.Code, rr.Body)
	}
	body := decodeJSONBody(t, rr)
	if body["clip_count"] != 2.0 || body["output_path"] != filepath.Join(outDir, defaultProjectName+".edl") {
		t.Errorf("response = %v", body)
	}
}

func TestGC(t *testing.T) {
	a := newTestAPI(t)
	rr := a.do(t, http.MethodPost, "/maintenance/gc", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body)
	}
	var resp GCResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Removed != 0 || resp.Freed != "0 B" {
		t.Errorf("gc = %+v", resp)
	}
}

func TestCloseSession(t *testing.T) {
	a := newTestAPI(t)
	a.importClip(t)

	if rr := a.do(t, http.MethodDelete, "/session", nil); rr.Code != http.StatusNoContent {
		t.Fatalf("close status = %d", rr.Code)
	}
	body := decodeJSONBody(t, a.do(t, http.MethodGet, "/session", nil))
	if _, ok := body["session"]; ok {
		t.Error("session still present after close")
	}
}
