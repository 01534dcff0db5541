package api

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

// newTestHandler builds the full middleware chain over a temporary data dir.
func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.SlowRequest = Duration{}
	h, err := NewHandler(cfg)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	t.Cleanup(h.Close)
	return h
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v (body %q)", err, w.Body.String())
	}
	return resp
}

// decodeData re-decodes the envelope's data field into v.
func decodeData(t *testing.T, resp APIResponse, v interface{}) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Errorf("status = %d, want %d (body %s)", w.Code, status, w.Body.String())
	}
	resp := decodeResponse(t, w)
	if resp.Success {
		t.Error("expected success to be false")
	}
	if resp.Error == nil || resp.Error.Code != code {
		t.Errorf("error = %+v, want code %s", resp.Error, code)
	}
}

func TestHandleRoot(t *testing.T) {
	h := newTestHandler(t)

	w := doJSON(t, h, http.MethodGet, "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeResponse(t, w)
	if !resp.Success || resp.Meta == nil || resp.Meta.Timestamp == "" {
		t.Errorf("bad envelope: %+v", resp)
	}
	data := resp.Data.(map[string]interface{})
	if data["name"] != "convertkit API" || data["version"] != Version {
		t.Errorf("unexpected data: %v", data)
	}

	expectError(t, doJSON(t, h, http.MethodGet, "/nope", nil), http.StatusNotFound, "NOT_FOUND")
}

func TestHandleHealth(t *testing.T) {
	h := newTestHandler(t)

	w := doJSON(t, h, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	data := decodeResponse(t, w).Data.(map[string]interface{})
	if data["status"] != "healthy" {
		t.Errorf("status = %v", data["status"])
	}
	if pairs, _ := data["pairs"].(float64); pairs < 100 {
		t.Errorf("pairs = %v, want the full table", data["pairs"])
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}
}

func TestHandleUnits(t *testing.T) {
	h := newTestHandler(t)

	w := doJSON(t, h, http.MethodGet, "/units?category=temperature", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeResponse(t, w)
	var data struct {
		Categories map[string][]map[string]string `json:"categories"`
	}
	decodeData(t, resp, &data)
	if len(data.Categories) != 1 || len(data.Categories["temperature"]) == 0 {
		t.Errorf("categories = %v", data.Categories)
	}
	if resp.Meta.Total != len(data.Categories["temperature"]) {
		t.Errorf("meta total = %d", resp.Meta.Total)
	}

	expectError(t, doJSON(t, h, http.MethodGet, "/units?category=nope", nil), http.StatusNotFound, "UNKNOWN_CATEGORY")
	expectError(t, doJSON(t, h, http.MethodPost, "/units", nil), http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED")
}

func TestHandleConvert(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name      string
		body      interface{}
		want      [][]string
		supported bool
	}{
		{
			name: "grid",
			body: map[string]interface{}{
				"data": [][]string{{"1", "x"}, {}}, "from": "kg", "to": "lb", "round_off": true,
			},
			want:      [][]string{{"2", "x"}, {}},
			supported: true,
		},
		{
			name:      "string data",
			body:      map[string]interface{}{"data": `[["100"]]`, "from": "celsius", "to": "fahrenheit"},
			want:      [][]string{{"212"}},
			supported: true,
		},
		{
			name:      "whole number wins",
			body:      map[string]interface{}{"data": [][]string{{"1.5"}}, "from": "inch", "to": "cm", "whole_number": true, "round_off": true},
			want:      [][]string{{"3"}},
			supported: true,
		},
		{
			name:      "unknown pair passes through",
			body:      map[string]interface{}{"data": [][]string{{"1", "2"}}, "from": "kg", "to": "mile"},
			want:      [][]string{{"1", "2"}},
			supported: false,
		},
		{
			name:      "unit tag outside the table",
			body:      map[string]interface{}{"data": [][]string{{"60", "fast"}}, "from": "km/h", "to": "mph"},
			want:      [][]string{{"60", "fast"}},
			supported: false,
		},
		{
			name:      "empty unit tag",
			body:      map[string]interface{}{"data": [][]string{{"1"}}, "from": "kg"},
			want:      [][]string{{"1"}},
			supported: false,
		},
		{
			name:      "long text cell beside numbers",
			body:      map[string]interface{}{"data": [][]string{{"1", strings.Repeat("n", 300)}, {"2", "ok"}}, "from": "kg", "to": "g"},
			want:      [][]string{{"1000", strings.Repeat("n", 300)}, {"2000", "ok"}},
			supported: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, h, http.MethodPost, "/convert", tt.body)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
			}
			var got ConvertResult
			decodeData(t, decodeResponse(t, w), &got)
			if !gridsEqual(got.Data, tt.want) {
				t.Errorf("data = %v, want %v", got.Data, tt.want)
			}
			if got.Supported != tt.supported {
				t.Errorf("supported = %v, want %v", got.Supported, tt.supported)
			}
		})
	}
}

func TestHandleConvertErrors(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name   string
		body   interface{}
		status int
		code   string
	}{
		{"not json", "not json", http.StatusBadRequest, "MALFORMED_INPUT"},
		{"object grid", map[string]interface{}{"data": map[string]int{"a": 1}, "from": "kg", "to": "lb"}, http.StatusBadRequest, "MALFORMED_INPUT"},
		{"null grid", map[string]interface{}{"data": nil, "from": "kg", "to": "lb"}, http.StatusBadRequest, "MALFORMED_INPUT"},
		{"numeric cells", map[string]interface{}{"data": [][]int{{1}}, "from": "kg", "to": "lb"}, http.StatusBadRequest, "MALFORMED_INPUT"},
		{"bad string grid", map[string]interface{}{"data": "[[1", "from": "kg", "to": "lb"}, http.StatusBadRequest, "MALFORMED_INPUT"},
		{"missing data", map[string]interface{}{"from": "kg", "to": "lb"}, http.StatusBadRequest, "MALFORMED_INPUT"},
		{"oversized unit tag", map[string]interface{}{"data": [][]string{}, "from": strings.Repeat("k", 100), "to": "lb"}, http.StatusBadRequest, "INVALID_INPUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectError(t, doJSON(t, h, http.MethodPost, "/convert", tt.body), tt.status, tt.code)
		})
	}

	expectError(t, doJSON(t, h, http.MethodGet, "/convert", nil), http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED")

	req := httptest.NewRequest(http.MethodPost, "/convert", strings.NewReader("x"))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	expectError(t, w, http.StatusBadRequest, "UNSUPPORTED")
}

func TestHandleConvertMsgpackAndCSV(t *testing.T) {
	h := newTestHandler(t)

	packed, err := msgpack.Marshal([][]string{{"1", "n/a"}})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name        string
		contentType string
		body        []byte
		want        [][]string
	}{
		{"msgpack", "application/msgpack", packed, [][]string{{"1000", "n/a"}}},
		{"csv", "text/csv; charset=utf-8", []byte("1,2\n3,x\n"), [][]string{{"1000", "2000"}, {"3000", "x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/convert?from=km&to=m", bytes.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
			}
			var got ConvertResult
			decodeData(t, decodeResponse(t, w), &got)
			if !gridsEqual(got.Data, tt.want) {
				t.Errorf("data = %v, want %v", got.Data, tt.want)
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/convert?from=km&to=m", bytes.NewReader([]byte{0xc1}))
	req.Header.Set("Content-Type", "application/x-msgpack")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	expectError(t, w, http.StatusBadRequest, "MALFORMED_INPUT")
}

func TestHandleConvertValue(t *testing.T) {
	h := newTestHandler(t)

	one, zero := 1.0, 0.0
	tests := []struct {
		name     string
		body     ValueRequest
		wantText string
		wantNull bool
	}{
		{"watt to dbm", ValueRequest{Value: &one, From: "watt", To: "dbm"}, "30", false},
		{"expression", ValueRequest{Expr: "-40 celsius to fahrenheit"}, "-40", false},
		{"expression rounds", ValueRequest{Expr: "1.5 inch to cm", RoundOff: true}, "4", false},
		{"non-finite result", ValueRequest{Value: &zero, From: "watt", To: "dbm"}, "-Inf", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, h, http.MethodPost, "/convert/value", tt.body)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
			}
			var got ValueResult
			decodeData(t, decodeResponse(t, w), &got)
			if got.Text != tt.wantText {
				t.Errorf("text = %q, want %q", got.Text, tt.wantText)
			}
			if (got.Result == nil) != tt.wantNull {
				t.Errorf("result = %v, want null %v", got.Result, tt.wantNull)
			}
		})
	}

	expectError(t, doJSON(t, h, http.MethodPost, "/convert/value", ValueRequest{Value: &one, From: "kg", To: "mile"}),
		http.StatusBadRequest, "UNSUPPORTED")
	expectError(t, doJSON(t, h, http.MethodPost, "/convert/value", ValueRequest{Expr: "kg to lb"}),
		http.StatusBadRequest, "PARSE_ERROR")
	expectError(t, doJSON(t, h, http.MethodPost, "/convert/value", ValueRequest{From: "kg", To: "lb"}),
		http.StatusBadRequest, "MISSING_PARAMS")
	expectError(t, doJSON(t, h, http.MethodPost, "/convert/value", "{"),
		http.StatusBadRequest, "MALFORMED_INPUT")
}

func TestHandleHash(t *testing.T) {
	h := newTestHandler(t)

	post := func(path string, body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	tests := []struct {
		path string
		body string
		want string
	}{
		{"/hash", "", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"/hash?algorithm=crc32", "123456789", "cbf43926"},
		{"/hash?algorithm=CRC-16", "123456789", "bb3d"},
		{"/hash?algorithm=md5", "", "d41d8cd98f00b204e9800998ecf8427e"},
	}
	for _, tt := range tests {
		w := post(tt.path, []byte(tt.body))
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, body %s", tt.path, w.Code, w.Body.String())
		}
		data := decodeResponse(t, w).Data.(map[string]interface{})
		if data["hash"] != tt.want {
			t.Errorf("%s: hash = %v, want %s", tt.path, data["hash"], tt.want)
		}
	}

	w := post("/hash?algorithm=all", []byte("abc"))
	var all struct {
		Hashes map[string]string `json:"hashes"`
		Size   int               `json:"size"`
	}
	decodeData(t, decodeResponse(t, w), &all)
	if len(all.Hashes) != 8 || all.Size != 3 {
		t.Errorf("all = %+v", all)
	}

	expectError(t, post("/hash?algorithm=whirlpool", []byte("abc")), http.StatusBadRequest, "UNKNOWN_ALGORITHM")
}

func TestHandleHashMultipart(t *testing.T) {
	h := newTestHandler(t)

	body, contentType := multipartBody(t, "data.bin", []byte("123456789"), nil)
	req := httptest.NewRequest(http.MethodPost, "/hash?algorithm=crc32", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	data := decodeResponse(t, w).Data.(map[string]interface{})
	if data["hash"] != "cbf43926" || data["filename"] != "data.bin" {
		t.Errorf("data = %v", data)
	}
}

func TestHandleImages(t *testing.T) {
	h := newTestHandler(t)

	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for x := 0; x < 4; x++ {
		for y := 0; y < 3; y++ {
			img.Set(x, y, color.RGBA{uint8(x * 60), uint8(y * 80), 128, 255})
		}
	}
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		t.Fatal(err)
	}

	body, contentType := multipartBody(t, "pic.png", pngBuf.Bytes(), map[string]string{"format": "jpeg", "quality": "50"})
	req := httptest.NewRequest(http.MethodPost, "/images", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var got struct {
		Format       string `json:"format"`
		SourceFormat string `json:"source_format"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		Hash         string `json:"hash"`
		URL          string `json:"url"`
	}
	decodeData(t, decodeResponse(t, w), &got)
	if got.Format != "jpeg" || got.SourceFormat != "png" || got.Width != 4 || got.Height != 3 {
		t.Errorf("result = %+v", got)
	}
	if got.URL != "/images/"+got.Hash || len(got.Hash) != 64 {
		t.Errorf("hash/url = %q %q", got.Hash, got.URL)
	}

	req = httptest.NewRequest(http.MethodGet, got.URL, nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("download status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q, want image/jpeg", ct)
	}

	expectError(t, doJSON(t, h, http.MethodGet, "/images/not-a-hash", nil), http.StatusBadRequest, "INVALID_INPUT")
	expectError(t, doJSON(t, h, http.MethodGet, "/images/"+strings.Repeat("0", 64), nil), http.StatusNotFound, "NOT_FOUND")
}

func TestHandleImagesRejectsNonImages(t *testing.T) {
	h := newTestHandler(t)

	body, contentType := multipartBody(t, "notes.txt", []byte("hello"), nil)
	req := httptest.NewRequest(http.MethodPost, "/images", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	expectError(t, w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA")

	body, contentType = multipartBody(t, "pic.png", []byte("\x89PNG\r\n\x1a\ngarbage"), nil)
	req = httptest.NewRequest(http.MethodPost, "/images", body)
	req.Header.Set("Content-Type", contentType)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	expectError(t, w, http.StatusBadRequest, "PARSE_ERROR")
}

func TestHandleRegex(t *testing.T) {
	h := newTestHandler(t)

	w := doJSON(t, h, http.MethodPost, "/regex", RegexRequest{Pattern: "a(b)?", Text: "ab a", Flags: "g"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var res struct {
		OK      bool `json:"ok"`
		Matches []struct {
			Text   string    `json:"text"`
			Groups []*string `json:"groups"`
		} `json:"matches"`
	}
	decodeData(t, decodeResponse(t, w), &res)
	if !res.OK || len(res.Matches) != 2 {
		t.Fatalf("result = %+v", res)
	}
	if res.Matches[1].Groups[0] != nil {
		t.Errorf("unmatched group should be null, got %q", *res.Matches[1].Groups[0])
	}

	w = doJSON(t, h, http.MethodPost, "/regex", RegexRequest{Pattern: "(", Text: "x"})
	if w.Code != http.StatusOK {
		t.Fatalf("invalid pattern status = %d, want 200", w.Code)
	}
	var bad struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	decodeData(t, decodeResponse(t, w), &bad)
	if bad.OK || bad.Error == "" {
		t.Errorf("invalid pattern result = %+v", bad)
	}

	expectError(t, doJSON(t, h, http.MethodPost, "/regex", "[]"), http.StatusBadRequest, "MALFORMED_INPUT")
}

func multipartBody(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(content)
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func gridsEqual(a, b [][]string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				return false
			}
		}
	}
	return true
}
