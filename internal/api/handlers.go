package api

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/FocuswithJustin/convertkit/core/cas"
	"github.com/FocuswithJustin/convertkit/core/digest"
	"github.com/FocuswithJustin/convertkit/core/errors"
	"github.com/FocuswithJustin/convertkit/core/imaging"
	"github.com/FocuswithJustin/convertkit/core/regexrun"
	"github.com/FocuswithJustin/convertkit/core/units"
	"github.com/FocuswithJustin/convertkit/internal/gridio"
	"github.com/FocuswithJustin/convertkit/internal/logging"
	"github.com/FocuswithJustin/convertkit/internal/server"
	"github.com/FocuswithJustin/convertkit/internal/validation"
)

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *APIMeta    `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ConvertRequest is the JSON body of POST /convert and POST /jobs. Data
// holds either a grid or a string containing a JSON grid.
type ConvertRequest struct {
	Data        json.RawMessage `json:"data"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	WholeNumber bool            `json:"whole_number"`
	RoundOff    bool            `json:"round_off"`
}

// gridRequest is a decoded and validated ConvertRequest.
type gridRequest struct {
	Grid [][]string
	From string
	To   string
	Mode units.Mode
}

// ConvertResult is the response body of POST /convert.
type ConvertResult struct {
	Data      [][]string      `json:"data"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Mode      string          `json:"mode"`
	Supported bool            `json:"supported"`
	Stats     units.GridStats `json:"stats"`
}

// ValueRequest is the body of POST /convert/value. Expr, when set, takes
// precedence over the other fields.
type ValueRequest struct {
	Value       *float64 `json:"value"`
	From        string   `json:"from"`
	To          string   `json:"to"`
	WholeNumber bool     `json:"whole_number"`
	RoundOff    bool     `json:"round_off"`
	Expr        string   `json:"expr"`
}

// ValueResult is the response body of POST /convert/value. Result is null
// when the value is not finite; Text always carries it.
type ValueResult struct {
	Value  float64  `json:"value"`
	From   string   `json:"from"`
	To     string   `json:"to"`
	Result *float64 `json:"result"`
	Text   string   `json:"text"`
	Mode   string   `json:"mode"`
}

// RegexRequest is the body of POST /regex.
type RegexRequest struct {
	Pattern string `json:"pattern"`
	Text    string `json:"text"`
	Flags   string `json:"flags"`
}

// ImageResult is the response body of POST /images.
type ImageResult struct {
	*imaging.Result
	Hash string `json:"hash"`
	URL  string `json:"url"`
}

var (
	startTime = time.Now()

	// blobStore holds re-encoded images. Set by NewHandler.
	blobStore *cas.Store

	regexRunner = regexrun.NewRunner(10*time.Minute, 256, 0)
)

func handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
		return
	}

	respond(w, http.StatusOK, map[string]interface{}{
		"name":    "convertkit API",
		"version": Version,
		"endpoints": []string{
			"GET /health",
			"GET /units",
			"POST /convert",
			"POST /convert/value",
			"POST /hash",
			"POST /images",
			"GET /images/{hash}",
			"POST /regex",
			"GET|POST /jobs",
			"GET|DELETE /jobs/{id}",
			"WS /ws",
		},
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if hub := GlobalHub(); hub != nil {
		clients = hub.ClientCount()
	}
	respond(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"version":        Version,
		"uptime":         time.Since(startTime).Round(time.Second).String(),
		"pairs":          len(units.Pairs("")),
		"jobs":           len(globalJobStore.List()),
		"socket_clients": clients,
	})
}

// handleUnits handles GET /units.
func handleUnits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}

	category := r.URL.Query().Get("category")
	pairs := units.Pairs(category)
	if category != "" && len(pairs) == 0 {
		respondError(w, http.StatusNotFound, "UNKNOWN_CATEGORY", "Unknown category: "+category)
		return
	}

	grouped := make(map[string][]units.Pair)
	for _, p := range pairs {
		grouped[p.Category] = append(grouped[p.Category], p)
	}

	respondWithMeta(w, http.StatusOK, map[string]interface{}{
		"categories": grouped,
		"units":      units.Units(),
	}, len(pairs))
}

// handleConvert handles POST /convert.
func handleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST is allowed")
		return
	}

	req, err := decodeGridRequest(w, r)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	start := time.Now()
	out, stats := units.ConvertGridWithStats(req.Grid, req.From, req.To, req.Mode)
	_, supported := units.Lookup(req.From, req.To)
	logging.GridConversion(r.Context(), req.From, req.To, req.Mode.String(),
		stats.Rows, stats.Converted, stats.Unchanged, time.Since(start))

	respond(w, http.StatusOK, ConvertResult{
		Data:      nonNilGrid(out),
		From:      req.From,
		To:        req.To,
		Mode:      req.Mode.String(),
		Supported: supported,
		Stats:     stats,
	})
}

// decodeGridRequest reads a grid conversion request. JSON bodies carry a
// ConvertRequest; msgpack and CSV bodies carry only the grid, with the
// other fields in the query string.
func decodeGridRequest(w http.ResponseWriter, r *http.Request) (*gridRequest, error) {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	if !server.ValidateContentType(contentType, server.GridContentTypes) {
		return nil, errors.NewUnsupported("content type", contentType)
	}

	body, err := readBody(w, r)
	if err != nil {
		return nil, err
	}

	var req gridRequest
	switch mediaType(contentType) {
	case "application/json":
		var cr ConvertRequest
		if err := json.Unmarshal(body, &cr); err != nil {
			return nil, errors.NewMalformedInput("JSON", "request body is not a JSON object", err)
		}
		grid, err := decodeGridField(cr.Data)
		if err != nil {
			return nil, err
		}
		req = gridRequest{
			Grid: grid,
			From: cr.From,
			To:   cr.To,
			Mode: units.ModeFromFlags(cr.WholeNumber, cr.RoundOff),
		}
	default:
		f := gridio.FormatMsgpack
		if mediaType(contentType) == "text/csv" {
			f = gridio.FormatCSV
		}
		grid, err := gridio.Decode(body, f)
		if err != nil {
			return nil, err
		}
		q := r.URL.Query()
		req = gridRequest{
			Grid: grid,
			From: q.Get("from"),
			To:   q.Get("to"),
			Mode: units.ModeFromFlags(queryBool(q.Get("whole_number")), queryBool(q.Get("round_off"))),
		}
	}

	if err := validation.ValidateUnitTag("from", req.From); err != nil {
		return nil, err
	}
	if err := validation.ValidateUnitTag("to", req.To); err != nil {
		return nil, err
	}
	if err := validation.ValidateGrid(req.Grid); err != nil {
		return nil, err
	}
	return &req, nil
}

// decodeGridField accepts a JSON grid or a JSON string holding one.
func decodeGridField(raw json.RawMessage) ([][]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.NewMalformedInput("JSON", "missing data field", nil)
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, errors.NewMalformedInput("JSON", "data is not a valid string", err)
		}
		return units.DecodeGridJSON([]byte(s))
	}
	return units.DecodeGridJSON(raw)
}

// handleConvertValue handles POST /convert/value.
func handleConvertValue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST is allowed")
		return
	}

	var req ValueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	mode := units.ModeFromFlags(req.WholeNumber, req.RoundOff)

	if req.Expr != "" {
		res, err := units.EvalExpr(req.Expr, mode)
		if err != nil {
			respondErr(w, r, err)
			return
		}
		respond(w, http.StatusOK, valueResult(res.Value, res.From, res.To, res.Result, mode))
		return
	}

	if req.Value == nil {
		respondError(w, http.StatusBadRequest, "MISSING_PARAMS", "value, from and to (or expr) are required")
		return
	}
	if err := validation.ValidateUnitTag("from", req.From); err != nil {
		respondErr(w, r, err)
		return
	}
	if err := validation.ValidateUnitTag("to", req.To); err != nil {
		respondErr(w, r, err)
		return
	}

	v, ok := units.Convert(*req.Value, req.From, req.To)
	if !ok {
		respondErr(w, r, errors.NewUnsupported("unit pair", req.From+" -> "+req.To))
		return
	}
	respond(w, http.StatusOK, valueResult(*req.Value, req.From, req.To, mode.Apply(v), mode))
}

func valueResult(value float64, from, to string, result float64, mode units.Mode) ValueResult {
	vr := ValueResult{
		Value: value,
		From:  from,
		To:    to,
		Text:  units.Format(result, units.Raw),
		Mode:  mode.String(),
	}
	if !math.IsNaN(result) && !math.IsInf(result, 0) {
		vr.Result = &result
	}
	return vr
}

// handleHash handles POST /hash. The payload is the multipart "file" part
// or, for any other content type, the raw body.
func handleHash(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST is allowed")
		return
	}

	algorithm := r.URL.Query().Get("algorithm")
	if algorithm == "" {
		algorithm = "sha256"
	}

	var data []byte
	var name string
	var err error
	if mediaType(r.Header.Get("Content-Type")) == "multipart/form-data" {
		data, name, err = readUpload(w, r)
	} else {
		data, err = readBody(w, r)
	}
	if err != nil {
		respondErr(w, r, err)
		return
	}

	if strings.EqualFold(algorithm, "all") {
		respond(w, http.StatusOK, map[string]interface{}{
			"filename": name,
			"size":     len(data),
			"hashes":   digest.SumAll(data),
		})
		return
	}

	sum, err := digest.Sum(data, algorithm)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{
		"filename":  name,
		"size":      len(data),
		"algorithm": digest.Normalize(algorithm),
		"hash":      sum,
	})
}

// handleImages handles POST /images.
func handleImages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST is allowed")
		return
	}
	if blobStore == nil {
		respondError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Image store not initialized")
		return
	}

	data, name, err := readUpload(w, r)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	fileType, err := validation.ValidateFileType(bytes.NewReader(data), name)
	if err != nil || !fileType.IsImage() {
		respondError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA", "Upload is not a supported image")
		return
	}

	quality := 0
	if q := r.FormValue("quality"); q != "" {
		quality, err = strconv.Atoi(q)
		if err != nil {
			respondErr(w, r, errors.NewValidation("quality", "must be an integer"))
			return
		}
	}

	res, err := imaging.Reencode(data, imaging.Options{Quality: quality, Format: r.FormValue("format")})
	if err != nil {
		respondErr(w, r, err)
		return
	}

	hash, err := blobStore.Store(res.Data)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	logging.InfoContext(r.Context(), "image_reencoded",
		"filename", name,
		"source_format", res.SourceFormat,
		"format", res.Format,
		"original_size", res.OriginalSize,
		"size", res.Size,
		"hash", hash)

	respond(w, http.StatusCreated, ImageResult{
		Result: res,
		Hash:   hash,
		URL:    "/images/" + hash,
	})
}

// handleImageByHash handles GET /images/{hash}.
func handleImageByHash(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}
	if blobStore == nil {
		respondError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Image store not initialized")
		return
	}

	hash := strings.TrimPrefix(r.URL.Path, "/images/")
	data, err := blobStore.Retrieve(hash)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	contentType := "application/octet-stream"
	if ft := validation.DetectFileType(data, ""); ft.IsImage() {
		contentType = "image/" + string(ft)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("ETag", `"`+hash+`"`)
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		w.Write(data)
	}
}

// handleRegex handles POST /regex. Pattern errors are part of the result,
// so a well-formed request always gets 200.
func handleRegex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST is allowed")
		return
	}

	var req RegexRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, regexRunner.Run(req.Pattern, req.Text, req.Flags))
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, validation.MaxFileSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, validation.ValidateFileSize(tooLarge.Limit + 1)
		}
		return nil, errors.NewIO("read", "request body", err)
	}
	return data, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.NewMalformedInput("JSON", "invalid request body", err)
	}
	return nil
}

// readUpload returns the contents and base name of the multipart "file" part.
func readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, validation.MaxFileSize+1<<20)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		return nil, "", errors.NewMalformedInput("multipart", "invalid form", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", errors.NewValidation("file", "missing file part")
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if err := validation.ValidateFilename(name); err != nil {
		return nil, "", errors.NewValidation("file", err.Error())
	}
	if err := validation.ValidateFileSize(header.Size); err != nil {
		return nil, "", err
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", errors.NewIO("read", name, err)
	}
	return data, name, nil
}

func mediaType(contentType string) string {
	return strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
}

func queryBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

func nonNilGrid(grid [][]string) [][]string {
	if grid == nil {
		return [][]string{}
	}
	for i, row := range grid {
		if row == nil {
			grid[i] = []string{}
		}
	}
	return grid
}

// respondErr maps an error kind to a status and code.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *errors.ValidationError
		parseErr      *errors.ParseError
	)
	switch {
	case errors.Is(err, errors.ErrMalformedInput):
		respondError(w, http.StatusBadRequest, "MALFORMED_INPUT", err.Error())
	case errors.Is(err, validation.ErrFileTooLarge):
		respondError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", err.Error())
	case errors.As(err, &parseErr):
		respondError(w, http.StatusBadRequest, "PARSE_ERROR", err.Error())
	case errors.As(err, &validationErr), errors.Is(err, errors.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	case errors.Is(err, digest.ErrUnknownAlgorithm):
		respondError(w, http.StatusBadRequest, "UNKNOWN_ALGORITHM", err.Error())
	case errors.Is(err, errors.ErrUnsupported):
		respondError(w, http.StatusBadRequest, "UNSUPPORTED", err.Error())
	case errors.Is(err, errors.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	default:
		logging.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

func respond(w http.ResponseWriter, status int, data interface{}) {
	writeEnvelope(w, status, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func respondWithMeta(w http.ResponseWriter, status int, data interface{}, total int) {
	writeEnvelope(w, status, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Total: total, Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeEnvelope(w, status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func writeEnvelope(w http.ResponseWriter, status int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logging.Error("failed to encode response", "error", err)
	}
}
