// Package gridio reads and writes conversion grids as JSON, CSV/TSV or
// msgpack, transparently handling .xz and .gz compression.
package gridio

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/FocuswithJustin/convertkit/core/errors"
	"github.com/FocuswithJustin/convertkit/core/units"
	"github.com/FocuswithJustin/convertkit/internal/validation"
)

// Format is a grid serialization.
type Format string

const (
	FormatJSON    Format = "json"
	FormatCSV     Format = "csv"
	FormatTSV     Format = "tsv"
	FormatMsgpack Format = "msgpack"
)

// Formats lists the supported serializations.
func Formats() []Format {
	return []Format{FormatJSON, FormatCSV, FormatTSV, FormatMsgpack}
}

// ParseFormat resolves a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "tsv":
		return FormatTSV, nil
	case "msgpack", "mpk":
		return FormatMsgpack, nil
	}
	return "", errors.NewUnsupported("grid format", s)
}

// FormatFromName guesses the format from a file name, ignoring a trailing
// .xz or .gz. Unknown extensions read as JSON.
func FormatFromName(name string) Format {
	name = stripCompression(strings.ToLower(name))
	switch filepath.Ext(name) {
	case ".csv", ".txt":
		return FormatCSV
	case ".tsv":
		return FormatTSV
	case ".msgpack", ".mpk", ".mp":
		return FormatMsgpack
	}
	return FormatJSON
}

func stripCompression(name string) string {
	for _, ext := range []string{".xz", ".gz", ".gzip"} {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}

// Decode parses data in the given format. Failures are
// *errors.MalformedInputError.
func Decode(data []byte, f Format) ([][]string, error) {
	switch f {
	case FormatJSON:
		return units.DecodeGridJSON(data)
	case FormatCSV:
		return decodeDelimited(data, ',', "CSV")
	case FormatTSV:
		return decodeDelimited(data, '\t', "TSV")
	case FormatMsgpack:
		return decodeMsgpack(data)
	}
	return nil, errors.NewUnsupported("grid format", string(f))
}

func decodeDelimited(data []byte, comma rune, name string) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = comma
	r.FieldsPerRecord = -1
	grid, err := r.ReadAll()
	if err != nil {
		return nil, errors.NewMalformedInput(name, "invalid record", err)
	}
	if grid == nil {
		grid = [][]string{}
	}
	return grid, nil
}

func decodeMsgpack(data []byte) ([][]string, error) {
	if len(data) == 0 {
		return nil, errors.NewMalformedInput("msgpack", "empty input", nil)
	}
	var grid [][]string
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&grid); err != nil {
		return nil, errors.NewMalformedInput("msgpack", "grid must be an array of string arrays", err)
	}
	if grid == nil {
		return nil, errors.NewMalformedInput("msgpack", "grid must be an array of string arrays", nil)
	}
	return grid, nil
}

// Encode serializes grid in the given format.
func Encode(grid [][]string, f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		return units.EncodeGridJSON(grid)
	case FormatCSV, FormatTSV:
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if f == FormatTSV {
			w.Comma = '\t'
		}
		if err := w.WriteAll(grid); err != nil {
			return nil, errors.Wrap(err, "encode csv")
		}
		return buf.Bytes(), nil
	case FormatMsgpack:
		if grid == nil {
			grid = [][]string{}
		}
		return msgpack.Marshal(grid)
	}
	return nil, errors.NewUnsupported("grid format", string(f))
}

// Read decodes a grid from r. name supplies the format when f is empty and
// is used with the content to detect compression.
func Read(r io.Reader, name string, f Format) ([][]string, Format, error) {
	br := bufio.NewReader(r)
	header, _ := br.Peek(8)

	var src io.Reader = br
	switch validation.DetectFileType(header, "") {
	case validation.FileTypeXZ:
		xzr, err := xz.NewReader(br)
		if err != nil {
			return nil, "", errors.NewMalformedInput("xz", "invalid stream", err)
		}
		src = xzr
	case validation.FileTypeGzip:
		gzr, err := gzip.NewReader(br)
		if err != nil {
			return nil, "", errors.NewMalformedInput("gzip", "invalid stream", err)
		}
		defer gzr.Close()
		src = gzr
	}

	data, err := io.ReadAll(io.LimitReader(src, validation.MaxFileSize+1))
	if err != nil {
		return nil, "", errors.NewIO("read", name, err)
	}
	if err := validation.ValidateFileSize(int64(len(data))); err != nil {
		return nil, "", err
	}

	if f == "" {
		f = FormatFromName(name)
	}
	grid, err := Decode(data, f)
	return grid, f, err
}

// ReadFile reads a grid from path.
func ReadFile(path string) ([][]string, Format, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", errors.NewIO("open", path, err)
	}
	defer file.Close()
	return Read(file, filepath.Base(path), "")
}

// Write encodes grid to w, compressing when compression is "xz" or "gz".
func Write(w io.Writer, grid [][]string, f Format, compression string) error {
	data, err := Encode(grid, f)
	if err != nil {
		return err
	}

	switch compression {
	case "":
		_, err = w.Write(data)
		return err
	case "xz":
		xzw, err := xz.NewWriter(w)
		if err != nil {
			return fmt.Errorf("xz writer: %w", err)
		}
		if _, err := xzw.Write(data); err != nil {
			xzw.Close()
			return err
		}
		return xzw.Close()
	case "gz", "gzip":
		gzw := gzip.NewWriter(w)
		if _, err := gzw.Write(data); err != nil {
			gzw.Close()
			return err
		}
		return gzw.Close()
	}
	return errors.NewUnsupported("compression", compression)
}

// WriteFile writes grid to path, choosing the format from the name and
// compressing when it ends in .xz or .gz.
func WriteFile(path string, grid [][]string) error {
	var compression string
	switch lower := strings.ToLower(path); {
	case strings.HasSuffix(lower, ".xz"):
		compression = "xz"
	case strings.HasSuffix(lower, ".gz"), strings.HasSuffix(lower, ".gzip"):
		compression = "gz"
	}

	file, err := os.Create(path)
	if err != nil {
		return errors.NewIO("create", path, err)
	}
	if err := Write(file, grid, FormatFromName(path), compression); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
