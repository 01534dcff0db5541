// Package validation enforces the size and shape limits applied to grids,
// uploads, unit tags and regex requests before they reach the engines.
package validation

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"

	cerrors "github.com/FocuswithJustin/convertkit/core/errors"
)

// Limits on request size and shape (CWE-400).
const (
	// MaxFileSize is the largest accepted upload or grid file (32 MB).
	MaxFileSize = 32 << 20
	// MaxFilenameLength is the maximum allowed filename length.
	MaxFilenameLength = 255
	// MaxUnitTagLength bounds a unit tag such as "l_per_100km".
	MaxUnitTagLength = 64
	// MaxGridRows bounds the number of rows in one grid.
	MaxGridRows = 100_000
	// MaxGridCells bounds the total number of cells in one grid.
	MaxGridCells = 1_000_000
	// MaxImagePixels bounds the decoded canvas of an image (50 MP).
	MaxImagePixels = 50_000_000
	// MaxPatternLength bounds a regex pattern in bytes.
	MaxPatternLength = 1024
	// MaxRegexTextLength bounds the text a regex is run against (1 MB).
	MaxRegexTextLength = 1 << 20
	// MaxRegexMatches caps the matches returned for one run.
	MaxRegexMatches = 10_000
)

// Validation errors. All of them match errors.ErrInvalidInput.
var (
	ErrInvalidFilename = cerrors.Wrap(cerrors.ErrInvalidInput, "invalid filename")
	ErrFilenameTooLong = cerrors.Wrap(cerrors.ErrInvalidInput, "filename too long")
	ErrFileTooLarge    = cerrors.Wrap(cerrors.ErrInvalidInput, "file too large")
	ErrInvalidUnitTag  = cerrors.Wrap(cerrors.ErrInvalidInput, "invalid unit tag")
	ErrGridTooLarge    = cerrors.Wrap(cerrors.ErrInvalidInput, "grid too large")
	ErrImageTooLarge   = cerrors.Wrap(cerrors.ErrInvalidInput, "image too large")
	ErrPatternTooLong  = cerrors.Wrap(cerrors.ErrInvalidInput, "pattern too long")
	ErrTextTooLong     = cerrors.Wrap(cerrors.ErrInvalidInput, "text too long")
)

func invalid(field string, sentinel error, format string, args ...interface{}) error {
	return &cerrors.ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Err: sentinel}
}

// ValidateFilename rejects names with separators, control characters or
// a leading hyphen.
func ValidateFilename(filename string) error {
	if filename == "" {
		return ErrInvalidFilename
	}
	if len(filename) > MaxFilenameLength {
		return ErrFilenameTooLong
	}
	if filename == "." || filename == ".." {
		return fmt.Errorf("%w: reserved name", ErrInvalidFilename)
	}
	if strings.ContainsAny(filename, "/\\") {
		return fmt.Errorf("%w: path separator not allowed", ErrInvalidFilename)
	}
	for _, r := range filename {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidFilename)
		}
	}
	if strings.HasPrefix(filename, "-") {
		return fmt.Errorf("%w: filename cannot start with hyphen", ErrInvalidFilename)
	}
	return nil
}

// ValidateFileSize rejects payloads larger than MaxFileSize.
func ValidateFileSize(size int64) error {
	if size > MaxFileSize {
		return invalid("file", ErrFileTooLarge, "%d bytes exceeds limit of %d", size, MaxFileSize)
	}
	return nil
}

// ValidateUnitTag bounds the length of a unit tag. The content is not
// checked: any string is a legal tag, and one missing from the table is a
// lookup miss rather than an error.
func ValidateUnitTag(field, tag string) error {
	if len(tag) > MaxUnitTagLength {
		return invalid(field, ErrInvalidUnitTag, "longer than %d bytes", MaxUnitTagLength)
	}
	return nil
}

// ValidateGrid enforces MaxGridRows and MaxGridCells. Cell contents are
// never checked; a cell that does not parse passes through conversion.
func ValidateGrid(grid [][]string) error {
	if len(grid) > MaxGridRows {
		return invalid("data", ErrGridTooLarge, "%d rows exceeds limit of %d", len(grid), MaxGridRows)
	}
	cells := 0
	for _, row := range grid {
		cells += len(row)
		if cells > MaxGridCells {
			return invalid("data", ErrGridTooLarge, "more than %d cells", MaxGridCells)
		}
	}
	return nil
}

// ValidateImageDimensions rejects images whose declared canvas exceeds
// MaxImagePixels. It runs on the header alone, before any pixel data is
// decoded.
func ValidateImageDimensions(width, height int) error {
	if width <= 0 || height <= 0 {
		return invalid("image", ErrImageTooLarge, "invalid dimensions %dx%d", width, height)
	}
	if int64(width)*int64(height) > MaxImagePixels {
		return invalid("image", ErrImageTooLarge, "%dx%d exceeds limit of %d pixels", width, height, MaxImagePixels)
	}
	return nil
}

// ValidateRegex enforces MaxPatternLength and MaxRegexTextLength.
func ValidateRegex(pattern, text string) error {
	if len(pattern) > MaxPatternLength {
		return invalid("pattern", ErrPatternTooLong, "%d bytes exceeds limit of %d", len(pattern), MaxPatternLength)
	}
	if len(text) > MaxRegexTextLength {
		return invalid("text", ErrTextTooLong, "%d bytes exceeds limit of %d", len(text), MaxRegexTextLength)
	}
	return nil
}

// FileType is the detected kind of an uploaded or local file.
type FileType string

const (
	FileTypeXZ      FileType = "xz"
	FileTypeGzip    FileType = "gzip"
	FileTypeJSON    FileType = "json"
	FileTypeCSV     FileType = "csv"
	FileTypeMsgpack FileType = "msgpack"

	FileTypePNG  FileType = "png"
	FileTypeJPEG FileType = "jpeg"
	FileTypeGIF  FileType = "gif"
	FileTypeBMP  FileType = "bmp"
	FileTypeTIFF FileType = "tiff"
	FileTypeWebP FileType = "webp"

	FileTypeUnknown FileType = "unknown"
)

// IsImage reports whether t is one of the image types.
func (t FileType) IsImage() bool {
	switch t {
	case FileTypePNG, FileTypeJPEG, FileTypeGIF, FileTypeBMP, FileTypeTIFF, FileTypeWebP:
		return true
	}
	return false
}

// IsCompressed reports whether t is a compression wrapper.
func (t FileType) IsCompressed() bool {
	return t == FileTypeXZ || t == FileTypeGzip
}

var magicBytes = []struct {
	fileType FileType
	magic    []byte
	offset   int
}{
	{FileTypeGzip, []byte{0x1f, 0x8b}, 0},
	{FileTypeXZ, []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}, 0},
	{FileTypePNG, []byte("\x89PNG\r\n\x1a\n"), 0},
	{FileTypeJPEG, []byte{0xff, 0xd8, 0xff}, 0},
	{FileTypeGIF, []byte("GIF8"), 0},
	{FileTypeBMP, []byte("BM"), 0},
	{FileTypeTIFF, []byte("II*\x00"), 0},
	{FileTypeTIFF, []byte("MM\x00*"), 0},
	{FileTypeWebP, []byte("WEBP"), 8},
}

// DetectFileType classifies a file from its first bytes, falling back to
// the extension for formats without a signature.
func DetectFileType(header []byte, filename string) FileType {
	if t := detectFileTypeFromMagic(header); t != FileTypeUnknown {
		return t
	}
	return detectFileTypeFromExtension(filename)
}

// ValidateFileType reads the header of reader and checks it against the
// extension of filename. Text formats are accepted when the header looks
// like text.
func ValidateFileType(reader io.Reader, filename string) (FileType, error) {
	buf := make([]byte, 512)
	n, err := io.ReadFull(reader, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FileTypeUnknown, fmt.Errorf("failed to read file header: %w", err)
	}
	buf = buf[:n]

	detected := detectFileTypeFromMagic(buf)
	expected := detectFileTypeFromExtension(filename)

	switch {
	case detected == expected:
		return detected, nil
	case detected == FileTypeUnknown && (expected == FileTypeJSON || expected == FileTypeCSV):
		if isLikelyText(buf) {
			return expected, nil
		}
		return FileTypeUnknown, fmt.Errorf("file type mismatch: %s does not look like text", filename)
	case detected == FileTypeUnknown:
		return expected, nil
	case expected == FileTypeUnknown:
		return detected, nil
	}
	return FileTypeUnknown, fmt.Errorf("file type mismatch: extension suggests %s but content is %s", expected, detected)
}

func detectFileTypeFromMagic(buf []byte) FileType {
	for _, sig := range magicBytes {
		if sig.offset+len(sig.magic) <= len(buf) && bytes.Equal(buf[sig.offset:sig.offset+len(sig.magic)], sig.magic) {
			if sig.fileType == FileTypeWebP && !bytes.HasPrefix(buf, []byte("RIFF")) {
				continue
			}
			return sig.fileType
		}
	}
	return FileTypeUnknown
}

func detectFileTypeFromExtension(filename string) FileType {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xz":
		return FileTypeXZ
	case ".gz", ".gzip":
		return FileTypeGzip
	case ".json":
		return FileTypeJSON
	case ".csv", ".tsv", ".txt":
		return FileTypeCSV
	case ".msgpack", ".mpk", ".mp":
		return FileTypeMsgpack
	case ".png":
		return FileTypePNG
	case ".jpg", ".jpeg":
		return FileTypeJPEG
	case ".gif":
		return FileTypeGIF
	case ".bmp":
		return FileTypeBMP
	case ".tif", ".tiff":
		return FileTypeTIFF
	case ".webp":
		return FileTypeWebP
	default:
		return FileTypeUnknown
	}
}

// isLikelyText reports whether more than 95% of buf is printable ASCII or
// common whitespace. UTF-8 multibyte sequences are neutral.
func isLikelyText(buf []byte) bool {
	if len(buf) == 0 || bytes.IndexByte(buf, 0) != -1 {
		return false
	}

	printable, control := 0, 0
	for _, b := range buf {
		if b >= 0x20 && b <= 0x7e || b == '\t' || b == '\n' || b == '\r' {
			printable++
		} else if b < 0x20 {
			control++
		}
	}
	return printable > 0 && float64(printable)/float64(printable+control) > 0.95
}
