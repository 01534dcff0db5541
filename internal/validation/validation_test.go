package validation

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	cerrors "github.com/FocuswithJustin/convertkit/core/errors"
)

func TestValidateFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		wantErr  error
	}{
		{"simple", "grid.json", nil},
		{"compressed", "grid.csv.xz", nil},
		{"unicode", "données.csv", nil},
		{"empty", "", ErrInvalidFilename},
		{"dot", ".", ErrInvalidFilename},
		{"dotdot", "..", ErrInvalidFilename},
		{"slash", "a/b.png", ErrInvalidFilename},
		{"backslash", "a\\b.png", ErrInvalidFilename},
		{"null byte", "a\x00.png", ErrInvalidFilename},
		{"newline", "a\n.png", ErrInvalidFilename},
		{"hyphen", "-rf.png", ErrInvalidFilename},
		{"too long", strings.Repeat("a", MaxFilenameLength+1), ErrFilenameTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilename(tt.filename)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateFilename(%q) = %v, want nil", tt.filename, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateFilename(%q) = %v, want %v", tt.filename, err, tt.wantErr)
			}
		})
	}
}

func TestValidateFileSize(t *testing.T) {
	if err := ValidateFileSize(MaxFileSize); err != nil {
		t.Errorf("limit itself rejected: %v", err)
	}
	err := ValidateFileSize(MaxFileSize + 1)
	if !errors.Is(err, ErrFileTooLarge) || !errors.Is(err, cerrors.ErrInvalidInput) {
		t.Errorf("oversized file error = %v", err)
	}
}

func TestValidateUnitTag(t *testing.T) {
	for _, ok := range []string{"kg", "l_per_100km", "ring_us", "KG", "", "km/h", "°C", "k g"} {
		if err := ValidateUnitTag("from", ok); err != nil {
			t.Errorf("ValidateUnitTag(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{strings.Repeat("a", MaxUnitTagLength+1), strings.Repeat("°", MaxUnitTagLength)} {
		err := ValidateUnitTag("from", bad)
		var ve *cerrors.ValidationError
		if !errors.As(err, &ve) || ve.Field != "from" || !errors.Is(err, ErrInvalidUnitTag) {
			t.Errorf("ValidateUnitTag(%q) = %v, want ValidationError on from", bad, err)
		}
	}
}

func TestValidateGrid(t *testing.T) {
	if err := ValidateGrid([][]string{{"1", "2"}, {}, nil}); err != nil {
		t.Errorf("small grid rejected: %v", err)
	}

	tooManyRows := make([][]string, MaxGridRows+1)
	if err := ValidateGrid(tooManyRows); !errors.Is(err, ErrGridTooLarge) {
		t.Errorf("too many rows error = %v", err)
	}

	wide := make([]string, MaxGridCells/2+1)
	if err := ValidateGrid([][]string{wide, wide}); !errors.Is(err, ErrGridTooLarge) {
		t.Errorf("too many cells error = %v", err)
	}

	notes := strings.Repeat("n", 4096)
	if err := ValidateGrid([][]string{{"1", notes}}); err != nil {
		t.Errorf("long text cell rejected: %v", err)
	}
}

func TestValidateImageDimensions(t *testing.T) {
	tests := []struct {
		w, h int
		ok   bool
	}{
		{640, 480, true},
		{10000, 5000, true},
		{10000, 5001, false},
		{12000, 12000, false},
		{0, 10, false},
	}
	for _, tt := range tests {
		err := ValidateImageDimensions(tt.w, tt.h)
		if tt.ok && err != nil {
			t.Errorf("ValidateImageDimensions(%d, %d) = %v", tt.w, tt.h, err)
		}
		if !tt.ok && !errors.Is(err, ErrImageTooLarge) {
			t.Errorf("ValidateImageDimensions(%d, %d) = %v, want ErrImageTooLarge", tt.w, tt.h, err)
		}
	}
}

func TestValidateRegex(t *testing.T) {
	if err := ValidateRegex(`\d+`, "abc 123"); err != nil {
		t.Errorf("small regex rejected: %v", err)
	}
	if err := ValidateRegex(strings.Repeat("a", MaxPatternLength+1), ""); !errors.Is(err, ErrPatternTooLong) {
		t.Errorf("long pattern error = %v", err)
	}
	if err := ValidateRegex("a", strings.Repeat("a", MaxRegexTextLength+1)); !errors.Is(err, ErrTextTooLong) {
		t.Errorf("long text error = %v", err)
	}
}

func TestDetectFileType(t *testing.T) {
	tests := []struct {
		name     string
		header   []byte
		filename string
		want     FileType
	}{
		{"png magic", []byte("\x89PNG\r\n\x1a\nrest"), "upload", FileTypePNG},
		{"jpeg magic", []byte{0xff, 0xd8, 0xff, 0xe0}, "x.bin", FileTypeJPEG},
		{"gif magic", []byte("GIF89a"), "", FileTypeGIF},
		{"bmp magic", []byte("BM\x00\x00"), "", FileTypeBMP},
		{"tiff little endian", []byte("II*\x00"), "", FileTypeTIFF},
		{"tiff big endian", []byte("MM\x00*"), "", FileTypeTIFF},
		{"webp magic", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "", FileTypeWebP},
		{"riff without webp", []byte("RIFF\x00\x00\x00\x00WAVE"), "a.wav", FileTypeUnknown},
		{"xz magic", []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00, 0x00}, "grid", FileTypeXZ},
		{"gzip magic", []byte{0x1f, 0x8b, 0x08}, "grid", FileTypeGzip},
		{"json by extension", []byte(`[["1"]]`), "grid.JSON", FileTypeJSON},
		{"csv by extension", []byte("1,2\n"), "grid.csv", FileTypeCSV},
		{"msgpack by extension", []byte{0x91, 0x91, 0xa1, 0x31}, "grid.msgpack", FileTypeMsgpack},
		{"unknown", []byte("hello"), "notes", FileTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFileType(tt.header, tt.filename); got != tt.want {
				t.Errorf("DetectFileType() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestValidateFileType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n")

	got, err := ValidateFileType(bytes.NewReader(png), "photo.png")
	if err != nil || got != FileTypePNG {
		t.Errorf("png = %s, %v", got, err)
	}

	if _, err := ValidateFileType(bytes.NewReader(png), "photo.jpg"); err == nil {
		t.Error("png content with .jpg extension should fail")
	}

	got, err = ValidateFileType(strings.NewReader(`[["1","2"]]`), "grid.json")
	if err != nil || got != FileTypeJSON {
		t.Errorf("json = %s, %v", got, err)
	}

	if _, err := ValidateFileType(bytes.NewReader([]byte{0, 1, 2, 3}), "grid.csv"); err == nil {
		t.Error("binary content with .csv extension should fail")
	}

	got, err = ValidateFileType(bytes.NewReader(png), "upload")
	if err != nil || got != FileTypePNG {
		t.Errorf("no extension = %s, %v", got, err)
	}

	got, err = ValidateFileType(bytes.NewReader([]byte{0x91}), "grid.mpk")
	if err != nil || got != FileTypeMsgpack {
		t.Errorf("msgpack = %s, %v", got, err)
	}
}

type errorReader struct{}

func (errorReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestValidateFileTypeReadError(t *testing.T) {
	if _, err := ValidateFileType(errorReader{}, "grid.json"); err == nil {
		t.Error("expected read error")
	}
}

func TestFileTypeClasses(t *testing.T) {
	if !FileTypeWebP.IsImage() || FileTypeJSON.IsImage() {
		t.Error("IsImage misclassified")
	}
	if !FileTypeXZ.IsCompressed() || !FileTypeGzip.IsCompressed() || FileTypeCSV.IsCompressed() {
		t.Error("IsCompressed misclassified")
	}
}

func TestIsLikelyText(t *testing.T) {
	tests := []struct {
		buf  []byte
		want bool
	}{
		{[]byte("1,2,3\n4,5,6\n"), true},
		{[]byte("température,°C\n"), true},
		{[]byte{}, false},
		{[]byte("a\x00b"), false},
		{[]byte{0x01, 0x02, 0x03, 'a'}, false},
	}
	for _, tt := range tests {
		if got := isLikelyText(tt.buf); got != tt.want {
			t.Errorf("isLikelyText(%q) = %v, want %v", tt.buf, got, tt.want)
		}
	}
}
