// Package regexrun runs a regular expression against a text and reports the
// matches in a shape that serializes directly to the browser.
//
// Compile failures are part of the result, not Go errors: a caller always
// gets a Result back and checks OK.
package regexrun

import (
	"regexp"
	"strings"
	"time"

	"github.com/FocuswithJustin/convertkit/internal/cache"
	"github.com/FocuswithJustin/convertkit/internal/validation"
)

// Match is one match. Start and End are byte offsets into the text.
// Groups holds the capture groups in order; a group that did not
// participate is nil.
type Match struct {
	Start  int       `json:"start"`
	End    int       `json:"end"`
	Text   string    `json:"text"`
	Groups []*string `json:"groups"`
}

// Result is the outcome of a run.
type Result struct {
	OK        bool    `json:"ok"`
	Matches   []Match `json:"matches"`
	Error     string  `json:"error,omitempty"`
	Truncated bool    `json:"truncated,omitempty"`
}

// Runner compiles patterns through a cache and bounds the match count.
type Runner struct {
	compiled   *cache.TTLCache[string, *regexp.Regexp]
	maxMatches int
}

// NewRunner creates a Runner. maxMatches <= 0 uses validation.MaxRegexMatches.
func NewRunner(ttl time.Duration, cacheSize, maxMatches int) *Runner {
	if maxMatches <= 0 {
		maxMatches = validation.MaxRegexMatches
	}
	return &Runner{
		compiled:   cache.New[string, *regexp.Regexp](ttl, cacheSize),
		maxMatches: maxMatches,
	}
}

var defaultRunner = NewRunner(10*time.Minute, 256, 0)

// Run executes pattern against text with the default Runner.
func Run(pattern, text, flags string) Result {
	return defaultRunner.Run(pattern, text, flags)
}

// Run executes pattern against text. Flags: i (case-insensitive),
// m (multi-line anchors), s (dot matches newline), g (every match rather
// than the first). Unknown flag letters are ignored.
func (r *Runner) Run(pattern, text, flags string) Result {
	if err := validation.ValidateRegex(pattern, text); err != nil {
		return failure(err.Error())
	}

	global := strings.ContainsRune(flags, 'g')
	re, err := r.compiled.GetOrCompute(inlineFlags(flags)+pattern, func() (*regexp.Regexp, error) {
		return regexp.Compile(inlineFlags(flags) + pattern)
	})
	if err != nil {
		return failure(err.Error())
	}

	res := Result{OK: true, Matches: []Match{}}
	if !global {
		if loc := re.FindStringSubmatchIndex(text); loc != nil {
			res.Matches = append(res.Matches, toMatch(text, loc))
		}
		return res
	}

	locs := re.FindAllStringSubmatchIndex(text, r.maxMatches+1)
	if len(locs) > r.maxMatches {
		locs = locs[:r.maxMatches]
		res.Truncated = true
	}
	for _, loc := range locs {
		res.Matches = append(res.Matches, toMatch(text, loc))
	}
	return res
}

func failure(msg string) Result {
	return Result{OK: false, Matches: []Match{}, Error: msg}
}

// inlineFlags turns "gim" into "(?im)".
func inlineFlags(flags string) string {
	var b strings.Builder
	for _, f := range "ims" {
		if strings.ContainsRune(flags, f) {
			b.WriteRune(f)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "(?" + b.String() + ")"
}

func toMatch(text string, loc []int) Match {
	m := Match{
		Start:  loc[0],
		End:    loc[1],
		Text:   text[loc[0]:loc[1]],
		Groups: make([]*string, 0, len(loc)/2-1),
	}
	for i := 2; i+1 < len(loc); i += 2 {
		if loc[i] < 0 {
			m.Groups = append(m.Groups, nil)
			continue
		}
		g := text[loc[i]:loc[i+1]]
		m.Groups = append(m.Groups, &g)
	}
	return m
}
