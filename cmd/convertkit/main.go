// Command convertkit converts unit grids and single values, and exposes the
// hashing, image and regex tools that the REST API serves.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"

	"github.com/FocuswithJustin/convertkit/core/digest"
	"github.com/FocuswithJustin/convertkit/core/errors"
	"github.com/FocuswithJustin/convertkit/core/imaging"
	"github.com/FocuswithJustin/convertkit/core/regexrun"
	"github.com/FocuswithJustin/convertkit/core/units"
	"github.com/FocuswithJustin/convertkit/internal/api"
	"github.com/FocuswithJustin/convertkit/internal/gridio"
	"github.com/FocuswithJustin/convertkit/internal/logging"
	"github.com/FocuswithJustin/convertkit/internal/validation"
)

// Globals holds flags shared by every command and the streams commands
// write to.
type Globals struct {
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)" default:"warn"`
	LogFormat string `name:"log-format" help:"Log format (json, text)" default:"text"`

	In  io.Reader `kong:"-"`
	Out io.Writer `kong:"-"`
	Err io.Writer `kong:"-"`
}

// CLI defines the command-line interface for convertkit.
type CLI struct {
	Globals

	Convert ConvertGroup `cmd:"" help:"Convert grids or single values"`
	Calc    CalcCmd      `cmd:"" help:"Evaluate a unit expression such as '12.5 kg to lb'"`
	Units   UnitsCmd     `cmd:"" help:"List supported unit pairs"`
	Hash    HashCmd      `cmd:"" help:"Hash a file"`
	Image   ImageCmd     `cmd:"" help:"Re-encode an image"`
	Regex   RegexCmd     `cmd:"" help:"Run a regular expression over text"`
	Serve   ServeCmd     `cmd:"" help:"Start the REST API server"`
	Version VersionCmd   `cmd:"" help:"Print version information"`
}

// ConvertGroup contains the conversion commands.
type ConvertGroup struct {
	Grid  ConvertGridCmd  `cmd:"" help:"Convert every numeric cell of a grid file (JSON, CSV, TSV, msgpack; .xz/.gz accepted)"`
	Value ConvertValueCmd `cmd:"" help:"Convert a single value"`
}

// ModeFlags selects the output rounding.
type ModeFlags struct {
	WholeNumber bool `name:"whole-number" short:"w" help:"Truncate results toward zero"`
	RoundOff    bool `name:"round-off" short:"r" help:"Round results to the nearest integer"`
}

// Mode returns the rounding mode; --whole-number wins over --round-off.
func (m ModeFlags) Mode() units.Mode {
	return units.ModeFromFlags(m.WholeNumber, m.RoundOff)
}

// ConvertGridCmd converts a grid file.
type ConvertGridCmd struct {
	ModeFlags

	Path    string `arg:"" help:"Grid file, or - for stdin"`
	From    string `required:"" help:"Source unit tag"`
	To      string `required:"" help:"Target unit tag"`
	Input   string `help:"Input format when it cannot be told from the name (json, csv, tsv, msgpack)"`
	Format  string `help:"Output format (defaults to the input format)"`
	Out     string `short:"o" help:"Output file; format and compression follow its name" type:"path"`
	Workers int    `help:"Conversion workers (0 = one per CPU)" default:"0"`
}

func (c *ConvertGridCmd) Run(g *Globals) error {
	if err := validation.ValidateUnitTag("from", c.From); err != nil {
		return err
	}
	if err := validation.ValidateUnitTag("to", c.To); err != nil {
		return err
	}

	var inFormat gridio.Format
	if c.Input != "" {
		f, err := gridio.ParseFormat(c.Input)
		if err != nil {
			return err
		}
		inFormat = f
	}

	var (
		grid [][]string
		err  error
	)
	if c.Path == "-" {
		grid, inFormat, err = gridio.Read(g.In, "stdin", inFormat)
	} else if inFormat != "" {
		grid, inFormat, err = readGridAs(c.Path, inFormat)
	} else {
		grid, inFormat, err = gridio.ReadFile(c.Path)
	}
	if err != nil {
		return err
	}
	if err := validation.ValidateGrid(grid); err != nil {
		return err
	}

	if _, ok := units.Lookup(c.From, c.To); !ok {
		logging.Warn("unit pair not in table, cells pass through unchanged", "from", c.From, "to", c.To)
	}

	start := time.Now()
	out, stats, err := units.ConvertGridParallel(context.Background(), grid, c.From, c.To, c.Mode(), c.Workers, nil)
	if err != nil {
		return err
	}
	logging.GridConversion(context.Background(), c.From, c.To, c.Mode().String(),
		stats.Rows, stats.Converted, stats.Unchanged, time.Since(start))

	if c.Out != "" {
		if err := gridio.WriteFile(c.Out, out); err != nil {
			return err
		}
	} else {
		outFormat := inFormat
		if c.Format != "" {
			if outFormat, err = gridio.ParseFormat(c.Format); err != nil {
				return err
			}
		}
		if err := gridio.Write(g.Out, out, outFormat, ""); err != nil {
			return err
		}
		if outFormat != gridio.FormatMsgpack && outFormat != gridio.FormatCSV && outFormat != gridio.FormatTSV {
			fmt.Fprintln(g.Out)
		}
	}

	fmt.Fprintf(g.Err, "%s rows, %s cells converted, %s unchanged\n",
		humanize.Comma(int64(stats.Rows)), humanize.Comma(int64(stats.Converted)), humanize.Comma(int64(stats.Unchanged)))
	return nil
}

func readGridAs(path string, f gridio.Format) ([][]string, gridio.Format, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", errors.NewIO("open", path, err)
	}
	defer file.Close()
	return gridio.Read(file, filepath.Base(path), f)
}

// ConvertValueCmd converts one value.
type ConvertValueCmd struct {
	ModeFlags

	Value string `arg:"" help:"Decimal value"`
	From  string `arg:"" help:"Source unit tag"`
	To    string `arg:"" help:"Target unit tag"`
}

func (c *ConvertValueCmd) Run(g *Globals) error {
	v, ok := units.ParseValue(c.Value)
	if !ok {
		return errors.NewValidation("value", fmt.Sprintf("%q is not a decimal number", c.Value))
	}
	result, ok := units.Convert(v, c.From, c.To)
	if !ok {
		return errors.NewUnsupported("unit pair", c.From+" -> "+c.To)
	}
	fmt.Fprintln(g.Out, units.Format(result, c.Mode()))
	return nil
}

// CalcCmd evaluates a unit expression.
type CalcCmd struct {
	ModeFlags

	Expr []string `arg:"" help:"Expression, e.g. 12.5 kg to lb"`
}

func (c *CalcCmd) Run(g *Globals) error {
	res, err := units.EvalExpr(strings.Join(c.Expr, " "), c.Mode())
	if err != nil {
		return err
	}
	fmt.Fprintf(g.Out, "%s %s = %s %s\n", units.Format(res.Value, units.Raw), res.From, res.Text, res.To)
	return nil
}

// UnitsCmd lists the conversion table.
type UnitsCmd struct {
	Category string `short:"c" help:"Only list one category"`
	JSON     bool   `help:"Print JSON"`
}

func (c *UnitsCmd) Run(g *Globals) error {
	pairs := units.Pairs(c.Category)
	if c.Category != "" && len(pairs) == 0 {
		return errors.NewNotFound("category", c.Category)
	}

	if c.JSON {
		enc := json.NewEncoder(g.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(pairs)
	}

	tw := tabwriter.NewWriter(g.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tFROM\tTO\tKIND")
	for _, p := range pairs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Category, p.From, p.To, p.Kind)
	}
	return tw.Flush()
}

// HashCmd hashes a file.
type HashCmd struct {
	Path      string `arg:"" help:"File to hash, or - for stdin"`
	Algorithm string `short:"a" help:"Algorithm, or 'all'" default:"sha256"`
}

func (c *HashCmd) Run(g *Globals) error {
	var (
		data []byte
		err  error
	)
	if c.Path == "-" {
		data, err = io.ReadAll(io.LimitReader(g.In, validation.MaxFileSize+1))
	} else {
		data, err = os.ReadFile(c.Path)
	}
	if err != nil {
		return errors.NewIO("read", c.Path, err)
	}
	if err := validation.ValidateFileSize(int64(len(data))); err != nil {
		return err
	}

	if strings.EqualFold(c.Algorithm, "all") {
		sums := digest.SumAll(data)
		names := make([]string, 0, len(sums))
		for name := range sums {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(g.Out, "%-7s %s\n", name, sums[name])
		}
		return nil
	}

	sum, err := digest.Sum(data, c.Algorithm)
	if err != nil {
		return fmt.Errorf("%w (supported: %s)", err, strings.Join(digest.Algorithms(), ", "))
	}
	fmt.Fprintf(g.Out, "%s  %s\n", sum, c.Path)
	return nil
}

// ImageCmd re-encodes an image.
type ImageCmd struct {
	Path    string `arg:"" help:"Image file" type:"existingfile"`
	Out     string `short:"o" required:"" help:"Output file" type:"path"`
	Quality int    `short:"q" help:"Quality 1-100" default:"80"`
	Format  string `short:"f" help:"Output format (jpeg, png, gif, bmp, tiff); defaults to the output extension"`
}

func (c *ImageCmd) Run(g *Globals) error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return errors.NewIO("read", c.Path, err)
	}
	if err := validation.ValidateFileSize(int64(len(data))); err != nil {
		return err
	}

	format := c.Format
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(c.Out), ".")
	}

	res, err := imaging.Reencode(data, imaging.Options{Quality: c.Quality, Format: format})
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.Out, res.Data, 0644); err != nil {
		return errors.NewIO("write", c.Out, err)
	}

	fmt.Fprintf(g.Out, "%s %s -> %s %s (%dx%d)\n",
		res.SourceFormat, humanize.Bytes(uint64(res.OriginalSize)),
		res.Format, humanize.Bytes(uint64(res.Size)),
		res.Width, res.Height)
	return nil
}

// RegexCmd runs a pattern over text.
type RegexCmd struct {
	Pattern string `arg:"" help:"Pattern (RE2 syntax)"`
	Text    string `short:"t" help:"Text to search; stdin when empty"`
	Flags   string `help:"Flags: i (ignore case), m (multi-line), s (dot matches newline), g (all matches)"`
	JSON    bool   `help:"Print the full result as JSON"`
}

func (c *RegexCmd) Run(g *Globals) error {
	text := c.Text
	if text == "" {
		data, err := io.ReadAll(io.LimitReader(g.In, validation.MaxRegexTextLength+1))
		if err != nil {
			return errors.NewIO("read", "stdin", err)
		}
		text = string(data)
	}

	res := regexrun.Run(c.Pattern, text, c.Flags)
	if c.JSON {
		enc := json.NewEncoder(g.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	if !res.OK {
		return errors.NewValidation("pattern", res.Error)
	}
	for _, m := range res.Matches {
		fmt.Fprintf(g.Out, "%d-%d: %s\n", m.Start, m.End, m.Text)
	}
	if res.Truncated {
		fmt.Fprintf(g.Err, "output truncated at %s matches\n", humanize.Comma(int64(len(res.Matches))))
	}
	return nil
}

// ServeCmd starts the REST API server. Flags left at their zero value
// fall back to the config file, then to the built-in defaults.
type ServeCmd struct {
	Config         string   `short:"c" help:"TOML config file" type:"existingfile"`
	Port           int      `help:"HTTP server port"`
	DataDir        string   `name:"data-dir" help:"Directory for stored images" type:"path"`
	AllowedOrigins []string `name:"allowed-origins" help:"CORS allowed origins (comma separated)"`
	RateLimit      int      `name:"rate-limit" help:"Requests per minute per client (0 = config value)"`
	RateBurst      int      `name:"rate-burst" help:"Rate limit burst size"`
	APIKey         string   `name:"api-key" env:"CONVERTKIT_API_KEY" help:"Require this key in X-API-Key"`
	TLSCert        string   `name:"tls-cert" help:"TLS certificate file" type:"existingfile"`
	TLSKey         string   `name:"tls-key" help:"TLS key file" type:"existingfile"`
	JobWorkers     int      `name:"job-workers" help:"Workers per conversion job (0 = one per CPU)"`
}

// config merges the config file and the flags.
func (c *ServeCmd) config() (api.Config, error) {
	cfg := api.DefaultConfig()
	if c.Config != "" {
		loaded, err := api.LoadConfig(c.Config)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if c.Port != 0 {
		cfg.Port = c.Port
	}
	if c.DataDir != "" {
		cfg.DataDir = c.DataDir
	}
	if len(c.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = c.AllowedOrigins
	}
	if c.RateLimit != 0 {
		cfg.RateLimitRequests = c.RateLimit
	}
	if c.RateBurst != 0 {
		cfg.RateLimitBurst = c.RateBurst
	}
	if c.APIKey != "" {
		cfg.Auth = api.AuthConfig{Enabled: true, APIKey: c.APIKey}
	}
	if c.TLSCert != "" || c.TLSKey != "" {
		cfg.TLS = api.TLSConfig{Enabled: true, CertFile: c.TLSCert, KeyFile: c.TLSKey}
	}
	if c.JobWorkers != 0 {
		cfg.JobWorkers = c.JobWorkers
	}
	return cfg, cfg.Validate()
}

func (c *ServeCmd) Run(g *Globals, kctx *kong.Context) error {
	cfg, err := c.config()
	if err != nil {
		return err
	}

	// The config file decides logging unless the flags were given.
	level, format := cfg.LogLevel, cfg.LogFormat
	if flagSet(kctx, "log-level") {
		level = g.LogLevel
	}
	if flagSet(kctx, "log-format") {
		format = g.LogFormat
	}
	if err := initLogging(g.Err, level, format); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return api.Start(ctx, cfg)
}

func flagSet(kctx *kong.Context, name string) bool {
	for _, f := range kctx.Flags() {
		if f.Name == name {
			return f.Set
		}
	}
	return false
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	fmt.Fprintf(g.Out, "convertkit version %s\n", api.Version)
	return nil
}

func initLogging(w io.Writer, level, format string) error {
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return err
	}
	f, err := logging.ParseFormat(format)
	if err != nil {
		return err
	}
	logging.InitLoggerTo(w, lvl, f)
	return nil
}

type exitCode int

// run parses args and executes the selected command, returning the
// process exit status.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) (code int) {
	cli := CLI{Globals: Globals{In: stdin, Out: stdout, Err: stderr}}

	parser, err := kong.New(&cli,
		kong.Name("convertkit"),
		kong.Description("Unit conversion toolkit"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Writers(stdout, stderr),
		kong.Exit(func(c int) { panic(exitCode(c)) }),
	)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	defer func() {
		if r := recover(); r != nil {
			c, ok := r.(exitCode)
			if !ok {
				panic(r)
			}
			code = int(c)
		}
	}()

	kctx, err := parser.Parse(args)
	if err != nil {
		parser.FatalIfErrorf(err)
		return 1
	}

	if err := initLogging(stderr, cli.LogLevel, cli.LogFormat); err != nil {
		fmt.Fprintf(stderr, "convertkit: %v\n", err)
		return 2
	}

	if err := kctx.Run(&cli.Globals); err != nil {
		fmt.Fprintf(stderr, "convertkit: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
