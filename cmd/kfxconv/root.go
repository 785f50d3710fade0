package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	kfx "github.com/logicossoftware/go-kfx"
	"github.com/logicossoftware/go-kfx/convert"
	"github.com/logicossoftware/go-kfx/internal/config"
	"github.com/logicossoftware/go-kfx/internal/logging"
	"github.com/logicossoftware/go-kfx/internal/source"
	"github.com/logicossoftware/go-kfx/render"
)

type flags struct {
	epub, epub2, pdf, cbz, unpack, json, cover, fixed bool

	configPath string
	logLevel   string
	logFormat  string
}

func newRootCommand() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "kfxconv <infile> [outfile]",
		Short: "Convert KFX e-books to EPUB, PDF or CBZ, or extract their resources",
		Long: "Convert a " + strings.Join(source.Extensions, ", ") + " file or a notebook folder.\n" +
			"Without output flags the book is converted to EPUB.",
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := ""
			if len(args) == 2 {
				out = args[1]
			}
			return run(cmd, f, args[0], out)
		},
	}

	fs := cmd.Flags()
	fs.BoolVarP(&f.epub, "epub", "e", false, "Convert to EPUB (default action)")
	fs.BoolVarP(&f.epub2, "epub2", "2", false, "Convert to EPUB 2 instead of EPUB 3")
	fs.BoolVarP(&f.pdf, "pdf", "p", false, "Extract PDF from print replica, create PDF from comics & children's")
	fs.BoolVarP(&f.cbz, "cbz", "z", false, "Create CBZ from comics & children's")
	fs.BoolVarP(&f.unpack, "unpack", "u", false, "Create a ZIP file with extracted resources")
	fs.BoolVarP(&f.json, "json-content", "j", false, "Create a JSON content/position file")
	fs.BoolVarP(&f.cover, "cover", "c", false, "Create a generic EPUB cover page if the book does not already have one")
	fs.BoolVar(&f.fixed, "fixed-layout", false, "Write image based books as pre-paginated EPUB")
	fs.StringVar(&f.configPath, "config", "", "Configuration file path")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.logFormat, "log-format", "", "Log format (auto, console, json)")
	return cmd
}

func (f flags) formats() []render.Format {
	var out []render.Format
	if f.unpack {
		out = append(out, render.FormatUnpack)
	}
	if f.json {
		out = append(out, render.FormatPosition)
	}
	if f.cbz {
		out = append(out, render.FormatCBZ)
	}
	if f.pdf {
		out = append(out, render.FormatPDF)
	}
	if f.epub || f.epub2 || len(out) == 0 {
		out = append(out, render.FormatEPUB)
	}
	return out
}

// loadConfig reads the configuration file and lets command line flags win.
func loadConfig(f flags) (*config.Config, error) {
	cfg, _, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		cfg.Logging.Level = strings.ToLower(f.logLevel)
	}
	if f.logFormat != "" {
		cfg.Logging.Format = strings.ToLower(f.logFormat)
	}
	cfg.Output.EPUB2 = cfg.Output.EPUB2 || f.epub2
	cfg.Output.ForceCover = cfg.Output.ForceCover || f.cover
	cfg.Output.AllowFixedLayout = cfg.Output.AllowFixedLayout || f.fixed
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cmd *cobra.Command, f flags, inPath, outPath string) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	opts := cfg.LoggingOptions()
	opts.Writer = cmd.ErrOrStderr()
	logger, err := logging.New(opts)
	if err != nil {
		return err
	}
	logger = logging.NewComponentLogger(logger, "kfxconv")

	in, err := source.Open(inPath)
	if err != nil {
		return err
	}
	logger.Info("processing", logging.String(logging.FieldInput, inPath), logging.Int("parts", len(in.Parts)))

	res, err := convert.Convert(in.Parts,
		convert.Request{Formats: f.formats(), Options: cfg.RenderOptions()},
		convert.WithLogger(logger),
		convert.WithReadOptions(kfx.WithReadLimits(cfg.ReadLimits())),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", inPath, err)
	}

	rows := make([][]string, 0, len(res.Outputs))
	failed := 0
	for _, o := range res.Outputs {
		if o.Err != nil {
			failed++
			rows = append(rows, []string{string(o.Format), "failed", o.Err.Error(), ""})
			continue
		}
		path := outputPath(cfg, inPath, outPath, o.Format)
		if err := os.WriteFile(path, o.Data, 0o644); err != nil {
			failed++
			rows = append(rows, []string{string(o.Format), "failed", err.Error(), ""})
			continue
		}
		rows = append(rows, []string{string(o.Format), "ok", path, humanize.Bytes(uint64(len(o.Data)))})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, renderTable([]string{"Output", "Status", "File", "Size"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight}))
	warnings := len(res.Report.Warnings())
	if warnings > 0 {
		fmt.Fprintln(w, strconv.Itoa(warnings)+" "+plural(warnings, "warning"))
	}
	for _, e := range res.Report.Warnings() {
		if e.Message == "book contains PDF content" {
			fmt.Fprintln(w, "This book contains PDF content. Use the --pdf option to extract it.")
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d %s failed", failed, len(res.Outputs), plural(len(res.Outputs), "output"))
	}
	return nil
}

// outputPath places an output next to the input, or in output.dir when the
// configuration sets one and no explicit outfile was given.
func outputPath(cfg *config.Config, inPath, outPath string, format render.Format) string {
	path := source.OutputPath(inPath, outPath, format.Extension())
	if outPath == "" && cfg.Output.Dir != "" {
		path = filepath.Join(cfg.Output.Dir, filepath.Base(path))
	}
	return path
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
