package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	rerrors "github.com/matzehuels/restyle/pkg/errors"
	"github.com/matzehuels/restyle/pkg/pipeline"
	"github.com/matzehuels/restyle/pkg/style"
)

// renderOpts holds the command-line flags for the render command.
type renderOpts struct {
	styles  []string // style names; empty means ask, or Modern when not interactive
	all     bool     // render every style
	quality int      // JPEG quality, 0 means the configured default
	output  string   // output file, only for one photo in one style
	outDir  string   // output directory, default next to each photo
	noCache bool     // skip the artifact cache
	strict  bool     // reject unknown style names
}

// renderJob is one rendered file ready to be written.
type renderJob struct {
	input  string
	path   string
	result *pipeline.Result
}

// renderCommand creates the render command.
//
// Each photo is rendered in each requested style. Output files are named
// <photo>_<Style>.jpg unless --output names a single file.
func (c *CLI) renderCommand() *cobra.Command {
	var opts renderOpts

	cmd := &cobra.Command{
		Use:   "render <photo>...",
		Short: "Restyle room photos",
		Long: `Render applies interior styles to room photos and writes JPEG files.

Style names are case-sensitive. Unknown names render without a tint unless
--strict is set. When no style is given and the terminal is interactive, a
picker is shown; otherwise Modern is used.`,
		Example: `  restyle render living-room.jpg -s Nordic
  restyle render *.png --all -d out/
  restyle render room.jpg -s Japanese -q 95 -o redesigned.jpg`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runRender(cmd.Context(), args, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.styles, "style", "s", nil, "style name(s), comma-separated: "+strings.Join(style.Names(), ", "))
	cmd.Flags().BoolVar(&opts.all, "all", false, "render every style")
	cmd.Flags().IntVarP(&opts.quality, "quality", "q", 0, "JPEG quality 1-100 (default from config, 85)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (one photo, one style)")
	cmd.Flags().StringVarP(&opts.outDir, "out-dir", "d", "", "output directory (default: next to each photo)")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the artifact cache")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "fail on unknown style names")
	cmd.MarkFlagsMutuallyExclusive("style", "all")
	cmd.MarkFlagsMutuallyExclusive("output", "out-dir")

	_ = cmd.RegisterFlagCompletionFunc("style", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return style.Names(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func (c *CLI) runRender(ctx context.Context, inputs []string, opts renderOpts) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	names, err := c.resolveStyles(opts)
	if err != nil {
		return err
	}
	if names == nil {
		printDetail("No style selected")
		return nil
	}
	if len(names) == 0 {
		return fmt.Errorf("no style given")
	}
	if opts.output != "" && len(inputs)*len(names) > 1 {
		return fmt.Errorf("--output needs exactly one photo and one style, got %d photos and %d styles", len(inputs), len(names))
	}

	if err := checkOutputs(inputs, names, opts); err != nil {
		return err
	}

	if opts.outDir != "" {
		if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	runner, err := c.newRunner(cfg, opts.noCache)
	if err != nil {
		return err
	}
	defer runner.Close()

	base := pipeline.Options{
		Quality: opts.quality,
		Strict:  opts.strict || cfg.Render.StrictStyles,
	}
	if !base.Strict {
		for _, n := range unknownStyles(names) {
			printWarning("Unknown style %q renders without a tint", n)
		}
	}
	if base.Quality == 0 {
		base.Quality = cfg.Render.Quality
	}

	prog := newProgress(c.Logger)
	spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Rendering %d photo(s) in %s...", len(inputs), strings.Join(names, ", ")))
	spinner.Start()

	jobs, err := renderAll(ctx, runner, inputs, names, base, opts)
	spinner.Stop()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		printError("%s", rerrors.UserMessage(err))
		return err
	}

	for _, job := range jobs {
		if err := os.WriteFile(job.path, job.result.Artifact, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", job.path, err)
		}
	}

	printSuccess("Rendered %d image(s)", len(jobs))
	for _, job := range jobs {
		printFile(job.path)
		printRenderStats(job.result.Style, job.result.Width, job.result.Height, len(job.result.Artifact), job.result.CacheInfo.RenderHit)
	}
	prog.done("Render complete", "images", len(jobs))
	return nil
}

// renderAll renders every photo in every style. Photos are processed
// concurrently; the runner bounds how many renders run at once.
func renderAll(ctx context.Context, runner *pipeline.Runner, inputs, names []string, base pipeline.Options, opts renderOpts) ([]renderJob, error) {
	perInput := make([][]renderJob, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	for i, input := range inputs {
		g.Go(func() error {
			src, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("read %s: %w", input, err)
			}
			results, err := runner.ExecuteBatch(gctx, src, names, base)
			if err != nil {
				return fmt.Errorf("%s: %w", input, err)
			}
			jobs := make([]renderJob, len(results))
			for j, res := range results {
				jobs[j] = renderJob{
					input:  input,
					path:   outputPath(input, res.Style, opts),
					result: res,
				}
			}
			perInput[i] = jobs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []renderJob
	for _, jobs := range perInput {
		all = append(all, jobs...)
	}
	return all, nil
}

// resolveStyles returns the styles to render. A nil slice with a nil error
// means the user dismissed the picker.
func (c *CLI) resolveStyles(opts renderOpts) ([]string, error) {
	switch {
	case opts.all:
		return style.Names(), nil
	case len(opts.styles) > 0:
		return dedupe(opts.styles), nil
	case stdinIsTerminal():
		name, err := pickStyle()
		if err != nil || name == "" {
			return nil, err
		}
		return []string{name}, nil
	default:
		return []string{style.Styles()[0].String()}, nil
	}
}

// outputPath names the file for input rendered in styleName.
func outputPath(input, styleName string, opts renderOpts) string {
	if opts.output != "" {
		return opts.output
	}
	dir := filepath.Dir(input)
	if opts.outDir != "" {
		dir = opts.outDir
	}
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	name := rerrors.SanitizeFilename(base+"_"+styleName+outputExt, "generated"+outputExt)
	return filepath.Join(dir, name)
}

// checkOutputs fails when two renders would write the same file, e.g.
// a/room.jpg and b/room.jpg with --out-dir, or room.jpg and room.png.
func checkOutputs(inputs, names []string, opts renderOpts) error {
	written := make(map[string]string, len(inputs)*len(names))
	for _, input := range inputs {
		for _, name := range names {
			path := outputPath(input, name, opts)
			key := filepath.Clean(path)
			job := fmt.Sprintf("%s in %s", input, name)
			if prev, ok := written[key]; ok {
				return fmt.Errorf("%s and %s would both write %s; rename one of the photos or render them separately", prev, job, path)
			}
			written[key] = job
		}
	}
	return nil
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// unknownStyles returns the names that are not built-in styles.
func unknownStyles(names []string) []string {
	var out []string
	for _, n := range names {
		if _, ok := style.Lookup(n); !ok {
			out = append(out, n)
		}
	}
	return out
}
