// Package batch scrubs many files concurrently. Each file is an independent
// invocation with its own token state.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/faheem-arif/pii-scrubber/pkg/scrub"
)

// ErrDuplicateOutput is returned when two inputs would write the same artifact.
var ErrDuplicateOutput = errors.New("inputs map to the same output file")

// Runner scrubs files and writes their artifacts.
type Runner struct {
	Engine  *scrub.Engine
	Options scrub.Options

	// OutDir receives artifacts. Empty writes next to each input.
	OutDir string

	// Concurrency bounds parallel files. Zero uses GOMAXPROCS.
	Concurrency int

	// WriteReport emits <name>.report.json next to the scrubbed file.
	WriteReport bool

	// Logger may be nil. Callers warn about mapping files themselves.
	Logger *log.Logger
}

// FileResult describes the artifacts written for one input.
type FileResult struct {
	Input       string         `json:"input"`
	Scrubbed    string         `json:"scrubbed"`
	Report      string         `json:"report,omitempty"`
	Mapping     string         `json:"mapping,omitempty"`
	Findings    int            `json:"findings"`
	ByType      map[string]int `json:"byType"`
	LimitHit    bool           `json:"limitHit,omitempty"`
	DurationMS  int64          `json:"durationMs"`
	InputBytes  int            `json:"inputBytes"`
	OutputBytes int            `json:"outputBytes"`
}

// Artifacts returns the output paths for input.
func Artifacts(input, outDir string) (scrubbed, report, mapping string) {
	dir := filepath.Dir(input)
	if outDir != "" {
		dir = outDir
	}
	base := filepath.Base(input)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)

	return filepath.Join(dir, name+".scrubbed"+ext),
		filepath.Join(dir, name+".report.json"),
		filepath.Join(dir, name+".mapping.jsonl")
}

// Run scrubs every path. Results are returned in input order. The first
// failure cancels the remaining work.
func (r *Runner) Run(ctx context.Context, paths []string) ([]FileResult, error) {
	if err := r.Options.Validate(); err != nil {
		return nil, err
	}
	if err := checkCollisions(paths, r.OutDir); err != nil {
		return nil, err
	}
	if r.OutDir != "" {
		if err := os.MkdirAll(r.OutDir, 0o750); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}

	engine := r.Engine
	if engine == nil {
		engine = scrub.NewEngine()
	}
	limit := r.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	results := make([]FileResult, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := r.scrubFile(engine, path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = *res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Runner) scrubFile(engine *scrub.Engine, path string) (*FileResult, error) {
	start := time.Now()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	result, err := engine.Scrub(string(data), r.Options)
	if err != nil {
		return nil, err
	}

	scrubbedPath, reportPath, mappingPath := Artifacts(path, r.OutDir)
	res := &FileResult{
		Input:       path,
		Scrubbed:    scrubbedPath,
		Findings:    result.Report.TotalFindings,
		ByType:      result.Report.ByType,
		LimitHit:    result.Report.LimitHit(),
		InputBytes:  len(data),
		OutputBytes: len(result.ScrubbedText),
	}

	if err := writeFile(scrubbedPath, []byte(result.ScrubbedText), 0o644); err != nil {
		return nil, err
	}

	if r.WriteReport {
		report, err := result.Report.JSON()
		if err != nil {
			return nil, err
		}
		if err := writeFile(reportPath, report, 0o644); err != nil {
			return nil, err
		}
		res.Report = reportPath
	}

	if result.HasMapping() {
		mapping, err := result.MappingJSONL()
		if err != nil {
			return nil, err
		}
		// The mapping holds original values.
		if err := writeFile(mappingPath, []byte(mapping), 0o600); err != nil {
			return nil, err
		}
		res.Mapping = mappingPath
	}

	res.DurationMS = time.Since(start).Milliseconds()
	if r.Logger != nil {
		r.Logger.Info("scrubbed file",
			"file", filepath.Base(path),
			"mode", result.Mode,
			"findings", res.Findings,
			"limit_hit", res.LimitHit,
			"duration", time.Since(start).Round(time.Millisecond),
		)
		if res.Mapping != "" {
			r.Logger.Debug("wrote mapping log", "file", res.Mapping, "records", len(result.MappingRecords))
		}
	}
	return res, nil
}

func checkCollisions(paths []string, outDir string) error {
	seen := make(map[string]string, len(paths))
	for _, p := range paths {
		scrubbed, _, _ := Artifacts(p, outDir)
		key := filepath.Clean(scrubbed)
		if prev, ok := seen[key]; ok {
			return fmt.Errorf("%w: %s and %s", ErrDuplicateOutput, prev, p)
		}
		seen[key] = p
	}
	return nil
}

// writeFile writes data through a temp file and rename so readers never see a partial artifact.
func writeFile(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
