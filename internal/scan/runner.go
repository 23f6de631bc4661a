// Package scan collects file sizes per mime type from a directory tree.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"go-ds-analysis-report-ui/internal/analysis"
)

const unknownMimeType = "application/octet-stream"

var (
	errSkippedLink = errors.New("symlink not followed")
	errNotRegular  = errors.New("not a regular file")
)

// Options controls which entries a Runner visits.
type Options struct {
	// Excludes are doublestar patterns matched against slash-separated paths
	// relative to the scanned root. A matching directory is not descended.
	Excludes []string
	// FollowSymlinks counts the targets of links to regular files. Links to
	// directories are never descended; they are counted as skipped links.
	FollowSymlinks bool
}

// Job is the outcome of one analysis run.
type Job struct {
	Source     string               `json:"source"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Stats      []analysis.TypeStats `json:"stats"`
	Files      int                  `json:"files"`
	TotalBytes int64                `json:"total_bytes"`
	Skipped    Skipped              `json:"skipped"`
}

// Skipped counts entries left out of the statistics, by reason.
type Skipped struct {
	Errors      int `json:"errors"`
	UnknownType int `json:"unknown_type"`
	Excluded    int `json:"excluded"`
	Links       int `json:"links"`
}

type Runner struct {
	opts Options
}

func NewRunner(opts Options) (*Runner, error) {
	for _, p := range opts.Excludes {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q", p)
		}
	}
	return &Runner{opts: opts}, nil
}

// Run walks root and groups the sizes of regular files by mime type.
// Entries that cannot be read, and files whose type cannot be guessed, are
// skipped and counted.
func (r *Runner) Run(ctx context.Context, root string) (Job, error) {
	root = NormalizeSource(root)
	info, err := os.Stat(root)
	if err != nil {
		return Job{}, err
	}
	if !info.IsDir() {
		return Job{}, fmt.Errorf("%s is not a directory", root)
	}

	job := Job{Source: root, StartedAt: time.Now().UTC()}
	sizes := map[string][]int64{}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			job.Skipped.Errors++
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}

		if r.excluded(root, path) {
			job.Skipped.Excluded++
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		size, err := r.fileSize(path, d)
		if errors.Is(err, errSkippedLink) {
			job.Skipped.Links++
			return nil
		}
		if err != nil {
			job.Skipped.Errors++
			return nil
		}

		mimeType := guessType(path)
		if mimeType == unknownMimeType {
			job.Skipped.UnknownType++
			return nil
		}
		sizes[mimeType] = append(sizes[mimeType], size)
		job.Files++
		job.TotalBytes += size
		return nil
	})
	if err != nil {
		return Job{}, err
	}

	job.Stats = make([]analysis.TypeStats, 0, len(sizes))
	for mimeType, s := range sizes {
		job.Stats = append(job.Stats, analysis.TypeStats{MimeType: mimeType, Sizes: s})
	}
	sort.Slice(job.Stats, func(i, j int) bool { return job.Stats[i].MimeType < job.Stats[j].MimeType })
	job.FinishedAt = time.Now().UTC()
	return job, nil
}

// NormalizeSource is the form under which a scanned root is recorded.
func NormalizeSource(root string) string {
	return filepath.Clean(strings.TrimSpace(root))
}

func (r *Runner) excluded(root, path string) bool {
	if len(r.opts.Excludes) == 0 {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, p := range r.opts.Excludes {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// fileSize returns the size of a regular file. Symlinks resolve only when
// FollowSymlinks is set and point at a file; errSkippedLink reports the rest.
func (r *Runner) fileSize(path string, d fs.DirEntry) (int64, error) {
	var (
		info fs.FileInfo
		err  error
	)
	if d.Type()&fs.ModeSymlink != 0 {
		if !r.opts.FollowSymlinks {
			return 0, errSkippedLink
		}
		info, err = os.Stat(path)
		if err == nil && info.IsDir() {
			return 0, errSkippedLink
		}
	} else {
		info, err = d.Info()
	}
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, errNotRegular
	}
	return info.Size(), nil
}

func guessType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return unknownMimeType
	}
	t := mime.TypeByExtension(ext)
	if t == "" {
		return unknownMimeType
	}
	mediaType, _, err := mime.ParseMediaType(t)
	if err != nil {
		return unknownMimeType
	}
	return mediaType
}

// IsCanceled reports whether err ended a run early.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
