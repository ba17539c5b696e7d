// Package source turns command-line arguments or the job's input document
// into the ordered (ID, text) pairs the converter consumes.
//
// A location is a local path, a file:// URL, an http(s) URL or an
// s3://bucket/key URL. Sources are fetched concurrently but always come
// back in the order they were named.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"golang.org/x/sync/errgroup"

	"tabular/internal/merge"
)

// ErrNoSources is returned when there is nothing to convert.
var ErrNoSources = errors.New("source: no sources")

// Placeholder is the text of the single source produced when no input
// document exists, so the page can still show that data is missing.
const Placeholder = "data\nmissing"

// PlaceholderID is the ID of the placeholder source.
const PlaceholderID = "missing"

// Input says where the input document comes from. The first non-empty of
// JSON, JSONURL and JSONPath wins; a JSONPath that does not exist counts
// as empty.
type Input struct {
	JSON     string
	JSONURL  string
	JSONPath string
}

// inputDoc is the job input document.
type inputDoc struct {
	FileRelationships []string `json:"file_relationships"`
}

// Loader fetches and decodes sources.
type Loader struct {
	Fetcher     Fetcher
	Encoding    string
	Concurrency int
	Logger      *slog.Logger
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

// FromArgs loads every location named on the command line.
func (l *Loader) FromArgs(ctx context.Context, args []string) ([]merge.Source, error) {
	if len(args) == 0 {
		return nil, ErrNoSources
	}
	return l.Load(ctx, args)
}

// FromEnv resolves the input document and loads the sources it lists.
// Without any input document it returns the placeholder source.
func (l *Loader) FromEnv(ctx context.Context, in Input) ([]merge.Source, error) {
	log := l.logger()

	var doc string
	switch {
	case in.JSON != "":
		log.Info("reading input document from environment")
		doc = in.JSON
	case in.JSONURL != "":
		log.Info("reading input document from url", "url", in.JSONURL)
		b, err := l.Fetcher.Fetch(ctx, in.JSONURL)
		if err != nil {
			return nil, fmt.Errorf("input document: %w", err)
		}
		doc = string(b)
	case in.JSONPath != "":
		b, err := os.ReadFile(in.JSONPath)
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn("no input document; emitting placeholder", "path", in.JSONPath)
			return placeholder(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("input document: %w", err)
		}
		log.Info("reading input document from file", "path", in.JSONPath)
		doc = string(b)
	default:
		log.Warn("no input document; emitting placeholder")
		return placeholder(), nil
	}

	var d inputDoc
	if err := json.Unmarshal([]byte(doc), &d); err != nil {
		return nil, fmt.Errorf("input document: %w", err)
	}
	if len(d.FileRelationships) == 0 {
		return nil, fmt.Errorf("input document lists no file_relationships: %w", ErrNoSources)
	}
	return l.Load(ctx, d.FileRelationships)
}

func placeholder() []merge.Source {
	return []merge.Source{{ID: PlaceholderID, Text: Placeholder}}
}

// Load fetches and decodes locations with at most Concurrency fetches in
// flight. The result is in location order with unique IDs. The first
// failure cancels the remaining fetches.
func (l *Loader) Load(ctx context.Context, locations []string) ([]merge.Source, error) {
	if len(locations) == 0 {
		return nil, ErrNoSources
	}
	if l.Fetcher == nil {
		return nil, errors.New("source: loader has no fetcher")
	}
	limit := l.Concurrency
	if limit <= 0 {
		limit = 1
	}

	texts := make([]string, len(locations))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, loc := range locations {
		g.Go(func() error {
			raw, err := l.Fetcher.Fetch(gctx, loc)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", loc, err)
			}
			text, err := Decode(raw, l.Encoding)
			if err != nil {
				return fmt.Errorf("decode %s: %w", loc, err)
			}
			texts[i] = text
			l.logger().Debug("source loaded", "location", loc, "bytes", len(raw))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ids := UniqueIDs(locations)
	out := make([]merge.Source, len(locations))
	for i := range locations {
		out[i] = merge.Source{ID: ids[i], Text: texts[i]}
	}
	return out, nil
}

// ID derives a source ID from a location: the last path element, without
// any query string.
func ID(location string) string {
	if s := scheme(location); s != "" {
		if u, err := url.Parse(location); err == nil {
			if base := path.Base(u.Path); base != "." && base != "/" {
				return base
			}
			return u.Host
		}
	}
	return filepath.Base(location)
}

// UniqueIDs returns ID(location) for each location; repeats get a "#n"
// suffix, n counting from 2.
func UniqueIDs(locations []string) []string {
	seen := make(map[string]int, len(locations))
	taken := make(map[string]bool, len(locations))
	out := make([]string, len(locations))
	for i, loc := range locations {
		id := ID(loc)
		candidate := id
		for taken[candidate] {
			seen[id]++
			candidate = id + "#" + strconv.Itoa(seen[id]+1)
		}
		taken[candidate] = true
		out[i] = candidate
	}
	return out
}

// NewRouter returns a Router with HTTP and file fetchers, plus an S3
// fetcher when s3 is non-nil.
func NewRouter(hf *HTTPFetcher, s3 *S3Fetcher) Router {
	r := Router{File: FileFetcher{}}
	if hf != nil {
		r.HTTP = hf
	}
	if s3 != nil {
		r.S3 = s3
	}
	return r
}
