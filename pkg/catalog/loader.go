package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/flowguard/pkg/models"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

// File is the on-disk shape of a catalog document.
type File struct {
	Nodes     []models.NodeDefinition   `json:"nodes"`
	Templates []models.TemplateMetadata `json:"templates"`
}

// Default builds the index from the embedded catalog of core nodes and starter templates.
func Default() (*Index, error) {
	file, err := Decode(defaultCatalog, ".yaml")
	if err != nil {
		return nil, &LoadError{Path: "embedded", Err: err}
	}

	return New(file.Nodes, file.Templates)
}

// Load reads catalog files concurrently and merges them, in argument order, into one index.
// Duplicate type ids or template ids across files are an error.
func Load(ctx context.Context, logger *slog.Logger, paths ...string) (*Index, error) {
	if len(paths) == 0 {
		return Default()
	}

	files := make([]*File, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			file, err := ReadFile(path)
			if err != nil {
				return err
			}

			logger.DebugContext(gctx, "catalog file read",
				"path", path,
				"nodes", len(file.Nodes),
				"templates", len(file.Templates),
			)

			files[i] = file

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var (
		nodes     []models.NodeDefinition
		templates []models.TemplateMetadata
	)

	for _, file := range files {
		nodes = append(nodes, file.Nodes...)
		templates = append(templates, file.Templates...)
	}

	idx, err := New(nodes, templates)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "catalog loaded",
		"files", len(paths),
		"nodes", idx.NodeCount(),
		"templates", idx.TemplateCount(),
	)

	return idx, nil
}

// ReadFile reads one catalog file. The format is chosen by extension: .yaml, .yml or .json.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	file, err := Decode(data, filepath.Ext(path))
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	return file, nil
}

// Decode parses catalog bytes. YAML documents are normalized through JSON so both formats share
// the json field names of the models.
func Decode(data []byte, ext string) (*File, error) {
	var file File

	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case ".yaml", ".yml":
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}

		normalized, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("normalize yaml: %w", err)
		}

		if err := json.Unmarshal(normalized, &file); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	return &file, nil
}
