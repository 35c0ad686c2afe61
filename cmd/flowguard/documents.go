package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/flowguard/pkg/models"
	"gopkg.in/yaml.v3"
)

var errUnsupportedFormat = errors.New("unsupported file format")

// readDocument decodes a JSON or YAML file into dst. YAML is normalized through JSON so both formats
// share the json field names of the models.
func readDocument(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
	case ".yaml", ".yml":
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("%s: decode yaml: %w", path, err)
		}

		if data, err = json.Marshal(raw); err != nil {
			return fmt.Errorf("%s: normalize yaml: %w", path, err)
		}
	default:
		return fmt.Errorf("%s: %w (use .json, .yaml or .yml)", path, errUnsupportedFormat)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	return nil
}

func readWorkflow(path string) (*models.Workflow, error) {
	var workflow models.Workflow
	if err := readDocument(path, &workflow); err != nil {
		return nil, err
	}

	return &workflow, nil
}

// writeWorkflow writes the workflow as indented JSON, or YAML for .yaml and .yml paths.
func writeWorkflow(path string, workflow *models.Workflow) error {
	data, err := json.MarshalIndent(workflow, "", "  ")
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var raw any
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}

		if data, err = yaml.Marshal(raw); err != nil {
			return err
		}
	default:
		data = append(data, '\n')
	}

	return os.WriteFile(path, data, 0o600)
}

func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(v)
}
