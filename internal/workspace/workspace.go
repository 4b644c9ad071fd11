package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mpataki/elecsyn/internal/models"
)

// Workspace owns the single netlist file a run produces.
type Workspace struct {
	Path string // absolute path of the netlist file
	Dir  string
}

// Open resolves outputPath to an absolute path. Nothing is created until the
// netlist is written.
func Open(outputPath string) (*Workspace, error) {
	if outputPath == "" {
		return nil, fmt.Errorf("output path must not be empty")
	}

	abs, err := filepath.Abs(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output path: %w", err)
	}

	return &Workspace{
		Path: abs,
		Dir:  filepath.Dir(abs),
	}, nil
}

// WriteNetlist writes content verbatim, replacing whatever the file held before.
func (w *Workspace) WriteNetlist(content string) (*models.NetlistArtifact, error) {
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(w.Path, []byte(content), 0644); err != nil {
		return nil, fmt.Errorf("failed to write netlist: %w", err)
	}

	return &models.NetlistArtifact{Content: content, Path: w.Path}, nil
}

// ReadNetlist loads a previously written netlist.
func (w *Workspace) ReadNetlist() (*models.NetlistArtifact, error) {
	data, err := os.ReadFile(w.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("netlist file not found: %s", w.Path)
		}
		return nil, fmt.Errorf("failed to read netlist: %w", err)
	}
	return &models.NetlistArtifact{Content: string(data), Path: w.Path}, nil
}
