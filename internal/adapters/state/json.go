// Package state persists run artifacts. Plans are YAML, summaries and
// results JSON; every write is atomic so a crash never leaves a torn
// artifact behind.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/agentmesh/agentmesh/internal/core"
	"github.com/agentmesh/agentmesh/internal/logging"
	"github.com/agentmesh/agentmesh/internal/service"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644

	planFile    = "plan.yaml"
	summaryFile = "summary.json"
	resultsFile = "results.json"
	reportFile  = "report.txt"
)

// Store lays out run artifacts under <base>/runs/<run-id>/.
type Store struct {
	baseDir string
	logger  *logging.Logger
}

// NewStore creates a store rooted at baseDir.
func NewStore(baseDir string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{baseDir: baseDir, logger: logger}
}

// RunDir returns the artifact directory for a run.
func (s *Store) RunDir(runID string) string {
	return filepath.Join(s.baseDir, "runs", runID)
}

// SavePlan persists the synthesized workflow document.
func (s *Store) SavePlan(runID string, doc service.Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	return s.write(runID, planFile, data)
}

// LoadPlan reads a previously saved workflow document.
func (s *Store) LoadPlan(runID string) (service.Document, error) {
	var doc service.Document
	data, err := os.ReadFile(filepath.Join(s.RunDir(runID), planFile))
	if err != nil {
		return doc, err
	}
	err = yaml.Unmarshal(data, &doc)
	return doc, err
}

// SaveSummary persists the run summary.
func (s *Store) SaveSummary(summary *core.RunSummary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	return s.write(summary.RunID, summaryFile, data)
}

// LoadSummary reads a previously saved run summary.
func (s *Store) LoadSummary(runID string) (*core.RunSummary, error) {
	data, err := os.ReadFile(filepath.Join(s.RunDir(runID), summaryFile))
	if err != nil {
		return nil, err
	}
	var summary core.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// SaveResults persists the per-step results in step id order.
func (s *Store) SaveResults(runID string, ectx *core.ExecutionContext) error {
	results := make([]core.Result, 0, ectx.Len())
	for _, id := range ectx.StepIDs() {
		if res, ok := ectx.Get(id); ok {
			results = append(results, res)
		}
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	return s.write(runID, resultsFile, data)
}

// SaveReport persists the rendered report text.
func (s *Store) SaveReport(runID, report string) error {
	return s.write(runID, reportFile, []byte(report))
}

func (s *Store) write(runID, name string, data []byte) error {
	dir := s.RunDir(runID)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return core.ErrState("STATE_DIR", "cannot create run directory").WithCause(err)
	}
	path := filepath.Join(dir, name)
	if err := writeFileAtomic(path, data, filePerm); err != nil {
		return core.ErrState("STATE_WRITE", "cannot write "+name).WithCause(err)
	}
	s.logger.Debug("artifact written", "path", path, "bytes", len(data))
	return nil
}

func fileMode(perm uint32) os.FileMode {
	return os.FileMode(perm)
}
