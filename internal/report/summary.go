package report

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Summary is the diagnostics record of one run.
type Summary struct {
	Run        string         `yaml:"run"`
	Command    string         `yaml:"command"`
	WorkerID   int            `yaml:"worker_id,omitempty"`
	Workers    int            `yaml:"workers,omitempty"`
	StartedAt  time.Time      `yaml:"started_at"`
	FinishedAt time.Time      `yaml:"finished_at"`
	Counts     map[string]int `yaml:"counts"`
	Outputs    []string       `yaml:"outputs,omitempty"`
	// Unresolved lists catalog entries dropped before matching.
	Unresolved []string `yaml:"unresolved,omitempty"`
}

// WriteSummary saves s as YAML.
func WriteSummary(path string, s Summary) error {
	b, err := yaml.Marshal(s)
	if err != nil {
		return eris.Wrap(err, "report: encode summary")
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return eris.Wrapf(err, "report: write summary %s", path)
	}
	return nil
}

// ReadSummary loads a summary written by WriteSummary.
func ReadSummary(path string) (Summary, error) {
	var s Summary
	b, err := os.ReadFile(path)
	if err != nil {
		return s, eris.Wrapf(err, "report: read summary %s", path)
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, eris.Wrapf(err, "report: decode summary %s", path)
	}
	return s, nil
}
