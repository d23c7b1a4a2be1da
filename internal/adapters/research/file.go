package research

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teatimedev/polymarket-trader/internal/domain"
	"github.com/teatimedev/polymarket-trader/internal/ports"
)

// FileProvider serves operator-supplied estimates from a YAML file.
// The file is re-read when its modification time changes.
//
//	estimates:
//	  - market_id: "0xabc"
//	    probability: 0.55
//	    confidence: 0.8
//	    evidence: ["poll average", "model"]
//	    timestamp: 2026-10-16T09:00:00Z
type FileProvider struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	byID    map[string]domain.ProbabilityEstimate
}

var _ ports.ProbabilityProvider = (*FileProvider)(nil)

type estimateFile struct {
	Estimates []fileEstimate `yaml:"estimates"`
}

type fileEstimate struct {
	MarketID    string    `yaml:"market_id"`
	Probability float64   `yaml:"probability"`
	Confidence  float64   `yaml:"confidence"`
	SourceCount int       `yaml:"source_count"`
	Evidence    []string  `yaml:"evidence"`
	Timestamp   time.Time `yaml:"timestamp"`
}

// NewFileProvider loads path once to fail fast on a malformed file.
func NewFileProvider(path string) (*FileProvider, error) {
	p := &FileProvider{path: path}
	if err := p.reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Estimate implements ports.ProbabilityProvider. topic is unused: the file is keyed by market.
func (p *FileProvider) Estimate(_ context.Context, marketID, _ string) (domain.ProbabilityEstimate, error) {
	if err := p.reload(); err != nil {
		return domain.ProbabilityEstimate{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	est, ok := p.byID[marketID]
	if !ok {
		return domain.ProbabilityEstimate{}, fmt.Errorf("research.FileProvider: %s: %w", marketID, domain.ErrNotFound)
	}
	est.Evidence = append([]string(nil), est.Evidence...)
	return est, nil
}

func (p *FileProvider) reload() error {
	info, err := os.Stat(p.path)
	if err != nil {
		return fmt.Errorf("research.FileProvider: stat %s: %w", p.path, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.byID != nil && info.ModTime().Equal(p.modTime) {
		return nil
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("research.FileProvider: read %s: %w", p.path, err)
	}
	var f estimateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("research.FileProvider: parse %s: %v: %w", p.path, err, domain.ErrValidation)
	}

	byID := make(map[string]domain.ProbabilityEstimate, len(f.Estimates))
	for i, e := range f.Estimates {
		if e.MarketID == "" {
			return fmt.Errorf("research.FileProvider: estimates[%d]: market_id is required: %w", i, domain.ErrValidation)
		}
		sources := e.SourceCount
		if sources == 0 {
			sources = len(e.Evidence)
		}
		byID[e.MarketID] = domain.ProbabilityEstimate{
			MarketID:    e.MarketID,
			Probability: e.Probability,
			Confidence:  e.Confidence,
			SourceCount: sources,
			Evidence:    e.Evidence,
			Timestamp:   e.Timestamp,
		}
	}
	p.byID = byID
	p.modTime = info.ModTime()
	return nil
}
