package classifier

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cdipaolo/goml/base"
	"github.com/cdipaolo/goml/text"
	"github.com/nao1215/toxguard/internal/model"
)

// Files a local model directory must contain.
const (
	ModelConfigFile  = "config.json"
	ModelDatasetFile = "dataset.tsv"
)

// BayesConfig is the content of config.json in a model directory.
type BayesConfig struct {
	// Label names the toxic class in classifier output.
	Label string `json:"label"`
}

// Bayes is a local naive Bayes classifier trained from a labelled dataset.
//
// The model directory holds config.json and dataset.tsv, one example per
// line as "<label>\t<text>" where label is 1/toxic or 0/clean. Training
// happens on the first preflight or batch.
type Bayes struct {
	dir string

	mu    sync.Mutex
	label string
	model *text.NaiveBayes
}

// NewBayes creates a backend for the model in dir.
func NewBayes(dir string) *Bayes {
	return &Bayes{dir: dir}
}

// Name implements Backend.
func (b *Bayes) Name() string {
	return "bayes"
}

// Preflight checks the model files and trains the model.
func (b *Bayes) Preflight(_ context.Context) error {
	return b.load()
}

// Classify implements Backend.
func (b *Bayes) Classify(ctx context.Context, texts []string) ([][]model.LabelScore, error) {
	if err := b.load(); err != nil {
		return nil, err
	}
	out := make([][]model.LabelScore, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		class, p := b.model.Probability(t)
		score := p
		if class != 1 {
			score = 1 - p
		}
		out[i] = []model.LabelScore{{Label: b.label, Score: score}}
	}
	return out, nil
}

// load trains the model once; a failed attempt is retried on the next call.
func (b *Bayes) load() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.model != nil {
		return nil
	}
	return b.train()
}

func (b *Bayes) train() error {
	if err := CheckModelFiles(b.dir, ModelConfigFile, ModelDatasetFile); err != nil {
		return err
	}

	cfg, err := readBayesConfig(filepath.Join(b.dir, ModelConfigFile))
	if err != nil {
		return err
	}
	b.label = cfg.Label
	if b.label == "" {
		b.label = "toxic"
	}

	f, err := os.Open(filepath.Clean(filepath.Join(b.dir, ModelDatasetFile)))
	if err != nil {
		return fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	rows, err := readDataset(f)
	if err != nil {
		return err
	}

	stream := make(chan base.TextDatapoint, 100)
	errs := make(chan error)
	nb := text.NewNaiveBayes(stream, 2, base.OnlyWordsAndNumbers)
	nb.Output = io.Discard
	go nb.OnlineLearn(errs)

	for _, r := range rows {
		stream <- r
	}
	close(stream)

	// OnlineLearn closes errs once the stream is drained
	for e := range errs {
		if e != nil {
			return fmt.Errorf("failed to train model: %w", e)
		}
	}

	b.model = nb
	return nil
}

func readBayesConfig(path string) (*BayesConfig, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read model config: %w", err)
	}
	var cfg BayesConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse model config: %w", err)
	}
	return &cfg, nil
}

// readDataset parses "<label>\t<text>" rows. Blank lines and lines
// starting with # are skipped.
func readDataset(r io.Reader) ([]base.TextDatapoint, error) {
	var rows []base.TextDatapoint
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		label, txt, ok := strings.Cut(line, "\t")
		if !ok || strings.TrimSpace(txt) == "" {
			continue
		}
		var y uint8
		switch strings.ToLower(strings.TrimSpace(label)) {
		case "1", "toxic":
			y = 1
		case "0", "clean":
			y = 0
		default:
			continue
		}
		rows = append(rows, base.TextDatapoint{X: txt, Y: y})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyDataset
	}
	return rows, nil
}
