// Package filesource collects evidence from a local drop directory. External
// tooling that cannot call the submission API writes one JSON document per
// artifact; each run picks up the documents collected inside the window.
package filesource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"creaturegrc/internal/collection"
	"creaturegrc/internal/evidence"
	id "creaturegrc/pkg/domain"
)

// document is the on-disk envelope. Data is kept opaque; the whole file is
// the evidence payload so its hash covers the envelope too.
type document struct {
	ControlCode string          `json:"control_code"`
	Framework   string          `json:"framework"`
	Type        string          `json:"type"`
	CollectedAt time.Time       `json:"collected_at"`
	Data        json.RawMessage `json:"data"`
}

// Source reads evidence documents from one directory.
type Source struct {
	dir string
}

func New(dir string) *Source {
	return &Source{dir: dir}
}

// ProduceEvidence returns one payload per JSON document whose collection
// time falls inside the window. Unreadable or malformed files abort the run
// after yielding the documents read so far, so the runner records a partial
// outcome instead of silently dropping artifacts.
func (s *Source) ProduceEvidence(ctx context.Context, window id.Period) ([]collection.Payload, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read drop directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var payloads []collection.Payload
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return payloads, err
		}
		path := filepath.Join(s.dir, name)
		raw, err := os.ReadFile(path)
		if err != nil {
			return payloads, fmt.Errorf("read %s: %w", name, err)
		}
		var doc document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return payloads, fmt.Errorf("parse %s: %w", name, err)
		}
		if !window.Contains(doc.CollectedAt) {
			continue
		}
		payloads = append(payloads, collection.Payload{
			ControlCode: doc.ControlCode,
			Framework:   doc.Framework,
			Type:        evidence.Type(doc.Type),
			PayloadRef:  "file://" + path,
			Payload:     raw,
			CollectedAt: doc.CollectedAt,
		})
	}
	return payloads, nil
}
