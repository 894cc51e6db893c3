package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Veraticus/revfinder/internal/model"
)

// mockClassifier answers from a fixed table keyed by description.
// Unknown descriptions get a not-single-phase verdict.
type mockClassifier struct {
	answers map[string]model.Verdict
	errs    map[string]error
	calls   []model.ClassifyRequest
	// block makes Classify wait for ctx cancellation.
	block bool
	delay time.Duration
	mu    sync.Mutex
}

func newMockClassifier() *mockClassifier {
	return &mockClassifier{
		answers: make(map[string]model.Verdict),
		errs:    make(map[string]error),
	}
}

func (m *mockClassifier) answer(description string, singlePhase bool, code string) *mockClassifier {
	m.answers[description] = model.Verdict{
		SinglePhase:   model.TristateOf(singlePhase),
		SuggestedCode: code,
		Rationale:     fmt.Sprintf("mock verdict for %s", description),
		Source:        model.SourceExternal,
		Confidence:    model.ConfidenceMedium,
	}
	return m
}

func (m *mockClassifier) fail(description string, err error) *mockClassifier {
	m.errs[description] = err
	return m
}

func (m *mockClassifier) Classify(ctx context.Context, req model.ClassifyRequest) (model.Verdict, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if m.block {
		<-ctx.Done()
		return model.Verdict{}, ctx.Err()
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return model.Verdict{}, ctx.Err()
		}
	}

	if err, ok := m.errs[req.Description]; ok {
		return model.Verdict{}, err
	}
	if v, ok := m.answers[req.Description]; ok {
		return v, nil
	}
	return model.Verdict{
		SinglePhase: model.No,
		Rationale:   "not a single-phase product",
		Source:      model.SourceExternal,
	}, nil
}

func (m *mockClassifier) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockClassifier) callsFor(description string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Description == description {
			n++
		}
	}
	return n
}
