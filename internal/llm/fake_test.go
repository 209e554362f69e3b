package llm

import (
	"context"
	"sync"
)

type fakeClient struct {
	name string

	mu      sync.Mutex
	calls   int
	results []fakeResult
}

type fakeResult struct {
	resp *CompletionResponse
	err  error
}

func newFake(name string, results ...fakeResult) *fakeClient {
	return &fakeClient{name: name, results: results}
}

func (f *fakeClient) Name() string     { return f.name }
func (f *fakeClient) Models() []string { return []string{f.name + "-model"} }

func (f *fakeClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	r := f.results[idx]
	return r.resp, r.err
}

func (f *fakeClient) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
