package scai

import (
	"context"
	"sync"
)

// MockBackend is a test double for the SCAI backend. Questions are served
// from the queue in order; the last one repeats once the queue runs dry.
type MockBackend struct {
	mu sync.Mutex

	Questions   []QuestionResponse
	Explanation []string
	Explain     []string
	Err         error

	QuestionRequests []QuestionRequest
	AnswerRequests   []AnswerRequest
	ExplainRequests  []ExplainRequest
}

func (m *MockBackend) GenerateQuestion(_ context.Context, req QuestionRequest) (QuestionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QuestionRequests = append(m.QuestionRequests, req)
	if m.Err != nil {
		return QuestionResponse{}, m.Err
	}
	if len(m.Questions) == 0 {
		return QuestionResponse{Status: "success", Question: []string{"mock question"}, ID: "1"}, nil
	}
	q := m.Questions[0]
	if len(m.Questions) > 1 {
		m.Questions = m.Questions[1:]
	}
	return q, nil
}

func (m *MockBackend) SubmitAnswer(_ context.Context, req AnswerRequest) (AnswerResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AnswerRequests = append(m.AnswerRequests, req)
	if m.Err != nil {
		return AnswerResponse{}, m.Err
	}
	return AnswerResponse{Explanation: m.Explanation}, nil
}

func (m *MockBackend) ExplainAnswer(_ context.Context, req ExplainRequest) (ExplainResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExplainRequests = append(m.ExplainRequests, req)
	if m.Err != nil {
		return ExplainResponse{}, m.Err
	}
	return ExplainResponse{Explain: m.Explain}, nil
}
