package llm

import "context"

// MockClient permite tests sin llamar a un LLM real. Guarda el último input recibido.
type MockClient struct {
	Response string
	Err      error
	Last     ConverseInput
}

func (m *MockClient) Converse(_ context.Context, in ConverseInput) (string, error) {
	m.Last = in
	return m.Response, m.Err
}
