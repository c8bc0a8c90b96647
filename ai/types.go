package ai

import "encoding/json"

// ChatMessage is one entry of the provider payload
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage carries the token accounting of one completion, normalized across
// provider naming schemes (prompt/completion, input/output,
// request/response). Fields the provider did not report stay nil.
type Usage struct {
	InputTokens  *int
	OutputTokens *int
	TotalTokens  *int
}

// UnmarshalJSON accepts the differently-named usage fields providers emit
// and fills the missing total from the two parts when both are present.
func (u *Usage) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	pick := func(keys ...string) *int {
		for _, k := range keys {
			v, ok := raw[k]
			if !ok {
				continue
			}
			var n int
			if err := json.Unmarshal(v, &n); err == nil {
				return &n
			}
		}
		return nil
	}

	u.InputTokens = pick("prompt_tokens", "input_tokens", "request_tokens")
	u.OutputTokens = pick("completion_tokens", "output_tokens", "response_tokens")
	u.TotalTokens = pick("total_tokens")

	if u.TotalTokens == nil && u.InputTokens != nil && u.OutputTokens != nil {
		total := *u.InputTokens + *u.OutputTokens
		u.TotalTokens = &total
	}

	return nil
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *Usage `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Completion is the result of one successful provider call
type Completion struct {
	Content string
	Usage   *Usage
}
