package http

import (
	"errors"
	"net/http"
	"testing"
)

func TestGenerationRoutes_Converse(t *testing.T) {
	srv := newTestServer(t, testOptions{})
	srv.llm.Response = "hola"

	rec := performRequest(srv.router, http.MethodPost, "/service/generation/v1/converse", map[string]any{
		"contents": []any{
			"hi",
			map[string]any{"role": "assistant", "content": "hello"},
			"how are you?",
		},
		"system": "be brief",
		"model":  "tiny",
	}, apiKey())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var out struct {
		Content string `json:"content"`
	}
	decodeBody(t, rec, &out)
	if out.Content != "hola" {
		t.Fatalf("unexpected content %q", out.Content)
	}

	last := srv.llm.Last
	if len(last.Messages) != 3 || last.Messages[0].Role != "user" || last.Messages[1].Role != "assistant" {
		t.Fatalf("unexpected messages %+v", last.Messages)
	}
	if last.System != "be brief" || last.Model != "tiny" {
		t.Fatalf("unexpected input %+v", last)
	}
}

func TestGenerationRoutes_InvalidContents(t *testing.T) {
	srv := newTestServer(t, testOptions{})
	cases := []map[string]any{
		{},
		{"contents": []any{}},
		{"contents": []any{42}},
		{"contents": []any{map[string]any{"role": "user"}}},
	}
	for _, body := range cases {
		rec := performRequest(srv.router, http.MethodPost, "/service/generation/v1/converse", body, apiKey())
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %v: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestGenerationRoutes_ProviderError(t *testing.T) {
	srv := newTestServer(t, testOptions{})
	srv.llm.Err = errors.New("upstream down")

	rec := performRequest(srv.router, http.MethodPost, "/service/generation/v1/converse", map[string]any{
		"contents": []any{"hi"},
	}, apiKey())
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
