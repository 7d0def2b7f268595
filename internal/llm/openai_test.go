package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewOpenAIClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		client := NewOpenAIClient(OpenAIConfig{
			APIKey: "test-key",
		})

		if client.model != "gpt-3.5-turbo" {
			t.Errorf("model = %q, want %q", client.model, "gpt-3.5-turbo")
		}

		if client.maxTokens != 200 {
			t.Errorf("maxTokens = %d, want 200", client.maxTokens)
		}

		if client.baseURL != defaultOpenAIBaseURL {
			t.Errorf("baseURL = %q, want %q", client.baseURL, defaultOpenAIBaseURL)
		}

		if client.systemPrompt != SystemPromptTriage {
			t.Error("systemPrompt should default to SystemPromptTriage")
		}

		if client.apiKey != "test-key" {
			t.Errorf("apiKey = %q, want %q", client.apiKey, "test-key")
		}
	})

	t.Run("custom model and base url", func(t *testing.T) {
		client := NewOpenAIClient(OpenAIConfig{
			APIKey:  "test-key",
			Model:   "gpt-4o-mini",
			BaseURL: "http://localhost:8080/v1/",
		})

		if client.model != "gpt-4o-mini" {
			t.Errorf("model = %q, want %q", client.model, "gpt-4o-mini")
		}
		if client.baseURL != "http://localhost:8080/v1" {
			t.Errorf("baseURL = %q, want trailing slash trimmed", client.baseURL)
		}
	})
}

func TestNewOpenAIClient_CustomSystemPrompt(t *testing.T) {
	client := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", SystemPrompt: "Custom prompt"})

	got := client.systemPromptWithGuardrails()
	if !strings.HasPrefix(got, "Custom prompt") {
		t.Errorf("system prompt = %q, want custom prefix", got)
	}
	if !strings.Contains(got, ConversationGuardrails) {
		t.Error("guardrails should always be appended")
	}
}

func TestReply_Temperature(t *testing.T) {
	zero := 0.0
	tests := []struct {
		name        string
		temperature *float64
		want        string
	}{
		{"unset omitted", nil, ""},
		{"zero sent", &zero, `"temperature":0`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw map[string]json.RawMessage
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
					t.Fatalf("decode request: %v", err)
				}
				_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
			}))
			defer srv.Close()

			client := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, Temperature: tt.temperature})
			if _, err := client.Reply(context.Background(), nil); err != nil {
				t.Fatalf("Reply failed: %v", err)
			}

			got, ok := raw["temperature"]
			if tt.want == "" {
				if ok {
					t.Errorf("temperature = %s, want omitted", got)
				}
				return
			}
			if !ok || `"temperature":`+string(got) != tt.want {
				t.Errorf("temperature = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSystemPromptTriage(t *testing.T) {
	expectedPhrases := []string{
		"Lucilta",
		"triagem",
		"192",
		"especialista",
		"3 perguntas",
	}

	for _, phrase := range expectedPhrases {
		if !strings.Contains(SystemPromptTriage, phrase) {
			t.Errorf("SystemPromptTriage should contain %q", phrase)
		}
	}
}

func TestReply(t *testing.T) {
	var got chatRequest
	var auth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Quais são seus sintomas?  "}}]}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})
	reply, err := client.Reply(context.Background(), []Message{
		{Role: RoleAssistant, Content: "Olá! Qual o seu nome?"},
		{Role: RoleUser, Content: "Meu nome é Ana"},
	})
	if err != nil {
		t.Fatalf("Reply failed: %v", err)
	}

	if reply != "Quais são seus sintomas?" {
		t.Errorf("reply = %q, want trimmed content", reply)
	}
	if auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", auth)
	}
	if got.Model != "gpt-3.5-turbo" || got.MaxTokens != 200 {
		t.Errorf("request model/max_tokens = %q/%d", got.Model, got.MaxTokens)
	}
	if len(got.Messages) != 3 {
		t.Fatalf("len(messages) = %d, want 3", len(got.Messages))
	}
	if got.Messages[0].Role != RoleSystem || !strings.Contains(got.Messages[0].Content, "Lucilta") {
		t.Errorf("first message should be the system prompt, got %+v", got.Messages[0])
	}
	if got.Messages[2].Content != "Meu nome é Ana" {
		t.Errorf("last message = %+v", got.Messages[2])
	}
}

func TestReply_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"upstream error", http.StatusInternalServerError, `{"error":"boom"}`},
		{"unauthorized", http.StatusUnauthorized, `{"error":"bad key"}`},
		{"no choices", http.StatusOK, `{"choices":[]}`},
		{"bad json", http.StatusOK, `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})
			if _, err := client.Reply(context.Background(), nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestReply_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":""}}]}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})
	reply, err := client.Reply(context.Background(), nil)
	if err != nil {
		t.Fatalf("Reply failed: %v", err)
	}
	if reply != "" {
		t.Errorf("reply = %q, want empty", reply)
	}
}
