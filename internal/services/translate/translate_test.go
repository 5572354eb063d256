package translate_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"loom/internal/config"
	"loom/internal/services"
	"loom/internal/services/translate"
)

func testConfig(url string) config.Translation {
	cfg := config.Default().Translation
	cfg.APIKey = "test-key"
	cfg.BaseURL = url
	return cfg
}

func TestTranslateSendsChatRequest(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "  Hallo Welt  "}},
			},
		})
	}))
	defer server.Close()

	client, err := translate.New(testConfig(server.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := client.Translate(context.Background(), "Hello world")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "Hallo Welt" {
		t.Fatalf("translation = %q", got)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	messages, ok := gotBody["messages"].([]any)
	if !ok || len(messages) != 2 {
		t.Fatalf("messages = %v", gotBody["messages"])
	}
}

func TestTranslateBlankInputSkipsNetwork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request for blank input")
	}))
	defer server.Close()

	client, err := translate.New(testConfig(server.URL))
	if err != nil {
		t.Fatal(err)
	}
	got, err := client.Translate(context.Background(), "   ")
	if err != nil || got != "" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestTranslateClassifiesStatuses(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		fatal     bool
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, false, true},
		{"server error", http.StatusInternalServerError, false, true},
		{"unauthorized", http.StatusUnauthorized, true, false},
		{"bad request", http.StatusBadRequest, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tc.status)
			}))
			defer server.Close()

			client, err := translate.New(testConfig(server.URL))
			if err != nil {
				t.Fatal(err)
			}
			_, err = client.Translate(context.Background(), "Hello")
			if err == nil {
				t.Fatal("expected error")
			}
			if services.IsFatal(err) != tc.fatal {
				t.Fatalf("IsFatal = %v, want %v (%v)", services.IsFatal(err), tc.fatal, err)
			}
			if services.IsRetryable(err) != tc.retryable {
				t.Fatalf("IsRetryable = %v, want %v (%v)", services.IsRetryable(err), tc.retryable, err)
			}
		})
	}
}

func TestTranslateWaitsOutRateLimit(t *testing.T) {
	var calls int
	var requestIDs []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		requestIDs = append(requestIDs, r.Header.Get("X-Request-ID"))
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "Hallo"}},
			},
		})
	}))
	defer server.Close()

	client, err := translate.New(testConfig(server.URL))
	if err != nil {
		t.Fatal(err)
	}
	got, err := client.Translate(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "Hallo" {
		t.Fatalf("translation = %q", got)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
	if len(requestIDs) != 2 || requestIDs[0] == "" || requestIDs[0] == requestIDs[1] {
		t.Fatalf("expected distinct request ids, got %v", requestIDs)
	}
}

func TestTranslateRejectsEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer server.Close()

	client, err := translate.New(testConfig(server.URL))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.Translate(context.Background(), "Hello"); !services.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	cfg := testConfig("http://example.invalid")
	cfg.APIKey = ""
	if _, err := translate.New(cfg); !services.IsFatal(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	cfg = testConfig("")
	if _, err := translate.New(cfg); !services.IsFatal(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
