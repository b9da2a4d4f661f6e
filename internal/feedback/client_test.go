package feedback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func analyzeInput() AnalyzeInput {
	return AnalyzeInput{
		ProblemTitle: "Sum of two numbers",
		Statement:    "Read two integers and print their sum.",
		Code:         "int main(void){return 0;}",
		Status:       "rejected",
		Score:        50,
		Diagnostic:   "wrong answer on test 2",
	}
}

func TestAnalyzeDisabled(t *testing.T) {
	client := NewClient(Config{Enabled: false})
	feedback, err := client.Analyze(context.Background(), analyzeInput())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if feedback.Available {
		t.Fatal("disabled client must report unavailable")
	}
	if feedback.Reason == "" {
		t.Fatal("expected a reason")
	}
}

func TestAnalyzeSuccess(t *testing.T) {
	var gotAuth string
	var gotBody chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "  Check the loop bound.  "}},
			},
		})
	}))
	defer server.Close()

	client := NewClient(Config{Enabled: true, BaseURL: server.URL, APIKey: "sk-test", Model: "test-model"})
	feedback, err := client.Analyze(context.Background(), analyzeInput())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !feedback.Available {
		t.Fatalf("unavailable: %s", feedback.Reason)
	}
	if feedback.Text != "Check the loop bound." {
		t.Fatalf("text = %q", feedback.Text)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotBody.Model != "test-model" || len(gotBody.Messages) != 2 {
		t.Fatalf("request = %+v", gotBody)
	}
	if !strings.Contains(gotBody.Messages[1].Content, "wrong answer on test 2") {
		t.Fatal("prompt should include the diagnostic")
	}
}

func TestAnalyzeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream overloaded", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(Config{Enabled: true, BaseURL: server.URL})
	feedback, err := client.Analyze(context.Background(), analyzeInput())
	if err != nil {
		t.Fatalf("analyze must not fail on upstream errors, got %v", err)
	}
	if feedback.Available {
		t.Fatal("server error must report unavailable")
	}
	if !strings.Contains(feedback.Reason, "502") {
		t.Fatalf("reason = %q", feedback.Reason)
	}
}

func TestAnalyzeUnreachable(t *testing.T) {
	client := NewClient(Config{Enabled: true, BaseURL: "http://127.0.0.1:1"})
	feedback, err := client.Analyze(context.Background(), analyzeInput())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if feedback.Available {
		t.Fatal("unreachable service must report unavailable")
	}
}

func TestAnalyzeEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	}))
	defer server.Close()

	client := NewClient(Config{Enabled: true, BaseURL: server.URL})
	feedback, err := client.Analyze(context.Background(), analyzeInput())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if feedback.Available {
		t.Fatal("empty choices must report unavailable")
	}
}
