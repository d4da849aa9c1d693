package evaluator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"rollscout/internal/config"
)

func chatReply(content string) string {
	encoded := strings.ReplaceAll(content, `\`, `\\`)
	encoded = strings.ReplaceAll(encoded, `"`, `\"`)
	encoded = strings.ReplaceAll(encoded, "\n", `\n`)
	return fmt.Sprintf(`{"choices": [{"message": {"content": "%s"}}]}`, encoded)
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.Evaluator{
		APIKey:              "test-key",
		BaseURL:             server.URL,
		Model:               "test-model",
		BreakerFailureLimit: 3,
	}
	client, err := NewClient(cfg, WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestEvaluateAccepted(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		w.Write([]byte(chatReply(`{"accepted": true, "score": 8.5, "credibility": 90, "subject": "John Danaher", "topic": "armbar", "category": "submissions", "reason": "detailed system breakdown", "instructors": ["Garry Tonon", " "]}`)))
	}))

	verdict, err := client.Evaluate(context.Background(), Candidate{Title: "Armbar system part 1"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if verdict.Outcome != OutcomeAccepted {
		t.Fatalf("outcome = %q", verdict.Outcome)
	}
	if verdict.Score != 8.5 || verdict.Credibility != 90 {
		t.Fatalf("verdict = %+v", verdict)
	}
	if verdict.Subject != "John Danaher" || verdict.Topic != "armbar" {
		t.Fatalf("verdict = %+v", verdict)
	}
	if len(verdict.Mentions) != 1 || verdict.Mentions[0] != "Garry Tonon" {
		t.Fatalf("mentions = %v, blank entries should be dropped", verdict.Mentions)
	}
}

func TestEvaluateClampsScoreAndCredibility(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatReply(`{"accepted": false, "score": 14.2, "credibility": -5}`)))
	}))

	verdict, err := client.Evaluate(context.Background(), Candidate{Title: "anything"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if verdict.Outcome != OutcomeRejected {
		t.Fatalf("outcome = %q", verdict.Outcome)
	}
	if verdict.Score != 10 {
		t.Fatalf("score = %v, want clamped to 10", verdict.Score)
	}
	if verdict.Credibility != 0 {
		t.Fatalf("credibility = %d, want clamped to 0", verdict.Credibility)
	}
}

func TestEvaluateMalformedPayloadIsVerdictNotError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatReply("I think this video is great, would recommend.")))
	}))

	verdict, err := client.Evaluate(context.Background(), Candidate{Title: "anything"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if verdict.Outcome != OutcomeMalformed {
		t.Fatalf("outcome = %q, want malformed", verdict.Outcome)
	}
}

func TestEvaluateTolerantOfCodeFences(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatReply("```json\n{\"accepted\": true, \"score\": 7}\n```")))
	}))

	verdict, err := client.Evaluate(context.Background(), Candidate{Title: "anything"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if verdict.Outcome != OutcomeAccepted || verdict.Score != 7 {
		t.Fatalf("verdict = %+v", verdict)
	}
}

func TestEvaluateBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := client.Evaluate(ctx, Candidate{Title: "anything"}); err == nil {
			t.Fatalf("call %d should fail", i)
		}
	}
	// Breaker is open now; the endpoint must not be contacted again.
	if _, err := client.Evaluate(ctx, Candidate{Title: "anything"}); err == nil {
		t.Fatal("open breaker should fail fast")
	}
	if calls != 3 {
		t.Fatalf("endpoint calls = %d, want 3", calls)
	}
}

func TestCheckHealth(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatReply(`{"ok": true}`)))
	}))

	if err := client.CheckHealth(context.Background()); err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
}

func TestEvaluateRequiresTitle(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("endpoint should not be contacted")
	}))

	if _, err := client.Evaluate(context.Background(), Candidate{}); err == nil {
		t.Fatal("expected error for empty title")
	}
}
