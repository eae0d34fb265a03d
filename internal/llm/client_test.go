package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/time/rate"

	"github.com/mvarela/triage/internal/config"
	"github.com/mvarela/triage/internal/log"
)

func textResponse(text string) *ai.ModelResponse {
	return &ai.ModelResponse{Message: ai.NewModelMessage(ai.NewTextPart(text))}
}

// newTestClient wires a client around a scripted generate function with
// fast retries and no rate limiting.
func newTestClient(gen generateFunc) *Client {
	return &Client{
		models: config.ModelsConfig{
			Generation:            "googleai/gemini-2.5-flash",
			Reformulation:         "googleai/gemini-2.5-flash-lite",
			Classification:        "googleai/gemini-2.5-flash-lite",
			GenerationTemperature: 0.7,
		},
		limiter:  rate.NewLimiter(rate.Inf, 1),
		retry:    RetryConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond},
		logger:   log.NewNop(),
		generate: gen,
	}
}

// ============================================================
// Generate
// ============================================================

func TestGenerate_ReturnsTrimmedText(t *testing.T) {
	client := newTestClient(func(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error) {
		return textResponse("  Refunds take 30 days.  \n"), nil
	})

	got, err := client.Generate(context.Background(), "how long do refunds take", "Refund policy: 30 days.")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "Refunds take 30 days." {
		t.Errorf("Generate() = %q, want trimmed answer", got)
	}
}

func TestGenerate_EmptyResponse(t *testing.T) {
	client := newTestClient(func(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error) {
		return textResponse("   "), nil
	})

	_, err := client.Generate(context.Background(), "q", "ctx")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("Generate() error = %v, want ErrEmptyResponse", err)
	}
}

func TestGenerate_RetriesTransientErrors(t *testing.T) {
	calls := 0
	client := newTestClient(func(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("503 service unavailable")
		}
		return textResponse("recovered"), nil
	})

	got, err := client.Generate(context.Background(), "q", "ctx")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "recovered" {
		t.Errorf("Generate() = %q, want %q", got, "recovered")
	}
	if calls != 3 {
		t.Errorf("generate called %d times, want 3", calls)
	}
}

func TestGenerate_NonRetryableFailsImmediately(t *testing.T) {
	calls := 0
	client := newTestClient(func(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error) {
		calls++
		return nil, errors.New("invalid api key")
	})

	_, err := client.Generate(context.Background(), "q", "ctx")
	if !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("Generate() error = %v, want ErrGenerationFailed", err)
	}
	if calls != 1 {
		t.Errorf("generate called %d times, want 1 (no retries)", calls)
	}
}

func TestGenerate_ExhaustsRetries(t *testing.T) {
	calls := 0
	client := newTestClient(func(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error) {
		calls++
		return nil, errors.New("429 rate limit")
	})

	_, err := client.Generate(context.Background(), "q", "ctx")
	if !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("Generate() error = %v, want ErrGenerationFailed", err)
	}
	if calls != 3 { // MaxRetries=2 means 3 attempts total
		t.Errorf("generate called %d times, want 3", calls)
	}
}

// ============================================================
// Reformulate
// ============================================================

func TestReformulate(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    []string
		wantErr error
	}{
		{
			name:   "three clean lines",
			output: "how to get a refund\nrefund request procedure\nmoney back policy",
			want:   []string{"how to get a refund", "refund request procedure", "money back policy"},
		},
		{
			name:   "numbered despite instructions",
			output: "1. how to get a refund\n2) refund request procedure\n- money back policy",
			want:   []string{"how to get a refund", "refund request procedure", "money back policy"},
		},
		{
			name:   "blank lines and trailing extras",
			output: "\nfirst variant\n\nsecond variant\nthird variant\nfourth variant\n",
			want:   []string{"first variant", "second variant", "third variant"},
		},
		{
			name:    "too few variants",
			output:  "only one\nand two",
			wantErr: ErrMalformedReformulation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(func(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error) {
				return textResponse(tt.output), nil
			})

			got, err := client.Reformulate(context.Background(), "refund")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Reformulate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Reformulate() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Reformulate() = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("Reformulate()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

// ============================================================
// Classify
// ============================================================

func TestClassify_ReturnsRawDecision(t *testing.T) {
	client := newTestClient(func(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error) {
		return textResponse("Automatic"), nil
	})

	got, err := client.Classify(context.Background(), "q", "ctx", 0.8)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if got != "Automatic" {
		t.Errorf("Classify() = %q, want raw model text", got)
	}
}

// ============================================================
// Retry classification
// ============================================================

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "rate limit", err: errors.New("Rate Limit exceeded"), want: true},
		{name: "http 429", err: errors.New("got 429 from upstream"), want: true},
		{name: "server error", err: errors.New("HTTP 503"), want: true},
		{name: "unavailable", err: errors.New("model UNAVAILABLE"), want: true},
		{name: "network timeout", err: errors.New("dial tcp: i/o timeout"), want: true},
		{name: "connection reset", err: errors.New("connection reset by peer"), want: true},
		{name: "auth failure", err: errors.New("invalid api key"), want: false},
		{name: "bad request", err: errors.New("400 bad request"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryableError(tt.err); got != tt.want {
				t.Errorf("retryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestGenerateWithRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := newTestClient(func(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error) {
		cancel()
		return nil, errors.New("timeout")
	})
	client.retry.InitialInterval = time.Minute // would hang without the ctx check

	_, err := client.Generate(ctx, "q", "ctx")
	if err == nil || !errors.Is(err, context.Canceled) {
		t.Errorf("Generate() error = %v, want context.Canceled", err)
	}
}
