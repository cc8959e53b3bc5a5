package provider_test

import (
	"context"
	"errors"
	"testing"

	"github.com/flemzord/parserdesk/internal/provider"
	"github.com/flemzord/parserdesk/internal/provider/providertest"
)

func okProvider(name string) *providertest.MockProvider {
	return &providertest.MockProvider{
		CompleteFunc: func(_ context.Context, _ provider.CompletionRequest) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{Content: name}, nil
		},
		StreamFunc: func(_ context.Context, _ provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
			return providertest.Chunks(name), nil
		},
		ModelNameFunc: func() string { return name },
	}
}

func failProvider(err error) *providertest.MockProvider {
	return &providertest.MockProvider{
		CompleteFunc: func(_ context.Context, _ provider.CompletionRequest) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{}, err
		},
		StreamFunc: func(_ context.Context, _ provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
			return nil, err
		},
		ModelNameFunc: func() string { return "fail" },
	}
}

func TestNewChain_Empty(t *testing.T) {
	t.Parallel()
	if _, err := provider.NewChain(nil); !errors.Is(err, provider.ErrNoProvider) {
		t.Fatalf("err = %v, want ErrNoProvider", err)
	}
	_, err := provider.NewChain([]provider.ChainEntry{{Name: "broken"}})
	if !errors.Is(err, provider.ErrNoProvider) {
		t.Fatalf("nil provider err = %v, want ErrNoProvider", err)
	}
}

func TestChain_FailoverOnRetryable(t *testing.T) {
	t.Parallel()

	down := failProvider(provider.ErrProviderDown)
	backup := okProvider("backup")
	chain, err := provider.NewChain([]provider.ChainEntry{
		{Name: "main", Provider: down},
		{Name: "backup", Provider: backup},
	})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := chain.Complete(context.Background(), provider.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "backup" {
		t.Errorf("content = %q, want backup", resp.Content)
	}

	report := chain.HealthReport()
	if report[0].State != "cooldown" || report[1].State != "healthy" {
		t.Errorf("report = %+v", report)
	}
}

func TestChain_NonRetryableStops(t *testing.T) {
	t.Parallel()

	auth := failProvider(provider.ErrAuthentication)
	backup := okProvider("backup")
	chain, _ := provider.NewChain([]provider.ChainEntry{
		{Name: "main", Provider: auth},
		{Name: "backup", Provider: backup},
	})

	_, err := chain.Complete(context.Background(), provider.CompletionRequest{})
	if !errors.Is(err, provider.ErrAuthentication) {
		t.Fatalf("err = %v, want ErrAuthentication", err)
	}
	if backup.CompleteCalls != 0 {
		t.Error("backup must not be called after a non-retryable error")
	}
}

func TestChain_AllExhausted(t *testing.T) {
	t.Parallel()

	chain, _ := provider.NewChain([]provider.ChainEntry{
		{Name: "a", Provider: failProvider(provider.ErrRateLimit)},
		{Name: "b", Provider: failProvider(provider.ErrProviderDown)},
	})

	_, err := chain.Complete(context.Background(), provider.CompletionRequest{})
	if !errors.Is(err, provider.ErrAllProviders) {
		t.Fatalf("err = %v, want ErrAllProviders", err)
	}
	if !errors.Is(err, provider.ErrProviderDown) {
		t.Errorf("err = %v, should wrap the last error", err)
	}
}

func TestChain_RateLimitRotatesKey(t *testing.T) {
	t.Parallel()

	auth, _ := provider.NewAuthProfile("k1", "k2")
	chain, _ := provider.NewChain([]provider.ChainEntry{
		{Name: "a", Provider: failProvider(provider.ErrRateLimit), Auth: auth},
		{Name: "b", Provider: okProvider("b")},
	})
	if _, err := chain.Complete(context.Background(), provider.CompletionRequest{}); err != nil {
		t.Fatal(err)
	}
	if auth.CurrentKey() != "k2" {
		t.Errorf("key = %q, want k2", auth.CurrentKey())
	}
}

func TestChain_StreamAndMetadata(t *testing.T) {
	t.Parallel()

	chain, _ := provider.NewChain([]provider.ChainEntry{{Name: "a", Provider: okProvider("gpt-test")}})
	if chain.ModelName() != "gpt-test" {
		t.Errorf("ModelName = %q", chain.ModelName())
	}
	if chain.ContextWindowSize() != 4000 {
		t.Errorf("ContextWindowSize = %d", chain.ContextWindowSize())
	}

	ch, err := chain.Stream(context.Background(), provider.CompletionRequest{})
	if err != nil {
		t.Fatal(err)
	}
	var text string
	for c := range ch {
		text += c.Content
	}
	if text != "gpt-test" {
		t.Errorf("streamed %q", text)
	}
}

func TestChain_CancelledContext(t *testing.T) {
	t.Parallel()

	chain, _ := provider.NewChain([]provider.ChainEntry{{Name: "a", Provider: okProvider("a")}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := chain.Complete(ctx, provider.CompletionRequest{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
