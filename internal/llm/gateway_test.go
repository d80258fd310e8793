package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

type scriptedClient struct {
	responses map[string]string
	failures  map[string]error
	calls     []string
}

func (c *scriptedClient) Complete(ctx context.Context, req Request) (string, error) {
	c.calls = append(c.calls, req.Model)
	if err, ok := c.failures[req.Model]; ok {
		return "", err
	}
	return c.responses[req.Model], nil
}

func TestGatewayFallsBackInOrder(t *testing.T) {
	client := &scriptedClient{
		failures:  map[string]error{"a": errors.New("rate limited"), "b": errors.New("unavailable")},
		responses: map[string]string{"c": "  SELECT 1;  ", "d": "never"},
	}
	gw := NewGateway(client, time.Second, nil)

	out, err := gw.Complete(context.Background(), []Message{User("q")}, []string{"a", "b", "c", "d"}, Options{Task: "sql"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if out.Model != "c" || out.Text != "SELECT 1;" {
		t.Fatalf("Complete() = %+v", out)
	}
	if len(out.Attempts) != 3 {
		t.Fatalf("attempts = %d, want 3", len(out.Attempts))
	}
	if got := client.calls; len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("calls = %v", got)
	}
}

func TestGatewayTreatsEmptyResponseAsFailure(t *testing.T) {
	client := &scriptedClient{responses: map[string]string{"a": "   ", "b": "ok"}}
	out, err := NewGateway(client, time.Second, nil).Complete(context.Background(), nil, []string{"a", "b"}, Options{})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if out.Model != "b" {
		t.Fatalf("Model = %q, want b", out.Model)
	}
	if !errors.Is(out.Attempts[0].Err, ErrEmptyResponse) {
		t.Fatalf("first attempt error = %v", out.Attempts[0].Err)
	}
}

func TestGatewayExhaustion(t *testing.T) {
	client := &scriptedClient{failures: map[string]error{
		"a": errors.New("a down"),
		"b": errors.New("b down"),
		"c": errors.New("c down"),
	}}
	_, err := NewGateway(client, time.Second, nil).Complete(context.Background(), nil, []string{"a", "b", "c"}, Options{})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Complete() error = %v, want ErrExhausted", err)
	}
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Complete() error type = %T", err)
	}
	if len(exhausted.Attempts) != 3 || exhausted.Last().Error() != "c down" {
		t.Fatalf("attempts = %+v", exhausted.Attempts)
	}
	if len(client.calls) != 3 {
		t.Fatalf("calls = %d, want 3", len(client.calls))
	}
}

func TestGatewayWithoutCandidatesIsExhausted(t *testing.T) {
	_, err := NewGateway(&scriptedClient{}, time.Second, nil).Complete(context.Background(), nil, nil, Options{})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Complete() error = %v, want ErrExhausted", err)
	}
}

func TestGatewayAppliesPerCallDeadline(t *testing.T) {
	slow := ClientFunc(func(ctx context.Context, req Request) (string, error) {
		if req.Model == "slow" {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "fast answer", nil
	})
	out, err := NewGateway(slow, 20*time.Millisecond, nil).Complete(context.Background(), nil, []string{"slow", "fast"}, Options{})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if out.Model != "fast" || !errors.Is(out.Attempts[0].Err, context.DeadlineExceeded) {
		t.Fatalf("Complete() = %+v", out)
	}
}

func TestGatewayStopsOnCancelledContext(t *testing.T) {
	client := &scriptedClient{responses: map[string]string{"a": "x"}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewGateway(client, time.Second, nil).Complete(ctx, nil, []string{"a", "b"}, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Complete() error = %v, want context.Canceled", err)
	}
	if len(client.calls) != 0 {
		t.Fatalf("calls = %v, want none", client.calls)
	}
}

func TestGatewayPassesSamplingOptions(t *testing.T) {
	var seen Request
	client := ClientFunc(func(ctx context.Context, req Request) (string, error) {
		seen = req
		return "ok", nil
	})
	_, err := NewGateway(client, time.Second, nil).Complete(context.Background(), []Message{System("s"), User("u")}, []string{"m"}, Options{Temperature: Float(0.1), MaxTokens: 1500})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if seen.Temperature == nil || *seen.Temperature != 0.1 || seen.MaxTokens != 1500 || len(seen.Messages) != 2 {
		t.Fatalf("request = %+v", seen)
	}
}
