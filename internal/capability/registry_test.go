package capability

import (
	"errors"
	"testing"
)

func TestProvidePreferredBackend(t *testing.T) {
	reg := NewRegistry()
	reg.Provide(Responder, func() (any, error) { return "real", nil }, "fallback")

	if got := reg.Resolve(Responder); got != "real" {
		t.Fatalf("expected preferred handle, got %v", got)
	}
	if !reg.Available(Responder) {
		t.Fatal("expected responder to be available")
	}
	if len(reg.Degradations()) != 0 {
		t.Fatalf("unexpected degradations: %v", reg.Degradations())
	}
}

func TestProvideFallsBackOnProbeFailure(t *testing.T) {
	reg := NewRegistry()
	reg.Provide(Retriever, func() (any, error) { return nil, errors.New("no credentials") }, "fallback")

	if got := reg.Resolve(Retriever); got != "fallback" {
		t.Fatalf("expected fallback handle, got %v", got)
	}
	if reg.Available(Retriever) {
		t.Fatal("retriever should not report available")
	}

	events := reg.Degradations()
	if len(events) != 1 {
		t.Fatalf("expected one degradation event, got %d", len(events))
	}
	if events[0].Capability != Retriever || events[0].Runtime {
		t.Fatalf("unexpected event: %+v", events[0])
	}
}

func TestProvideNilBuildMeansUnconfigured(t *testing.T) {
	reg := NewRegistry()
	reg.Provide(Transcriber, nil, "passthrough")

	if got := reg.Resolve(Transcriber); got != "passthrough" {
		t.Fatalf("expected passthrough fallback, got %v", got)
	}
	if len(reg.Degradations()) != 1 {
		t.Fatal("expected unconfigured backend to record a degradation")
	}
}

func TestMarkRuntime(t *testing.T) {
	reg := NewRegistry()
	reg.Provide(EmotionClassifier, func() (any, error) { return "ml", nil }, "heuristic")
	reg.MarkRuntime(EmotionClassifier, "invoke timeout")

	events := reg.Degradations()
	if len(events) != 1 || !events[0].Runtime {
		t.Fatalf("expected one runtime event, got %v", events)
	}
	// 运行期降级不改变已解析的句柄。
	if got := reg.Resolve(EmotionClassifier); got != "ml" {
		t.Fatalf("runtime mark must not swap the handle, got %v", got)
	}
}

func TestShutdownRunsClosersInReverse(t *testing.T) {
	reg := NewRegistry()
	var order []int
	reg.OnShutdown(func() { order = append(order, 1) })
	reg.OnShutdown(func() { order = append(order, 2) })

	reg.Shutdown()

	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("unexpected shutdown order: %v", order)
	}
}
