// Command example wires a Manager against three fake keys and drives a
// handful of calls, logging lifecycle events as they fire. It exists to
// exercise the public API end to end, not as a deployable service.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/keyrotate/keyrotate"
	"github.com/keyrotate/keyrotate/events"
	"github.com/keyrotate/keyrotate/keystate"
	"github.com/keyrotate/keyrotate/selector"
	"github.com/keyrotate/keyrotate/storage"
	"github.com/keyrotate/keyrotate/telemetry"
)

func main() {
	adapter := storage.NewMemoryAdapter()

	traceProvider, err := telemetry.NewTracerProvider("keyrotate-example")
	if err != nil {
		panic(err)
	}
	defer traceProvider.Shutdown(context.Background())

	mgr, err := keyrotate.NewManager(
		[]keystate.Input{
			{Key: "demo-key-a", Provider: "acme"},
			{Key: "demo-key-b", Provider: "acme"},
			{Key: "demo-key-c", Provider: "acme"},
		},
		keyrotate.WithStrategy(selector.Weighted{}),
		keyrotate.WithStorage(adapter),
		keyrotate.WithConcurrency(4),
		keyrotate.WithMetrics(telemetry.NewOtelMetrics(noop.NewMeterProvider().Meter("keyrotate"), nil)),
		keyrotate.WithTracer(telemetry.NewOtelTracer(traceProvider.Tracer("keyrotate"))),
	)
	if err != nil {
		panic(err)
	}

	mgr.On(func(e events.Event) {
		fmt.Printf("event: %s %+v\n", events.Name(e), e)
	})

	flaky := func(ctx context.Context, keyID string) (interface{}, error) {
		if rand.Intn(3) == 0 {
			return nil, errors.New("503 service unavailable")
		}
		return fmt.Sprintf("response from %s", keyID), nil
	}

	for i := 0; i < 10; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		result, err := mgr.Execute(ctx, flaky, keyrotate.ExecuteOptions{MaxRetries: 2})
		cancel()
		if err != nil {
			fmt.Printf("call %d failed: %v\n", i, err)
			continue
		}
		fmt.Printf("call %d result: %v\n", i, result)
	}

	fmt.Printf("final stats: %+v\n", mgr.Stats())
}
