package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/collaborators"
)

func orderedModule(name string, deps []string, order *[]string, mu *sync.Mutex) collaborators.Module {
	return collaborators.NewStaticModule(name, deps,
		func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			*order = append(*order, "start:"+name)
			return nil
		},
		func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			*order = append(*order, "stop:"+name)
			return nil
		},
		nil, nil,
	)
}

func TestModuleRegistry_StartsLeavesFirstAndStopsInReverse(t *testing.T) {
	var order []string
	var mu sync.Mutex

	modules := []collaborators.Module{
		orderedModule("execution", []string{"strategy"}, &order, &mu),
		orderedModule("ingestion", nil, &order, &mu),
		orderedModule("strategy", []string{"processing"}, &order, &mu),
		orderedModule("processing", []string{"ingestion"}, &order, &mu),
	}

	reg, err := NewModuleRegistry(zaptest.NewLogger(t), modules, 4)
	require.NoError(t, err)

	require.NoError(t, reg.StartAll(context.Background()))

	startIndex := map[string]int{}
	for i, e := range order {
		startIndex[e] = i
	}
	require.Less(t, startIndex["start:ingestion"], startIndex["start:processing"])
	require.Less(t, startIndex["start:processing"], startIndex["start:strategy"])
	require.Less(t, startIndex["start:strategy"], startIndex["start:execution"])

	reg.StopAll(context.Background())
	stopIndex := map[string]int{}
	for i, e := range order {
		stopIndex[e] = i
	}
	require.Less(t, stopIndex["stop:execution"], stopIndex["stop:strategy"])
	require.Less(t, stopIndex["stop:strategy"], stopIndex["stop:processing"])
	require.Less(t, stopIndex["stop:processing"], stopIndex["stop:ingestion"])
}

func TestModuleRegistry_StartFailureRollsBackAlreadyStarted(t *testing.T) {
	var order []string
	var mu sync.Mutex

	failing := collaborators.NewStaticModule("strategy", []string{"processing"},
		func(context.Context) error { return assertErr{} }, nil, nil, nil)

	modules := []collaborators.Module{
		orderedModule("ingestion", nil, &order, &mu),
		orderedModule("processing", []string{"ingestion"}, &order, &mu),
		failing,
	}

	reg, err := NewModuleRegistry(zaptest.NewLogger(t), modules, 4)
	require.NoError(t, err)

	err = reg.StartAll(context.Background())
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, order, "start:ingestion")
	require.Contains(t, order, "start:processing")
	require.Contains(t, order, "stop:processing")
	require.Contains(t, order, "stop:ingestion")
}

func TestModuleRegistry_CycleDetected(t *testing.T) {
	a := collaborators.NewStaticModule("a", []string{"b"}, nil, nil, nil, nil)
	b := collaborators.NewStaticModule("b", []string{"a"}, nil, nil, nil, nil)

	reg, err := NewModuleRegistry(zaptest.NewLogger(t), []collaborators.Module{a, b}, 2)
	require.NoError(t, err)

	_, err = reg.levels()
	require.Error(t, err)
}

type assertErr struct{}

func (assertErr) Error() string { return "start failed" }
