package hogwild

import (
	"sync"
	"testing"

	"github.com/happyhackingspace/ffml/engine"
)

func newTestRegressor(t *testing.T) *engine.Regressor[engine.SGD] {
	t.Helper()
	model := engine.ModelInstance{
		LRBitPrecision:  8,
		FFMBitPrecision: 18,
		FFMK:            2,
		Fields:          []engine.FieldDef{{Name: "a"}, {Name: "b"}},
	}
	r, err := engine.NewRegressor[engine.SGD](model, engine.SGD{LearningRate: 0.1})
	if err != nil {
		t.Fatalf("NewRegressor: %v", err)
	}
	return r
}

func testExample(serial uint64) *engine.Example {
	return &engine.Example{
		HasLabel: true, Label: 1, Importance: 1, Serial: serial,
		FFMFieldsCount: 2,
		FFM: []engine.FFMFeature{
			{Hash: uint32(serial), Value: 1, ContraFieldIndex: 0},
			{Hash: uint32(serial) + 100, Value: 1, ContraFieldIndex: 2},
		},
	}
}

func TestPoolSubmitProcessesEveryJob(t *testing.T) {
	r := newTestRegressor(t)
	pool := NewPool[engine.SGD](r, 4, 8)

	const n = 200
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		result := make(chan float32, 1)
		go func(serial uint64) {
			defer wg.Done()
			pool.Submit(Job{Example: testExample(serial), Result: result})
			<-result
		}(uint64(i))
	}
	wg.Wait()
	pool.Close()
}

func TestPoolCloseDrainsInFlightWork(t *testing.T) {
	r := newTestRegressor(t)
	pool := NewPool[engine.SGD](r, 2, 4)

	results := make([]chan float32, 10)
	for i := range results {
		results[i] = make(chan float32, 1)
		pool.Submit(Job{Example: testExample(uint64(i)), Result: results[i]})
	}
	pool.Close() // must not return until every submitted job has run

	for i, ch := range results {
		select {
		case <-ch:
		default:
			t.Fatalf("job %d's result was never delivered before Close returned", i)
		}
	}
}

// TestPoolAsDispatcher checks the non-generic Dispatcher interface is
// satisfied structurally by Pool[O], matching how a CLI picks an optimizer
// at runtime and erases it behind Dispatcher.
func TestPoolAsDispatcher(t *testing.T) {
	r := newTestRegressor(t)
	var d Dispatcher = NewPool[engine.SGD](r, 1, 1)

	result := make(chan float32, 1)
	d.Submit(Job{Example: testExample(1), Result: result})
	<-result
	d.Close()
}

func TestJobWithoutResultChannelDoesNotBlock(t *testing.T) {
	r := newTestRegressor(t)
	pool := NewPool[engine.SGD](r, 1, 1)
	pool.Submit(Job{Example: testExample(1)}) // Result left nil
	pool.Close()
}
