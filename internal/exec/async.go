package exec

import (
	derrors "der/internal/errors"
)

// asyncStage is the two-state lifecycle of an async token:
//
//	(created by AsyncBegin) -> Pending
//	       AsyncComplete(v) -> Ready(v)
//	       AsyncAwait       -> consumed (removed)
type asyncStage int

const (
	stagePending asyncStage = iota
	stageReady
)

type asyncSlot struct {
	stage asyncStage
	value Value
}

// asyncTable is the executor-owned table of async token slots
// (AsyncBegin/AsyncComplete/AsyncAwait). It is a small id-keyed arena, the
// same shape as heap.Heap's cell arena — no goroutines, no channels:
// "async" here is cooperative bookkeeping within one thread, not
// concurrency.
type asyncTable struct {
	slots  map[uint32]*asyncSlot
	nextID uint32
}

func newAsyncTable() *asyncTable {
	return &asyncTable{slots: make(map[uint32]*asyncSlot)}
}

// Begin allocates a token in state Pending with value Nil.
func (t *asyncTable) Begin() uint32 {
	t.nextID++
	id := t.nextID
	t.slots[id] = &asyncSlot{stage: stagePending, value: vNil()}
	return id
}

// Complete transitions a token to Ready(value). Double-complete and
// complete-on-missing are taxonomy errors.
func (t *asyncTable) Complete(resultID uint32, tokenID uint32, value Value) error {
	slot, ok := t.slots[tokenID]
	if !ok {
		return derrors.New(derrors.AsyncError, "complete on missing token").
			WithSub("CompleteOnMissing").WithResultID(resultID)
	}
	if slot.stage == stageReady {
		return derrors.New(derrors.AsyncError, "double-complete").
			WithSub("DoubleComplete").WithResultID(resultID)
	}
	slot.stage = stageReady
	slot.value = value
	return nil
}

// Await returns the token's value and removes it (consumed) if Ready.
// Pending is an error in this single-threaded model: nothing else can run
// to resolve it.
func (t *asyncTable) Await(resultID uint32, tokenID uint32) (Value, error) {
	slot, ok := t.slots[tokenID]
	if !ok {
		return vNil(), derrors.New(derrors.AsyncError, "await on missing token").
			WithSub("AwaitOnMissing").WithResultID(resultID)
	}
	if slot.stage == stagePending {
		return vNil(), derrors.New(derrors.AsyncError, "await on pending token").
			WithSub("AwaitOnPending").WithResultID(resultID)
	}
	value := slot.value
	delete(t.slots, tokenID)
	return value, nil
}
