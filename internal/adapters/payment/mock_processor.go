package payment

import (
	"context"
	"delivery-match-service/internal/ports"
	"fmt"
	"sync"
)

// MockProcessor is an in-memory PaymentProcessor for tests and local runs.
// It honors idempotency keys the way a real processor does: repeating a
// call with the same key returns the first outcome without a second
// effect. Failure hooks let tests script hold/capture/void errors.
type MockProcessor struct {
	mu    sync.Mutex
	holds map[string]*mockHold // holdRef -> hold
	byKey map[string]string    // idempotency key -> holdRef
	seq   int

	HoldErr    error
	CaptureErr error
	VoidErr    error

	HoldCalls    int
	CaptureCalls int
	VoidCalls    int
}

type mockHold struct {
	state   ports.HoldState
	receipt string
}

func NewMockProcessor() *MockProcessor {
	return &MockProcessor{
		holds: map[string]*mockHold{},
		byKey: map[string]string{},
	}
}

func (m *MockProcessor) Hold(ctx context.Context, req ports.HoldRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.HoldCalls++
	if ref, ok := m.byKey[req.IdempotencyKey]; ok {
		return ref, nil
	}
	if m.HoldErr != nil {
		return "", m.HoldErr
	}

	m.seq++
	ref := fmt.Sprintf("hold_%d", m.seq)
	m.holds[ref] = &mockHold{state: ports.HoldStateHeld}
	if req.IdempotencyKey != "" {
		m.byKey[req.IdempotencyKey] = ref
	}
	return ref, nil
}

func (m *MockProcessor) Capture(ctx context.Context, holdRef, idempotencyKey string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CaptureCalls++
	h, ok := m.holds[holdRef]
	if !ok {
		return "", fmt.Errorf("mock processor: unknown hold %q", holdRef)
	}
	if h.state == ports.HoldStateCaptured {
		return h.receipt, nil
	}
	if m.CaptureErr != nil {
		return "", m.CaptureErr
	}
	if h.state != ports.HoldStateHeld {
		return "", fmt.Errorf("mock processor: hold %q in state %s", holdRef, h.state)
	}

	h.state = ports.HoldStateCaptured
	h.receipt = "receipt_capture_" + holdRef
	return h.receipt, nil
}

func (m *MockProcessor) Void(ctx context.Context, holdRef, idempotencyKey string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.VoidCalls++
	h, ok := m.holds[holdRef]
	if !ok {
		return "", fmt.Errorf("mock processor: unknown hold %q", holdRef)
	}
	if h.state == ports.HoldStateVoided {
		return h.receipt, nil
	}
	if m.VoidErr != nil {
		return "", m.VoidErr
	}
	if h.state != ports.HoldStateHeld {
		return "", fmt.Errorf("mock processor: hold %q in state %s", holdRef, h.state)
	}

	h.state = ports.HoldStateVoided
	h.receipt = "receipt_void_" + holdRef
	return h.receipt, nil
}

func (m *MockProcessor) LookupHold(ctx context.Context, holdRef string) (ports.HoldState, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.holds[holdRef]
	if !ok {
		return ports.HoldStateUnknown, "", fmt.Errorf("mock processor: unknown hold %q", holdRef)
	}
	return h.state, h.receipt, nil
}

// SettleExternally forces a hold into a settled state, simulating a
// processor-side effect whose confirmation never reached us.
func (m *MockProcessor) SettleExternally(holdRef string, state ports.HoldState, receipt string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.holds[holdRef]; ok {
		h.state = state
		h.receipt = receipt
	}
}
