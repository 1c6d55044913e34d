package testsupport

import (
	"context"
	"sync"

	"parallelcamera/internal/gateway"
)

// GatewayCall records one invocation of FakeGateway.
type GatewayCall struct {
	Capability string
	Describe   *gateway.DescribeRequest
	Augment    string
	Generate   *gateway.GenerateRequest
	Transcribe *gateway.TranscribeRequest
}

// FakeGateway is a scripted gateway.Capabilities. Zero-value responses are
// replaced with usable defaults so tests only set what they assert on.
type FakeGateway struct {
	DescribeText   string
	DescribeErr    error
	AugmentText    string
	AugmentErr     error
	Image          gateway.GeneratedImage
	GenerateErr    error
	TranscribeText string
	TranscribeErr  error

	// Hook runs before every call is answered. A non-nil error becomes the
	// call's result.
	Hook func(ctx context.Context, capability string) error

	mu    sync.Mutex
	calls []GatewayCall
}

var _ gateway.Capabilities = (*FakeGateway)(nil)

// NewFakeGateway returns a gateway that succeeds on every capability.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		DescribeText:   "a quiet street",
		AugmentText:    "a paper lantern drifts overhead",
		Image:          gateway.GeneratedImage{DataURI: SampleImage},
		TranscribeText: "hello",
	}
}

func (f *FakeGateway) Describe(ctx context.Context, req gateway.DescribeRequest) (string, error) {
	f.record(GatewayCall{Capability: gateway.CapabilityDescribe, Describe: &req})
	if err := f.hook(ctx, gateway.CapabilityDescribe); err != nil {
		return "", err
	}
	return f.DescribeText, f.DescribeErr
}

func (f *FakeGateway) Augment(ctx context.Context, description string) (string, error) {
	f.record(GatewayCall{Capability: gateway.CapabilityAugment, Augment: description})
	if err := f.hook(ctx, gateway.CapabilityAugment); err != nil {
		return "", err
	}
	return f.AugmentText, f.AugmentErr
}

func (f *FakeGateway) Generate(ctx context.Context, req gateway.GenerateRequest) (gateway.GeneratedImage, error) {
	f.record(GatewayCall{Capability: gateway.CapabilityGenerate, Generate: &req})
	if err := f.hook(ctx, gateway.CapabilityGenerate); err != nil {
		return gateway.GeneratedImage{}, err
	}
	if f.GenerateErr != nil {
		return gateway.GeneratedImage{}, f.GenerateErr
	}
	return f.Image, nil
}

func (f *FakeGateway) Transcribe(ctx context.Context, req gateway.TranscribeRequest) (string, error) {
	f.record(GatewayCall{Capability: gateway.CapabilityTranscribe, Transcribe: &req})
	if err := f.hook(ctx, gateway.CapabilityTranscribe); err != nil {
		return "", err
	}
	return f.TranscribeText, f.TranscribeErr
}

// Calls returns a copy of the recorded calls in order.
func (f *FakeGateway) Calls() []GatewayCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]GatewayCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// Capabilities returns the capability names called, in order.
func (f *FakeGateway) Capabilities() []string {
	calls := f.Calls()
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Capability
	}
	return names
}

func (f *FakeGateway) record(call GatewayCall) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *FakeGateway) hook(ctx context.Context, capability string) error {
	if f.Hook == nil {
		return nil
	}
	return f.Hook(ctx, capability)
}
