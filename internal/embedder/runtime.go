package embedder

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/ebitengine/purego"
)

// NativeRuntime binds to a locally installed native embedding library via
// purego.Dlopen, avoiding CGO. The library must export:
//
//	int32_t embed_dimensions()
//	int32_t embed_max_input_tokens()
//	int32_t embed_batch(const char** texts, int32_t count, float* out)
//
// out must be a caller-allocated buffer of count*embed_dimensions() floats;
// embed_batch writes each text's vector contiguously and returns 0 on
// success, non-zero on failure. Binding happens once per process: a second
// bind attempt with a different library path is rejected rather than
// silently rebound, since callers assume a stable Info() for the lifetime
// of the process.
type NativeRuntime struct {
	lib       uintptr
	libPath   string
	dims      int32
	maxTokens int32

	embedDims   func() int32
	embedMax    func() int32
	embedBatch  func(texts **byte, count int32, out *float32) int32
}

var (
	runtimeOnce  sync.Once
	runtimeInst  *NativeRuntime
	runtimeErr   error
	runtimeMu    sync.Mutex
	runtimePathB string
)

// BindNativeRuntime loads libPath exactly once for the process lifetime. A
// later call with a different libPath returns an error rather than
// rebinding, since swapping the backing model mid-process would silently
// change the dimensionality of already-stored vectors.
func BindNativeRuntime(libPath string) (*NativeRuntime, error) {
	runtimeMu.Lock()
	if runtimePathB != "" && runtimePathB != libPath {
		runtimeMu.Unlock()
		return nil, fmt.Errorf("native embedder runtime already bound to %q, cannot rebind to %q", runtimePathB, libPath)
	}
	runtimeMu.Unlock()

	runtimeOnce.Do(func() {
		runtimeMu.Lock()
		runtimePathB = libPath
		runtimeMu.Unlock()

		lib, err := purego.Dlopen(libPath, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			runtimeErr = fmt.Errorf("load native embedder library %s (%s/%s): %w", libPath, runtime.GOOS, runtime.GOARCH, err)
			return
		}

		rt := &NativeRuntime{lib: lib, libPath: libPath}
		purego.RegisterLibFunc(&rt.embedDims, lib, "embed_dimensions")
		purego.RegisterLibFunc(&rt.embedMax, lib, "embed_max_input_tokens")
		purego.RegisterLibFunc(&rt.embedBatch, lib, "embed_batch")

		rt.dims = rt.embedDims()
		rt.maxTokens = rt.embedMax()
		if rt.dims <= 0 {
			runtimeErr = fmt.Errorf("native embedder library %s reported non-positive dimensions: %d", libPath, rt.dims)
			return
		}
		runtimeInst = rt
	})

	if runtimeErr != nil {
		return nil, runtimeErr
	}
	return runtimeInst, nil
}

// Info reports the bound backend's model metadata.
func (r *NativeRuntime) Info() Info {
	return Info{ModelName: "native:" + r.libPath, Dimensions: int(r.dims), MaxInputTokens: int(r.maxTokens)}
}

// Embed embeds a single text via the native backend.
func (r *NativeRuntime) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := r.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds multiple texts in one native call.
func (r *NativeRuntime) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for i, t := range texts {
		if n := approxTokenCount(t); n > int(r.maxTokens) {
			return nil, fmt.Errorf("text %d: %w", i, InputTooLongError{Max: int(r.maxTokens), Actual: n})
		}
	}

	cStrs := make([]*byte, len(texts))
	for i, t := range texts {
		cStrs[i] = cString(t)
	}

	out := make([]float32, len(texts)*int(r.dims))
	rc := r.embedBatch(&cStrs[0], int32(len(texts)), &out[0])
	if rc != 0 {
		return nil, fmt.Errorf("native embed_batch failed with code %d", rc)
	}

	vectors := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, r.dims)
		copy(vec, out[i*int(r.dims):(i+1)*int(r.dims)])
		vectors[i] = vec
	}
	return vectors, nil
}

// Close is a no-op: purego.Dlclose is intentionally not called since the
// binding is process-lifetime singleton state shared by every Embedder
// wrapping it.
func (r *NativeRuntime) Close() error { return nil }

func cString(s string) *byte {
	b := append([]byte(strings.Clone(s)), 0)
	return &b[0]
}

var _ Embedder = (*NativeRuntime)(nil)
