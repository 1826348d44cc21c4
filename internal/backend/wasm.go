package backend

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/zeebo/blake3"

	"HexPoQ/internal/circuit"
)

// Wasm runs circuits through a simulator compiled to WebAssembly. The module
// is compiled once at construction and instantiated per execution; it must
// export an `execute` function and use the host functions `input_len`,
// `read_input` and `write_output` to exchange JSON payloads.
type Wasm struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	moduleID [32]byte // moduleID is the blake3 hash of the module bytes
	shots    int
	mu       sync.Mutex // mu serializes executions; instances share the runtime
}

// NewWasm compiles the WASM simulator module at the given path.
func NewWasm(path string, shots int) (*Wasm, error) {
	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wasm module: %w", err)
	}

	ctx := context.Background()
	runtime := wazero.NewRuntime(ctx)

	compiled, err := runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("compile wasm module: %w", err)
	}

	return &Wasm{
		runtime:  runtime,
		compiled: compiled,
		moduleID: blake3.Sum256(wasmBytes),
		shots:    shots,
	}, nil
}

// Name returns the backend name, tagged with the module hash so proofs
// record which simulator build produced them.
func (w *Wasm) Name() string {
	return "wasm:" + hex.EncodeToString(w.moduleID[:8])
}

// Close releases the wazero runtime.
func (w *Wasm) Close() error {
	return w.runtime.Close(context.Background())
}

// wasmInput is the JSON payload handed to the module.
type wasmInput struct {
	CircuitDescriptor string `json:"circuit_descriptor"`
	QubitCount        int    `json:"qubit_count"`
	Shots             int    `json:"shots"`
}

// Execute instantiates the module and runs one execution.
func (w *Wasm) Execute(ctx context.Context, lat *circuit.Lattice, sched *circuit.Schedule) (*Result, error) {
	input, err := json.Marshal(wasmInput{
		CircuitDescriptor: circuit.EncodeDescriptor(lat, sched),
		QubitCount:        lat.QubitCount,
		Shots:             w.shots,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal input: %w", err)
	}

	output, err := w.run(ctx, input)
	if err != nil {
		return nil, err
	}

	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("%w: decode module output: %v", ErrMalformedOutput, err)
	}

	return &result, nil
}

// run instantiates the compiled module with host functions bound to the
// given input and calls its execute export.
func (w *Wasm) run(ctx context.Context, input []byte) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	exec := &wasmExec{input: input}

	hostModule, err := w.buildHostModule(ctx, exec)
	if err != nil {
		return nil, fmt.Errorf("build host module: %w", err)
	}
	defer hostModule.Close(ctx)

	instance, err := w.runtime.InstantiateModule(ctx, w.compiled, wazero.NewModuleConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: instantiate module: %v", ErrUnavailable, err)
	}
	defer instance.Close(ctx)

	exec.memory = instance.Memory()

	executeFn := instance.ExportedFunction("execute")
	if executeFn == nil {
		return nil, fmt.Errorf("%w: module does not export execute", ErrUnavailable)
	}

	if _, err := executeFn.Call(ctx); err != nil {
		return nil, fmt.Errorf("%w: execute: %v", ErrUnavailable, err)
	}

	if exec.output == nil {
		return nil, fmt.Errorf("%w: module wrote no output", ErrMalformedOutput)
	}

	return exec.output, nil
}

// wasmExec holds the exchange buffers for a single module invocation.
type wasmExec struct {
	input  []byte     // input is the JSON request payload
	output []byte     // output is the JSON result payload
	memory api.Memory // memory is the module's linear memory
}

// buildHostModule creates the "env" module with the exchange host functions.
func (w *Wasm) buildHostModule(ctx context.Context, exec *wasmExec) (api.Module, error) {
	return w.runtime.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context) uint32 {
			return uint32(len(exec.input))
		}).
		Export("input_len").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, ptr uint32) {
			if exec.memory != nil && len(exec.input) > 0 {
				exec.memory.Write(ptr, exec.input)
			}
		}).
		Export("read_input").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, ptr, length uint32) {
			if exec.memory == nil || length == 0 {
				return
			}

			data, ok := exec.memory.Read(ptr, length)
			if !ok {
				return
			}

			exec.output = make([]byte, length)
			copy(exec.output, data)
		}).
		Export("write_output").
		Instantiate(ctx)
}
