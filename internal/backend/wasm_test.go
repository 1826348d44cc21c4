package backend

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// uleb encodes an unsigned LEB128 integer.
func uleb(v int) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

// sleb encodes a signed LEB128 integer.
func sleb(v int) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func wasmName(s string) []byte {
	return append(uleb(len(s)), s...)
}

func wasmSection(id byte, body []byte) []byte {
	sec := append([]byte{id}, uleb(len(body))...)
	return append(sec, body...)
}

// buildSimulatorModule assembles a minimal module for the host exchange:
// its exported function reads the input into memory at offset 1024 and
// answers with the given output bytes via write_output.
func buildSimulatorModule(exportName string, output []byte) []byte {
	module := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	types := append(uleb(4),
		0x60, 0x00, 0x01, 0x7f, // input_len: () -> i32
		0x60, 0x01, 0x7f, 0x00, // read_input: (i32) -> ()
		0x60, 0x02, 0x7f, 0x7f, 0x00, // write_output: (i32, i32) -> ()
		0x60, 0x00, 0x00, // execute: () -> ()
	)
	module = append(module, wasmSection(1, types)...)

	imports := uleb(3)
	for i, fn := range []string{"input_len", "read_input", "write_output"} {
		imports = append(imports, wasmName("env")...)
		imports = append(imports, wasmName(fn)...)
		imports = append(imports, 0x00)
		imports = append(imports, uleb(i)...)
	}
	module = append(module, wasmSection(2, imports)...)

	module = append(module, wasmSection(3, append(uleb(1), uleb(3)...))...)
	module = append(module, wasmSection(5, append(uleb(1), 0x00, 0x01))...)

	exports := uleb(2)
	exports = append(exports, wasmName("memory")...)
	exports = append(exports, 0x02, 0x00)
	exports = append(exports, wasmName(exportName)...)
	exports = append(exports, 0x00, 0x03)
	module = append(module, wasmSection(7, exports)...)

	body := uleb(0) // no locals
	body = append(body, 0x10, 0x00, 0x1a)
	body = append(body, 0x41)
	body = append(body, sleb(1024)...)
	body = append(body, 0x10, 0x01)
	body = append(body, 0x41)
	body = append(body, sleb(0)...)
	body = append(body, 0x41)
	body = append(body, sleb(len(output))...)
	body = append(body, 0x10, 0x02, 0x0b)
	code := append(uleb(1), append(uleb(len(body)), body...)...)
	module = append(module, wasmSection(10, code)...)

	data := append(uleb(1), 0x00, 0x41)
	data = append(data, sleb(0)...)
	data = append(data, 0x0b)
	data = append(data, uleb(len(output))...)
	data = append(data, output...)
	module = append(module, wasmSection(11, data)...)

	return module
}

func writeWasmModule(t *testing.T, module []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "simulator.wasm")
	if err := os.WriteFile(path, module, 0o644); err != nil {
		t.Fatalf("write module: %v", err)
	}

	return path
}

func TestWasmExecute(t *testing.T) {
	lat, sched := testCircuit(t, 2)

	out, err := json.Marshal(Result{
		MostCommon: "0101010",
		Counts:     map[string]int{"0101010": 16},
		Shots:      16,
	})
	if err != nil {
		t.Fatalf("marshal output: %v", err)
	}

	w, err := NewWasm(writeWasmModule(t, buildSimulatorModule("execute", out)), 16)
	if err != nil {
		t.Fatalf("NewWasm failed: %v", err)
	}
	defer w.Close()

	if !strings.HasPrefix(w.Name(), "wasm:") {
		t.Errorf("Name = %q, want wasm: prefix", w.Name())
	}

	result, err := w.Execute(context.Background(), lat, sched)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.MostCommon != "0101010" {
		t.Errorf("MostCommon = %q, want %q", result.MostCommon, "0101010")
	}
	if result.Shots != 16 {
		t.Errorf("Shots = %d, want 16", result.Shots)
	}
	if err := ValidateResult(result, lat.QubitCount); err != nil {
		t.Errorf("ValidateResult rejected module output: %v", err)
	}

	// The compiled module is instantiated per call and must survive reuse
	if _, err := w.Execute(context.Background(), lat, sched); err != nil {
		t.Errorf("second Execute failed: %v", err)
	}
}

func TestWasmExecuteMalformedOutput(t *testing.T) {
	lat, sched := testCircuit(t, 2)

	w, err := NewWasm(writeWasmModule(t, buildSimulatorModule("execute", []byte("simulator crashed"))), 16)
	if err != nil {
		t.Fatalf("NewWasm failed: %v", err)
	}
	defer w.Close()

	if _, err := w.Execute(context.Background(), lat, sched); !errors.Is(err, ErrMalformedOutput) {
		t.Errorf("error = %v, want ErrMalformedOutput", err)
	}
}

func TestWasmExecuteNoOutput(t *testing.T) {
	lat, sched := testCircuit(t, 2)

	w, err := NewWasm(writeWasmModule(t, buildSimulatorModule("execute", nil)), 16)
	if err != nil {
		t.Fatalf("NewWasm failed: %v", err)
	}
	defer w.Close()

	if _, err := w.Execute(context.Background(), lat, sched); !errors.Is(err, ErrMalformedOutput) {
		t.Errorf("error = %v, want ErrMalformedOutput", err)
	}
}

func TestWasmMissingExecuteExport(t *testing.T) {
	lat, sched := testCircuit(t, 2)

	w, err := NewWasm(writeWasmModule(t, buildSimulatorModule("run", nil)), 16)
	if err != nil {
		t.Fatalf("NewWasm failed: %v", err)
	}
	defer w.Close()

	if _, err := w.Execute(context.Background(), lat, sched); !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestNewWasmMissingFile(t *testing.T) {
	if _, err := NewWasm(filepath.Join(t.TempDir(), "missing.wasm"), 16); err == nil {
		t.Error("NewWasm succeeded for missing module file")
	}
}

func TestNewWasmInvalidModule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.wasm")
	if err := os.WriteFile(path, []byte("not a wasm module"), 0o644); err != nil {
		t.Fatalf("write module: %v", err)
	}

	if _, err := NewWasm(path, 16); err == nil {
		t.Error("NewWasm succeeded for invalid module bytes")
	}
}

func TestNewFactory(t *testing.T) {
	b, err := New(Config{Kind: KindSimulator, Shots: 32})
	if err != nil {
		t.Fatalf("New simulator failed: %v", err)
	}
	if b.Name() != "qasm_simulator" {
		t.Errorf("Name = %q, want qasm_simulator", b.Name())
	}

	if _, err := New(Config{Kind: KindRemote}); err == nil {
		t.Error("New accepted remote backend without URL")
	}

	if _, err := New(Config{Kind: KindWasm}); err == nil {
		t.Error("New accepted wasm backend without module path")
	}

	if _, err := New(Config{Kind: "fpga"}); err == nil {
		t.Error("New accepted unknown backend kind")
	}
}
