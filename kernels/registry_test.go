package kernels

import (
	"encoding/binary"
	"testing"
	"unsafe"
)

func TestLookupKnownCommand(t *testing.T) {
	d, ok := Lookup("relu")
	if !ok {
		t.Fatalf("expected relu to be registered")
	}
	if !d.Inplace {
		t.Errorf("relu should be Inplace")
	}
	if d.ShapeHint != "elementwise" {
		t.Errorf("got ShapeHint %q, want elementwise", d.ShapeHint)
	}
}

func TestLookupUnknownCommand(t *testing.T) {
	if _, ok := Lookup("quantum_fft"); ok {
		t.Errorf("unregistered command should not be found")
	}
}

func TestRegisterOverridesLookup(t *testing.T) {
	Register("custom_op", Descriptor{Inplace: false, ShapeHint: "custom"})
	d, ok := Lookup("custom_op")
	if !ok || d.ShapeHint != "custom" {
		t.Errorf("Register did not take effect, got %+v ok=%v", d, ok)
	}
}

func TestDispatchRunsReluInPlace(t *testing.T) {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[0:4], *(*uint32)(unsafe.Pointer(&[]float32{-2.0}[0])))
	binary.LittleEndian.PutUint32(data[4:8], *(*uint32)(unsafe.Pointer(&[]float32{3.0}[0])))

	if !Dispatch("relu", data) {
		t.Fatalf("expected relu to dispatch")
	}

	first := *(*float32)(unsafe.Pointer(&data[0]))
	second := *(*float32)(unsafe.Pointer(&data[4]))
	if first != 0 || second != 3.0 {
		t.Errorf("got [%f %f], want [0 3]", first, second)
	}
}

func TestDispatchUnknownCommandReportsFalse(t *testing.T) {
	if Dispatch("arenac.zero_init", make([]byte, 4)) {
		t.Errorf("arenac.zero_init has no Catalog entry and should not dispatch")
	}
}
