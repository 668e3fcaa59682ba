package allocation

import (
	"fmt"
	"strings"
	"testing"
)

// MockRDTBackend is a test mock for the RDT backend.
type MockRDTBackend struct {
	InitializeCalled bool
	CleanupCalled    bool
	LastClasses      map[string]*SocketAllocation
	Assignments      map[int]string
	FailCreate       bool
}

func NewMockRDTBackend() *MockRDTBackend {
	return &MockRDTBackend{
		Assignments: make(map[int]string),
	}
}

func (m *MockRDTBackend) Initialize() error {
	m.InitializeCalled = true
	return nil
}

func (m *MockRDTBackend) CreateAllRDTClasses(classes map[string]*SocketAllocation) error {
	if m.FailCreate {
		return fmt.Errorf("schemata write failed")
	}
	m.LastClasses = make(map[string]*SocketAllocation, len(classes))
	for k, v := range classes {
		m.LastClasses[k] = v
	}
	return nil
}

func (m *MockRDTBackend) AssignPIDToClass(pid int, className string) error {
	if _, ok := m.LastClasses[className]; !ok {
		return fmt.Errorf("class %s not found", className)
	}
	m.Assignments[pid] = className
	return nil
}

func (m *MockRDTBackend) Cleanup() error {
	m.CleanupCalled = true
	m.LastClasses = nil
	return nil
}

func TestBuildClassPlan_GroupsClusters(t *testing.T) {
	apps := []string{"mcf", "lbm", "gcc"}
	masks := []Bitmask{0xf00, 0x0ff, 0xf00}

	plan, err := BuildClassPlan("W3/ucp", apps, masks, []int{0, 1, 0})
	if err != nil {
		t.Fatalf("BuildClassPlan: %v", err)
	}
	if len(plan) != 2 {
		t.Fatalf("expected 2 classes, got %d", len(plan))
	}
	if plan[0].Name != "W3_ucp_c0" || plan[1].Name != "W3_ucp_c1" {
		t.Fatalf("unexpected class names %q, %q", plan[0].Name, plan[1].Name)
	}
	if got := strings.Join(plan[0].Apps, ","); got != "mcf,gcc" {
		t.Fatalf("cluster 0 apps = %s", got)
	}
	if plan[1].Mask != 0x0ff {
		t.Fatalf("cluster 1 mask = %s", plan[1].Mask)
	}
}

func TestBuildClassPlan_OneClassPerAppWithoutClusters(t *testing.T) {
	plan, err := BuildClassPlan("W1", []string{"a", "b"}, []Bitmask{0xc, 0x3}, nil)
	if err != nil {
		t.Fatalf("BuildClassPlan: %v", err)
	}
	if len(plan) != 2 || plan[0].Apps[0] != "a" || plan[1].Apps[0] != "b" {
		t.Fatalf("unexpected plan %+v", plan)
	}
}

func TestBuildClassPlan_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		apps     []string
		masks    []Bitmask
		clusters []int
	}{
		{name: "mask count mismatch", apps: []string{"a", "b"}, masks: []Bitmask{0x1}},
		{name: "cluster count mismatch", apps: []string{"a"}, masks: []Bitmask{0x1}, clusters: []int{0, 1}},
		{name: "cluster mask conflict", apps: []string{"a", "b"}, masks: []Bitmask{0x3, 0xc}, clusters: []int{0, 0}},
		{name: "empty mask", apps: []string{"a"}, masks: []Bitmask{0}},
		{name: "non contiguous mask", apps: []string{"a"}, masks: []Bitmask{0x5}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BuildClassPlan("W1", tt.apps, tt.masks, tt.clusters); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestEnforcer_ApplyAndBind(t *testing.T) {
	backend := NewMockRDTBackend()
	e := NewEnforcer(backend)

	plan, err := BuildClassPlan("W1_opt-stp", []string{"mcf", "lbm"}, []Bitmask{0xff0, 0x00f}, []int{0, 1})
	if err != nil {
		t.Fatalf("BuildClassPlan: %v", err)
	}
	if err := e.Apply(plan); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !backend.InitializeCalled {
		t.Fatalf("expected backend to be initialized")
	}
	if got := backend.LastClasses["W1_opt-stp_c0"]; got == nil || got.L3Bitmask != "ff0" {
		t.Fatalf("unexpected class c0 allocation %+v", got)
	}

	if err := e.Bind(map[string]int{"mcf": 100, "lbm": 200}); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if backend.Assignments[100] != "W1_opt-stp_c0" || backend.Assignments[200] != "W1_opt-stp_c1" {
		t.Fatalf("unexpected assignments %v", backend.Assignments)
	}

	if err := e.Bind(map[string]int{"gcc": 300}); err == nil {
		t.Fatalf("expected unknown application to fail")
	}

	if err := e.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if !backend.CleanupCalled {
		t.Fatalf("expected backend cleanup")
	}
}

func TestEnforcer_ApplyPropagatesBackendError(t *testing.T) {
	backend := NewMockRDTBackend()
	backend.FailCreate = true

	err := NewEnforcer(backend).Apply([]ClassAllocation{{Name: "c0", Mask: 0xf, Apps: []string{"a"}}})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestBuildRDTConfig(t *testing.T) {
	cfg := buildRDTConfig(map[string]*SocketAllocation{
		"c0": {L3Bitmask: "ff0"},
		"c1": {L3Bitmask: "00f", MemBandwidth: 50},
	}, []string{"0", "1"})

	part, ok := cfg.Partitions[""]
	if !ok {
		t.Fatalf("expected default partition")
	}
	if len(part.Classes) != 2 {
		t.Fatalf("expected 2 classes, got %d", len(part.Classes))
	}
	c1 := part.Classes["c1"]
	if string(c1.L3Allocation["1"].Unified) != "00f" {
		t.Fatalf("unexpected c1 L3 allocation %+v", c1.L3Allocation)
	}
	if len(c1.MBAllocation["0"]) != 1 || string(c1.MBAllocation["0"][0]) != "50%" {
		t.Fatalf("unexpected c1 MB allocation %+v", c1.MBAllocation)
	}
	if len(part.Classes["c0"].MBAllocation) != 0 {
		t.Fatalf("expected no MB allocation for c0")
	}
}
