package allocation

// SocketAllocation is what one class receives on one cache domain.
// L3Bitmask is a hex string as accepted by resctrl.
type SocketAllocation struct {
	L3Bitmask    string
	MemBandwidth float64
}

// ClassAllocation is a resctrl class derived from one partition cluster.
type ClassAllocation struct {
	Name string
	Mask Bitmask
	// Apps lists the application names sharing the class.
	Apps []string
}

// RDTBackend programs classes into the platform. Implementations replace the
// whole managed class set on every CreateAllRDTClasses call.
type RDTBackend interface {
	Initialize() error

	CreateAllRDTClasses(classes map[string]*SocketAllocation) error

	AssignPIDToClass(pid int, className string) error

	Cleanup() error
}
