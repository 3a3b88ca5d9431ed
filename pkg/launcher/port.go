package launcher

import (
	"fmt"
	"net"
)

// loopbackAddr is where ephemeral ports are probed and where the backend is reached
const loopbackAddr = "127.0.0.1"

// PortAssignment is the port the backend will bind, resolved once before launch
type PortAssignment struct {
	Policy PortPolicy
	Port   uint16
}

// String renders the assignment as Fixed(n) or Ephemeral(n)
func (pa PortAssignment) String() string {
	switch pa.Policy {
	case PortPolicyFixed:
		return fmt.Sprintf("Fixed(%d)", pa.Port)
	case PortPolicyEphemeral:
		return fmt.Sprintf("Ephemeral(%d)", pa.Port)
	default:
		return fmt.Sprintf("Unknown(%d)", pa.Port)
	}
}

// ResolvePort returns the port for the backend's HTTP listener.
//
// The fixed policy returns fixed without any I/O. The ephemeral policy binds
// 127.0.0.1:0, reads the port the OS picked and releases the listener
// before returning.
func ResolvePort(policy PortPolicy, fixed uint16) (PortAssignment, error) {
	switch policy {
	case PortPolicyFixed:
		if fixed == 0 {
			return PortAssignment{}, ErrInvalidConfiguration("port", fixed, "fixed port must be between 1 and 65535")
		}
		return PortAssignment{Policy: PortPolicyFixed, Port: fixed}, nil

	case PortPolicyEphemeral:
		port, err := findFreePort()
		if err != nil {
			return PortAssignment{}, err
		}
		return PortAssignment{Policy: PortPolicyEphemeral, Port: port}, nil

	default:
		return PortAssignment{}, ErrInvalidConfiguration("port_policy", policy, "unknown port policy")
	}
}

// findFreePort binds to port 0 and lets the OS assign a free port
func findFreePort() (uint16, error) {
	address := net.JoinHostPort(loopbackAddr, "0")

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return 0, ErrPortAllocationFailed(address, err)
	}
	defer listener.Close()

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok || tcpAddr.Port <= 0 || tcpAddr.Port > 65535 {
		return 0, ErrPortAllocationFailed(address,
			fmt.Errorf("unexpected listener address %v", listener.Addr()))
	}

	return uint16(tcpAddr.Port), nil
}
