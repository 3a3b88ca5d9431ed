package launcher

import (
	"net"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePort_Fixed(t *testing.T) {
	assignment, err := ResolvePort(PortPolicyFixed, 8765)
	require.NoError(t, err)
	assert.Equal(t, PortPolicyFixed, assignment.Policy)
	assert.Equal(t, uint16(8765), assignment.Port)
	assert.Equal(t, "Fixed(8765)", assignment.String())
}

func TestResolvePort_FixedZero(t *testing.T) {
	_, err := ResolvePort(PortPolicyFixed, 0)
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrorCodeInvalidConfiguration))
}

// TestResolvePort_Ephemeral tests that the port is free again once resolved
func TestResolvePort_Ephemeral(t *testing.T) {
	assignment, err := ResolvePort(PortPolicyEphemeral, 0)
	require.NoError(t, err)
	assert.Equal(t, PortPolicyEphemeral, assignment.Policy)
	assert.GreaterOrEqual(t, assignment.Port, uint16(1024), "not a privileged port")
	assert.Equal(t, "Ephemeral("+strconv.Itoa(int(assignment.Port))+")", assignment.String())

	listener, err := net.Listen("tcp", net.JoinHostPort(loopbackAddr, strconv.Itoa(int(assignment.Port))))
	require.NoError(t, err, "resolved port should be bindable")
	listener.Close()
}

// TestResolvePort_EphemeralInLocalRange tests that the port comes from the
// kernel's dynamic range
func TestResolvePort_EphemeralInLocalRange(t *testing.T) {
	data, err := os.ReadFile("/proc/sys/net/ipv4/ip_local_port_range")
	if err != nil {
		t.Skip("no ip_local_port_range on this platform")
	}
	bounds := strings.Fields(string(data))
	require.Len(t, bounds, 2)
	low, err := strconv.Atoi(bounds[0])
	require.NoError(t, err)
	high, err := strconv.Atoi(bounds[1])
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		assignment, err := ResolvePort(PortPolicyEphemeral, 0)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, int(assignment.Port), low)
		assert.LessOrEqual(t, int(assignment.Port), high)
	}
}

func TestResolvePort_EphemeralIgnoresFixed(t *testing.T) {
	assignment, err := ResolvePort(PortPolicyEphemeral, 8765)
	require.NoError(t, err)
	assert.NotZero(t, assignment.Port)
}

func TestResolvePort_UnknownPolicy(t *testing.T) {
	_, err := ResolvePort(PortPolicy("random"), 8765)
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrorCodeInvalidConfiguration))
}

func TestPortAssignment_StringUnknown(t *testing.T) {
	assert.Equal(t, "Unknown(1)", PortAssignment{Port: 1}.String())
}
