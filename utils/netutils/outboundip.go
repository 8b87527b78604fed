package netutils

import (
	"net"
)

// GetOutboundIP finds the local address the system would route external
// traffic through. The dial never sends a packet, udp connect only picks a
// route.
func GetOutboundIP() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return nil, err
	}

	localAddr := conn.LocalAddr().(*net.UDPAddr)

	_ = conn.Close()

	return localAddr.IP, nil
}
