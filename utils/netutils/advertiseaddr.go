// Package netutils holds small networking helpers shared by the serving
// layers.
package netutils

// GetAdvertiseAddress resolves the address peers should use to reach a
// listener bound to bindAddress. A concrete bind address is advertised
// as-is; an inaddr_any bind is substituted with the system's outbound ip.
func GetAdvertiseAddress(bindAddress string) (string, error) {
	if !IsInAddrAny(bindAddress) {
		return bindAddress, nil
	}

	outboundIP, err := GetOutboundIP()
	if err != nil {
		return "", err
	}

	return outboundIP.String(), nil
}
