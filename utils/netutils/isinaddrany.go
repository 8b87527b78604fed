package netutils

// IsInAddrAny reports whether addr is an all-interfaces bind.
func IsInAddrAny(addr string) bool {
	return addr == "" || addr == "::/0" || addr == "0.0.0.0"
}
