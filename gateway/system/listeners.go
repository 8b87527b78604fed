package system

import (
	"fmt"
	"net"
)

type ListenersOptions struct {
	Address string
	ApiPort int
}

type Listeners struct {
	apiListener net.Listener
}

func NewListeners(opts *ListenersOptions) (*Listeners, error) {
	var err error
	l := &Listeners{}

	if opts.ApiPort >= 0 {
		l.apiListener, err = net.Listen("tcp", fmt.Sprintf("%s:%d", opts.Address, opts.ApiPort))
		if err != nil {
			l.Close()
			return nil, err
		}
	}

	return l, nil
}

func (l *Listeners) BoundApiPort() int {
	if l.apiListener == nil {
		return 0
	}
	return l.apiListener.Addr().(*net.TCPAddr).Port
}

func (l *Listeners) Close() error {
	if l.apiListener != nil {
		l.apiListener.Close()
		l.apiListener = nil
	}

	return nil
}
