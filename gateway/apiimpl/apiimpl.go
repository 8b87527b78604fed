package apiimpl

import (
	"github.com/warehouselabs/replica-gateway/gateway/apiimpl/server_v1"
	"go.uber.org/zap"
)

type NewOptions struct {
	Logger *zap.Logger

	Runtime server_v1.Runtime
	Debug   bool
}

type Servers struct {
	ReplicationV1Server *server_v1.ReplicationServer
}

func New(opts *NewOptions) *Servers {
	v1ErrHandler := &server_v1.ErrorHandler{
		Logger: opts.Logger.Named("errors"),
		Debug:  opts.Debug,
	}

	return &Servers{
		ReplicationV1Server: server_v1.NewReplicationServer(
			opts.Logger.Named("api-serverv1"),
			v1ErrHandler,
			opts.Runtime),
	}
}
