package api

import "context"

// ServerStarter runs the API server for a store
type ServerStarter interface {
	Serve(ctx context.Context, st IAttrStore, config ServerConfig) error
}

// ServerFactory creates server instances
type ServerFactory interface {
	CreateServerStarter() ServerStarter
}

// DefaultServerFactory is the default implementation of ServerFactory
type DefaultServerFactory struct{}

// NewServerFactory creates a new server factory
func NewServerFactory() ServerFactory {
	return &DefaultServerFactory{}
}

// CreateServerStarter creates a server starter
func (f *DefaultServerFactory) CreateServerStarter() ServerStarter {
	return &DefaultServerStarter{}
}

// DefaultServerStarter starts the real HTTP server
type DefaultServerStarter struct{}

// Serve runs Serve with the given configuration
func (s *DefaultServerStarter) Serve(ctx context.Context, st IAttrStore, config ServerConfig) error {
	return Serve(ctx, st, config)
}
