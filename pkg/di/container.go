// Package di provides dependency injection container
package di

import (
	"github.com/ssargent/protodemo/pkg/api"     //nolint:depguard
	"github.com/ssargent/protodemo/pkg/broker"  //nolint:depguard
	"github.com/ssargent/protodemo/pkg/storage" //nolint:depguard
)

// Container holds all the dependencies for the application
type Container struct {
	brokerFactory  broker.Factory
	storageFactory storage.Factory
	serverFactory  api.ServerFactory
}

// NewContainer creates a new dependency injection container
func NewContainer() *Container {
	return &Container{
		brokerFactory:  broker.NewFactory(),
		storageFactory: storage.NewFactory(),
		serverFactory:  api.NewServerFactory(),
	}
}

// GetBrokerFactory returns the broker client factory
func (c *Container) GetBrokerFactory() broker.Factory {
	return c.brokerFactory
}

// GetStorageFactory returns the message store factory
func (c *Container) GetStorageFactory() storage.Factory {
	return c.storageFactory
}

// GetServerFactory returns the server factory
func (c *Container) GetServerFactory() api.ServerFactory {
	return c.serverFactory
}

// SetBrokerFactory allows overriding the broker factory (for testing)
func (c *Container) SetBrokerFactory(factory broker.Factory) {
	c.brokerFactory = factory
}

// SetStorageFactory allows overriding the storage factory (for testing)
func (c *Container) SetStorageFactory(factory storage.Factory) {
	c.storageFactory = factory
}

// SetServerFactory allows overriding the server factory (for testing)
func (c *Container) SetServerFactory(factory api.ServerFactory) {
	c.serverFactory = factory
}
