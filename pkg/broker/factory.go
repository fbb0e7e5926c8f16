package broker

// New creates a Client for opts.URL: AMQP for amqp:// and amqps://, MQTT
// for everything else.
func New(opts Options) (Client, error) {
	opts = opts.withDefaults()
	endpoint, err := ParseEndpoint(opts.URL, opts.WSPath)
	if err != nil {
		return nil, err
	}
	if endpoint.IsAMQP() {
		return NewAMQPClient(endpoint, opts), nil
	}
	return NewMQTTClient(endpoint, opts), nil
}

// Factory creates broker clients
type Factory interface {
	// CreateClient creates a client for the given options
	CreateClient(opts Options) (Client, error)
}

// DefaultFactory is the default implementation of Factory
type DefaultFactory struct{}

// NewFactory creates a new broker client factory
func NewFactory() Factory {
	return &DefaultFactory{}
}

// CreateClient creates a client with New
func (f *DefaultFactory) CreateClient(opts Options) (Client, error) {
	return New(opts)
}
