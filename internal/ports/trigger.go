package ports

// Trigger starts matching runs from the outside world
type Trigger interface {
	// Start starts the trigger service
	Start() error

	// Stop stops the trigger service
	Stop() error
}
