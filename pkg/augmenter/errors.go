package augmenter

import "errors"

var (
	// ErrNotFound indicates that a requested document does not exist.
	ErrNotFound = errors.New("augmenter: document not found")
	// ErrUnsupportedContentType indicates an operation on a content type the backend does not model.
	ErrUnsupportedContentType = errors.New("augmenter: unsupported content type")
	// ErrInvalidEvent indicates that an event does not satisfy lifecycle invariants.
	ErrInvalidEvent = errors.New("augmenter: invalid event")
	// ErrInvalidWrite indicates that a write request is structurally invalid.
	ErrInvalidWrite = errors.New("augmenter: invalid write")
	// ErrInvalidSubscription indicates that a subscription configuration is invalid.
	ErrInvalidSubscription = errors.New("augmenter: invalid subscription")
	// ErrSubscriptionClosed indicates that a subscription is no longer active.
	ErrSubscriptionClosed = errors.New("augmenter: subscription closed")
	// ErrEventDropped indicates a non-blocking backpressure drop.
	ErrEventDropped = errors.New("augmenter: event dropped due to backpressure")
	// ErrServiceAlreadyRegistered indicates duplicate service registration.
	ErrServiceAlreadyRegistered = errors.New("augmenter: service already registered")
	// ErrServiceNotFound indicates a service lookup miss.
	ErrServiceNotFound = errors.New("augmenter: service not found")
	// ErrModuleAlreadyRegistered indicates duplicate module registration.
	ErrModuleAlreadyRegistered = errors.New("augmenter: module already registered")
	// ErrDriverAlreadyRegistered indicates duplicate driver registration.
	ErrDriverAlreadyRegistered = errors.New("augmenter: driver already registered")
	// ErrNotConfigured indicates that an optional integration has no configuration and was skipped.
	ErrNotConfigured = errors.New("augmenter: integration not configured")
)
