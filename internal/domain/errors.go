package domain

import "errors"

var (
	// ErrOpenDocument means the source PDF could not be opened or parsed.
	ErrOpenDocument = errors.New("open document")
	// ErrServiceUnavailable marks an external service failure that should
	// abort the whole operation instead of a single item.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrUnsupportedModality is returned by services that cannot embed a kind.
	ErrUnsupportedModality = errors.New("unsupported modality")
	// ErrNoIndex means no usable index exists at the configured location.
	ErrNoIndex = errors.New("no index found")
)
