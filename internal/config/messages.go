package config

import "fmt"

const (
	errRequiredForBackendFmt = "%s must be set when the %s backend is selected"
)

type messageBuilders struct {
	requiredForBackend func(key, backend string) string
}

func newMessageBuilders() messageBuilders {
	return messageBuilders{
		requiredForBackend: func(key, backend string) string {
			return fmt.Sprintf(errRequiredForBackendFmt, key, backend)
		},
	}
}

var messages = newMessageBuilders()
