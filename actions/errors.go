package actions

import "fmt"

// AddressingError is returned when a preset has no target to act on, either
// configured or taken from the triggering event.
type AddressingError struct {
	PresetType string
	Target     string
}

func (e *AddressingError) Error() string {
	return fmt.Sprintf("%s preset: no %s configured and none in event context", e.PresetType, e.Target)
}

// HTTPStatusError is a webhook response outside the 2xx range.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("webhook returned status %d: %s", e.StatusCode, e.Body)
}
