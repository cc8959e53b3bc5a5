package tool

import "errors"

// Sentinel errors. Registry.Execute never returns them; they surface as the
// "error" field of the JSON result.
var (
	// ErrUnknownFunction is reported for names that are not registered.
	ErrUnknownFunction = errors.New("Unknown function") //nolint:staticcheck // user-facing text

	// ErrInvalidArguments is reported when arguments are not valid JSON or
	// do not match the function's Param shape.
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrEmptyName is returned by Register for a blank function name.
	ErrEmptyName = errors.New("function name must not be empty")
)
