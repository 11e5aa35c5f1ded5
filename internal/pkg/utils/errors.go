package utils

// ErrValidation indicates a pre-flight input problem,
// no request is sent to the service
type ErrValidation struct {
	msg string
}

// NewErrValidation creates new error
func NewErrValidation(msg string) error {
	return &ErrValidation{msg: msg}
}

func (e *ErrValidation) Error() string {
	return e.msg
}

// ErrService indicates the service answered with an error field.
// The message is shown to the user as is
type ErrService struct {
	Msg string
}

// NewErrService creates new error
func NewErrService(msg string) error {
	return &ErrService{Msg: msg}
}

func (e *ErrService) Error() string {
	return e.Msg
}

// ErrTransport indicates a network or response parse failure
type ErrTransport struct {
	err error
}

// NewErrTransport creates new error
func NewErrTransport(err error) error {
	return &ErrTransport{err: err}
}

func (e *ErrTransport) Error() string {
	return "transport error: " + e.err.Error()
}

func (e *ErrTransport) Unwrap() error {
	return e.err
}
