package watch

import (
	"errors"
	"time"

	"github.com/haukened/livedata/internal/app"
)

// Failure strings shown in place of file contents.
const (
	msgReadFailed   = "Failed to read file: "
	msgDecodeFailed = "Failed to decrypt or parse file"
)

// Update is the result of one load of the watched file: either Text or Err.
type Update struct {
	Path string
	Text string
	Err  error
	At   time.Time
}

// Failed reports whether the load failed.
func (u Update) Failed() bool { return u.Err != nil }

// Message returns Text on success and a human-readable failure string
// otherwise.
func (u Update) Message() string {
	switch {
	case u.Err == nil:
		return u.Text
	case errors.Is(u.Err, app.ErrReadFile):
		return msgReadFailed + readCause(u.Err).Error()
	default:
		return msgDecodeFailed
	}
}

// readCause strips the ErrReadFile marker and returns the OS error beside it.
func readCause(err error) error {
	if multi, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range multi.Unwrap() {
			if !errors.Is(e, app.ErrReadFile) {
				return e
			}
		}
	}
	return err
}
