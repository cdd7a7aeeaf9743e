package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/haukened/livedata/internal/app"
	"github.com/haukened/livedata/internal/domain"
)

func TestUpdateMessage(t *testing.T) {
	notFound := &fs.PathError{Op: "open", Path: "/x/save.dat", Err: fs.ErrNotExist}
	tests := []struct {
		name string
		u    Update
		want string
	}{
		{"success", Update{Text: `{"a":1}`}, `{"a":1}`},
		{"empty success", Update{}, ""},
		{"read failure", Update{Err: fmt.Errorf("%w: %w", app.ErrReadFile, notFound)}, "Failed to read file: open /x/save.dat: file does not exist"},
		{"bare read marker", Update{Err: app.ErrReadFile}, "Failed to read file: read file"},
		{"decrypt failure", Update{Err: domain.ErrProviderFailure}, "Failed to decrypt or parse file"},
		{"decompress failure", Update{Err: fmt.Errorf("%w: %w", domain.ErrDecompression, errors.New("unexpected EOF"))}, "Failed to decrypt or parse file"},
		{"encoding failure", Update{Err: domain.ErrInvalidEncoding}, "Failed to decrypt or parse file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.u.Message(); got != tt.want {
				t.Fatalf("Message() = %q want %q", got, tt.want)
			}
		})
	}
}
