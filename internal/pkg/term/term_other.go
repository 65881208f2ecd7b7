//go:build !unix

package term

import (
	"os"

	"golang.org/x/xerrors"
)

func openTTY() (*os.File, error) {
	return nil, xerrors.New("controlling terminal is not available on this platform")
}
