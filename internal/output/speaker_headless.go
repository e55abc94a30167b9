//go:build headless

package output

import "io"

func openDevice(int, int, io.Reader) (player, error) {
	return nil, ErrNoDevice
}
