//go:build !headless

package output

import (
	"io"

	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process.
var (
	otoCtx *oto.Context
	otoErr error
)

func openDevice(sampleRate, channels int, r io.Reader) (player, error) {
	if otoCtx == nil && otoErr == nil {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			otoErr = err
			return nil, err
		}
		<-ready
		otoCtx = ctx
	}
	if otoErr != nil {
		return nil, otoErr
	}
	return otoCtx.NewPlayer(r), nil
}
