// Package capture acquires the camera/microphone stream and runs the
// platform recorder process around it.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jfreymuth/pulse"
)

var (
	// ErrNotAllowed reports a device the user (or the OS) refused access to.
	ErrNotAllowed = errors.New("capture device access not allowed")
	// ErrDeviceUnavailable reports a missing or unusable capture device.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
)

// Constraints select the devices a stream is acquired from.
type Constraints struct {
	VideoDevice string
	AudioSource string
}

// Stream is a live, verified audio/video source pair. The session borrows
// it; failure to acquire is terminal until setup runs again.
type Stream struct {
	VideoDevice string
	AudioSource string
}

// Acquire verifies both devices are present and openable.
func Acquire(ctx context.Context, c Constraints) (Stream, error) {
	if err := probeVideo(c.VideoDevice); err != nil {
		return Stream{}, err
	}
	if err := probeAudio(ctx, c.AudioSource); err != nil {
		return Stream{}, err
	}
	return Stream{VideoDevice: c.VideoDevice, AudioSource: c.AudioSource}, nil
}

func probeVideo(device string) error {
	f, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("%w: open %s: %v", ErrNotAllowed, device, err)
		}
		return fmt.Errorf("%w: open %s: %v", ErrDeviceUnavailable, device, err)
	}
	_ = f.Close()
	return nil
}

func probeAudio(_ context.Context, source string) error {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("heycam"),
		pulse.ClientApplicationIconName("camera-video"),
	)
	if err != nil {
		return fmt.Errorf("%w: connect pulse server: %v", ErrDeviceUnavailable, err)
	}
	defer client.Close()

	source = strings.TrimSpace(source)
	if source == "" || source == "default" {
		if _, err := client.DefaultSource(); err != nil {
			return fmt.Errorf("%w: no default audio source: %v", ErrDeviceUnavailable, err)
		}
		return nil
	}

	if _, err := client.SourceByID(source); err != nil {
		return fmt.Errorf("%w: audio source %q: %v", ErrDeviceUnavailable, source, err)
	}
	return nil
}
