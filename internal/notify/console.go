package notify

import (
	"fmt"
	"os"
)

// ConsoleSound rings the terminal bell. Good enough for the kiosk display;
// real audio playback sits behind the same interface.
type ConsoleSound struct{}

func (ConsoleSound) Tone() error {
	_, err := fmt.Fprint(os.Stderr, "\a")
	return err
}

func (ConsoleSound) Alarm() error {
	_, err := fmt.Fprint(os.Stderr, "\a\a")
	return err
}

// NopDesktop is the denied-permission environment: no platform
// notifications, in-app alerts and the alarm still carry the session.
type NopDesktop struct{}

func (NopDesktop) RequestPermission() bool { return false }
func (NopDesktop) Notify(title, message string) error { return nil }
