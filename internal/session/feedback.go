package session

import "time"

// Feedback plays short audio cues. Both methods are fire-and-forget and
// must never block or fail the session.
type Feedback interface {
	Speak(text string)
	Tone(frequencyHz float64, duration time.Duration)
}

// noopFeedback preserves session flow when no feedback sink is wired.
type noopFeedback struct{}

func (noopFeedback) Speak(string)                {}
func (noopFeedback) Tone(float64, time.Duration) {}
