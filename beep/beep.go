// Package beep plays the short audible cues around a dictation
// session: ready when the microphone opens, done on an accepted
// transcript, error on rejection or failure.
package beep

var disabled bool

func Disable() { disabled = true }

const (
	sampleRate = 44100

	// Ready cue: mid pitch, short
	readyFreq   = 850
	readyVolume = 0.5
	readyDecay  = 50

	// Done cue: high pitch
	doneFreq   = 1200
	doneVolume = 0.5
	doneDecay  = 40

	// Error cue: low pitch double-beep
	errorFreq   = 420
	errorVolume = 0.6
	errorDecay  = 30
)

func Init() {
	soundOnce.Do(initSound)
}

func PlayReady() {
	if disabled {
		return
	}
	soundOnce.Do(initSound)
	play(readySamples)
}

func PlayDone() {
	if disabled {
		return
	}
	soundOnce.Do(initSound)
	play(doneSamples)
}

func PlayError() {
	if disabled {
		return
	}
	soundOnce.Do(initSound)
	play(errorSamples)
}

// Sounds routes session cues to the platform player.
type Sounds struct{}

func (Sounds) Ready() { PlayReady() }
func (Sounds) Done()  { PlayDone() }
func (Sounds) Error() { PlayError() }
