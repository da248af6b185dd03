package transcriber

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"murmur/config"
)

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// looksFragmented flags decodes that shattered words into runs of one-
// and two-letter tokens, a failure mode of narrow beams on noisy input.
// Short phrases are exempt; they have too few tokens to judge.
func looksFragmented(text string) bool {
	if text == "" {
		return true
	}
	tokens := wordPattern.FindAllString(strings.ToLower(text), -1)
	if len(tokens) < 4 {
		return false
	}
	return shortTokenRatio(tokens) >= 0.35
}

func fragmentRatio(text string) float64 {
	tokens := wordPattern.FindAllString(strings.ToLower(text), -1)
	if len(tokens) == 0 {
		return 1.0
	}
	return shortTokenRatio(tokens)
}

func shortTokenRatio(tokens []string) float64 {
	short := 0
	for _, tok := range tokens {
		if utf8.RuneCountInString(tok) <= 2 {
			short++
		}
	}
	return float64(short) / float64(len(tokens))
}

// decodeQuality ranks two decodes of the same audio: confidence, with a
// penalty for fragmented text so an escalated pass that reads cleanly
// can beat a slightly more confident garble.
func decodeQuality(text string, confidence float64) float64 {
	score := confidence
	if looksFragmented(text) {
		score -= 0.20
	}
	return score - 0.10*fragmentRatio(text)
}

// escalated raises the decode effort for a second pass: wide beam,
// temperature ladder, voice-activity filtering.
func escalated(opts config.DecodeOptions) config.DecodeOptions {
	if opts.BeamSize < 5 {
		opts.BeamSize = 5
	}
	if opts.BestOf < 5 {
		opts.BestOf = 5
	}
	opts.Temperatures = []float64{0.0, 0.2, 0.4}
	opts.VADFilter = true
	return opts
}
