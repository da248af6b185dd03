package transcriber

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	shellwords "github.com/mattn/go-shellwords"
)

// execEngine shells out to a whisper-style CLI: the utterance goes to a
// temp WAV, the command prints a JSON object on stdout.
type execEngine struct {
	cmd []string
}

type execOutput struct {
	Text         string  `json:"text"`
	AvgLogProb   float64 `json:"avg_logprob"`
	NoSpeechProb float64 `json:"no_speech_prob"`
}

// NewExecEngine parses the configured command line (shell quoting
// respected) and returns an engine that invokes it per utterance.
func NewExecEngine(command string) (Engine, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("stt command is empty")
	}
	return &execEngine{cmd: args}, nil
}

func (e *execEngine) Name() string { return "exec:" + e.cmd[0] }

func (e *execEngine) Transcribe(ctx context.Context, req Request) (Raw, error) {
	file, err := os.CreateTemp("", "murmur_stt_*.wav")
	if err != nil {
		return Raw{}, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := writePCMToWav(file, req.PCM, req.SampleRate, req.Channels); err != nil {
		return Raw{}, err
	}

	args := append([]string{}, e.cmd[1:]...)
	args = append(args, "--audio", file.Name(), "--model", req.Model, "--device", req.Device)
	if req.ComputeType != "" {
		args = append(args, "--compute-type", req.ComputeType)
	}
	if req.Language != "" {
		args = append(args, "--language", req.Language)
	}
	if req.Prompt != "" {
		args = append(args, "--initial-prompt", req.Prompt)
	}
	if req.BeamSize > 0 {
		args = append(args, "--beam-size", strconv.Itoa(req.BeamSize))
	}
	if req.BestOf > 0 {
		args = append(args, "--best-of", strconv.Itoa(req.BestOf))
	}
	if len(req.Temperatures) > 0 {
		temps := make([]string, len(req.Temperatures))
		for i, t := range req.Temperatures {
			temps[i] = strconv.FormatFloat(t, 'g', -1, 64)
		}
		args = append(args, "--temperature", strings.Join(temps, ","))
	}
	if req.VADFilter {
		args = append(args, "--vad-filter")
	}

	command := exec.CommandContext(ctx, e.cmd[0], args...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return Raw{}, fmt.Errorf("stt command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var out execOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return Raw{}, fmt.Errorf("decode stt output: %w", err)
	}
	return Raw{Text: out.Text, AvgLogProb: out.AvgLogProb, NoSpeechProb: out.NoSpeechProb}, nil
}

func writePCMToWav(file *os.File, pcm []byte, sampleRate, channels int) error {
	if len(pcm)%2 != 0 {
		return fmt.Errorf("pcm payload not aligned")
	}
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buffer := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:   samples,
	}

	enc := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
