package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"murmur/audio"
	"murmur/beep"
	"murmur/bridge"
	"murmur/clipboard"
	"murmur/config"
	"murmur/hotkey"
	"murmur/log"
	"murmur/output"
	"murmur/proto"
	"murmur/session"
	"murmur/shutdown"
	"murmur/transcriber"
	"murmur/worker"
)

var version = "dev"

func run() {
	workerFlag := flag.Bool("worker", false, "Run the pipeline worker (internal)")
	configFlag := flag.String("config", "", "Config file path (default: OS config dir)")
	setupFlag := flag.Bool("setup", false, "Select microphone device and save it to the config")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	noBeepFlag := flag.Bool("nobeep", false, "Disable audible cues")
	longPressFlag := flag.Duration("longpress", 350*time.Millisecond, "Long-press threshold for hold vs tap (e.g., 350ms)")
	pprofFlag := flag.String("pprof", "", "Enable pprof profiling server (e.g., :6060)")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("murmur %s\n", version)
		os.Exit(0)
	}

	logDir, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logDir)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	configPath := *configFlag
	if configPath == "" {
		configPath, err = config.DefaultPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to resolve config path: %v\n", err)
			os.Exit(1)
		}
	}

	if *noBeepFlag {
		beep.Disable()
	}

	if *pprofFlag != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", *pprofFlag)
			if err := http.ListenAndServe(*pprofFlag, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	if *workerFlag {
		runWorker(configPath, *deviceFlag)
		return
	}

	runHost(configPath, logDir, *setupFlag, *deviceFlag, *longPressFlag)
}

// runWorker hosts the pipeline on stdin/stdout. Spawned by the bridge;
// never meant to be invoked by hand.
func runWorker(configPath, deviceName string) {
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Warnf("config load: %v", err)
	}
	deviceID := cfg.Audio.InputDeviceID
	if deviceName == "" {
		deviceName = cfg.Audio.InputDevice
	} else {
		// An explicit -device flag names the device; it overrides
		// the saved ID as well.
		deviceID = ""
	}

	audioCtx, err := audio.NewContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing audio context: %v\n", err)
		os.Exit(1)
	}
	defer audioCtx.Close()

	capture, err := audioCtx.NewCapture(findDevice(audioCtx, deviceID, deviceName), audio.CaptureConfig{
		SampleRate: audio.SampleRate,
		Channels:   audio.Channels,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing capture device: %v\n", err)
		os.Exit(1)
	}
	defer capture.Close()

	keys, err := output.NewSystemKeys()
	if err != nil {
		log.Warnf("key sender init: %v", err)
		keys = unavailableKeys{err}
	}

	go beep.Init()
	log.SessionStart(cfg.STT.Backend, cfg.STT.Device, cfg.STT.ModelGPU)

	w := worker.New(worker.Options{
		ConfigPath:     configPath,
		Capture:        capture,
		NewTranscriber: adapterFactory(),
		Dispatch:       output.NewDispatcher(clipboard.System{}, keys),
		Cues:           beep.Sounds{},
	})
	if err := w.Serve(context.Background(), os.Stdin, os.Stdout); err != nil {
		log.Errorf("worker serve: %v", err)
		os.Exit(1)
	}
}

// adapterFactory caches adapters per engine command so the CUDA
// disable latch survives across sessions.
func adapterFactory() func(cfg config.Config) (session.Transcriber, error) {
	var mu sync.Mutex
	adapters := map[string]*transcriber.Adapter{}
	return func(cfg config.Config) (session.Transcriber, error) {
		mu.Lock()
		defer mu.Unlock()
		if a, ok := adapters[cfg.STT.Command]; ok {
			return a, nil
		}
		engine, err := transcriber.NewExecEngine(cfg.STT.Command)
		if err != nil {
			return nil, err
		}
		a := transcriber.NewAdapter(engine)
		adapters[cfg.STT.Command] = a
		return a, nil
	}
}

// findDevice resolves the configured microphone, preferring the stable
// backend ID over the display name. Nil selects the platform default.
func findDevice(audioCtx audio.Context, id, name string) *audio.DeviceInfo {
	if id == "" && name == "" {
		return nil
	}
	devices, err := audioCtx.Devices()
	if err != nil {
		log.Warnf("device enumeration failed: %v", err)
		return nil
	}
	if id != "" {
		for i := range devices {
			if devices[i].ID == id {
				return &devices[i]
			}
		}
	}
	if name != "" {
		for i := range devices {
			if devices[i].Name == name {
				return &devices[i]
			}
		}
	}
	log.Warnf("configured device not found, using default: %s", name)
	return nil
}

// runHost supervises the worker and translates hotkey intents into
// protocol calls.
func runHost(configPath, logDir string, setup bool, deviceName string, longPress time.Duration) {
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	if setup {
		runSetup(configPath)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Warnf("config load: %v", err)
	}
	combo, err := hotkey.ParseCombo(cfg.Hotkey)
	if err != nil {
		log.Warnf("hotkey binding %q: %v, using %s", cfg.Hotkey, err, hotkey.DefaultCombo)
		combo = hotkey.DefaultCombo
	}

	args := []string{"-worker", "-config", configPath, "-logpath", logDir}
	if deviceName != "" {
		args = append(args, "-device", deviceName)
	}
	runner, err := bridge.SelfRunner(args...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	br := bridge.New(runner, bridge.Options{})
	if err := br.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting worker: %v\n", err)
		os.Exit(1)
	}

	hk := hotkey.New(combo)
	if err := hk.Register(); err != nil {
		log.Errorf("hotkey register error: %v", err)
		fmt.Fprintf(os.Stderr, "Error registering hotkey: %v\n", err)
		br.Stop()
		os.Exit(1)
	}
	defer hk.Unregister()
	ctl := hotkey.NewController(hk, longPress)

	// Exit combo is optional; a nil channel never fires.
	var exits <-chan struct{}
	if cfg.ExitHotkey != "" {
		if exitCombo, err := hotkey.ParseCombo(cfg.ExitHotkey); err != nil {
			log.Warnf("exit hotkey binding %q: %v", cfg.ExitHotkey, err)
		} else {
			exitHk := hotkey.New(exitCombo)
			if err := exitHk.Register(); err != nil {
				log.Warnf("exit hotkey %s unavailable: %v", exitCombo, err)
			} else {
				defer exitHk.Unregister()
				exits = exitHk.Keydown()
			}
		}
	}

	go printEvents(ctx, br)

	sigChan := shutdown.Listen()

	fmt.Printf("murmur ready — press %s to dictate (tap to toggle, hold to talk)\n", combo)
	for {
		select {
		case <-ctl.Starts():
			go callWorker(ctx, br, "start_listening")
		case <-ctl.Stops():
			go callWorker(ctx, br, "stop_listening")
		case <-exits:
			br.Stop()
			return
		case <-sigChan:
			br.Stop()
			return
		}
	}
}

func callWorker(ctx context.Context, br *bridge.Bridge, method string) {
	if _, err := br.Call(ctx, method, nil); err != nil {
		var perr *proto.Error
		switch {
		case errors.As(err, &perr):
			log.Warnf("%s rejected: %s", method, perr.Message)
		case errors.Is(err, bridge.ErrUnavailable):
			fmt.Fprintln(os.Stderr, "worker unavailable, try again shortly")
		case errors.Is(err, bridge.ErrStopped), errors.Is(err, context.Canceled):
		default:
			log.Errorf("%s failed: %v", method, err)
		}
	}
}

func printEvents(ctx context.Context, br *bridge.Bridge) {
	for {
		select {
		case msg := <-br.Events():
			showEvent(msg)
		case <-ctx.Done():
			return
		}
	}
}

func showEvent(msg proto.Message) {
	switch msg.Event {
	case proto.EventStatusChanged:
		if status, ok := msg.Data["status"].(string); ok {
			fmt.Printf("[%s]\n", status)
		}
	case proto.EventTranscriptReady:
		text, _ := msg.Data["text"].(string)
		confidence, _ := msg.Data["confidence"].(float64)
		accepted, _ := msg.Data["accepted"].(bool)
		mark := "✓"
		if !accepted {
			mark = "✗"
		}
		fmt.Printf("%s %s (%.2f)\n", mark, text, confidence)
		if warning, ok := msg.Data["warning"].(string); ok && warning != "" {
			fmt.Printf("  warning: %s\n", warning)
		}
	case proto.EventRuntimeError:
		if message, ok := msg.Data["message"].(string); ok {
			fmt.Fprintf(os.Stderr, "error: %s\n", message)
		}
	}
}

// runSetup picks a microphone interactively and saves the choice.
func runSetup(configPath string) {
	audioCtx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("Error initializing audio: %v\n", err)
		os.Exit(1)
	}
	defer audioCtx.Close()

	dev, err := selectDevice(audioCtx)
	switch {
	case errors.Is(err, errPickCancelled):
		fmt.Println("Selection cancelled, keeping the configured device")
	case err != nil:
		fmt.Printf("Warning: device selection failed: %v\n", err)
		fmt.Println("Falling back to default device")
		fallthrough
	default:
		cfg, err := config.Load(configPath)
		if err != nil {
			log.Warnf("config load: %v", err)
		}
		cfg.Audio.InputDevice = ""
		cfg.Audio.InputDeviceID = ""
		if dev != nil {
			cfg.Audio.InputDevice = dev.Name
			cfg.Audio.InputDeviceID = dev.ID
		}
		if err := config.Save(configPath, cfg); err != nil {
			fmt.Printf("Warning: could not save config: %v\n", err)
		}
	}

	if msg, err := hotkey.Diagnose(); err != nil {
		fmt.Printf("Hotkey check failed: %v\n", err)
	} else {
		fmt.Println(msg)
	}
}

// unavailableKeys stands in when the key sender cannot initialize;
// every paste then falls back to clipboard-only with a warning.
type unavailableKeys struct{ err error }

func (u unavailableKeys) Paste() error { return u.err }
func (u unavailableKeys) Enter() error { return u.err }
