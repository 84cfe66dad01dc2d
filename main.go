package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"candlecard/audio"
	"candlecard/blow"
	"candlecard/cue"
	"candlecard/doctor"
	"candlecard/greeting"
	"candlecard/log"
	"candlecard/shutdown"

	"github.com/jonboulle/clockwork"
)

var version = "dev"

// sink receives card events; the GUI build swaps in its window.
var sink EventSink = tuiSink{}
var guiMode bool

var (
	activeCard *card
	teardownMu sync.Mutex
	teardown   []func()
)

func onShutdown(fn func()) {
	teardownMu.Lock()
	teardown = append(teardown, fn)
	teardownMu.Unlock()
}

var shutdownOnce sync.Once

func gracefulShutdown() {
	shutdownOnce.Do(func() {
		teardownMu.Lock()
		fns := teardown
		teardownMu.Unlock()
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
		if activeCard != nil {
			log.SessionEnd(activeCard.Celebrations())
		}
		log.Close()
		tuiMu.Lock()
		p := tuiProgram
		tuiMu.Unlock()
		if p != nil {
			p.Quit()
		}
		os.Exit(0)
	})
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-gui" || arg == "--gui" {
			initGUI() // takes the main thread, calls run() in a goroutine
			return
		}
	}
	run()
}

func run() {
	configFlag := flag.String("config", "", "Greeting card YAML file (default: built-in card)")
	deviceFlag := flag.String("device", "", "Use the microphone whose name contains this text")
	setupFlag := flag.Bool("setup", false, "Select microphone device (otherwise uses system default)")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	testFlag := flag.Bool("test", false, "Test mode (headless, stdin-driven, takes a WAV or FLAC file)")
	doctorFlag := flag.Bool("doctor", false, "Run microphone and speaker diagnostics and exit")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	thresholdFlag := flag.Float64("threshold", 0, "Blow threshold on the 0-255 level scale (default from card)")
	flag.Bool("gui", false, "Open the card in a window (build with -tags gui)")
	flag.Parse()

	// Resolve log directory early
	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)

	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if *versionFlag {
		fmt.Printf("candlecard %s\n", version)
		os.Exit(0)
	}

	g, cfgErr := greeting.Load(*configFlag)
	if cfgErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using the default card)\n", cfgErr)
	}
	if *thresholdFlag != 0 {
		if *thresholdFlag < 0 || *thresholdFlag >= 255 {
			fmt.Fprintf(os.Stderr, "Error: threshold %v out of range (0-255)\n", *thresholdFlag)
			os.Exit(1)
		}
		g.Threshold = *thresholdFlag
	}

	if *doctorFlag {
		os.Exit(doctor.Run(doctor.Options{Card: g, Device: *deviceFlag}))
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	if cfgErr != nil {
		log.Warnf("card config: %v", cfgErr)
	}

	if *testFlag {
		args := flag.Args()
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "Usage: candlecard -test <wav-or-flac-file>")
			os.Exit(1)
		}
		runTestMode(args[0], g)
		return
	}

	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	actx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Printf("Error initializing audio context: %v\n", err)
		os.Exit(1)
	}
	onShutdown(actx.Close)

	var selectedDevice *audio.DeviceInfo
	if *deviceFlag != "" {
		selectedDevice, err = audio.FindDevice(actx, *deviceFlag)
		if err != nil {
			log.Warnf("device lookup failed: %v", err)
			fmt.Printf("Warning: %v, falling back to default device\n", err)
		}
	} else if *setupFlag {
		selectedDevice, err = audio.SelectDevice(actx)
		if errors.Is(err, audio.ErrSelectionCancelled) {
			actx.Close()
			os.Exit(130)
		}
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed: %v\n", err)
			fmt.Println("Falling back to default device")
			selectedDevice = nil
		}
	}
	deviceName := audio.DefaultDeviceName
	if selectedDevice != nil {
		deviceName = selectedDevice.Name
	}
	log.SessionStart(g.Name, deviceName, g.Threshold, g.ConfirmDelay)

	speakers := cue.NewSpeakerBackend(log.Logger("cue"))
	onShutdown(speakers.Close)

	activeCard = buildCard(g, blow.NewMicSource(actx, selectedDevice, log.Logger("mic")), speakers, sink)
	onShutdown(activeCard.Close)

	go func() {
		<-ctx.Done()
		tuiMu.Lock()
		p := tuiProgram
		tuiMu.Unlock()
		if p != nil {
			// Let Run return so the terminal is restored first.
			p.Quit()
			return
		}
		gracefulShutdown()
	}()

	if guiMode {
		guiApp.Bind(g, activeCard)
		<-ctx.Done()
		return
	}

	tuiMu.Lock()
	tuiProgram = NewTUIProgram(g, activeCard)
	tuiMu.Unlock()

	if _, err := tuiProgram.Run(); err != nil {
		log.Errorf("TUI error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	gracefulShutdown()
}

// buildCard assembles the detector and cue player around src and backend.
func buildCard(g greeting.Card, src blow.Source, backend cue.Backend, s EventSink) *card {
	clock := clockwork.NewRealClock()
	det := blow.New(src, blow.Config{
		Threshold:    g.Threshold,
		ConfirmDelay: g.ConfirmDelay,
		Clock:        clock,
		Logger:       log.Logger("blow"),
	})
	player := cue.NewPlayer(backend, cue.Options{
		Clock:  clock,
		Logger: log.Logger("cue"),
		Report: log.Cue,
	})
	return newCard(g, det, player, s, clock)
}
