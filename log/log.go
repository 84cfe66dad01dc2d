package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog    zerolog.Logger
	diagFile   *os.File
	wishesFile *os.File
	logMu      sync.Mutex
	logReady   bool
	pid        int
	dir        string
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absolute(flagPath)
	}

	// Priority 2: CANDLECARD_LOG_PATH environment variable
	if envPath := os.Getenv("CANDLECARD_LOG_PATH"); envPath != "" {
		return absolute(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	wishesPath := filepath.Join(dir, "celebrations_log.txt")
	wishesFile, err = os.OpenFile(wishesPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if wishesFile != nil {
		wishesFile.Close()
		wishesFile = nil
	}
	logReady = false
}

// Logger returns a component logger tagged with name, or a no-op logger
// before Init.
func Logger(name string) *zerolog.Logger {
	logMu.Lock()
	defer logMu.Unlock()
	if !logReady {
		l := zerolog.Nop()
		return &l
	}
	l := diagLog.With().Str("component", name).Logger()
	return &l
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func SessionStart(name, device string, threshold float64, confirm time.Duration) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("name", name).
		Str("device", device).
		Float64("threshold", threshold).
		Dur("confirm", confirm).
		Msg("session_start")
}

func SessionEnd(celebrations int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("celebrations", celebrations).
		Msg("session_end")
}

type BlowMetrics struct {
	PeakLevel   float64
	TriggerMs   float64 // card opened to first loud sample
	ConfirmMs   float64 // first loud sample to confirmation
	FramesSeen  uint64
	Celebration int
}

func Blow(m BlowMetrics) {
	if !logReady {
		return
	}
	diagLog.Info().
		Float64("peak", m.PeakLevel).
		Float64("trigger_ms", m.TriggerMs).
		Float64("confirm_ms", m.ConfirmMs).
		Uint64("frames", m.FramesSeen).
		Int("celebration", m.Celebration).
		Msg("blown_out")
}

func Cue(uri string, offset time.Duration, volume float64, err error) {
	if !logReady {
		return
	}
	ev := diagLog.Info()
	if err != nil {
		ev = diagLog.Warn().Err(err)
	}
	ev.Str("uri", uri).
		Dur("offset", offset).
		Float64("volume", volume).
		Msg("cue")
}

// Celebration appends one line per blown-out cake to celebrations_log.txt.
func Celebration(name, candles string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	line := fmt.Sprintf("%s\t[%d]\t%s\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, name, candles)
	wishesFile.WriteString(line)
}
