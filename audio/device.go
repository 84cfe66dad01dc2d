package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrSelectionCancelled is returned when the user leaves the picker.
var ErrSelectionCancelled = errors.New("device selection cancelled")

type pickerAction int

const (
	pickerMoved pickerAction = iota
	pickerChosen
	pickerCancelled
)

// picker is the cursor over a device list, fed raw terminal input.
type picker struct {
	devices []DeviceInfo
	cursor  int
}

func newPicker(devices []DeviceInfo) *picker {
	p := &picker{devices: devices}
	for i, d := range devices {
		if d.Default {
			p.cursor = i
			break
		}
	}
	return p
}

func (p *picker) handle(in []byte) pickerAction {
	switch {
	case len(in) == 1 && (in[0] == '\r' || in[0] == '\n'):
		return pickerChosen
	case len(in) == 1 && (in[0] == 3 || in[0] == 'q'): // ctrl+c
		return pickerCancelled
	case len(in) == 1 && in[0] == 'k', len(in) == 3 && in[0] == 0x1b && in[1] == '[' && in[2] == 'A':
		p.cursor = max(0, p.cursor-1)
	case len(in) == 1 && in[0] == 'j', len(in) == 3 && in[0] == 0x1b && in[1] == '[' && in[2] == 'B':
		p.cursor = min(len(p.devices)-1, p.cursor+1)
	}
	return pickerMoved
}

func (p *picker) render(w io.Writer) {
	fmt.Fprint(w, "\r\x1b[J")
	fmt.Fprint(w, "Which microphone should hear the candles? (↑/↓, Enter to confirm):\r\n\r\n")
	for i, d := range p.devices {
		name := d.Name
		if d.Default {
			name += " (default)"
		}
		if i == p.cursor {
			fmt.Fprintf(w, "  \x1b[1;35m▶ %s\x1b[0m\r\n", name)
		} else {
			fmt.Fprintf(w, "    %s\r\n", name)
		}
	}
}

// lines is how far render moves the cursor down.
func (p *picker) lines() int {
	return len(p.devices) + 2
}

// SelectDevice presents an interactive device picker and returns the selected device.
// If only one device is available, it returns that device without prompting.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}

	switch len(devices) {
	case 0:
		return nil, fmt.Errorf("no capture devices found")
	case 1:
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	p := newPicker(devices)
	p.render(os.Stdout)

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		switch p.handle(buf[:n]) {
		case pickerChosen:
			fmt.Print("\r\n")
			return &devices[p.cursor], nil
		case pickerCancelled:
			fmt.Print("\r\n")
			return nil, ErrSelectionCancelled
		}
		fmt.Printf("\x1b[%dA", p.lines())
		p.render(os.Stdout)
	}
}

// FindDevice returns the first device whose name contains name, ignoring
// case. An exact match wins over a substring match.
func FindDevice(ctx Context, name string) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	want := strings.ToLower(strings.TrimSpace(name))
	match := -1
	for i, d := range devices {
		got := strings.ToLower(d.Name)
		if got == want {
			return &devices[i], nil
		}
		if match < 0 && strings.Contains(got, want) {
			match = i
		}
	}
	if match < 0 {
		return nil, fmt.Errorf("no capture device matching %q", name)
	}
	return &devices[match], nil
}
