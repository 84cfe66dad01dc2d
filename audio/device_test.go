package audio

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

type listContext struct {
	devices []DeviceInfo
	err     error
}

func (l listContext) Devices() ([]DeviceInfo, error) { return l.devices, l.err }

func (l listContext) NewCapture(*DeviceInfo, CaptureConfig) (CaptureDevice, error) {
	return nil, errors.New("not implemented")
}

func (listContext) Close() {}

var testDevices = []DeviceInfo{
	{ID: "1", Name: "Built-in Microphone", Default: true},
	{ID: "2", Name: "USB Microphone"},
	{ID: "3", Name: "USB"},
}

func TestPickerStartsOnDefault(t *testing.T) {
	p := newPicker([]DeviceInfo{{Name: "a"}, {Name: "b", Default: true}})
	if p.cursor != 1 {
		t.Fatalf("cursor = %d, want 1", p.cursor)
	}
}

func TestPickerNavigation(t *testing.T) {
	p := newPicker(testDevices)

	steps := []struct {
		in     []byte
		cursor int
		action pickerAction
	}{
		{[]byte{0x1b, '[', 'A'}, 0, pickerMoved}, // clamped at top
		{[]byte{0x1b, '[', 'B'}, 1, pickerMoved},
		{[]byte("j"), 2, pickerMoved},
		{[]byte("j"), 2, pickerMoved}, // clamped at bottom
		{[]byte("k"), 1, pickerMoved},
		{[]byte("x"), 1, pickerMoved},
		{[]byte("\r"), 1, pickerChosen},
	}
	for i, s := range steps {
		if got := p.handle(s.in); got != s.action {
			t.Errorf("step %d: action = %v, want %v", i, got, s.action)
		}
		if p.cursor != s.cursor {
			t.Errorf("step %d: cursor = %d, want %d", i, p.cursor, s.cursor)
		}
	}

	if got := p.handle([]byte{3}); got != pickerCancelled {
		t.Errorf("ctrl+c action = %v, want cancelled", got)
	}
}

func TestPickerRender(t *testing.T) {
	p := newPicker(testDevices)
	var buf bytes.Buffer
	p.render(&buf)

	out := buf.String()
	if !strings.Contains(out, "▶ Built-in Microphone (default)") {
		t.Errorf("default device not highlighted:\n%q", out)
	}
	if got := strings.Count(out, "\r\n"); got != p.lines() {
		t.Errorf("rendered %d lines, want %d", got, p.lines())
	}
}

func TestFindDevice(t *testing.T) {
	ctx := listContext{devices: testDevices}

	tests := []struct {
		name string
		want string
	}{
		{"built-in", "1"},
		{"usb", "3"}, // exact match beats the earlier substring
		{"  USB MICRO ", "2"},
	}
	for _, tt := range tests {
		d, err := FindDevice(ctx, tt.name)
		if err != nil {
			t.Fatalf("FindDevice(%q): %v", tt.name, err)
		}
		if d.ID != tt.want {
			t.Errorf("FindDevice(%q) = %s, want %s", tt.name, d.ID, tt.want)
		}
	}

	if _, err := FindDevice(ctx, "webcam"); err == nil {
		t.Error("expected an error for an unknown device")
	}
}

func TestFindDeviceListError(t *testing.T) {
	_, err := FindDevice(listContext{err: errors.New("server gone")}, "usb")
	if err == nil || !strings.Contains(err.Error(), "server gone") {
		t.Fatalf("err = %v", err)
	}
}

func TestSelectDeviceSingle(t *testing.T) {
	d, err := SelectDevice(listContext{devices: testDevices[:1]})
	if err != nil {
		t.Fatal(err)
	}
	if d.ID != "1" {
		t.Errorf("got %s, want 1", d.ID)
	}
	if _, err := SelectDevice(listContext{}); err == nil {
		t.Error("expected an error with no devices")
	}
}
