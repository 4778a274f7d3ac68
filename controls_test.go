package camcap

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func newTestPort(d *fakeDriver) (*ControlPort, *[]time.Duration) {
	var slept []time.Duration
	p := NewControlPort(d, "/dev/video9")
	p.sleep = func(d time.Duration) { slept = append(slept, d) }
	return p, &slept
}

func brightness(value int32) (ControlInfo, int32) {
	return ControlInfo{
		ID: CIDBrightness, Type: CtrlTypeInteger, Name: "Brightness",
		Minimum: 0, Maximum: 255, Step: 16, Default: 128,
	}, value
}

func TestLookupControl(t *testing.T) {
	for _, name := range []string{"Brightness", "brightness", "white_balance_temperature", "Focus-Auto", "EXPOSURE ABSOLUTE"} {
		if _, ok := LookupControl(name); !ok {
			t.Errorf("%q not found", name)
		}
	}
	if c, _ := LookupControl("white balance temperature"); c.ID != CIDWhiteBalanceTemperature {
		t.Errorf("id = %#x", uint32(c.ID))
	}
	if _, ok := LookupControl("zoom"); ok {
		t.Error("unknown control found")
	}
	if len(KnownControls) != 13 {
		t.Errorf("%d known controls", len(KnownControls))
	}
}

func TestControlGetSet(t *testing.T) {
	d := newFakeDriver()
	d.addControl(brightness(100))
	p, slept := newTestPort(d)

	if v, err := p.Get(CIDBrightness); err != nil || v != 100 {
		t.Fatalf("Get = %d, %v", v, err)
	}
	if err := p.Set(CIDBrightness, 200); err != nil {
		t.Fatal(err)
	}
	if v, _ := p.Get(CIDBrightness); v != 200 {
		t.Errorf("value = %d after Set, want 200", v)
	}
	if len(*slept) != 1 || (*slept)[0] != DefaultSettleTime {
		t.Errorf("settled %v, want one %v", *slept, DefaultSettleTime)
	}
}

func TestControlSetOutOfRange(t *testing.T) {
	d := newFakeDriver()
	d.addControl(brightness(100))
	p, _ := newTestPort(d)

	for _, v := range []int32{-1, 256, 1 << 20} {
		if err := p.Set(CIDBrightness, v); err != nil {
			t.Errorf("Set(%d) = %v, want no error", v, err)
		}
	}
	if d.setCalls != 0 {
		t.Errorf("%d writes for out of range values", d.setCalls)
	}
	if d.controls[CIDBrightness].value != 100 {
		t.Error("value changed")
	}
}

func TestControlReset(t *testing.T) {
	d := newFakeDriver()
	d.addControl(brightness(3))
	p, slept := newTestPort(d)
	p.Settle = 0

	if err := p.Reset(CIDBrightness); err != nil {
		t.Fatal(err)
	}
	if d.controls[CIDBrightness].value != 128 {
		t.Errorf("value = %d, want default 128", d.controls[CIDBrightness].value)
	}
	if len(*slept) != 0 {
		t.Errorf("slept %v with settling disabled", *slept)
	}
}

func TestControlStep(t *testing.T) {
	tests := []struct {
		name  string
		start int32
		up    bool
		want  int32
		write bool
	}{
		{"up", 100, true, 116, true},
		{"up clamps", 250, true, 255, true},
		{"up at max", 255, true, 255, false},
		{"down", 100, false, 84, true},
		{"down clamps", 5, false, 0, true},
		{"down at min", 0, false, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newFakeDriver()
			d.addControl(brightness(tt.start))
			p, _ := newTestPort(d)

			step := p.StepDown
			if tt.up {
				step = p.StepUp
			}
			got, err := step(CIDBrightness)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want || d.controls[CIDBrightness].value != tt.want {
				t.Errorf("value = %d (device %d), want %d", got, d.controls[CIDBrightness].value, tt.want)
			}
			if (d.setCalls > 0) != tt.write {
				t.Errorf("%d writes, want write=%v", d.setCalls, tt.write)
			}
		})
	}
}

func TestControlStepStaysInRange(t *testing.T) {
	d := newFakeDriver()
	info, _ := brightness(0)
	d.addControl(info, info.Default)
	p, _ := newTestPort(d)

	n := 2 * int(info.Maximum-info.Minimum) / int(info.Step)
	for i := 0; i < n; i++ {
		v, err := p.StepUp(CIDBrightness)
		if err != nil {
			t.Fatal(err)
		}
		if v > info.Maximum || d.controls[CIDBrightness].value > info.Maximum {
			t.Fatalf("step %d up: value %d past maximum %d", i, v, info.Maximum)
		}
	}
	if got := d.controls[CIDBrightness].value; got != info.Maximum {
		t.Errorf("after %d steps up value = %d, want %d", n, got, info.Maximum)
	}
	for i := 0; i < n; i++ {
		v, err := p.StepDown(CIDBrightness)
		if err != nil {
			t.Fatal(err)
		}
		if v < info.Minimum || d.controls[CIDBrightness].value < info.Minimum {
			t.Fatalf("step %d down: value %d below minimum %d", i, v, info.Minimum)
		}
	}
	if got := d.controls[CIDBrightness].value; got != info.Minimum {
		t.Errorf("after %d steps down value = %d, want %d", n, got, info.Minimum)
	}
}

func TestControlToggle(t *testing.T) {
	d := newFakeDriver()
	d.addControl(ControlInfo{ID: CIDFocusAuto, Type: CtrlTypeBoolean, Name: "Focus, Auto", Maximum: 1, Step: 1, Default: 1}, 1)
	d.addControl(brightness(100))
	p, _ := newTestPort(d)

	for _, want := range []int32{0, 1} {
		v, err := p.Toggle(CIDFocusAuto)
		if err != nil || v != want {
			t.Fatalf("Toggle = %d, %v; want %d", v, err, want)
		}
	}
	if _, err := p.Toggle(CIDBrightness); !errors.Is(err, ErrControlUnsupported) {
		t.Errorf("toggle integer control: err = %v", err)
	}
	if d.controls[CIDBrightness].value != 100 {
		t.Error("integer control was written")
	}
}

func TestControlUnsupported(t *testing.T) {
	d := newFakeDriver()
	d.addControl(ControlInfo{ID: CIDGain, Type: CtrlTypeInteger, Name: "Gain", Maximum: 10, Flags: CtrlFlagDisabled}, 0)
	d.addControl(ControlInfo{ID: CIDHue, Type: CtrlTypeButton, Name: "Hue"}, 0)
	p, _ := newTestPort(d)

	for _, id := range []ControlID{CIDGain, CIDHue, CIDSharpness} {
		if _, err := p.Get(id); !errors.Is(err, ErrControlUnsupported) {
			t.Errorf("Get(%#x) err = %v", uint32(id), err)
		}
		if err := p.Set(id, 1); !errors.Is(err, ErrControlUnsupported) {
			t.Errorf("Set(%#x) err = %v", uint32(id), err)
		}
	}
	if d.setCalls != 0 {
		t.Error("unsupported control was written")
	}
}

func TestControlWriteRetriesWhileBusy(t *testing.T) {
	d := newFakeDriver()
	d.addControl(brightness(0))
	d.busy = 2
	p, slept := newTestPort(d)
	p.Settle = 0

	if err := p.Set(CIDBrightness, 64); err != nil {
		t.Fatal(err)
	}
	if d.controls[CIDBrightness].value != 64 {
		t.Error("value not written")
	}
	want := []time.Duration{writeBackoff, 2 * writeBackoff}
	if len(*slept) != len(want) || (*slept)[0] != want[0] || (*slept)[1] != want[1] {
		t.Errorf("backoff = %v, want %v", *slept, want)
	}

	d.busy = writeAttempts
	err := p.Set(CIDBrightness, 32)
	if !errors.Is(err, ErrDeviceIO) || !errors.Is(err, unix.EBUSY) {
		t.Errorf("err = %v, want busy device i/o error", err)
	}
}

func TestControlEnumerate(t *testing.T) {
	d := newFakeDriver()
	d.addControl(brightness(0))
	d.addControl(ControlInfo{ID: CIDCameraBase, Type: CtrlTypeClass, Name: "Camera Controls"}, 0)
	d.addControl(ControlInfo{ID: CIDExposureAbsolute, Type: CtrlTypeInteger, Name: "Exposure", Maximum: 1000}, 0)
	d.addControl(ControlInfo{ID: CIDGain, Type: CtrlTypeInteger, Name: "Gain", Flags: CtrlFlagDisabled}, 0)
	d.addControl(ControlInfo{ID: CIDPrivateBase, Type: CtrlTypeInteger, Name: "Private 0"}, 0)
	d.addControl(ControlInfo{ID: CIDPrivateBase + 1, Type: CtrlTypeInteger, Name: "Private 1"}, 0)
	d.addControl(ControlInfo{ID: CIDPrivateBase + 3, Type: CtrlTypeInteger, Name: "Unreachable"}, 0)
	p, _ := newTestPort(d)

	var names []string
	for _, c := range p.Enumerate() {
		names = append(names, c.Name)
	}
	want := []string{"Brightness", "Exposure", "Private 0", "Private 1"}
	if len(names) != len(want) {
		t.Fatalf("controls = %q, want %q", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("controls = %q, want %q", names, want)
			break
		}
	}
}

func TestSessionControls(t *testing.T) {
	d := newFakeDriver()
	d.addControl(brightness(10))
	s := openFake(t, d, yuyvConfig(64, 48))
	defer s.Close()

	if v, err := s.Controls().Get(CIDBrightness); err != nil || v != 10 {
		t.Errorf("Get = %d, %v", v, err)
	}
}
