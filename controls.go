package camcap

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sys/unix"
)

type ControlID uint32

const (
	CIDBase        ControlID = 0x00980900
	CIDCameraBase  ControlID = 0x009a0900
	CIDPrivateBase ControlID = 0x08000000
)

const (
	CIDBrightness              = CIDBase + 0
	CIDContrast                = CIDBase + 1
	CIDSaturation              = CIDBase + 2
	CIDHue                     = CIDBase + 3
	CIDAutoWhiteBalance        = CIDBase + 12
	CIDGamma                   = CIDBase + 16
	CIDGain                    = CIDBase + 19
	CIDWhiteBalanceTemperature = CIDBase + 26
	CIDSharpness               = CIDBase + 27

	CIDExposureAuto     = CIDCameraBase + 1
	CIDExposureAbsolute = CIDCameraBase + 2
	CIDFocusAbsolute    = CIDCameraBase + 10
	CIDFocusAuto        = CIDCameraBase + 12
)

// ControlDescriptor pairs a human readable name with a control id.
type ControlDescriptor struct {
	Name string
	ID   ControlID
}

// KnownControls lists the controls the capture tool knows by name.
var KnownControls = []ControlDescriptor{
	{"Brightness", CIDBrightness},
	{"Contrast", CIDContrast},
	{"Saturation", CIDSaturation},
	{"Hue", CIDHue},
	{"Sharpness", CIDSharpness},
	{"Gain", CIDGain},
	{"Gamma", CIDGamma},
	{"Exposure Auto", CIDExposureAuto},
	{"Exposure Absolute", CIDExposureAbsolute},
	{"White Balance", CIDAutoWhiteBalance},
	{"White Balance Temperature", CIDWhiteBalanceTemperature},
	{"Focus Auto", CIDFocusAuto},
	{"Focus Absolute", CIDFocusAbsolute},
}

// LookupControl finds a known control by name. Case, spaces and
// underscores are not significant, so "white_balance_temperature"
// matches "White Balance Temperature".
func LookupControl(name string) (ControlDescriptor, bool) {
	key := controlKey(name)
	for _, c := range KnownControls {
		if controlKey(c.Name) == key {
			return c, true
		}
	}
	return ControlDescriptor{}, false
}

func controlKey(s string) string {
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(s))
}

// IsBoolean reports whether the control only takes 0 and 1.
func (c ControlInfo) IsBoolean() bool {
	return c.Type == CtrlTypeBoolean
}

const (
	// DefaultSettleTime is how long a camera needs after a control write
	// before the next write is reliably applied.
	DefaultSettleTime = 400 * time.Millisecond

	writeAttempts = 4
	writeBackoff  = 50 * time.Millisecond
)

// ControlPort reads and writes integer device controls. Control metadata
// is queried on every call since drivers may change ranges at any time.
type ControlPort struct {
	drv    Driver
	device string

	// Settle is waited before Set and Reset write to the device.
	Settle time.Duration

	sleep func(time.Duration)
}

// NewControlPort returns a ControlPort for an open driver.
func NewControlPort(drv Driver, device string) *ControlPort {
	return &ControlPort{drv: drv, device: device, Settle: DefaultSettleTime, sleep: time.Sleep}
}

// Query returns the current metadata of a control.
func (p *ControlPort) Query(id ControlID) (ControlInfo, error) {
	info, err := p.drv.QueryControl(id)
	if err != nil {
		return ControlInfo{}, p.unsupported(id, err)
	}
	if info.Flags&CtrlFlagDisabled != 0 {
		return ControlInfo{}, p.unsupported(id, fmt.Errorf("control %q disabled", info.Name))
	}
	switch info.Type {
	case CtrlTypeInteger, CtrlTypeBoolean, CtrlTypeMenu, CtrlTypeIntegerMenu:
	default:
		return ControlInfo{}, p.unsupported(id, fmt.Errorf("control %q has unsupported type %d", info.Name, info.Type))
	}
	if info.Step <= 0 {
		info.Step = 1
	}
	return info, nil
}

// Get returns the current value of a control.
func (p *ControlPort) Get(id ControlID) (int32, error) {
	if _, err := p.Query(id); err != nil {
		return 0, err
	}
	return p.get(id)
}

// Set writes value to the control. A value outside the reported range is
// ignored and no error is returned.
func (p *ControlPort) Set(id ControlID, value int32) error {
	info, err := p.Query(id)
	if err != nil {
		return err
	}
	if value < info.Minimum || value > info.Maximum {
		glog.V(1).Infof("%s: %s value %d outside [%d,%d], ignored", p.device, info.Name, value, info.Minimum, info.Maximum)
		return nil
	}
	p.settle()
	return p.write(id, value)
}

// Reset restores the control's default value.
func (p *ControlPort) Reset(id ControlID) error {
	info, err := p.Query(id)
	if err != nil {
		return err
	}
	p.settle()
	return p.write(id, info.Default)
}

// StepUp raises the control by one step, never beyond its maximum, and
// returns the new value.
func (p *ControlPort) StepUp(id ControlID) (int32, error) {
	return p.step(id, 1)
}

// StepDown lowers the control by one step, never below its minimum, and
// returns the new value.
func (p *ControlPort) StepDown(id ControlID) (int32, error) {
	return p.step(id, -1)
}

func (p *ControlPort) step(id ControlID, dir int64) (int32, error) {
	info, err := p.Query(id)
	if err != nil {
		return 0, err
	}
	cur, err := p.get(id)
	if err != nil {
		return 0, err
	}
	next := int64(cur) + dir*int64(info.Step)
	if next > int64(info.Maximum) {
		next = int64(info.Maximum)
	}
	if next < int64(info.Minimum) {
		next = int64(info.Minimum)
	}
	if int32(next) == cur {
		return cur, nil
	}
	if err := p.write(id, int32(next)); err != nil {
		return 0, err
	}
	return int32(next), nil
}

// Toggle flips a boolean control and returns the new value.
func (p *ControlPort) Toggle(id ControlID) (int32, error) {
	info, err := p.Query(id)
	if err != nil {
		return 0, err
	}
	if !info.IsBoolean() {
		return 0, p.unsupported(id, fmt.Errorf("control %q is not boolean", info.Name))
	}
	cur, err := p.get(id)
	if err != nil {
		return 0, err
	}
	var next int32
	if cur == 0 {
		next = 1
	}
	if err := p.write(id, next); err != nil {
		return 0, err
	}
	return next, nil
}

// Enumerate returns every enabled control the device reports in the user
// and camera classes and the driver private range.
func (p *ControlPort) Enumerate() []ControlInfo {
	var controls []ControlInfo
	add := func(id ControlID) error {
		info, err := p.drv.QueryControl(id)
		if err != nil {
			return err
		}
		if info.Flags&CtrlFlagDisabled == 0 && info.Type != CtrlTypeClass {
			controls = append(controls, info)
		}
		return nil
	}
	for id := CIDBase; id < CIDBase+48; id++ {
		add(id)
	}
	for id := CIDCameraBase; id < CIDCameraBase+40; id++ {
		add(id)
	}
	for id := CIDPrivateBase; add(id) == nil; id++ {
	}
	return controls
}

func (p *ControlPort) get(id ControlID) (int32, error) {
	v, err := p.drv.GetControl(id)
	if err != nil {
		return 0, newError(ErrDeviceIO, p.device, fmt.Sprintf("get control %#08x", uint32(id)), err)
	}
	return v, nil
}

// write issues the control write, backing off and retrying while the
// device reports itself busy.
func (p *ControlPort) write(id ControlID, value int32) error {
	delay := writeBackoff
	var err error
	for attempt := 1; ; attempt++ {
		err = p.drv.SetControl(id, value)
		if err == nil {
			return nil
		}
		if attempt == writeAttempts || !(errors.Is(err, unix.EBUSY) || errors.Is(err, unix.EAGAIN)) {
			break
		}
		glog.V(2).Infof("%s: control %#08x busy, retrying in %v", p.device, uint32(id), delay)
		p.sleep(delay)
		delay *= 2
	}
	return newError(ErrDeviceIO, p.device, fmt.Sprintf("set control %#08x", uint32(id)), err)
}

func (p *ControlPort) settle() {
	if p.Settle > 0 {
		p.sleep(p.Settle)
	}
}

func (p *ControlPort) unsupported(id ControlID, err error) error {
	return newError(ErrControlUnsupported, p.device, fmt.Sprintf("query control %#08x", uint32(id)), err)
}
