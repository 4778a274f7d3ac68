package camcap

import "fmt"

// Owner records who may touch a capture slot.
type Owner int

const (
	OwnedByApp Owner = iota
	OwnedByDriver
)

func (o Owner) String() string {
	if o == OwnedByDriver {
		return "driver"
	}
	return "application"
}

type slot struct {
	mem   []byte
	owner Owner
}

// slotPool is the fixed set of mapped capture buffers. A slot is readable
// only while it is owned by the application.
type slotPool struct {
	slots []slot
}

func (p *slotPool) add(mem []byte) {
	p.slots = append(p.slots, slot{mem: mem, owner: OwnedByApp})
}

func (p *slotPool) len() int {
	return len(p.slots)
}

// maxLen returns the length of the largest mapped slot.
func (p *slotPool) maxLen() int {
	n := 0
	for _, s := range p.slots {
		if len(s.mem) > n {
			n = len(s.mem)
		}
	}
	return n
}

// queue hands slot i to the driver.
func (p *slotPool) queue(d Driver, i uint32) error {
	if int(i) >= len(p.slots) {
		return fmt.Errorf("slot %d out of range (%d slots)", i, len(p.slots))
	}
	s := &p.slots[i]
	if s.owner != OwnedByApp {
		return fmt.Errorf("slot %d already queued", i)
	}
	if err := d.QueueBuffer(i); err != nil {
		return err
	}
	s.owner = OwnedByDriver
	return nil
}

// dequeue takes the next filled slot back from the driver and returns its
// index together with the bytes the driver wrote.
func (p *slotPool) dequeue(d Driver) (uint32, []byte, error) {
	i, used, err := d.DequeueBuffer()
	if err != nil {
		return 0, nil, err
	}
	if int(i) >= len(p.slots) {
		return 0, nil, fmt.Errorf("driver returned slot %d out of range (%d slots)", i, len(p.slots))
	}
	s := &p.slots[i]
	if s.owner != OwnedByDriver {
		return 0, nil, fmt.Errorf("driver returned slot %d which it does not own", i)
	}
	s.owner = OwnedByApp
	if int(used) > len(s.mem) {
		used = uint32(len(s.mem))
	}
	return i, s.mem[:used], nil
}

// release unmaps every slot. It keeps going after a failure and returns
// the first error seen.
func (p *slotPool) release(d Driver) error {
	var first error
	for i := range p.slots {
		if p.slots[i].mem == nil {
			continue
		}
		if err := d.UnmapBuffer(p.slots[i].mem); err != nil && first == nil {
			first = err
		}
		p.slots[i].mem = nil
	}
	p.slots = nil
	return first
}
