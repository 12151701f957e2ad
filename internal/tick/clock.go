// internal/tick/clock.go

package tick

// Clock is the standard millisecond chain:
//
//	millis -> /100 deciseconds -> /10 seconds -> /60 minutes -> terminator
//
// Widths are the smallest that hold each stage: the root keeps a 32 bit
// sample and hands out 16 bit deltas, the decisecond stage accumulates 16
// bit millisecond deltas and everything coarser fits in a byte.
type Clock struct {
	Millis      *Root[uint32, uint16]
	Deciseconds *Scale[uint16, uint16, uint8]
	Seconds     *Scale[uint8, uint8, uint8]
	Minutes     *Scale[uint8, uint8, uint8]
}

// NewClock wires the chain bottom-up from minutes to the root.
func NewClock(src Source[uint32]) (*Clock, error) {
	root, err := NewRoot[uint32, uint16](src)
	if err != nil {
		return nil, err
	}
	c := &Clock{
		Millis:      root,
		Deciseconds: MustScale[uint16, uint16, uint8](100),
		Seconds:     MustScale[uint8, uint8, uint8](10),
		Minutes:     MustScale[uint8, uint8, uint8](60),
	}
	if err := c.Seconds.Bind(c.Minutes); err != nil {
		return nil, err
	}
	if err := c.Deciseconds.Bind(c.Seconds); err != nil {
		return nil, err
	}
	if err := c.Millis.Bind(c.Deciseconds); err != nil {
		return nil, err
	}
	return c, nil
}

// Update polls the millisecond source and ripples the result down.
func (c *Clock) Update() uint16 {
	return c.Millis.Update()
}
