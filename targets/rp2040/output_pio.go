//go:build rp2040

package main

import (
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"qcwcore/core"
)

// Gate patterns on the two pins of a bridge leg.
const (
	gateOff  = 0b00
	gateHigh = 0b01
	gateLow  = 0b10
)

// Each TX word is one on/off pair:
//
//	bits 0-14:  on ticks - onOverhead
//	bits 15-29: off ticks - offOverhead
//	bits 30-31: gate pattern during the on part
const (
	onOverhead  = 2
	offOverhead = 5
	countMask   = 1<<15 - 1
)

func buildLegProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),           // 0: pull block
		asm.Out(rp2pio.OutDestX, 15).Encode(),    // 1: out x, 15
		asm.Out(rp2pio.OutDestY, 15).Encode(),    // 2: out y, 15
		asm.Out(rp2pio.OutDestPins, 2).Encode(),  // 3: out pins, 2
		asm.Jmp(4, rp2pio.JmpXNZeroDec).Encode(), // 4: jmp x--, 4
		asm.Set(rp2pio.SetDestPins, 0).Encode(),  // 5: set pins, 0
		asm.Jmp(6, rp2pio.JmpYNZeroDec).Encode(), // 6: jmp y--, 6
		// .wrap
	}
}

const legProgramOrigin = 0

// pioLeg plays segment words on one bridge leg (two adjacent pins).
type pioLeg struct {
	sm   rp2pio.StateMachine
	base machine.Pin
}

// pioOutput is the core.OutputDriver of the board: one state machine per
// phase, both running the same program at the CPU clock.
type pioOutput struct {
	pio     *rp2pio.PIO
	legs    [2]pioLeg
	words   []uint32
	segs    []core.Segment
	overrun uint32
}

func newPIOOutput(pio *rp2pio.PIO, phase1, phase2 machine.Pin) (*pioOutput, error) {
	o := &pioOutput{
		pio:   pio,
		words: make([]uint32, 0, 5),
		segs:  make([]core.Segment, 0, 4),
	}

	program := buildLegProgram()
	offset, err := pio.AddProgram(program, legProgramOrigin)
	if err != nil {
		return nil, err
	}

	for i, base := range []machine.Pin{phase1, phase2} {
		sm := pio.StateMachine(uint8(i))
		sm.TryClaim()

		for p := base; p < base+2; p++ {
			p.Configure(machine.PinConfig{Mode: pio.PinMode()})
		}

		cfg := rp2pio.DefaultStateMachineConfig()
		cfg.SetSetPins(base, 2)
		cfg.SetOutPins(base, 2)
		cfg.SetOutShift(true, false, 32)
		cfg.SetWrap(offset+uint8(len(program))-1, offset)
		cfg.SetClkDivIntFrac(1, 0)

		sm.Init(offset, cfg)
		sm.SetPindirsConsecutive(base, 2, true)
		sm.SetPinsConsecutive(base, 2, false)
		sm.SetEnabled(true)

		o.legs[i] = pioLeg{sm: sm, base: base}
	}
	return o, nil
}

// Apply queues one half-cycle on both legs. Each on run drives the gate
// of the side it carries; words that find the TX FIFO full are dropped
// and counted as an overrun.
func (o *pioOutput) Apply(set core.OutputEdgeSet) {
	for i := range o.legs {
		o.segs = set.LegSegments(i, o.segs[:0])
		o.words = packSegments(o.segs, o.words[:0])

		sm := o.legs[i].sm
		for _, w := range o.words {
			if sm.IsTxFIFOFull() {
				o.overrun++
				break
			}
			sm.TxPut(w)
		}
	}
}

// Safe stops both legs with all gates off.
func (o *pioOutput) Safe() {
	for i := range o.legs {
		leg := &o.legs[i]
		leg.sm.SetEnabled(false)
		leg.sm.ClearFIFOs()
		leg.sm.Restart()
		leg.sm.SetPinsConsecutive(leg.base, 2, false)
		leg.sm.SetEnabled(true)
	}
}

func gatePattern(s core.Segment) uint32 {
	switch {
	case !s.On:
		return gateOff
	case s.Side == core.LowSide:
		return gateLow
	default:
		return gateHigh
	}
}

// packSegments pairs each run with the following off run into TX words.
func packSegments(segs []core.Segment, dst []uint32) []uint32 {
	for i := 0; i < len(segs); i++ {
		s := segs[i]
		p := gatePattern(s)
		on, off := s.Ticks, uint32(0)
		if s.On && i+1 < len(segs) && !segs[i+1].On {
			off = segs[i+1].Ticks
			i++
		}
		if off < offOverhead {
			// borrow the tail of the run so the word still fits
			borrow := min(offOverhead-off, on-min(on, onOverhead))
			on -= borrow
			off += borrow
		}
		dst = append(dst, packWord(p, on, off))
	}
	return dst
}

func packWord(pattern, on, off uint32) uint32 {
	x := min(on-min(on, onOverhead), countMask)
	y := min(off-min(off, offOverhead), countMask)
	return x | y<<15 | pattern<<30
}
