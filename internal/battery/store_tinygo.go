//go:build tinygo

package battery

import (
	"encoding/binary"
	"machine"
	"math"
)

// flashOffset is a reserved region near the end of the last flash sector
// the application image doesn't occupy, used to persist State across
// reboots. Chosen well clear of the OTA partitions.
const flashOffset = 0x100000

// flashRecordSize covers the magic, the two float32 fields, and padding to
// a power-of-two write size.
const flashRecordSize = 16

// FlashStore persists battery.State in on-board flash via machine.Flash.
type FlashStore struct {
	buf [flashRecordSize]byte
}

// NewFlashStore returns a Store backed by on-board flash at flashOffset.
func NewFlashStore() *FlashStore {
	return &FlashStore{}
}

// Load implements Store.
func (f *FlashStore) Load() (State, bool) {
	n, err := machine.Flash.ReadAt(f.buf[:], flashOffset)
	if err != nil || n != len(f.buf) {
		return State{}, false
	}
	s := State{
		Magic:                  binary.LittleEndian.Uint16(f.buf[0:2]),
		HighestRecordedVoltage: math.Float32frombits(binary.LittleEndian.Uint32(f.buf[4:8])),
		MAhUsed:                math.Float32frombits(binary.LittleEndian.Uint32(f.buf[8:12])),
	}
	if !s.Valid() {
		return State{}, false
	}
	return s, true
}

// Save implements Store.
func (f *FlashStore) Save(s State) error {
	binary.LittleEndian.PutUint16(f.buf[0:2], s.Magic)
	binary.LittleEndian.PutUint32(f.buf[4:8], math.Float32bits(s.HighestRecordedVoltage))
	binary.LittleEndian.PutUint32(f.buf[8:12], math.Float32bits(s.MAhUsed))
	_, err := machine.Flash.WriteAt(f.buf[:], flashOffset)
	if err != nil {
		return ErrPersistFailed
	}
	return nil
}
