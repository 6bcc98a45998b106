package engine

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/domforge/domhost/errors"
)

// guestMemory adapts a wazero memory to the host's Memory interface.
type guestMemory struct {
	mem api.Memory
}

func (g *guestMemory) Read(offset, length uint32) ([]byte, error) {
	buf, ok := g.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseCall, offset, length, g.mem.Size())
	}
	return buf, nil
}

func (g *guestMemory) Write(offset uint32, data []byte) error {
	if !g.mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseCall, offset, uint32(len(data)), g.mem.Size())
	}
	return nil
}

func (g *guestMemory) ReadU32(offset uint32) (uint32, error) {
	v, ok := g.mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseCall, offset, 4, g.mem.Size())
	}
	return v, nil
}

func (g *guestMemory) WriteU32(offset, value uint32) error {
	if !g.mem.WriteUint32Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseCall, offset, 4, g.mem.Size())
	}
	return nil
}

func (g *guestMemory) ReadU64(offset uint32) (uint64, error) {
	v, ok := g.mem.ReadUint64Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseCall, offset, 8, g.mem.Size())
	}
	return v, nil
}

func (g *guestMemory) WriteU64(offset uint32, value uint64) error {
	if !g.mem.WriteUint64Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseCall, offset, 8, g.mem.Size())
	}
	return nil
}

func (g *guestMemory) Size() uint32 { return g.mem.Size() }

// guestAlloc adapts a guest's exported alloc function. Allocation is
// a plain non-blocking guest call, so it does not take the invoking
// call's context.
type guestAlloc struct {
	fn api.Function
}

func (g *guestAlloc) Alloc(size, align uint32) (uint32, error) {
	results, err := g.fn.Call(context.Background(), uint64(size), uint64(align))
	if err != nil {
		return 0, err
	}
	if len(results) != 1 {
		return 0, errors.InvalidInput(errors.PhaseEncode, "alloc returned no pointer")
	}
	return uint32(results[0]), nil
}
