package domhost

// Memory is a view of one instance's linear memory. All offsets are
// byte offsets from the start of the memory.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU32(offset uint32) (uint32, error)
	WriteU32(offset uint32, value uint32) error
	ReadU64(offset uint32) (uint64, error)
	WriteU64(offset uint32, value uint64) error
	Size() uint32
}

// Allocator allocates guest-owned buffers inside an instance's linear
// memory, normally backed by the guest's exported alloc function.
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
}
