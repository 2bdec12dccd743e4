package readstate

// Buffer is a caller-owned output buffer for one attribute, sized to
// its capacity before Read is called. Each call to ReadState.Read
// starts writing at offset zero again: a call that stops on overflow
// is resumed by calling Read again with a fresh buffer, and the read
// state itself remembers where it left off.
type Buffer struct {
	// Data receives fixed-size attribute values, or (for a
	// variable-size attribute) the rebased uint64 offset table.
	Data []byte
	// Var receives a variable-size attribute's payload bytes. Left
	// nil for fixed-size attributes.
	Var []byte

	fixedLen int
	varLen   int

	// Overflow reports whether this call stopped because Data or Var
	// filled up before every qualifying cell had been copied; call
	// Read again with a fresh buffer to resume.
	Overflow bool
}

// FixedLen returns the number of bytes actually written into Data.
func (b *Buffer) FixedLen() int { return b.fixedLen }

// VarLen returns the number of bytes actually written into Var.
func (b *Buffer) VarLen() int { return b.varLen }

func (b *Buffer) reset() {
	b.fixedLen = 0
	b.varLen = 0
	b.Overflow = false
}

func (b *Buffer) fixedCap() int { return len(b.Data) }
func (b *Buffer) varCap() int   { return len(b.Var) }
