package hammer

// Config carries the tunables of the compiler and the virtual
// machine.  Plain fields, no registry: every knob is spelled out and
// read exactly where it matters.
type Config struct {
	// Optimize enables the IR cleanup passes (dead-code
	// elimination) before register allocation.  Codegen is correct
	// without them; they exist to shrink frames and code.
	Optimize bool

	// InitialStackSlots is the starting capacity of a coroutine's
	// value stack.
	InitialStackSlots int

	// MaxRegisters caps the number of local slots a single
	// function may allocate; exceeding it is a compile error.
	MaxRegisters int
}

// NewConfig returns the default settings.
func NewConfig() *Config {
	return &Config{
		Optimize:          true,
		InitialStackSlots: 64,
		MaxRegisters:      1 << 16,
	}
}
