package hammer

// CoroutineState is the lifecycle of a coroutine.  Legal transitions:
// Ready -> Running, Running -> {Waiting, Done}, Waiting -> Ready (via
// token resume).  Nothing moves a Ready coroutine straight to Done.
type CoroutineState int

const (
	Coroutine_Ready CoroutineState = iota
	Coroutine_Running
	Coroutine_Waiting
	Coroutine_Done
)

func (s CoroutineState) String() string {
	switch s {
	case Coroutine_Ready:
		return "ready"
	case Coroutine_Running:
		return "running"
	case Coroutine_Waiting:
		return "waiting"
	case Coroutine_Done:
		return "done"
	}
	return "invalid"
}

type coroutineData struct {
	name     Value
	function Value
	stack    Value
	state    CoroutineState

	result Value
	err    *RuntimeError

	// args are the values passed to the entry function.
	args []Value

	// started flips when the entry function is first invoked.
	started bool

	// pending carries the value a parked native call produced; it
	// is pushed when the coroutine resumes.
	pending Value

	// token is the currently outstanding resume token while the
	// coroutine is Waiting.
	token Value
}

// frameFlags is the per-frame flags byte.
type frameFlags uint8

const (
	// framePopOneMore marks frames that must pop one extra stack
	// slot on return: a method-shaped call that turned out not to
	// consume the instance slot (static member through
	// `obj.name(...)` syntax).
	framePopOneMore frameFlags = 1 << 0

	// frameResumable marks the frame of a native state machine;
	// the dispatch loop steps the native instead of decoding
	// bytecode, and the pc field holds the machine's state.
	frameResumable frameFlags = 1 << 1
)

// vmFrame is one call frame.  Frames are addressed by index into the
// coroutine stack's frame list: the value region can grow (which
// reallocates it), so raw pointers into it must be re-resolved after
// any growth.
type vmFrame struct {
	caller   int // frame index of the caller, -1 for the entry frame
	template Value
	env      Value
	args     int
	locals   int
	flags    frameFlags
	pc       int

	// base is the index of the frame's first argument in the
	// value region; locals follow the arguments, the evaluation
	// stack follows the locals.
	base int
}

type coroutineStackData struct {
	values []Value
	frames []vmFrame
}

func (ctx *Context) NewCoroutine(name string, function Value) Value {
	stack := ctx.heap.Alloc(Tag_CoroutineStack, &coroutineStackData{
		values: make([]Value, 0, ctx.initialStackSlots),
	})
	return ctx.heap.Alloc(Tag_Coroutine, &coroutineData{
		name:     ctx.NewString(name),
		function: function,
		stack:    stack,
		state:    Coroutine_Ready,
		result:   ctx.Null,
		token:    InvalidValue,
		pending:  InvalidValue,
	})
}

func (ctx *Context) coroutineDataOf(v Value) *coroutineData {
	return ctx.heap.data(v).(*coroutineData)
}

func (ctx *Context) coroutineStack(coro Value) *coroutineStackData {
	d := ctx.coroutineDataOf(coro)
	return ctx.heap.data(d.stack).(*coroutineStackData)
}

// CoroutineState returns the current lifecycle state.
func (ctx *Context) CoroutineState(coro Value) CoroutineState {
	return ctx.coroutineDataOf(coro).state
}

// CoroutineResult returns the coroutine's result value and error once
// it is Done.
func (ctx *Context) CoroutineResult(coro Value) (Value, *RuntimeError) {
	d := ctx.coroutineDataOf(coro)
	return d.result, d.err
}

// ---- Tokens ----

// NewCoroutineToken creates the single-use token for a coroutine that
// is about to wait.  The token stays valid only while the coroutine
// remains in the Waiting state it was issued for.
func (ctx *Context) NewCoroutineToken(coro Value) Value {
	token := ctx.heap.Alloc(Tag_CoroutineToken, &coroutineTokenData{coroutine: coro})
	ctx.coroutineDataOf(coro).token = token
	return token
}

// TokenValid reports whether the token can still resume its
// coroutine.
func (ctx *Context) TokenValid(token Value) bool {
	d := ctx.heap.data(token).(*coroutineTokenData)
	if d.used {
		return false
	}
	coro := ctx.coroutineDataOf(d.coroutine)
	return coro.state == Coroutine_Waiting && coro.token == token
}

// AsyncResume completes a parked async call: the value becomes the
// result of the call expression that parked the coroutine.
func (ctx *Context) AsyncResume(token, value Value) bool {
	if !ctx.TokenValid(token) {
		return false
	}
	d := ctx.heap.data(token).(*coroutineTokenData)
	ctx.coroutineDataOf(d.coroutine).pending = value
	return ctx.ResumeToken(token)
}

// ResumeToken consumes the token and moves its coroutine from
// Waiting back to Ready.  Spurious or repeated resumes are no-ops
// that return false.
func (ctx *Context) ResumeToken(token Value) bool {
	if !ctx.TokenValid(token) {
		return false
	}
	d := ctx.heap.data(token).(*coroutineTokenData)
	d.used = true

	delete(ctx.scheduler.waiting, token)
	coro := ctx.coroutineDataOf(d.coroutine)
	coro.token = InvalidValue
	coro.state = Coroutine_Ready
	ctx.scheduler.enqueue(d.coroutine)
	return true
}

// ---- Stack operations ----

func (s *coroutineStackData) push(v Value) {
	s.values = append(s.values, v)
}

func (s *coroutineStackData) pop() Value {
	v := s.values[len(s.values)-1]
	s.values = s.values[:len(s.values)-1]
	return v
}

func (s *coroutineStackData) top() Value {
	return s.values[len(s.values)-1]
}

func (s *coroutineStackData) currentFrame() *vmFrame {
	return &s.frames[len(s.frames)-1]
}

func (s *coroutineStackData) hasFrames() bool { return len(s.frames) > 0 }

// pushResumableFrame opens a frame for a native state machine.  The
// arguments stay in place like a bytecode frame's; template holds the
// native function value so the collector keeps it alive.
func (s *coroutineStackData) pushResumableFrame(ctx *Context, function Value, argCount, locals int, flags frameFlags) {
	base := len(s.values) - argCount
	for i := 0; i < locals; i++ {
		s.values = append(s.values, ctx.Null)
	}
	s.frames = append(s.frames, vmFrame{
		caller:   len(s.frames) - 1,
		template: function,
		env:      ctx.Null,
		args:     argCount,
		locals:   locals,
		flags:    flags | frameResumable,
		base:     base,
	})
}

// ResumableFrame is the view a native state machine gets of its call
// frame.  Arguments and locals live in ordinary stack slots, so they
// are rooted and traced like any other frame's; the state integer
// rides in the frame's program counter.
type ResumableFrame struct {
	stack      *coroutineStackData
	frameIndex int

	state  int
	result Value
	done   bool
}

func (rf *ResumableFrame) frame() *vmFrame { return &rf.stack.frames[rf.frameIndex] }

// State returns the machine's current state; a fresh call starts at
// state zero.
func (rf *ResumableFrame) State() int { return rf.state }

// SetState selects the state the next step resumes in.
func (rf *ResumableFrame) SetState(state int) { rf.state = state }

func (rf *ResumableFrame) ArgCount() int { return rf.frame().args }

func (rf *ResumableFrame) Arg(i int) Value {
	f := rf.frame()
	return rf.stack.values[f.base+i]
}

// Local reads one of the frame's scratch slots.
func (rf *ResumableFrame) Local(i int) Value {
	f := rf.frame()
	return rf.stack.values[f.base+f.args+i]
}

func (rf *ResumableFrame) SetLocal(i int, v Value) {
	f := rf.frame()
	rf.stack.values[f.base+f.args+i] = v
}

// Return finishes the machine with the given result; the interpreter
// pops the frame after the current step.
func (rf *ResumableFrame) Return(v Value) {
	rf.result = v
	rf.done = true
}

// pushFrame opens a frame whose argCount arguments are already the
// topmost values.  Locals are null-initialized.
func (s *coroutineStackData) pushFrame(ctx *Context, template Value, env Value, argCount int, flags frameFlags) {
	t := ctx.heap.data(template).(*functionTemplateData)
	base := len(s.values) - argCount
	for i := 0; i < t.locals; i++ {
		s.values = append(s.values, ctx.Null)
	}
	s.frames = append(s.frames, vmFrame{
		caller:   len(s.frames) - 1,
		template: template,
		env:      env,
		args:     argCount,
		locals:   t.locals,
		flags:    flags,
		base:     base,
	})
}

// popFrame closes the top frame, removing the frame's whole region
// plus the callee value(s) below the arguments, and pushes the
// result.
func (s *coroutineStackData) popFrame(result Value) {
	f := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]

	s.values = s.values[:f.base]
	// The callee always sits below the arguments; a method-shaped
	// call that did not consume its instance leaves one more.
	drop := 1
	if f.flags&framePopOneMore != 0 {
		drop++
	}
	s.values = s.values[:len(s.values)-drop]
	s.push(result)
}

// localSlot addresses one register of the running frame.
func (s *coroutineStackData) localSlot(f *vmFrame, reg int) *Value {
	return &s.values[f.base+f.args+reg]
}

func (s *coroutineStackData) paramSlot(f *vmFrame, index int) *Value {
	return &s.values[f.base+index]
}
