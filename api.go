package hammer

import (
	"fmt"
	"os"
)

// Status is the result code of every embedding entry point.
type Status int

const (
	StatusOK Status = iota
	StatusBadArg
	StatusBadSource
	StatusModuleExists
	StatusAlloc
	StatusInternal
)

var statusStrings = map[Status]string{
	StatusOK:           "ok",
	StatusBadArg:       "invalid argument",
	StatusBadSource:    "invalid source code",
	StatusModuleExists: "module already exists",
	StatusAlloc:        "allocation failure",
	StatusInternal:     "internal error",
}

// ErrorStr returns the static description of a status code.
func ErrorStr(status Status) string {
	if s, ok := statusStrings[status]; ok {
		return s
	}
	return "unknown status"
}

// Settings configures a new API context.  ErrorLog receives the
// message text of every error crossing the boundary, together with
// the user data registered here.
type Settings struct {
	ErrorLog     func(message string, userdata interface{})
	ErrorLogData interface{}
}

// APIContext is the embedding shell around a Context.  All entry
// points are panic-safe: internal invariant violations are converted
// to StatusInternal and reported through the error log instead of
// unwinding into the embedder.
type APIContext struct {
	ctx      *Context
	settings Settings
	freed    bool
}

// APIDiagnostics wraps a Diagnostics collection for the embedding
// boundary.
type APIDiagnostics struct {
	diags *Diagnostics
}

// ContextNew creates a fresh runtime context.  A nil settings pointer
// selects the defaults (no error log).
func ContextNew(settings *Settings) *APIContext {
	c := &APIContext{ctx: NewContext(NewConfig())}
	if settings != nil {
		c.settings = *settings
	}
	c.ctx.SetErrorSink(func(message string) {
		c.logError(message)
	})
	return c
}

// ContextFree tears the context down.  Further use of the context is
// an error reported as StatusBadArg.
func ContextFree(c *APIContext) {
	if c != nil {
		c.freed = true
		c.ctx = nil
	}
}

// Context exposes the underlying runtime context to embedders that
// need the full Go surface.
func (c *APIContext) Context() *Context { return c.ctx }

func (c *APIContext) logError(message string) {
	if c.settings.ErrorLog != nil {
		c.settings.ErrorLog(message, c.settings.ErrorLogData)
	}
}

// guard converts panics escaping an entry point into StatusInternal.
func (c *APIContext) guard(status *Status) {
	if r := recover(); r != nil {
		c.logError(fmt.Sprintf("internal error: %v", r))
		*status = StatusInternal
	}
}

// ContextLoad compiles and loads a module from source.  Compile
// diagnostics are collected into diags when provided.
func ContextLoad(c *APIContext, moduleName string, source []byte, diags *APIDiagnostics) (status Status) {
	if c == nil || c.freed || c.ctx == nil {
		return StatusBadArg
	}
	defer c.guard(&status)

	if moduleName == "" {
		c.logError("module name must not be empty")
		return StatusBadArg
	}
	if _, exists := c.ctx.Module(moduleName); exists {
		c.logError(fmt.Sprintf("module %q already exists", moduleName))
		return StatusModuleExists
	}

	var d *Diagnostics
	if diags != nil {
		d = diags.diags
	} else {
		d = NewDiagnostics()
	}

	if _, err := c.ctx.LoadSource(moduleName, source, d); err != nil {
		if _, isCompile := err.(*CompileError); isCompile {
			c.logError(err.Error())
			return StatusBadSource
		}
		c.logError(err.Error())
		return StatusInternal
	}
	return StatusOK
}

// DiagnosticsNew creates a diagnostics collection tied to a context.
func DiagnosticsNew(c *APIContext) *APIDiagnostics {
	if c == nil || c.freed {
		return nil
	}
	return &APIDiagnostics{diags: NewDiagnostics()}
}

func DiagnosticsFree(d *APIDiagnostics) {
	if d != nil {
		d.diags = nil
	}
}

func DiagnosticsClear(d *APIDiagnostics) {
	if d != nil && d.diags != nil {
		d.diags.Clear()
	}
}

func DiagnosticsHasMessages(d *APIDiagnostics) bool {
	return d != nil && d.diags != nil && d.diags.HasMessages()
}

func DiagnosticsPrintStdout(d *APIDiagnostics) {
	if d != nil && d.diags != nil {
		d.diags.Print(os.Stdout)
	}
}
