package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	hammer "github.com/tiro-lang/hammer"
)

type args struct {
	dumpAst     *bool
	disassemble *bool
	invoke      *string
	optimize    *bool
	verbose     *bool
}

func readArgs() *args {
	a := &args{
		dumpAst:     flag.Bool("dump-ast", false, "Print the parsed AST and exit"),
		disassemble: flag.Bool("disassemble", false, "Print the compiled bytecode and exit"),
		invoke:      flag.String("invoke", "", "Invoke an exported function after loading"),
		optimize:    flag.Bool("optimize", true, "Run the IR cleanup passes"),
		verbose:     flag.Bool("verbose", false, "Enable debug logging"),
	}
	flag.Parse()
	return a
}

func main() {
	a := readArgs()

	if flag.NArg() != 1 {
		log.Fatal("Usage: tiro [flags] <source-file>")
	}
	path := flag.Arg(0)

	source, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Can't open source file: %s", err.Error())
	}

	moduleName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	diags := hammer.NewDiagnostics()

	cfg := hammer.NewConfig()
	cfg.Optimize = *a.optimize

	result, err := hammer.CompileSource(moduleName, source, cfg, diags)
	if diags.HasMessages() {
		diags.Print(os.Stdout)
	}
	if err != nil {
		os.Exit(1)
	}

	if *a.dumpAst {
		fmt.Println(result.File.String())
		return
	}

	if *a.disassemble {
		fmt.Println(hammer.Disassemble(result.Link))
		return
	}

	ctx := hammer.NewContext(cfg)
	if *a.verbose {
		logger, lerr := zap.NewDevelopment()
		if lerr == nil {
			ctx.SetLogger(logger)
		}
	}

	if _, err := ctx.InstantiateModule(result.Link, result.IR); err != nil {
		fmt.Println("ERROR: " + err.Error())
		os.Exit(1)
	}

	if *a.invoke != "" {
		value, rerr := ctx.Invoke(moduleName, *a.invoke)
		if rerr != nil {
			fmt.Println("ERROR: " + rerr.Error())
			os.Exit(1)
		}
		fmt.Println(ctx.FormatValue(value))
	}
}
