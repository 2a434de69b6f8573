// This is the main-driver for our compiler.

package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"os/exec"

	"github.com/pkg/errors"

	"github.com/go-imp/impc/compiler"
)

func main() {
	os.Exit(run())
}

func run() int {
	//
	// Look for flags.
	//
	debug := flag.Bool("debug", false, "Insert a breakpoint trap in our generated output.")
	compileFlag := flag.Bool("compile", false, "Assemble and link the program, via nasm and ld.")
	output := flag.String("o", "a.out", "The binary to write, when -compile or -run is given.")
	run := flag.Bool("run", false, "Run the binary, post-compile.")
	flag.Parse()

	//
	// If we're running we're also compiling.
	//
	if *run {
		*compileFlag = true
	}

	//
	// Ensure we have a source file as our single argument.
	//
	if len(flag.Args()) != 1 {
		fmt.Println("Usage: impc [flags] SOURCE.imp")
		return 1
	}

	source, err := os.ReadFile(flag.Args()[0])
	if err != nil {
		fmt.Printf("Error reading %s: %s\n", flag.Args()[0], err)
		return 1
	}

	//
	// Create a compiler-object, with the program as input.
	//
	comp := compiler.New(string(source))
	comp.SetDebug(*debug)

	//
	// Compile.
	//
	out, err := comp.Compile()
	if err != nil {
		printErr(err, *debug)
		return 1
	}

	//
	// If we're not assembling the listing which was produced then we
	// just write it to STDOUT, and terminate.
	//
	if !*compileFlag {
		fmt.Print(out)
		return 0
	}

	if err := assembleAndLink(out, *output); err != nil {
		printErr(err, *debug)
		return 1
	}

	if *run {
		exe := exec.Command("./" + *output)
		exe.Stdout = os.Stdout
		exe.Stderr = os.Stderr
		exe.Stdin = os.Stdin
		if err := exe.Run(); err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				return exitErr.ExitCode()
			}
			fmt.Printf("Error launching %s: %s\n", *output, err)
			return 1
		}
	}

	return 0
}

// assembleAndLink pipes asm through `nasm -f elf64` to produce an object
// file, then links it with `ld` into the named binary. There's no C
// runtime in the loop - the program is freestanding and provides its own
// _start - so this replaces the teacher's single `gcc -x assembler -`
// invocation with the two-step assemble/link pipeline gcc would
// otherwise have driven internally.
func assembleAndLink(asm string, output string) error {
	obj := output + ".o"

	nasm := exec.Command("nasm", "-f", "elf64", "-o", obj, "-")
	nasm.Stdin = bytes.NewBufferString(asm)
	nasm.Stderr = os.Stderr
	if err := nasm.Run(); err != nil {
		return errors.Wrap(err, "running nasm")
	}
	defer os.Remove(obj)

	ld := exec.Command("ld", "-o", output, obj)
	ld.Stderr = os.Stderr
	if err := ld.Run(); err != nil {
		return errors.Wrap(err, "running ld")
	}

	return nil
}

// printErr reports err to the user: the full cause chain under -debug,
// or just its message otherwise.
func printErr(err error, debug bool) {
	if debug {
		fmt.Printf("Error: %+v\n", err)
		return
	}
	fmt.Printf("Error: %s\n", err)
}
