package main

import (
	"fmt"
	"os"

	"github.com/xyproto/env/v2"

	"luva/internal/codegen"
	"luva/internal/irload"
)

const VERSION = "0.1.0"

var debugMode = false

func main() {
	os.Exit(run())
}

func run() int {
	// Environment defaults; flags override below.
	buildDir := env.Str("LUVA_BUILD_DIR", "build")
	debugMode = env.Bool("LUVA_DEBUG")

	watchMode := false
	toStdout := false
	outputName := ""

	// Scan flags.
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch arg := args[i]; {
		case arg == "--debug":
			debugMode = true
		case arg == "--watch":
			watchMode = true
		case arg == "--stdout":
			toStdout = true
		case arg == "--version":
			fmt.Println("luva V" + VERSION)
			return 0
		case arg == "-o" && i+1 < len(args):
			i++
			outputName = args[i]
		case len(arg) > 12 && arg[:12] == "--build-dir=":
			buildDir = arg[12:]
		}
	}
	printDebug("Using debug mode.")

	// Find the source file (first non-flag argument).
	var filePath string
	for i := 0; i < len(args); i++ {
		if args[i] == "-o" {
			i++
			continue
		}
		if len(args[i]) > 0 && args[i][0] != '-' {
			filePath = args[i]
			break
		}
	}
	if filePath == "" {
		fmt.Println("Usage: luva [flags] <function.yaml>")
		fmt.Println("Flags: --debug --watch --stdout --version --build-dir=<dir> -o <name>")
		return 1
	}

	if !fileExists(filePath) {
		fmt.Println("Error: File does not exist.")
		return 1
	}
	printDebug("Lowering: " + filePath)

	opts := codegen.DefaultOptions()
	opts.BuildDir = buildDir
	opts.OutputName = outputName
	opts.Verbose = debugMode
	if toStdout {
		opts.BuildDir = ""
	}

	if watchMode {
		fmt.Println("Watching " + filePath + " (Ctrl-C to stop)")
		lowerFile(filePath, opts, toStdout)
		err := watchFile(filePath, func() {
			lowerFile(filePath, opts, toStdout)
		})
		if err != nil {
			fmt.Printf("Watch error: %s\n", err)
			return 1
		}
		return 0
	}

	return lowerFile(filePath, opts, toStdout)
}

/**
* Lowers a single IR document and writes or prints the assembly.
* @param filePath The path to the IR document.
* @return 0 on success, 1 on any error.
 */
func lowerFile(filePath string, opts *codegen.Options, toStdout bool) int {
	fn, err := irload.LoadFile(filePath)
	if err != nil {
		fmt.Printf("Load error: %s\n", err)
		return 1
	}
	printDebug(fmt.Sprintf("Loaded function %q (%d blocks).", fn.Name, len(fn.Blocks)))

	result, err := codegen.Generate(fn, opts)
	if err != nil {
		fmt.Printf("Codegen error: %s\n", err)
		return 1
	}

	if toStdout {
		fmt.Print(result.Text)
	} else {
		fmt.Printf("Assembly: %s\n", result.AsmFile)
	}
	return 0
}

/**
* Prints a debug message to the console.
* @param message The message to print.
 */
func printDebug(message string) {
	if !debugMode {
		return
	}
	fmt.Println("[DEBUG] " + message)
}

/**
* Checks if a file exists at the given path.
* @param filePath The path to the file to check.
* @return true if the file exists, false otherwise.
 */
func fileExists(filePath string) bool {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return false
	}
	return true
}
