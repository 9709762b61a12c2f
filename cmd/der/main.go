// cmd/der/main.go
package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"der/internal/container"
	"der/internal/exec"
	"der/internal/graph"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

const version = "0.1.0"

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		showUsage()
		return
	}

	switch args[0] {
	case "--help", "-h", "help":
		showUsage()
	case "--version", "-v", "version":
		fmt.Printf("der %s\n", version)
	case "run":
		runCommand(args[1:])
	case "inspect":
		inspectCommand(args[1:])
	case "validate":
		validateCommand(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "der: unknown command %q\n", args[0])
		showUsage()
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println("der - Dynamic Execution Representation runtime")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  der run <file.der> [--parallel N]   Execute a DER program")
	fmt.Println("  der inspect <file.der>               Print container layout and sizes")
	fmt.Println("  der validate <file.der>              Run validate() without executing")
	fmt.Println("  der --version                        Show version")
}

// runCommand executes a .der file. With --parallel N it clones the loaded
// program N times and runs each clone on its own Executor concurrently —
// heap cells are per-executor, so cloning is the only safe way to fan a
// program out — collected with an errgroup.
func runCommand(args []string) {
	if len(args) == 0 {
		log.Fatal("der run: a file argument is required")
	}

	parallel := 1
	var filename string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--parallel" && i+1 < len(args):
			fmt.Sscanf(args[i+1], "%d", &parallel)
			i++
		case strings.HasPrefix(args[i], "--parallel="):
			fmt.Sscanf(strings.TrimPrefix(args[i], "--parallel="), "%d", &parallel)
		default:
			filename = args[i]
		}
	}
	if filename == "" {
		log.Fatal("der run: a file argument is required")
	}
	if parallel < 1 {
		parallel = 1
	}

	p := loadProgram(filename)

	if parallel == 1 {
		runOnce(p, "")
		return
	}

	var g errgroup.Group
	for i := 0; i < parallel; i++ {
		clone := p.Clone()
		idx := i
		g.Go(func() error {
			return runOnce(clone, fmt.Sprintf("[worker %d] ", idx))
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("der run: %v", err)
	}
}

func runOnce(p *graph.Program, prefix string) error {
	ex, err := exec.New(p, exec.DefaultLimits())
	if err != nil {
		return fmt.Errorf("%sstart: %w", prefix, err)
	}
	v, err := ex.Execute()
	if err != nil {
		return fmt.Errorf("%strace %s: %w", prefix, ex.TraceID, err)
	}
	fmt.Printf("%sresult: %s (trace %s)\n", prefix, exec.ToString(v), ex.TraceID)
	return nil
}

// inspectCommand prints a summary of the decoded program (version, entry
// node, node and constant counts, capabilities) with human-readable file
// and proof sizes, the way a developer would eyeball a compiled bytecode
// file before running it.
func inspectCommand(args []string) {
	if len(args) == 0 {
		log.Fatal("der inspect: a file argument is required")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		log.Fatalf("der inspect: %v", err)
	}

	p, err := container.Decode(data, container.DefaultOptions)
	if err != nil {
		log.Fatalf("der inspect: %v", err)
	}

	fmt.Printf("file:        %s (%s)\n", args[0], humanize.Bytes(uint64(len(data))))
	fmt.Printf("version:     %d.%d\n", p.Metadata.VersionMajor, p.Metadata.VersionMinor)
	fmt.Printf("entry node:  %d\n", p.Metadata.EntryResultID)
	fmt.Printf("nodes:       %d\n", len(p.Nodes))
	fmt.Printf("constants:   %d\n", p.Constants.Len())
	fmt.Printf("proof bytes: %s\n", humanize.Bytes(uint64(len(p.Proof))))
	if len(p.UnknownChunks) > 0 {
		fmt.Printf("unknown chunks preserved: %d\n", len(p.UnknownChunks))
	}
	fmt.Printf("capabilities:")
	for name, bit := range map[string]graph.Capability{
		"filesystem": graph.FileSystem, "network": graph.Network,
		"process": graph.Process, "ui": graph.UI, "external-code": graph.ExternalCode,
	} {
		if p.Metadata.Capabilities.Has(bit) {
			fmt.Printf(" %s", name)
		}
	}
	fmt.Println()
}

func validateCommand(args []string) {
	if len(args) == 0 {
		log.Fatal("der validate: a file argument is required")
	}
	p := loadProgram(args[0])
	if err := p.Validate(); err != nil {
		log.Fatalf("der validate: %v", err)
	}
	fmt.Printf("%s: valid (%d nodes, %d constants)\n", args[0], len(p.Nodes), p.Constants.Len())
}

func loadProgram(filename string) *graph.Program {
	data, err := os.ReadFile(filename)
	if err != nil {
		log.Fatalf("der: could not read %s: %v", filename, err)
	}
	p, err := container.Decode(data, container.DefaultOptions)
	if err != nil {
		log.Fatalf("der: could not decode %s: %v", filename, err)
	}
	return p
}
