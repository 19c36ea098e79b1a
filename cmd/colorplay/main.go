// Command colorplay serves and builds interactive color documentation.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/livetemplate/colorplay/cmd/colorplay/commands"
)

const version = "0.1.0-dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	command := args[0]
	args = args[1:]

	var err error
	switch command {
	case "serve":
		err = commands.ServeCommand(args)
	case "build":
		err = commands.BuildCommand(args)
	case "render":
		err = commands.RenderCommand(args, stdout)
	case "share":
		err = commands.ShareCommand(args, os.Stdin, stdout)
	case "version":
		fmt.Fprintf(stdout, "colorplay version %s\n", version)
	case "help", "-h", "--help":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		printUsage(stderr)
		return 1
	}

	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "colorplay - Interactive color documentation and playground")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  colorplay serve [directory]      Start the documentation server")
	fmt.Fprintln(w, "  colorplay build [directory]      Write the site as static files")
	fmt.Fprintln(w, "  colorplay render <file.md>       Render one page to stdout")
	fmt.Fprintln(w, "  colorplay share [file|-]         Print a playground link for code")
	fmt.Fprintln(w, "  colorplay version                Show version")
	fmt.Fprintln(w, "  colorplay help                   Show this help")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  colorplay serve ./docs           # Serve with live reload")
	fmt.Fprintln(w, "  colorplay serve --debug          # Verbose logs, unminified assets")
	fmt.Fprintln(w, "  colorplay build -o public        # Build into ./public")
	fmt.Fprintln(w, "  colorplay share snippet.py --origin https://facelessuser.github.io --base coloraide")
}
