package commands

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/livetemplate/colorplay/internal/config"
	"github.com/livetemplate/colorplay/internal/uricodec"
)

// ShareCommand prints the playground link that opens code from a file, or
// from stdin when the file is "-" or omitted.
func ShareCommand(args []string, stdin io.Reader, out io.Writer) error {
	defaults := config.DefaultConfig()
	origin := "http://localhost:8080"
	base := defaults.Docs.Base
	route := defaults.Playground.Route
	limit := defaults.Playground.ShareMaxLength
	file := "-"

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if v, n, ok := flagValue(args, i, "--origin"); ok {
			origin, i = v, i+n
		} else if v, n, ok := flagValue(args, i, "--base"); ok {
			base, i = v, i+n
		} else if v, n, ok := flagValue(args, i, "--route"); ok {
			route, i = v, i+n
		} else if v, n, ok := flagValue(args, i, "--max"); ok {
			m, err := strconv.Atoi(v)
			if err != nil || m <= 0 {
				return fmt.Errorf("invalid --max: %s", v)
			}
			limit, i = m, i+n
		} else if arg == "-" || !strings.HasPrefix(arg, "-") {
			file = arg
		} else {
			return fmt.Errorf("unknown flag: %s", arg)
		}
	}

	var code []byte
	var err error
	if file == "-" {
		code, err = io.ReadAll(stdin)
	} else {
		code, err = os.ReadFile(file)
	}
	if err != nil {
		return fmt.Errorf("failed to read code: %w", err)
	}

	link := uricodec.ShareLink(origin, base, route, strings.TrimRight(string(code), "\n"))
	if len(link) > limit {
		return fmt.Errorf("Code must be under %d characters to generate a URL!", limit)
	}
	_, err = fmt.Fprintln(out, link)
	return err
}
