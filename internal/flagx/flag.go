// Package flagx lets several packages parse their own slice of the command
// line without tripping over each other's flags.
package flagx

import (
	"flag"
	"io"
	"os"
	"strings"
)

// ConfigEnv names the environment variable consulted when no -c/-config flag
// is given.
const ConfigEnv = "STORYLINE_CONFIG"

// FilterArgs keeps only the allowed flags (and their values) from args.
//
// Both "-f value" and "-f=value" forms are recognized. A token that follows an
// allowed flag is taken as its value unless it starts with "-". The result is
// never nil.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]bool, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = true
	}

	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			continue
		}

		if name, _, ok := strings.Cut(arg, "="); ok {
			if allowed[name] {
				out = append(out, arg)
			}
			continue
		}

		if !allowed[arg] {
			continue
		}
		out = append(out, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			out = append(out, args[i+1])
			i++
		}
	}
	return out
}

// ConfigPath returns the JSON config file chosen with -c or -config in
// os.Args, falling back to $STORYLINE_CONFIG. The last flag occurrence wins.
// An empty string means no config file.
func ConfigPath() string {
	var path string

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&path, "config", "", "path to config file")
	fs.StringVar(&path, "c", "", "path to config file (short)")
	_ = fs.Parse(FilterArgs(os.Args[1:], []string{"-c", "-config"}))

	if path == "" {
		path = os.Getenv(ConfigEnv)
	}
	return path
}
