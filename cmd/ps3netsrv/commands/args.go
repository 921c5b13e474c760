package commands

import (
	"strconv"
	"strings"
)

// boolFlags lists the boolean flags accepting a separate value, as in the
// legacy "-R true" form.
var boolFlags = map[string]bool{
	"-R":          true,
	"--read-only": true,
	"--metrics":   true,
}

// NormalizeArgs rewrites "-R true" and "-R false" into "-R=true" and
// "-R=false". pflag only binds a boolean value written with '='; a bare
// value would otherwise be taken as a stray positional argument.
func NormalizeArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return append(out, args[i:]...)
		}
		if boolFlags[arg] && i+1 < len(args) && isBool(args[i+1]) {
			out = append(out, arg+"="+args[i+1])
			i++
			continue
		}
		out = append(out, arg)
	}
	return out
}

func isBool(s string) bool {
	if strings.HasPrefix(s, "-") {
		return false
	}
	_, err := strconv.ParseBool(s)
	return err == nil
}
