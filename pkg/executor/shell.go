package executor

import "strings"

// Quote wraps value in single quotes for a POSIX shell.
func Quote(value string) string {
	if value == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}

// JoinCommand quotes every argument and joins them with spaces.
func JoinCommand(cmd string, args ...string) string {
	var builder strings.Builder
	builder.WriteString(cmd)
	for _, arg := range args {
		builder.WriteByte(' ')
		builder.WriteString(Quote(arg))
	}
	return builder.String()
}
