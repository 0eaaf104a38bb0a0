// Package buildinfo carries version data stamped in with -ldflags -X.
package buildinfo

import (
    "fmt"
    "runtime"
)

var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

func Info() map[string]string {
    return map[string]string{
        "version":   Version,
        "commit":    Commit,
        "builtAt":   BuiltAt,
        "goVersion": runtime.Version(),
    }
}

// String renders a one-line version banner for CLIs.
func String() string {
    s := "dronedispatch " + Version
    if Commit != "" {
        s += fmt.Sprintf(" (%s)", Commit)
    }
    if BuiltAt != "" {
        s += " built " + BuiltAt
    }
    return s + " " + runtime.Version()
}
