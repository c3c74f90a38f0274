// Package safe defines the safe mode levels that gate what a document is
// allowed to do with the host (include files, read assets, override
// attributes), and resolves paths inside the jail those levels impose.
package safe

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// A Mode is a safe mode level. Higher values are more restrictive.
type Mode int

const (
	Unsafe   Mode = 0
	Safe     Mode = 1
	Server   Mode = 10
	Secure   Mode = 20
	Paranoid Mode = 30
)

// String returns the lowercase name of the mode.
func (m Mode) String() string {
	switch m {
	case Unsafe:
		return "unsafe"
	case Safe:
		return "safe"
	case Server:
		return "server"
	case Secure:
		return "secure"
	case Paranoid:
		return "paranoid"
	}
	return "Invalid Mode (" + strconv.Itoa(int(m)) + ")"
}

// ParseMode accepts a mode name or its numeric level.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "unsafe":
		return Unsafe, nil
	case "safe":
		return Safe, nil
	case "server":
		return Server, nil
	case "secure":
		return Secure, nil
	case "paranoid":
		return Paranoid, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		switch m := Mode(n); m {
		case Unsafe, Safe, Server, Secure, Paranoid:
			return m, nil
		}
	}
	return Secure, fmt.Errorf("unknown safe mode %q", s)
}

// SecurityError is returned when a path resolves outside the jail and the
// mode does not allow recovering from it.
type SecurityError struct {
	Target string
	Jail   string
	Msg    string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("%s: %s is outside of jail %s", e.Msg, e.Target, e.Jail)
}

// Resolver turns document-relative targets into system paths.
type Resolver struct {
	// Mode is the current safe mode level.
	Mode Mode

	// Jail is the directory paths may not escape when Mode is Safe or above.
	Jail string
}

// SystemPath resolves target relative to start. In Unsafe mode any path is
// accepted. In Safe mode a path escaping the jail is pulled back inside it
// and recovered is set. From Server up it is a *SecurityError.
func (r Resolver) SystemPath(target, start, name string) (path string, recovered bool, err error) {

	if len(start) == 0 {
		start = r.Jail
	}

	if filepath.IsAbs(target) {
		path = filepath.Clean(target)
	} else {
		path = filepath.Clean(filepath.Join(start, target))
	}

	if r.Mode == Unsafe || len(r.Jail) == 0 {
		return path, false, nil
	}

	jail := filepath.Clean(r.Jail)
	if within(jail, path) {
		return path, false, nil
	}

	if r.Mode >= Server {
		return "", false, &SecurityError{Target: target, Jail: jail, Msg: name + " path refers to location outside jail"}
	}

	// Recover by re-rooting the path segments that survive inside the jail
	rel, relErr := filepath.Rel(jail, path)
	if relErr != nil {
		rel = path
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for len(parts) > 0 && (parts[0] == ".." || parts[0] == "" || parts[0] == ".") {
		parts = parts[1:]
	}
	return filepath.Join(append([]string{jail}, parts...)...), true, nil
}

func within(jail, path string) bool {
	if path == jail {
		return true
	}
	rel, err := filepath.Rel(jail, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
