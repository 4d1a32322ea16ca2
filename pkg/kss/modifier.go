package kss

import "strings"

// Modifier represents a single modifier of a styleguide section: a class or
// pseudo-class that alters the base element, together with its description.
type Modifier struct {
	Name        string
	Description string
}

// ClassName returns the modifier name as a usable CSS class. Pseudo-classes
// are rewritten to generated class names so example markup can demonstrate
// them statically: ":hover" becomes "pseudo-class-hover" and ".btn:hover"
// becomes "btn pseudo-class-hover".
func (m Modifier) ClassName() string {
	name := strings.ReplaceAll(m.Name, ".", " ")
	name = strings.ReplaceAll(name, ":", " pseudo-class-")
	return strings.TrimSpace(name)
}
