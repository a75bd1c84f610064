package filter

import "strings"

// ClassCategory represents the category of a class.
type ClassCategory int

const (
	// CategoryApplication is anything not recognized as platform code.
	CategoryApplication ClassCategory = iota
	// CategoryJDK indicates JDK classes.
	CategoryJDK
	// CategoryNative indicates native or VM frames without a Java class.
	CategoryNative
)

// String returns the string representation of the category.
func (c ClassCategory) String() string {
	switch c {
	case CategoryJDK:
		return "jdk"
	case CategoryNative:
		return "native"
	default:
		return "application"
	}
}

var jdkPrefixes = []string{
	"java.",
	"javax.",
	"jdk.",
	"sun.",
	"com.sun.",
}

// Classify returns the category of a fully qualified class name. Names
// without a package separator are treated as native frames.
func Classify(className string) ClassCategory {
	for _, p := range jdkPrefixes {
		if strings.HasPrefix(className, p) {
			return CategoryJDK
		}
	}
	if !strings.Contains(className, ".") {
		return CategoryNative
	}
	return CategoryApplication
}

// IsJDKClass reports whether className belongs to the JDK.
func IsJDKClass(className string) bool {
	return Classify(className) == CategoryJDK
}
