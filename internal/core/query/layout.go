package query

import "strings"

// dotNetMarkers are tokens that never occur in a Go layout but always occur in
// the common .NET custom date patterns.
var dotNetMarkers = []string{"dd", "MM", "yy", "HH", "hh", "mm", "ss"}

// Layout turns a label pattern into a Go time layout. Patterns in the .NET
// custom date dialect ("dd.MM.yy HH\:mm") are translated token by token.
// Anything else is taken as a Go layout with "\:" unescaped.
func Layout(pattern string) string {
	if !isDotNetPattern(pattern) {
		return strings.ReplaceAll(pattern, `\:`, ":")
	}
	return translateDotNet(pattern)
}

func isDotNetPattern(pattern string) bool {
	for _, m := range dotNetMarkers {
		if strings.Contains(pattern, m) {
			return true
		}
	}
	return false
}

// translateDotNet maps .NET format specifiers to Go layout elements. Quoted
// text and backslash escapes are copied as literals; Go has no escape syntax,
// so literal text that happens to spell a layout element is still formatted.
func translateDotNet(pattern string) string {
	var b strings.Builder
	runes := []rune(pattern)
	for i := 0; i < len(runes); {
		c := runes[i]
		switch c {
		case '\\':
			if i+1 < len(runes) {
				b.WriteRune(runes[i+1])
			}
			i += 2
			continue
		case '\'', '"':
			end := i + 1
			for end < len(runes) && runes[end] != c {
				end++
			}
			b.WriteString(string(runes[i+1 : end]))
			i = end + 1
			continue
		}

		n := 1
		for i+n < len(runes) && runes[i+n] == c {
			n++
		}
		if elem, ok := dotNetElement(c, n); ok {
			b.WriteString(elem)
		} else {
			b.WriteString(string(runes[i : i+n]))
		}
		i += n
	}
	return b.String()
}

func dotNetElement(c rune, n int) (string, bool) {
	pick := func(forms ...string) string {
		if n > len(forms) {
			return forms[len(forms)-1]
		}
		return forms[n-1]
	}
	switch c {
	case 'd':
		return pick("2", "02", "Mon", "Monday"), true
	case 'M':
		return pick("1", "01", "Jan", "January"), true
	case 'y':
		return pick("06", "06", "2006"), true
	case 'H':
		return "15", true
	case 'h':
		return pick("3", "03"), true
	case 'm':
		return pick("4", "04"), true
	case 's':
		return pick("5", "05"), true
	case 'f':
		return strings.Repeat("0", min(n, 9)), true
	case 'F':
		return strings.Repeat("9", min(n, 9)), true
	case 't':
		return "PM", true
	case 'z':
		return pick("-07", "-07", "-07:00"), true
	case 'K':
		return "Z07:00", true
	}
	return "", false
}
