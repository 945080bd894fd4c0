package runner

import (
	"regexp"
	"strings"
)

// fencedBlock matches a whole string wrapped in a triple-backtick fence with
// an optional language tag. The closing fence may follow the last code line
// directly.
var fencedBlock = regexp.MustCompile("(?s)^```[ \\t]*([A-Za-z0-9_+.-]*)[ \\t]*\\r?\\n(.*?)\\r?\\n?[ \\t]*```$")

// pythonTags are the fence language tags treated as Python.
var pythonTags = map[string]bool{
	"":        true,
	"py":      true,
	"python":  true,
	"python3": true,
	"ipython": true,
}

// StripCodeFences removes Markdown code fences that models often wrap
// around tool arguments. It handles
//
//	```python\n...\n```   (also py, python3, ipython, or no tag)
//	```print(1)```        (single line)
//	`print(1)`            (inline backticks)
//
// Only a fence spanning the whole (trimmed) input is removed. Blocks tagged
// with another language and code with fences in the middle are returned
// unchanged.
func StripCodeFences(code string) string {
	s := strings.TrimSpace(code)
	if s == "" {
		return ""
	}

	if m := fencedBlock.FindStringSubmatch(s); m != nil {
		if !pythonTags[strings.ToLower(m[1])] {
			return code
		}
		return m[2]
	}

	if !strings.Contains(s, "\n") {
		if len(s) >= 6 && strings.HasPrefix(s, "```") && strings.HasSuffix(s, "```") {
			return strings.TrimSpace(s[3 : len(s)-3])
		}
		if len(s) >= 2 && s[0] == '`' && s[len(s)-1] == '`' && !strings.Contains(s[1:len(s)-1], "`") {
			return s[1 : len(s)-1]
		}
	}

	return code
}
