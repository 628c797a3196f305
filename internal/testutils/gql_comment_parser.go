package testutils

import (
	"fmt"
	"regexp"
)

// FindOptionString returns VALUE from a `# option:NAME: VALUE` comment line in source,
// or an empty string when the option is absent.
func FindOptionString(t TestingT, optionName, source string) string {
	t.Helper()

	pattern := fmt.Sprintf("(?m)^# option:%s:\\s*([^\\s]+)$", regexp.QuoteMeta(optionName))
	re, err := regexp.Compile(pattern)
	if err != nil {
		t.Fatal(err)
	}

	ss := re.FindStringSubmatch(source)
	if len(ss) != 2 {
		return ""
	}

	return ss[1]
}
