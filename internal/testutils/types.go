package testutils

// TestingT is the subset of testing.TB used by the golden file and query option helpers.
type TestingT interface {
	Helper()
	Logf(format string, args ...interface{})
	Error(args ...interface{})
	Fatal(args ...interface{})
}
