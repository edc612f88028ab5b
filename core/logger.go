package core

// Logger is any service that can log & report messages.
// args may hold errors, maps of extra data, or the Person the entry is about.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Person identifies the authenticated subject an entry relates to.
type Person struct {
	ID string
}
