package core

// Logger is any service that can log & report app events.
// expected args: error, map[string]interface{} (extras) and an optional account.Account to identify the caller.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
