// Command beacon is the safety-beacon client: sign in, link a caretaker to a
// patient, manage the patient's bookmarks and navigate to them.
package main

import "os"

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
