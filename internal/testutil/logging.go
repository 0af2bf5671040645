package testutil

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logs are only shown under go test -v.
func init() {
	verbose := false
	for _, arg := range os.Args {
		if arg == "-test.v=true" || arg == "-test.v" {
			verbose = true
		}
	}
	logrus.SetLevel(logrus.TraceLevel)
	if !verbose {
		logrus.StandardLogger().Out = io.Discard
	}
}

// DisableLogging silences logrus until reset is called.
func DisableLogging() (reset func()) {
	original := logrus.StandardLogger().Out
	logrus.StandardLogger().Out = io.Discard
	return func() {
		logrus.StandardLogger().Out = original
	}
}
