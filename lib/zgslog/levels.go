package zgslog

import (
	"os"

	logging "github.com/ipfs/go-log/v2"
)

// SetupLogLevels sets default levels for the CLI unless the user configured
// their own via GOLOG_LOG_LEVEL.
func SetupLogLevels() {
	if _, set := os.LookupEnv("GOLOG_LOG_LEVEL"); set {
		return
	}
	_ = logging.SetLogLevel("*", "INFO")
	_ = logging.SetLogLevel("rpc", "WARN")
	_ = logging.SetLogLevel("retry", "WARN")
}
