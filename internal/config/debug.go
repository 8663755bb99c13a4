package config

import "os"

func IsDebug() bool {
	return os.Getenv("DOCQA_DEBUG") == "1"
}
