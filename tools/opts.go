package tools

import (
	"os"
	"time"

	"github.com/docopt/docopt-go"
	log "github.com/sirupsen/logrus"
)

func OptsBool(opts docopt.Opts, key string) bool {
	v, err := opts.Bool(key)
	if err != nil {
		log.Fatalf("OptsBool: %v parse err = %v", key, err)
	}
	return v
}

// OptsStr returns the option value, or "" when the option was not given
// and carries no default.
func OptsStr(opts docopt.Opts, key string) string {
	if v, ok := opts[key]; !ok || v == nil {
		return ""
	}
	v, err := opts.String(key)
	if err != nil {
		log.Fatalf("OptsStr: %v parse err = %v", key, err)
	}
	return v
}

// OptsStrOrEnv falls back to the environment variable env when key is empty
func OptsStrOrEnv(opts docopt.Opts, key, env string) string {
	if v := OptsStr(opts, key); v != "" {
		return v
	}
	return os.Getenv(env)
}

// OptsInt returns 0 for an option that was not given
func OptsInt(opts docopt.Opts, key string) int {
	if OptsStr(opts, key) == "" {
		return 0
	}
	v, err := opts.Int(key)
	if err != nil {
		log.Fatalf("OptsInt: %v parse err = %v", key, err)
	}
	return v
}

func OptsStrs(opts docopt.Opts, key string) []string {
	v, ok := opts[key].([]string)
	if !ok {
		return nil
	}
	return v
}

func OptsSeconds(opts docopt.Opts, key string) time.Duration {
	v := OptsInt(opts, key)
	return time.Duration(v) * time.Second
}
