/*
flag Package set up cli flags shared across services

Usage:

	Flags listed in this package are shared across boundaries and service-agnostic
	For service dependent flags please define in their respective package
*/

package flag

import (
	"flag"
)

const DefaultServiceName = "beautyland"

var (
	ServiceName      *string
	AppSettingPath   *string
	BypassPreloading *bool
	BuildPages       *string
)

func init() {
	ServiceName = flag.String("service", DefaultServiceName, "service name reported in logs, traces and profiles")
	AppSettingPath = flag.String("app_setting_path", "cmd/beautyland/setting.yaml", "path to beautyland app setting")
	BypassPreloading = flag.Bool("bypass_preloading", false, "serve every index page from the database")
	BuildPages = flag.String("build_pages", "", "comma separated board index pages to build on startup, e.g. '3900,3901'")
}

// ParseFlags parses command line flags. It must only be called from main, so
// that `go test` flags are left alone.
func ParseFlags() {
	flag.Parse()
}
