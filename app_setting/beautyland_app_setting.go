package app_setting

import (
	"io/ioutil"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	DaemonTransportBus = "bus"
	DaemonTransportSns = "sns"
)

// This is the app setting for a beautyland process. Values are read once at
// startup and treated as immutable afterwards.
type BeautylandAppSetting struct {
	// Number of posts on every index and trend page.
	DEFAULT_PAGE_SIZE int `yaml:"DEFAULT_PAGE_SIZE"`
	// Number of newest posts kept in the preload list. Index pages fully
	// covered by it are served without touching the database.
	PRELOAD_SIZE int `yaml:"PRELOAD_SIZE"`
	// Rebuild the preload list every other interval.
	PRELOAD_REFRESH_INTERVAL_SECOND int64 `yaml:"PRELOAD_REFRESH_INTERVAL_SECOND"`
	// Sample size used when the caller asks for random posts without a size.
	RANDOM_SIZE int `yaml:"RANDOM_SIZE"`
	// Board index base url, the daemon is asked to build posts from
	// SOURCE_BASE_URL/index<page>.html
	SOURCE_BASE_URL string `yaml:"SOURCE_BASE_URL"`
	// "bus" sends daemon commands over the in-process event bus, "sns" publishes
	// them to DAEMON_SNS_TOPIC_ARN.
	DAEMON_TRANSPORT     string `yaml:"DAEMON_TRANSPORT"`
	DAEMON_SNS_TOPIC_ARN string `yaml:"DAEMON_SNS_TOPIC_ARN"`
	AWS_REGION           string `yaml:"AWS_REGION"`
	// Database transport settings.
	CONNECT_TIMEOUT_SECOND    int64 `yaml:"CONNECT_TIMEOUT_SECOND"`
	KEEP_ALIVE_SECOND         int64 `yaml:"KEEP_ALIVE_SECOND"`
	RECONNECT_INTERVAL_SECOND int64 `yaml:"RECONNECT_INTERVAL_SECOND"`
}

// Default returns the setting used when no file is provided, or to fill
// fields a file leaves out.
func Default() BeautylandAppSetting {
	return BeautylandAppSetting{
		DEFAULT_PAGE_SIZE:               20,
		PRELOAD_SIZE:                    40,
		PRELOAD_REFRESH_INTERVAL_SECOND: 60,
		RANDOM_SIZE:                     20,
		SOURCE_BASE_URL:                 "https://www.ptt.cc/bbs/Beauty",
		DAEMON_TRANSPORT:                DaemonTransportBus,
		AWS_REGION:                      "us-west-1",
		CONNECT_TIMEOUT_SECOND:          50,
		KEEP_ALIVE_SECOND:               300,
		RECONNECT_INTERVAL_SECOND:       2,
	}
}

func ParseBeautylandAppSetting(path string) (BeautylandAppSetting, error) {
	c := Default()
	yamlFile, err := ioutil.ReadFile(path)
	if err != nil {
		return c, errors.Wrap(err, "fail to read app setting "+path)
	}
	if err = yaml.Unmarshal(yamlFile, &c); err != nil {
		return c, errors.Wrap(err, "fail to unmarshal app setting "+path)
	}
	if c.DEFAULT_PAGE_SIZE <= 0 {
		return c, errors.Errorf("DEFAULT_PAGE_SIZE must be positive, got %d", c.DEFAULT_PAGE_SIZE)
	}
	if c.PRELOAD_SIZE > 0 && c.PRELOAD_REFRESH_INTERVAL_SECOND <= 0 {
		return c, errors.Errorf("PRELOAD_REFRESH_INTERVAL_SECOND must be positive when preloading, got %d", c.PRELOAD_REFRESH_INTERVAL_SECOND)
	}
	if c.DAEMON_TRANSPORT != DaemonTransportBus && c.DAEMON_TRANSPORT != DaemonTransportSns {
		return c, errors.Errorf("unknown DAEMON_TRANSPORT %q", c.DAEMON_TRANSPORT)
	}
	if c.DAEMON_TRANSPORT == DaemonTransportSns && c.DAEMON_SNS_TOPIC_ARN == "" {
		return c, errors.New("DAEMON_SNS_TOPIC_ARN is required for sns transport")
	}
	return c, nil
}
