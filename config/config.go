// Package config loads the gateway configuration from an HCL file with
// environment variable overrides for deployment secrets.
package config

import (
	"os"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"

	"github.com/marine-iot/vvmgate/helpers"
	"github.com/marine-iot/vvmgate/logx"
)

type Config struct {
	Device struct {
		Address             string `hcl:"address"`
		Name                string `hcl:"name"`
		TableTimeoutSec     int    `hcl:"table_timeout_sec"`
		ResponseTimeoutSec  int    `hcl:"response_timeout_sec"`
		StreamingTimeoutSec int    `hcl:"streaming_timeout_sec"`
		RetryDelaySec       int    `hcl:"retry_delay_sec"`
	} `hcl:"device"`

	SignalK struct {
		URL                  string `hcl:"url"`
		Username             string `hcl:"username"`
		Password             string `hcl:"password"`
		ConnectTimeoutSec    int    `hcl:"connect_timeout_sec"`
		ReconnectIntervalSec int    `hcl:"reconnect_interval_sec"`
		SendUnknown          bool   `hcl:"send_unknown"`
	} `hcl:"signalk"`

	CSV struct {
		Enable           bool   `hcl:"enable"`
		File             string `hcl:"file"`
		FlushIntervalSec int    `hcl:"flush_interval_sec"`
	} `hcl:"csv"`

	Healthcheck struct {
		Enable      bool   `hcl:"enable"`
		File        string `hcl:"file"`
		IntervalSec int    `hcl:"interval_sec"`
	} `hcl:"healthcheck"`

	Logging struct {
		Debug bool `hcl:"debug"`
	} `hcl:"logging"`

	// Conversion maps a parameter type name to a formula override, like
	// conversion { ENGINE_RPM = "value / 60.0" }
	Conversion map[string]string `hcl:"conversion"`
}

// ReadFile parses path. An empty path yields the defaults.
func ReadFile(path string, log *logx.Log) (*Config, error) {
	c := &Config{}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Annotatef(err, "config path=%s", path)
		}
		if err := hcl.Unmarshal(b, c); err != nil {
			return nil, errors.Annotatef(err, "config parse path=%s", path)
		}
		log.Debugf("config read path=%s", path)
	}
	c.applyEnv()
	return c, nil
}

// applyEnv lets deployment override file values, mainly for credentials.
func (c *Config) applyEnv() {
	if v := os.Getenv("VVM_DEVICE_ADDRESS"); v != "" {
		c.Device.Address = v
	}
	if v := os.Getenv("VVM_DEVICE_NAME"); v != "" {
		c.Device.Name = v
	}
	if v := os.Getenv("VVM_SIGNALK_URL"); v != "" {
		c.SignalK.URL = v
	}
	if v := os.Getenv("VVM_USERNAME"); v != "" {
		c.SignalK.Username = v
	}
	if v := os.Getenv("VVM_PASSWORD"); v != "" {
		c.SignalK.Password = v
	}
	if v := os.Getenv("VVM_DEBUG"); v != "" {
		c.Logging.Debug = v != "0" && v != "false"
	}
}

func (c *Config) TableTimeout() time.Duration {
	return helpers.IntSecondDefault(c.Device.TableTimeoutSec, 10*time.Second)
}

func (c *Config) ResponseTimeout() time.Duration {
	return helpers.IntSecondDefault(c.Device.ResponseTimeoutSec, 5*time.Second)
}

// StreamingTimeout returns 0 (watchdog disabled) for negative configured
// values; 0 in the file means "use the default".
func (c *Config) StreamingTimeout() time.Duration {
	if c.Device.StreamingTimeoutSec < 0 {
		return 0
	}
	return helpers.IntSecondDefault(c.Device.StreamingTimeoutSec, 30*time.Second)
}

func (c *Config) RetryDelay() time.Duration {
	return helpers.IntSecondDefault(c.Device.RetryDelaySec, 1*time.Second)
}

func (c *Config) ConnectTimeout() time.Duration {
	return helpers.IntSecondDefault(c.SignalK.ConnectTimeoutSec, 10*time.Second)
}

func (c *Config) ReconnectInterval() time.Duration {
	return helpers.IntSecondDefault(c.SignalK.ReconnectIntervalSec, 5*time.Second)
}

func (c *Config) CSVFlushInterval() time.Duration {
	return helpers.IntSecondDefault(c.CSV.FlushIntervalSec, 10*time.Second)
}

func (c *Config) HealthcheckInterval() time.Duration {
	return helpers.IntSecondDefault(c.Healthcheck.IntervalSec, 30*time.Second)
}
