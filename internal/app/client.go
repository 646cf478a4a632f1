package app

import (
	"fmt"

	"github.com/saba-futai/fwspeed/apis"
	"github.com/saba-futai/fwspeed/internal/config"
	"github.com/saba-futai/fwspeed/pkg/speedcgi"
)

// ClientConfig maps the settings file onto the fetch client.
func ClientConfig(cfg *config.Config) (*apis.ClientConfig, error) {
	cc := &apis.ClientConfig{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Pass:               cfg.Pass,
		Path:               speedcgi.Path,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		Timeout:            cfg.Timeout(),
	}
	if cfg.CAFile != "" && !cfg.InsecureSkipVerify {
		pool, err := apis.LoadRootCAs(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("load ca_file: %w", err)
		}
		cc.RootCAs = pool
	}
	return cc, nil
}
