// Package autoload initializes the global logger from LOG_* environment
// variables as a side effect of the import.
package autoload

import (
	configx "github.com/wrenhq/wren/pkg/config"
	logx "github.com/wrenhq/wren/pkg/logger"
)

func init() {
	conf, err := configx.New[logx.Config]("LOG")
	if err != nil {
		conf = logx.DefaultConfig
	}
	logx.Init(*conf)
}
