package autoload

import (
	configx "github.com/chronicai/chronicai/pkg/config"
	logx "github.com/chronicai/chronicai/pkg/logger"
)

func init() {
	conf := configx.MustNew[logx.Config]("LOG")
	logx.Init(*conf)
}
