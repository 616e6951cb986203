package main

import (
	"flag"
	"os"
	"time"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/proc"
	"github.com/zeromicro/go-zero/core/prometheus"
	"github.com/zeromicro/go-zero/core/service"

	"github.com/relaycore/bulkmailer/internal/config"
	"github.com/relaycore/bulkmailer/internal/errorx"
	"github.com/relaycore/bulkmailer/internal/server"
	"github.com/relaycore/bulkmailer/internal/svc"
)

func main() {
	configFile := flag.String("f", "etc/bulkmailer.yaml", "config file path")
	flag.Parse()

	var c config.Config
	conf.MustLoad(*configFile, &c, conf.UseEnv())

	logx.DisableStat()
	errorx.RegisterErrorHandler()
	prometheus.Enable()

	ctx, err := svc.NewServiceContext(c)
	if err != nil {
		logx.Errorf("build service context: %v", err)
		os.Exit(1)
	}
	proc.AddShutdownListener(ctx.Close)

	ops, err := server.New(server.Config{McpConf: c.OpsTools}, c.OpsHTTP, ctx.RateLimiter, ctx.Adapter, ctx.Drainer)
	if err != nil {
		logx.Errorf("build ops server: %v", err)
		os.Exit(1)
	}

	drainWindow := time.Duration(c.Drainer.DrainBufferMs) * time.Millisecond

	group := service.NewServiceGroup()
	group.Add(server.NewDrainerService(ctx.Drainer, drainWindow))
	group.Add(ops)

	logx.Infow("bulkmailer configured",
		logx.Field("opsHTTP", c.OpsHTTP.Host),
		logx.Field("queueBackend", c.Queue.Backend),
		logx.Field("smtpHost", c.SMTP.Host),
	)

	group.Start()
}
