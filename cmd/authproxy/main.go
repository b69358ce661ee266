package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/nhle/malharro-cms/internal/account"
	"github.com/nhle/malharro-cms/internal/authproxy"
	"github.com/nhle/malharro-cms/internal/cms"
	"github.com/nhle/malharro-cms/internal/logging"
	"github.com/nhle/malharro-cms/internal/model"
)

func main() {
	configPath := pflag.StringP("config", "c", model.DefaultConfigPath(), "archivo de configuración")
	addr := pflag.String("addr", "", "dirección de escucha (por defecto oauth.proxy_addr)")
	pflag.Parse()

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "authproxy:", err)
		os.Exit(1)
	}
	log, closeLog, err := logging.Open(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "authproxy:", err)
		os.Exit(1)
	}
	defer closeLog()

	if cfg.CMS.BaseURL == "" {
		log.Error("cms.base_url is not set")
		os.Exit(1)
	}
	if *addr == "" {
		*addr = cfg.OAuth.ProxyAddr
	}
	gin.SetMode(gin.ReleaseMode)

	client := cms.NewClient(cfg.CMS.BaseURL, cfg.CMS.Timeout(), cms.WithLogger(log))
	// No credential store: the proxy relays identities for browsers and
	// never keeps a session of its own.
	accounts := account.NewService(client, nil, log)
	srv := authproxy.New(cfg.OAuth, accounts, account.NewVerifier(), log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx, *addr); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("auth proxy stopped", "err", err)
		os.Exit(1)
	}
}
