package main

import (
	"context"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/meetsum/internal/pkg/analyzer"
	"github.com/airenas/meetsum/internal/pkg/consul"
	"github.com/airenas/meetsum/internal/pkg/render"
	"github.com/airenas/meetsum/internal/pkg/utils"
	"github.com/airenas/meetsum/internal/pkg/web"
	"github.com/airenas/meetsum/internal/pkg/workflow"
	capi "github.com/hashicorp/consul/api"
	"github.com/joho/godotenv"
	"github.com/labstack/gommon/color"
	"github.com/spf13/viper"
)

func main() {
	// .env is optional
	_ = godotenv.Load()
	goapp.StartWithDefault()

	printBanner()

	cfg := goapp.Config
	go utils.RunPerfEndpoint(cfg.GetInt("debug.port"))

	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	srv, doneConsul, err := initService(ctx, cfg)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init service client")
	}

	wsh := web.NewWSConnKeeper()
	wData := &workflow.Data{Service: srv, Observer: wsh, Extensions: cfg.GetStringSlice("upload.extensions")}
	wData.Builder = render.NewBuilder(render.NewMarkdown(cfg.GetBool("render.unsafeHTML")))
	sessions, err := workflow.NewSessions(wData, defaultV(cfg.GetDuration("sessions.ttl"), time.Hour))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init sessions")
	}
	doneClean := sessions.StartCleanLoop(ctx, defaultV(cfg.GetDuration("sessions.cleanEvery"), time.Minute))

	data := &web.Data{}
	data.Port = defaultV(cfg.GetInt("port"), 8000)
	data.Sessions = sessions
	data.WSHandler = wsh
	data.MaxUploadSize = defaultV(cfg.GetString("upload.maxSize"), "100M")
	data.SecureCookie = cfg.GetBool("sessions.secureCookie")

	goapp.Log.Info().Msg("starting web service")
	if err := web.StartWebServer(data); err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start web server")
	}
	goapp.Log.Info().Msg("exit web service")
	cancelFunc()
	select {
	case <-waitAll(doneClean, doneConsul):
		goapp.Log.Info().Msg("All code returned. Now exit. Bye")
	case <-time.After(time.Second * 15):
		goapp.Log.Warn().Msg("Timeout gracefull shutdown")
	}
}

// initService returns a static URL client or a consul backed provider when consul.service is set
func initService(ctx context.Context, cfg *viper.Viper) (workflow.Service, <-chan struct{}, error) {
	timeout, retries := cfg.GetDuration("service.timeout"), cfg.GetInt("service.retries")
	srvName := cfg.GetString("consul.service")
	if srvName == "" {
		res, err := analyzer.NewClient(cfg.GetString("service.url"), timeout, retries)
		if err != nil {
			return nil, nil, err
		}
		done := make(chan struct{})
		close(done)
		return res, done, nil
	}
	consulCfg := capi.DefaultConfig()
	if addr := cfg.GetString("consul.address"); addr != "" {
		consulCfg.Address = addr
	}
	res, err := consul.NewProvider(consulCfg, srvName, timeout, retries)
	if err != nil {
		return nil, nil, err
	}
	done, err := res.StartRegistryLoop(ctx, defaultV(cfg.GetDuration("consul.checkEvery"), 10*time.Second))
	if err != nil {
		return nil, nil, err
	}
	return res, done, nil
}

func waitAll(chs ...<-chan struct{}) <-chan struct{} {
	res := make(chan struct{})
	go func() {
		defer close(res)
		for _, c := range chs {
			<-c
		}
	}()
	return res
}

func defaultV[T comparable](v, d T) T {
	var e T
	if v == e {
		return d
	}
	return v
}

var (
	version = "DEV"
)

func printBanner() {
	banner := `
                        __                      
   ____ ___  ___  ___  / /_   _______  ______ ___ 
  / __ ` + "`" + `__ \/ _ \/ _ \/ __/  / ___/ / / / __ ` + "`" + `__ \
 / / / / / /  __/  __/ /_   (__  ) /_/ / / / / / /
/_/ /_/ /_/\___/\___/\__/  /____/\__,_/_/ /_/ /_/  v: %s

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/meetsum"))
}
