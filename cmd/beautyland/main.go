package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/Luismorlan/beautyland/app_setting"
	"github.com/Luismorlan/beautyland/daemon"
	"github.com/Luismorlan/beautyland/engine"
	"github.com/Luismorlan/beautyland/preload"
	"github.com/Luismorlan/beautyland/service"
	"github.com/Luismorlan/beautyland/store"
	"github.com/Luismorlan/beautyland/utils"
	"github.com/Luismorlan/beautyland/utils/dotenv"
	"github.com/Luismorlan/beautyland/utils/flag"
	Logger "github.com/Luismorlan/beautyland/utils/log"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

var (
	// Configuration to customize binary startup.
	AppSetting app_setting.BeautylandAppSetting
)

// init() will always be called on before the execution of main function.
func init() {
	if err := dotenv.LoadDotEnvs(); err != nil {
		panic(err)
	}
	// env from .env files decides log level and hooks
	Logger.InitLogger()
}

func NewDogStatsdClient() statsd.ClientInterface {
	client, err := statsd.New("127.0.0.1:8125")
	if err != nil {
		Logger.Log.WithError(err).Warn("statsd unavailable, metrics are dropped")
		return &statsd.NoOpClient{}
	}
	return client
}

func seconds(n int64) time.Duration {
	return time.Duration(n) * time.Second
}

func NewCommander(eventbus *gochannel.GoChannel) daemon.Commander {
	if AppSetting.DAEMON_TRANSPORT == app_setting.DaemonTransportSns {
		commander, err := daemon.NewSnsCommander(AppSetting.AWS_REGION, AppSetting.DAEMON_SNS_TOPIC_ARN)
		if err != nil {
			Logger.Log.Fatal(err)
		}
		return commander
	}
	return daemon.NewBusCommander(eventbus)
}

// NewPreload returns nil when preloading is bypassed or redis is unreachable,
// in which case every index page is read from the database.
func NewPreload(ctx context.Context, table string) *preload.List {
	if *flag.BypassPreloading || AppSetting.PRELOAD_SIZE <= 0 {
		return nil
	}
	client, err := utils.GetRedisClient(ctx)
	if err != nil {
		Logger.Log.WithError(err).Warn("redis unavailable, preloading disabled")
		return nil
	}
	// a snapshot outlives a few missed refreshes, never more
	ttl := 3 * seconds(AppSetting.PRELOAD_REFRESH_INTERVAL_SECOND)
	return preload.NewList(client, table, AppSetting.PRELOAD_SIZE, ttl)
}

// requestBuilds asks the daemon for every page listed in -build_pages.
func requestBuilds(ctx context.Context, svc *service.MainService) {
	for _, page := range strings.Split(*flag.BuildPages, ",") {
		if strings.TrimSpace(page) == "" {
			continue
		}
		ok, err := svc.RequestBuild(ctx, page)
		if err != nil || !ok {
			Logger.Log.WithError(err).Warnf("build of page %q not requested", page)
		}
	}
}

func cleanup() {
	if dotenv.IsProdEnv() {
		utils.CloseProfiler()
		utils.CloseTracer()
	}
	Logger.Log.Info("beautyland shutdown")
}

func main() {
	flag.ParseFlags()

	var err error
	AppSetting, err = app_setting.ParseBeautylandAppSetting(*flag.AppSettingPath)
	if err != nil {
		Logger.Log.Fatal(err)
	}

	if dotenv.IsProdEnv() {
		utils.StartTracer(*flag.ServiceName)
		if err := utils.StartProfiler(*flag.ServiceName); err != nil {
			Logger.Log.WithError(err).Warn("profiler not started")
		}
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())

	eventbus := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            100,
			BlockPublishUntilSubscriberAck: false,
		},
		watermill.NewStdLogger(false, false),
	)

	conn := store.NewConnection(store.ConnectionConfig{
		DSN:               utils.DatabaseURL(),
		Production:        dotenv.IsProdEnv(),
		ConnectTimeout:    seconds(AppSetting.CONNECT_TIMEOUT_SECOND),
		KeepAlive:         seconds(AppSetting.KEEP_ALIVE_SECOND),
		ReconnectInterval: seconds(AppSetting.RECONNECT_INTERVAL_SECOND),
	})
	// blocking call, retries until connected or cancelled.
	if err := conn.Connect(ctx, *flag.ServiceName); err != nil {
		Logger.Log.Fatal(err)
	}
	defer conn.Close()
	repo := store.NewPostRepository(conn)

	preloadList := NewPreload(ctx, conn.Status().Table)

	deps := service.Dependencies{
		Store:      repo,
		Connection: conn,
		Commander:  NewCommander(eventbus),
		Statsd:     NewDogStatsdClient(),
	}
	if preloadList != nil {
		deps.Preload = preloadList
	}
	svc := service.NewMainService(deps, service.MainServiceConfig{
		PageSize:      AppSetting.DEFAULT_PAGE_SIZE,
		RandomSize:    AppSetting.RANDOM_SIZE,
		SourceBaseURL: AppSetting.SOURCE_BASE_URL,
	})

	// Initialize all engine modules here.
	var modules []engine.Module
	if AppSetting.DAEMON_TRANSPORT == app_setting.DaemonTransportBus {
		// Worker consumes build commands from EventBus, harvests the board page
		// and saves new posts.
		modules = append(modules, daemon.NewWorker(
			daemon.WorkerConfig{Name: "worker"},
			eventbus,
			daemon.LogHarvester{},
			repo,
		))
	}
	if preloadList != nil {
		// Refresher keeps the newest posts in redis for the first index pages.
		modules = append(modules, preload.NewRefresher(
			preload.RefresherConfig{
				Name:     "preload-refresher",
				Interval: seconds(AppSetting.PRELOAD_REFRESH_INTERVAL_SECOND),
			},
			preloadList,
			repo,
		))
	}

	e := engine.NewEngine(modules, ctx, cancel, eventbus)

	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		<-sigs
		e.Shutdown()
	}()

	status, err := svc.Status(ctx)
	if err != nil {
		Logger.Log.WithError(err).Warn("status unavailable")
	}
	Logger.Log.WithField("table", status.Connection.Table).
		Infof("beautyland starts up, %d visible posts", status.VisiblePosts)

	// the worker subscribes asynchronously, give it a moment before publishing.
	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
			requestBuilds(ctx, svc)
		}
	}()

	// blocking call.
	e.Run()
	Logger.Log.Info("engine stopped execution.")
}
