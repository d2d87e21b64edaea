package main

import (
	"context"
	"embed"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"mesh-node-map/pkg/api"
	"mesh-node-map/pkg/cyclelog"
	"mesh-node-map/pkg/dashboard"
	"mesh-node-map/pkg/feed"
	"mesh-node-map/pkg/mapview"
	"mesh-node-map/pkg/metrics"
	"mesh-node-map/pkg/share"
	"mesh-node-map/pkg/status"
)

// CompileVersion is set at build time with -ldflags "-X main.CompileVersion=...".
var CompileVersion = "dev"

//go:embed public_html
var content embed.FS

func setDefaults() {
	viper.SetDefault("server.port", 8765)
	viper.SetDefault("server.domain", "")
	viper.SetDefault("feed.url", "http://localhost:8765/shared/dati.csv")
	viper.SetDefault("feed.interval", dashboard.DefaultInterval)
	viper.SetDefault("feed.timeout", 15*time.Second)
	viper.SetDefault("map.default_lat", 45.5397)
	viper.SetDefault("map.default_lng", 10.2206)
	viper.SetDefault("map.default_zoom", 10)
	viper.SetDefault("map.search_zoom", dashboard.DefaultSearchZoom)
	viper.SetDefault("search.limit", dashboard.DefaultSearchLimit)
	viper.SetDefault("filters.fields", dashboard.DefaultFilterFields)
	viper.SetDefault("status.dismiss", status.DefaultDismiss)
	viper.SetDefault("api.cache_entries", 256)
	viper.SetDefault("api.refresh_cooldown", 5*time.Second)
	viper.SetDefault("i18n.lang", "it")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("metrics.interval", time.Minute)
}

func loadConfig(file string) {
	setDefaults()

	viper.SetConfigType("yaml")
	if file != "" {
		viper.SetConfigFile(file)
	}
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		fmt.Println("No config file. Read config from env.")
		viper.AllowEmptyEnv(false)
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("meshmap")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
}

func initLog() {
	logLevel, err := log.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(logLevel)
	}

	log.SetOutput(os.Stdout)

	log.SetFormatter(&prefixed.TextFormatter{
		ForceFormatting: true,
		FullTimestamp:   true,
	})
}

func version() string {
	if v := viper.GetString("server.version"); v != "" {
		return v
	}
	return CompileVersion
}

func defaultViewport() mapview.Viewport {
	return mapview.Viewport{
		Center: mapview.LatLng{Lat: viper.GetFloat64("map.default_lat"), Lng: viper.GetFloat64("map.default_lng")},
		Zoom:   viper.GetInt("map.default_zoom"),
	}
}

// publicURL is where the page is reachable from outside.
func publicURL() *url.URL {
	if domain := viper.GetString("server.domain"); domain != "" {
		return &url.URL{Scheme: "https", Host: domain, Path: "/"}
	}
	return &url.URL{Scheme: "http", Host: fmt.Sprintf("localhost:%d", viper.GetInt("server.port")), Path: "/"}
}

// runShare copies the link of the configured start view and optionally
// writes it as a QR code.
func runShare(qrFile string) error {
	link := share.Encode(publicURL(), defaultViewport())

	var clip share.Clipboard
	if c, err := share.DetectClipboard(); err == nil {
		clip = c
	}
	tr, err := status.NewTranslator(viper.GetString("i18n.lang"))
	if err != nil {
		return err
	}
	lang := viper.GetString("i18n.lang")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	method, err := share.Copy(ctx, clip, share.WriterPrompter{W: os.Stdout}, tr.Localize(lang, status.MsgShareManual, nil), link)
	switch {
	case method == share.MethodClipboard:
		fmt.Println(tr.Localize(lang, status.MsgShareCopied, nil), link)
	case err != nil && method == "":
		return err
	}

	if qrFile == "" {
		return nil
	}
	f, err := os.Create(qrFile)
	if err != nil {
		return err
	}
	if err := share.QR(f, link, share.QROptions{}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func main() {
	var (
		configFile  string
		showVersion bool
		shareOnly   bool
		qrFile      string
	)
	flag.StringVar(&configFile, "c", "./config.yaml", "[optional] path of configuration file")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.BoolVar(&shareOnly, "share", false, "copy the link of the start view to the clipboard and exit")
	flag.StringVar(&qrFile, "qr", "", "with -share, also write the link as a PNG QR code")
	flag.Parse()

	if showVersion {
		fmt.Printf("mesh-node-map version %s\n", CompileVersion)
		return
	}

	loadConfig(configFile)
	initLog()

	if shareOnly {
		if err := runShare(qrFile); err != nil {
			log.Fatal(err)
		}
		return
	}

	// Sentry
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              viper.GetString("sentry.dsn"),
		AttachStacktrace: true,
		Environment:      viper.GetString("sentry.environment"),
		Release:          version(),
	}); err != nil {
		log.Error(err)
	}
	log.WithField("prefix", "init").Info("Initialized sentry")

	stream := status.NewStream(64)
	board := status.NewBoard(viper.GetDuration("status.dismiss"), stream)
	translator, err := status.NewTranslator(viper.GetString("i18n.lang"))
	if err != nil {
		log.Panic(err)
	}

	scope, scopeCloser := metrics.NewScope("meshmap", viper.GetDuration("metrics.interval"))

	source := feed.NewHTTPSource(viper.GetString("feed.url"), viper.GetDuration("feed.timeout"))
	dash := dashboard.New(dashboard.Options{
		Source:       source,
		Surface:      mapview.NewMemory(defaultViewport()),
		Publisher:    board,
		Scope:        scope,
		CycleLog:     cyclelog.New(log.WithField("prefix", "refresh")),
		SearchLimit:  viper.GetInt("search.limit"),
		SearchZoom:   viper.GetInt("map.search_zoom"),
		FilterFields: viper.GetStringSlice("filters.fields"),
	})
	scheduler := dashboard.NewScheduler(dash, viper.GetDuration("feed.interval"))
	log.WithField("prefix", "init").Infof("Polling %s every %s", viper.GetString("feed.url"), viper.GetDuration("feed.interval"))

	assets, err := fs.Sub(content, "public_html")
	if err != nil {
		log.Panic(err)
	}
	server, err := api.NewServer(api.Config{
		Version:         version(),
		DefaultViewport: defaultViewport(),
		CacheEntries:    viper.GetInt("api.cache_entries"),
		RefreshCooldown: viper.GetDuration("api.refresh_cooldown"),
		Assets:          assets,
	}, dash, board, stream, translator, scheduler)
	if err != nil {
		log.Panic(err)
	}
	log.WithField("prefix", "init").Info("Initialized http server")

	ctx, cancel := context.WithCancel(context.Background())
	go scheduler.Run(ctx)

	var tlsServers []*http.Server
	if domain := viper.GetString("server.domain"); domain != "" {
		tlsServers = serveWithDomain(ctx, domain, server.Router())
	} else {
		addr := fmt.Sprintf(":%d", viper.GetInt("server.port"))
		go func() {
			log.WithField("prefix", "init").Infof("HTTP server on http://localhost%s", addr)
			if err := server.Run(addr); err != nil && err != http.ErrServerClosed {
				log.Error(err)
			}
		}()
	}

	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info("Server is preparing to shutdown")

	cancel()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server Shutdown:", err)
	}
	shutdownServers(shutdownCtx, tlsServers...)
	dash.Close()
	board.Close()
	if err := scopeCloser.Close(); err != nil {
		log.Error(err)
	}
	sentry.Flush(2 * time.Second)
}
