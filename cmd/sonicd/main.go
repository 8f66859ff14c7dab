package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mikey-austin/sonic_utopia/internal/adapters/mqttserver"
	embeddedmqtt "github.com/mikey-austin/sonic_utopia/internal/modules/embedded_mqtt"
	"github.com/mikey-austin/sonic_utopia/internal/modules/player"
	"github.com/mikey-austin/sonic_utopia/internal/playback"
	"github.com/mikey-austin/sonic_utopia/internal/servers"
	"github.com/mikey-austin/sonic_utopia/internal/session/mpd"
	"github.com/mikey-austin/sonic_utopia/internal/session/mqttmirror"
	"github.com/mikey-austin/sonic_utopia/internal/session/tee"
	"github.com/mikey-austin/sonic_utopia/internal/sonicd"
	"github.com/mikey-austin/sonic_utopia/internal/subsonic"
	"github.com/mikey-austin/sonic_utopia/pkg/sonic"
)

func main() {
	var (
		configPath  string
		broker      string
		identity    string
		topicBase   string
		logLevel    string
		logFormat   string
		logOutput   string
		logSource   bool
		logUTC      bool
		logColor    bool
		printConfig bool
		dryRun      bool
		moduleOnly  string
	)

	defaultConfig, err := sonicd.DefaultConfigPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	flag.StringVar(&configPath, "config", defaultConfig, "config file path")
	flag.StringVar(&broker, "broker", "", "MQTT broker URL override")
	flag.StringVar(&identity, "identity", "", "server identity override")
	flag.StringVar(&topicBase, "topic-base", "", "topic base override")
	flag.StringVar(&logLevel, "log-level", "", "log level override")
	flag.StringVar(&logFormat, "log-format", "", "log format override (text|json)")
	flag.StringVar(&logOutput, "log-output", "", "log output override (stdout|stderr)")
	flag.BoolVar(&logSource, "log-source", false, "include source file in logs")
	flag.BoolVar(&logUTC, "log-utc", false, "use UTC timestamps in logs")
	flag.BoolVar(&logColor, "log-color", false, "enable colored log output (text only)")
	flag.StringVar(&moduleOnly, "module", "", "limit to a single module (player|embedded_mqtt)")
	flag.BoolVar(&printConfig, "print-config", false, "print resolved config and exit")
	flag.BoolVar(&dryRun, "dry-run", false, "validate config and exit")
	flag.Parse()

	cfg, err := sonicd.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	applyOverrides(&cfg, overrides{
		broker:    broker,
		identity:  identity,
		topicBase: topicBase,
		logLevel:  logLevel,
		logFormat: logFormat,
		logOutput: logOutput,
		logSource: logSource,
		logUTC:    logUTC,
		logColor:  logColor,
	})

	if printConfig {
		printResolvedConfig(os.Stdout, cfg)
		return
	}
	if dryRun {
		return
	}

	logger := sonicd.NewLogger(sonicd.LogConfig{
		Level:     cfg.Server.LogLevel,
		Format:    cfg.Server.LogFormat,
		Output:    cfg.Server.LogOutput,
		AddSource: cfg.Server.LogSource,
		UTC:       cfg.Server.LogUTC,
		Color:     cfg.Server.LogColor,
	})
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cancel, cfg, logger, moduleOnly); err != nil {
		logger.Error("sonicd failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cancel context.CancelFunc, cfg sonicd.Config, logger *zap.Logger, moduleOnly string) error {
	if cfg.Server.Broker == "" && !cfg.Modules.EmbeddedMQTT.Enabled {
		return errors.New("broker is required")
	}
	logger.Info("sonicd starting",
		zap.String("broker", cfg.Server.Broker),
		zap.String("identity", cfg.Server.Identity),
		zap.String("topic_base", cfg.Server.TopicBase),
		zap.String("log_level", cfg.Server.LogLevel),
		zap.Int("servers", len(cfg.Servers)),
		zap.Strings("modules", enabledModules(cfg)),
	)

	if moduleOnly == "embedded_mqtt" {
		if !cfg.Modules.EmbeddedMQTT.Enabled {
			return errors.New("embedded_mqtt is not enabled")
		}
		mod, err := newEmbeddedBroker(cfg, logger)
		if err != nil {
			return err
		}
		supervisor := sonicd.Supervisor{Logger: logger}
		return supervisor.Run(ctx, []sonicd.ModuleRunner{{Name: "embedded_mqtt", Run: mod.Run}})
	}

	var transport mqttserver.Transport
	if cfg.Modules.EmbeddedMQTT.Enabled && cfg.Server.Broker == embeddedBrokerURL(cfg) {
		mod, err := startEmbeddedBroker(ctx, cfg, logger, cancel)
		if err != nil {
			return fmt.Errorf("embedded mqtt: %w", err)
		}
		transport = mod.Inline()
	} else {
		will := ""
		if cfg.Modules.Player.Enabled {
			will = mqttserver.PresenceTopic(cfg.Server.TopicBase, cfg.Modules.Player.NodeID)
		}
		conn, err := mqttserver.Dial(mqttserver.Options{
			BrokerURL: cfg.Server.Broker,
			ClientID:  "sonicd-" + uuid.NewString(),
			Username:  cfg.Server.Auth.User,
			Password:  cfg.Server.Auth.Pass,
			TLSCA:     cfg.Server.TLS.CA,
			TLSCert:   cfg.Server.TLS.Cert,
			TLSKey:    cfg.Server.TLS.Key,
			Timeout:   2 * time.Second,
			Logger:    logger.With(zap.String("component", "mqtt")),
			Will:      will,
		})
		if err != nil {
			return fmt.Errorf("mqtt connection failed: %w", err)
		}
		defer conn.Close()
		transport = conn
	}

	modules, closeModules, err := buildModules(cfg, transport, logger)
	if err != nil {
		return fmt.Errorf("build modules: %w", err)
	}
	defer closeModules()

	supervisor := sonicd.Supervisor{Logger: logger}
	return supervisor.Run(ctx, modules)
}

type overrides struct {
	broker    string
	identity  string
	topicBase string
	logLevel  string
	logFormat string
	logOutput string
	logSource bool
	logUTC    bool
	logColor  bool
}

func applyOverrides(cfg *sonicd.Config, o overrides) {
	if o.broker != "" {
		cfg.Server.Broker = o.broker
	}
	if o.identity != "" {
		cfg.Server.Identity = o.identity
	}
	if o.topicBase != "" {
		cfg.Server.TopicBase = o.topicBase
	}
	if o.logLevel != "" {
		cfg.Server.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Server.LogFormat = o.logFormat
	}
	if o.logOutput != "" {
		cfg.Server.LogOutput = o.logOutput
	}
	if o.logSource {
		cfg.Server.LogSource = true
	}
	if o.logUTC {
		cfg.Server.LogUTC = true
	}
	if o.logColor {
		cfg.Server.LogColor = true
	}
	if cfg.Server.TopicBase == "" {
		cfg.Server.TopicBase = sonic.BaseTopic
	}
	if cfg.Modules.Player.NodeID == "" {
		cfg.Modules.Player.NodeID = sonicd.DefaultNodeID()
	}
	if cfg.Server.Identity == "" {
		cfg.Server.Identity = cfg.Modules.Player.NodeID
	}
	if cfg.Server.Broker == "" && cfg.Modules.EmbeddedMQTT.Enabled {
		cfg.Server.Broker = embeddedBrokerURL(*cfg)
	}
}

// buildModules wires the player node: server registry, subsonic provider,
// playback engine and its sessions. The returned func releases the MPD
// connection.
func buildModules(cfg sonicd.Config, transport mqttserver.Transport, logger *zap.Logger) ([]sonicd.ModuleRunner, func(), error) {
	noop := func() {}
	pc := cfg.Modules.Player
	if !pc.Enabled {
		return nil, noop, errors.New("no modules enabled")
	}

	registry, err := servers.NewRegistry(cfg.Servers...)
	if err != nil {
		return nil, noop, err
	}
	active := pc.ActiveServer
	if active == "" && len(cfg.Servers) == 1 {
		active = cfg.Servers[0].ID
	}
	if active != "" {
		if err := registry.SetActive(active); err != nil {
			return nil, noop, err
		}
	}

	timeout := time.Duration(pc.TimeoutMS) * time.Millisecond
	provider := subsonic.NewProvider(registry, subsonic.Options{Timeout: timeout})

	log := logger.With(zap.String("module", "player"))
	node, err := mqttserver.NewNode(log.With(zap.String("component", "bus")), transport, cfg.Server.TopicBase, pc.NodeID)
	if err != nil {
		return nil, noop, err
	}
	var primary playback.Session = playback.NopSession{}
	var mpdSession *mpd.Session
	closer := noop
	if pc.MPDAddress != "" {
		mpdSession, err = mpd.Dial(log.With(zap.String("session", "mpd")), mpd.Config{Address: pc.MPDAddress, Password: pc.MPDPassword})
		if err != nil {
			return nil, noop, err
		}
		primary = mpdSession
		closer = func() { _ = mpdSession.Close() }
	}

	var observers []playback.Session
	if pc.Mirror {
		mirror, err := mqttmirror.New(log.With(zap.String("session", "mirror")), node)
		if err != nil {
			closer()
			return nil, noop, err
		}
		observers = append(observers, mirror)
	}

	engine := playback.NewEngine(log.With(zap.String("component", "engine")), tee.New(log, primary, observers...))
	mod, err := player.NewModule(log, node, player.Deps{
		Registry: registry,
		Provider: provider,
		Engine:   engine,
	}, player.Config{
		Name:    pc.Name,
		Timeout: timeout,
	})
	if err != nil {
		closer()
		return nil, noop, err
	}

	modules := []sonicd.ModuleRunner{{Name: "player", Run: mod.Run}}
	if mpdSession != nil {
		mpdCfg := mpd.Config{Address: pc.MPDAddress, Password: pc.MPDPassword}
		modules = append(modules, sonicd.ModuleRunner{
			Name: "mpd_watcher",
			Run: func(ctx context.Context) error {
				return mpdSession.WatchAddress(ctx, mpdCfg, engine)
			},
		})
	}
	return modules, closer, nil
}

func enabledModules(cfg sonicd.Config) []string {
	out := []string{}
	if cfg.Modules.EmbeddedMQTT.Enabled {
		out = append(out, "embedded_mqtt")
	}
	if cfg.Modules.Player.Enabled {
		out = append(out, "player")
		if cfg.Modules.Player.MPDAddress != "" {
			out = append(out, "mpd_watcher")
		}
	}
	return out
}

func printResolvedConfig(w io.Writer, cfg sonicd.Config) {
	fmt.Fprintf(w,
		"broker=%s identity=%s topic_base=%s log_level=%s log_format=%s log_output=%s node_id=%s servers=%d active_server=%s mpd=%s mirror=%t\n",
		cfg.Server.Broker,
		cfg.Server.Identity,
		cfg.Server.TopicBase,
		cfg.Server.LogLevel,
		cfg.Server.LogFormat,
		cfg.Server.LogOutput,
		cfg.Modules.Player.NodeID,
		len(cfg.Servers),
		cfg.Modules.Player.ActiveServer,
		cfg.Modules.Player.MPDAddress,
		cfg.Modules.Player.Mirror,
	)
}

func embeddedListen(cfg sonicd.Config) string {
	if cfg.Modules.EmbeddedMQTT.Listen == "" {
		return embeddedmqtt.DefaultListen
	}
	return cfg.Modules.EmbeddedMQTT.Listen
}

func embeddedBrokerURL(cfg sonicd.Config) string {
	return embeddedmqtt.BrokerURL(embeddedListen(cfg), cfg.Modules.EmbeddedMQTT.TLSEnabled())
}

func newEmbeddedBroker(cfg sonicd.Config, logger *zap.Logger) (*embeddedmqtt.Module, error) {
	return embeddedmqtt.NewModule(logger.With(zap.String("module", "embedded_mqtt")), embeddedmqtt.Config{
		Listen:         embeddedListen(cfg),
		AllowAnonymous: cfg.Modules.EmbeddedMQTT.AllowAnonymous,
		Username:       cfg.Modules.EmbeddedMQTT.Username,
		Password:       cfg.Modules.EmbeddedMQTT.Password,
		TLSCA:          cfg.Modules.EmbeddedMQTT.TLSCA,
		TLSCert:        cfg.Modules.EmbeddedMQTT.TLSCert,
		TLSKey:         cfg.Modules.EmbeddedMQTT.TLSKey,
	})
}

// startEmbeddedBroker runs the broker in the background and waits until it
// accepts connections. A broker failure cancels the daemon.
func startEmbeddedBroker(ctx context.Context, cfg sonicd.Config, logger *zap.Logger, cancel context.CancelFunc) (*embeddedmqtt.Module, error) {
	mod, err := newEmbeddedBroker(cfg, logger)
	if err != nil {
		return nil, err
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- mod.Run(ctx)
	}()
	go func() {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("embedded mqtt exited", zap.Error(err))
			cancel()
		}
	}()

	if err := waitForListen(embeddedListen(cfg), 3*time.Second); err != nil {
		return nil, err
	}
	return mod, nil
}

func waitForListen(listen string, timeout time.Duration) error {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return err
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	addr := net.JoinHostPort(host, port)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("embedded mqtt not ready at %s", addr)
}
