package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mikey-austin/sonic_utopia/internal/adapters/clock"
	"github.com/mikey-austin/sonic_utopia/internal/adapters/config"
	"github.com/mikey-austin/sonic_utopia/internal/adapters/idgen"
	"github.com/mikey-austin/sonic_utopia/internal/adapters/mqtt"
	"github.com/mikey-austin/sonic_utopia/internal/adapters/output"
	"github.com/mikey-austin/sonic_utopia/internal/adapters/state"
	"github.com/mikey-austin/sonic_utopia/internal/core"
	"github.com/mikey-austin/sonic_utopia/internal/subsonic"
	"github.com/mikey-austin/sonic_utopia/pkg/sonic"
)

type app struct {
	service core.Service
	printer output.Printer
	timeout time.Duration
	broker  *lazyBroker
}

func main() {
	root := &cobra.Command{
		Use:           "sonic",
		Short:         "Subsonic music CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var (
		configPath string
		broker     string
		topicBase  string
		identity   string
		timeout    time.Duration
		jsonOut    bool
		tlsCA      string
		tlsCert    string
		tlsKey     string
		userOpt    string
		passOpt    string
	)

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $XDG_CONFIG_HOME/sonic/config.toml)")
	root.PersistentFlags().StringVarP(&broker, "broker", "b", "", "MQTT broker URL")
	root.PersistentFlags().StringVar(&topicBase, "topic-base", sonic.BaseTopic, "MQTT topic base")
	root.PersistentFlags().StringVarP(&identity, "identity", "i", "", "controller identity")
	root.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 10*time.Second, "command timeout")
	root.PersistentFlags().BoolVarP(&jsonOut, "json", "j", false, "output json")
	root.PersistentFlags().StringVar(&tlsCA, "tls-ca", "", "TLS CA path")
	root.PersistentFlags().StringVar(&tlsCert, "tls-cert", "", "TLS cert path")
	root.PersistentFlags().StringVar(&tlsKey, "tls-key", "", "TLS key path")
	root.PersistentFlags().StringVar(&userOpt, "user", "", "MQTT username")
	root.PersistentFlags().StringVar(&passOpt, "pass", "", "MQTT password")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var (
			cfg config.Config
			err error
		)
		if configPath != "" {
			cfg, err = config.LoadFile(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return core.WrapError(core.ExitUsage, "load config", err)
		}
		identity = defaultIdentity(identity, cfg.Identity)
		if broker == "" {
			broker = cfg.Broker
		}
		if topicBase == sonic.BaseTopic && cfg.TopicBase != "" {
			topicBase = cfg.TopicBase
		}

		stateStore, err := state.NewStore()
		if err != nil {
			return err
		}

		coreCfg := core.Config{
			Broker:    broker,
			Identity:  identity,
			TopicBase: topicBase,
			PageSize:  cfg.PageSize,
			Servers:   cfg.Servers,
			Aliases:   cfg.Aliases,
			Defaults: core.Defaults{
				Server: cfg.Defaults.Server,
				Player: cfg.Defaults.Player,
			},
		}

		registry, err := core.BindServers(coreCfg, stateStore)
		if err != nil {
			return err
		}

		lazy := &lazyBroker{opts: mqtt.Options{
			BrokerURL: broker,
			ClientID:  "sonic-" + uuid.NewString(),
			Username:  userOpt,
			Password:  passOpt,
			TLSCA:     tlsCA,
			TLSCert:   tlsCert,
			TLSKey:    tlsKey,
			TopicBase: topicBase,
			Timeout:   timeout,
		}}

		service := core.Service{
			Broker:   lazy,
			Resolver: core.Resolver{Presence: lazy, Config: coreCfg},
			Clock:    clock.Clock{},
			IDGen:    idgen.Generator{},
			State:    stateStore,
			Config:   coreCfg,
			Registry: registry,
			Provider: subsonic.NewProvider(registry, subsonic.Options{Timeout: timeout}),
		}

		var printer output.Printer
		if jsonOut {
			printer = output.JSONPrinter{}
		} else {
			printer = output.HumanPrinter{}
		}

		cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, &app{
			service: service,
			printer: printer,
			timeout: timeout,
			broker:  lazy,
		}))
		return nil
	}
	root.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if app := fromContext(cmd); app != nil {
			app.broker.Close()
		}
	}

	root.AddCommand(serversCommand())
	root.AddCommand(pingCommand())
	root.AddCommand(albumsCommand())
	root.AddCommand(artistsCommand())
	root.AddCommand(playlistsCommand())
	root.AddCommand(searchCommand())
	root.AddCommand(albumCommand())
	root.AddCommand(artistCommand())
	root.AddCommand(playlistCommand())
	root.AddCommand(songCommand())
	root.AddCommand(rateCommand())
	root.AddCommand(starCommand(true))
	root.AddCommand(starCommand(false))
	root.AddCommand(playersCommand())
	root.AddCommand(statusCommand())
	root.AddCommand(playCommand())
	root.AddCommand(pauseCommand())
	root.AddCommand(toggleCommand())
	root.AddCommand(nextCommand())
	root.AddCommand(prevCommand())
	root.AddCommand(queueCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(core.ExitCode(err))
	}
}

type appKey struct{}

func fromContext(cmd *cobra.Command) *app {
	val := cmd.Context().Value(appKey{})
	if val == nil {
		return nil
	}
	return val.(*app)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}

// interruptible returns a context cancelled on SIGINT, for watch loops.
func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func defaultIdentity(flagVal string, cfgVal string) string {
	if flagVal != "" {
		return flagVal
	}
	if cfgVal != "" {
		return cfgVal
	}
	usr, _ := user.Current()
	host, _ := os.Hostname()
	if usr != nil && host != "" {
		return fmt.Sprintf("%s@%s", usr.Username, host)
	}
	if host != "" {
		return host
	}
	return "sonic-unknown"
}

func selectorArg(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return ""
}

// lazyBroker connects to MQTT on first use, so catalog commands work without
// a broker.
type lazyBroker struct {
	opts   mqtt.Options
	once   sync.Once
	client *mqtt.Client
	err    error
}

func (b *lazyBroker) connect() (*mqtt.Client, error) {
	b.once.Do(func() {
		if b.opts.BrokerURL == "" {
			b.err = core.WrapError(core.ExitUsage, "broker is required (set --broker or config)", nil)
			return
		}
		b.client, b.err = mqtt.NewClient(b.opts)
		if b.err != nil {
			b.err = core.WrapError(core.ExitRuntime, "connect broker", b.err)
		}
	})
	return b.client, b.err
}

// Close disconnects if a connection was made.
func (b *lazyBroker) Close() {
	if b.client != nil {
		b.client.Close()
	}
}

func (b *lazyBroker) Call(ctx context.Context, nodeID string, cmd sonic.CommandEnvelope, out any) error {
	client, err := b.connect()
	if err != nil {
		return err
	}
	return client.Call(ctx, nodeID, cmd, out)
}

func (b *lazyBroker) ListPresence(ctx context.Context) ([]sonic.Presence, error) {
	client, err := b.connect()
	if err != nil {
		return nil, err
	}
	return client.ListPresence(ctx)
}

func (b *lazyBroker) GetPlayerState(ctx context.Context, nodeID string) (sonic.PlayerState, error) {
	client, err := b.connect()
	if err != nil {
		return sonic.PlayerState{}, err
	}
	return client.GetPlayerState(ctx, nodeID)
}

func (b *lazyBroker) WatchPlayer(ctx context.Context, nodeID string) (<-chan sonic.PlayerState, <-chan sonic.SessionEvent, <-chan error) {
	client, err := b.connect()
	if err != nil {
		errCh := make(chan error, 1)
		errCh <- err
		return nil, nil, errCh
	}
	return client.WatchPlayer(ctx, nodeID)
}
