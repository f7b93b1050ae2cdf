package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"
	"github.com/umputun/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"tasklist/app/notify"
	"tasklist/app/store"
	"tasklist/app/web"
)

var opts struct {
	Listen string `short:"l" long:"listen" env:"LISTEN" default:":5000" description:"listen address"`

	DB struct {
		Driver   string `long:"driver" env:"DRIVER" default:"mysql" choice:"mysql" choice:"sqlite" description:"database driver"`
		Host     string `long:"host" env:"HOST" default:"mysql-service" description:"database host"`
		User     string `long:"user" env:"USER" default:"root" description:"database user"`
		Password string `long:"password" env:"PASSWORD" default:"password" description:"database password"`
		Name     string `long:"name" env:"NAME" default:"taskdb" description:"database name"`
		Port     int    `long:"port" env:"PORT" default:"3306" description:"database port"`
		Path     string `long:"path" env:"PATH" default:"tasklist.db" description:"sqlite database file"`
		Attempts int    `long:"attempts" env:"ATTEMPTS" default:"5" description:"initial connection attempts"`
	} `group:"db" namespace:"db" env-namespace:"DB"`

	Seed string `long:"seed" env:"SEED_FILE" description:"YAML file with tasks to load into an empty database"`

	Notify struct {
		Webhooks []string      `long:"webhook" env:"WEBHOOK" description:"webhook destination(s) for task events" env-delim:","`
		Timeout  time.Duration `long:"timeout" env:"TIMEOUT" default:"5s" description:"notification timeout"`
	} `group:"notify" namespace:"notify" env-namespace:"NOTIFY"`

	Log struct {
		Enabled         bool   `long:"enabled" env:"ENABLED" description:"enable logging to file"`
		Filename        string `long:"file" env:"FILE" default:"tasklist.log" description:"log file"`
		MaxSize         int    `long:"max-size" env:"MAX_SIZE" default:"100" description:"max log size, MB"`
		MaxAge          int    `long:"max-age" env:"MAX_AGE" default:"0" description:"max log age, days"`
		MaxBackups      int    `long:"max-backups" env:"MAX_BACKUPS" default:"7" description:"max log backups"`
		EnabledCompress bool   `long:"enabled-compress" env:"ENABLED_COMPRESS" description:"enable compression of rotated logs"`
	} `group:"log" namespace:"log" env-namespace:"LOG"`

	Dbg bool `long:"dbg" env:"DEBUG" description:"debug mode"`
}

var revision = "unknown"

func main() {
	fmt.Printf("tasklist %s\n", revision)

	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(2)
	}
	setupLogs()

	defer func() {
		if x := recover(); x != nil {
			log.Printf("[WARN] run time panic:\n%v", x)
			panic(x)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	signals(cancel) // handle SIGQUIT and SIGTERM

	if err := run(ctx); err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
}

func run(ctx context.Context) error {
	connector := store.NewConnector(makeDBConfig())
	if err := initStore(ctx, connector); err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	cfg := web.Config{
		Connect: func(ctx context.Context) (web.Store, error) { return connector.Connect(ctx) },
		Version: revision,
	}
	if svc := makeNotifier(); svc != nil {
		log.Printf("[INFO] task notifications enabled for %d destination(s)", len(opts.Notify.Webhooks))
		cfg.Notifier = svc
	}

	srv, err := web.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create web server: %w", err)
	}
	return srv.Run(ctx, opts.Listen)
}

// initStore ensures the schema exists and applies the optional seed file.
// The initial connection is retried with backoff, the database may still be
// coming up when the service starts.
func initStore(ctx context.Context, connector *store.Connector) error {
	rptr := repeater.New(&strategy.Backoff{Repeats: opts.DB.Attempts, Duration: time.Second, Factor: 2, Jitter: true})
	return rptr.Do(ctx, func() error {
		conn, err := connector.Connect(ctx)
		if err != nil {
			log.Printf("[WARN] can't connect to database: %v", err)
			return err
		}
		defer func() {
			if closeErr := conn.Close(); closeErr != nil {
				log.Printf("[WARN] failed to close connection: %v", closeErr)
			}
		}()

		if err := conn.EnsureSchema(ctx); err != nil {
			return err
		}
		return applySeed(ctx, conn)
	})
}

// applySeed loads the seed file and inserts its tasks when the table is empty
func applySeed(ctx context.Context, conn *store.Conn) error {
	if opts.Seed == "" {
		return nil
	}
	seed, err := store.LoadSeed(opts.Seed)
	if err != nil {
		return fmt.Errorf("failed to load seed file: %w", err)
	}
	n, err := store.ApplySeed(ctx, conn, seed)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Printf("[INFO] seeded %d tasks from %s", n, opts.Seed)
	}
	return nil
}

func makeDBConfig() store.Config {
	return store.Config{
		Driver:   opts.DB.Driver,
		Host:     opts.DB.Host,
		User:     opts.DB.User,
		Password: opts.DB.Password,
		Name:     opts.DB.Name,
		Port:     opts.DB.Port,
		Path:     opts.DB.Path,
	}
}

func makeNotifier() *notify.Service {
	return notify.NewService(opts.Notify.Webhooks, opts.Notify.Timeout)
}

// setupLogs configures lgr, returns the log writer for tests
func setupLogs() io.Writer {
	logOpts := []log.Option{log.Msec, log.LevelBraces}
	if opts.Dbg {
		logOpts = []log.Option{log.Debug, log.CallerFile, log.CallerFunc, log.Msec, log.LevelBraces}
	}

	if !opts.Log.Enabled {
		log.Setup(logOpts...)
		return os.Stdout
	}

	fileWriter := &lumberjack.Logger{
		Filename:   opts.Log.Filename,
		MaxSize:    opts.Log.MaxSize,
		MaxBackups: opts.Log.MaxBackups,
		MaxAge:     opts.Log.MaxAge,
		Compress:   opts.Log.EnabledCompress,
	}
	logOpts = append(logOpts, log.Out(io.MultiWriter(os.Stdout, fileWriter)))
	log.Setup(logOpts...)
	return fileWriter
}

func signals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	go func() {
		stacktrace := make([]byte, 8192)
		for sig := range sigChan {
			if sig == syscall.SIGQUIT { // catch SIGQUIT and print stack traces
				length := runtime.Stack(stacktrace, true)
				fmt.Println(string(stacktrace[:length]))
				continue
			}
			cancel() // terminate on SIGTERM
		}
	}()
	signal.Notify(sigChan, syscall.SIGQUIT, syscall.SIGTERM)
}
