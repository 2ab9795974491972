package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aweris/lcas"
)

var rootCmd = &cobra.Command{
	Use:           "lcas",
	Short:         "Link-based content-addressable store",
	Long:          "CLI for entering files and directories into a local content-addressed cache, realizing them as links and syncing trees with OCI registries.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ~/.config/lcas/config.yaml)")
	rootCmd.PersistentFlags().String("cache-dir", "", "cache directory (default: ~/.local/share/lcas)")
	rootCmd.PersistentFlags().String("algorithm", "", "digest algorithm: sha1, sha256 or blake3")
	rootCmd.PersistentFlags().Int("concurrency", 0, "parallel workers per directory level")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")

	viper.BindPFlag("cache_dir", rootCmd.PersistentFlags().Lookup("cache-dir"))
	viper.BindPFlag("algorithm", rootCmd.PersistentFlags().Lookup("algorithm"))
	viper.BindPFlag("concurrency", rootCmd.PersistentFlags().Lookup("concurrency"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("LCAS")
	viper.AutomaticEnv()
	viper.SetDefault("cache_dir", defaultCacheDir())
	viper.SetDefault("algorithm", lcas.AlgorithmSHA1)
	viper.SetDefault("concurrency", runtime.NumCPU())
	viper.SetDefault("log_level", "warn")

	viper.ReadInConfig()
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "lcas")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "lcas")
	}
	return ".lcas"
}

func defaultCacheDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "lcas")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "lcas")
	}
	return ".lcas"
}

// newLogger writes human-readable logs to stderr so stdout stays clean for
// hashes and listings.
func newLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(viper.GetString("log_level"))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encoder := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.TimeEncoderOfLayout("15:04:05.000"),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
	})
	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), zap.NewAtomicLevelAt(level))
	return zap.New(core), nil
}

// openStore opens the store described by the current configuration. The
// returned close func also flushes the logger.
func openStore() (*lcas.Store, func() error, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, nil, err
	}

	s, err := lcas.Open(
		lcas.WithCacheDir(viper.GetString("cache_dir")),
		lcas.WithAlgorithm(viper.GetString("algorithm")),
		lcas.WithConcurrency(viper.GetInt("concurrency")),
		lcas.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, err
	}

	closeFn := func() error {
		err := s.Close()
		logger.Sync()
		return err
	}
	return s, closeFn, nil
}

// withStore runs fn against a freshly opened store and closes it afterwards.
func withStore(fn func(s *lcas.Store) error) (err error) {
	s, closeFn, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeFn(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(s)
}
