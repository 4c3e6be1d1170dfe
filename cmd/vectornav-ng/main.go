package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vectornav-ng/internal/config"
	"vectornav-ng/internal/logging"
	"vectornav-ng/internal/web"
)

const envPrefix = "VECTORNAV"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vectornav-ng",
		Short: "Relay a VectorNav IMU/INS to the message bus",
		Long: `vectornav-ng negotiates the serial link to a VectorNav sensor, configures
its binary output and republishes every frame as IMU, Mag, GPS, Odom, Temp and
Pres messages.

Settings come from the YAML file given by --config. The flags below and the
matching VECTORNAV_* environment variables (e.g. VECTORNAV_SERIAL_PORT)
override it; flags win over the environment.`,
		Example:       `  vectornav-ng --config ./vectornav.yaml --port /dev/ttyUSB1 --baud 921600`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := loadConfig(path, cmd)
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().String("config", "./vectornav.yaml", "Path to YAML config")
	cmd.Flags().String("port", "", "serial port path, or \"auto\"")
	cmd.Flags().Int("baud", 0, "target baud rate")
	cmd.Flags().String("listen", "", "HTTP listen address")
	cmd.Flags().String("log-level", "", "debug, info, warn or error")
	return cmd
}

// overrideKeys maps config keys to the flags that may override them.
var overrideKeys = map[string]string{
	"serial.port": "port",
	"serial.baud": "baud",
	"web.listen":  "listen",
	"log.level":   "log-level",
}

// loadConfig reads the YAML file and applies flag and environment
// overrides on top of it. cmd may be nil.
func loadConfig(path string, cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if cmd != nil {
		for key, flag := range overrideKeys {
			_ = v.BindPFlag(key, cmd.Flags().Lookup(flag))
		}
	}

	if v.IsSet("serial.port") {
		cfg.Serial.Port = v.GetString("serial.port")
	}
	if v.IsSet("serial.baud") {
		cfg.Serial.Baud = v.GetInt("serial.baud")
	}
	if v.IsSet("web.listen") {
		cfg.Web.Listen = v.GetString("web.listen")
	}
	if v.IsSet("log.level") {
		cfg.Log.Level = v.GetString("log.level")
	}
	if err := config.DefaultAndValidate(&cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Config) error {
	logs := web.NewLogBuffer(cfg.Log.BufferLines)
	log, closeLog, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Extra:      []io.Writer{logs},
	})
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	log.Info("vectornav-ng starting")
	rt, err := newRuntime(cfg, log, logs)
	if err != nil {
		log.Errorw("runtime init failed", "error", err)
		return err
	}
	err = rt.Run(ctx)
	if cerr := rt.Close(); cerr != nil {
		log.Warnw("shutdown", "error", cerr)
	}
	log.Info("vectornav-ng stopped")
	return err
}
