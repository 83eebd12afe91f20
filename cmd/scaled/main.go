package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cuemby/scaled/pkg/catalog"
	"github.com/cuemby/scaled/pkg/config"
	"github.com/cuemby/scaled/pkg/controller"
	"github.com/cuemby/scaled/pkg/kv"
	"github.com/cuemby/scaled/pkg/log"
	"github.com/cuemby/scaled/pkg/metrics"
	"github.com/cuemby/scaled/pkg/profile"
	"github.com/cuemby/scaled/pkg/scaler"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "scaled",
	Short: "scaled - autoscaling control plane for analysis services",
	Long: `scaled keeps a fleet of analysis services scaled to their workload.
It watches the service catalog and the shared work queues, maintains a
scaling profile per service, and reconciles replica targets against the
cluster resource pool through a docker or kubernetes driver.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"scaled version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scaler",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		logLevel, _ := cmd.Flags().GetString("log-level")
		logJSON, _ := cmd.Flags().GetBool("log-json")
		if !cmd.Flags().Changed("log-level") && cfg.Log.Level != "" {
			logLevel = cfg.Log.Level
		}
		log.Init(log.Config{
			Level:      log.Level(logLevel),
			JSONOutput: logJSON || cfg.Log.JSON,
		})
		// Tag every line with this scaler instance
		log.Logger = log.Logger.With().Str("instance", uuid.New().String()).Logger()

		return runScaler(cfg)
	},
}

func runScaler(cfg *config.Config) error {
	store, err := catalog.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	defer store.Close()

	rdb := kv.NewClient(cfg.Redis.Addr, cfg.Redis.DB)
	rdbPersist := kv.NewClient(cfg.Redis.PersistAddr, cfg.Redis.DB)
	defer rdb.Close()
	defer rdbPersist.Close()

	driver := controller.DriverDocker
	opts := controller.Options{
		Logger:    log.WithComponent("controller"),
		Namespace: cfg.Namespace,
		Labels: map[string]string{
			"app":     "assemblyline",
			"section": "service",
		},
		CPUOverallocation:    cfg.Scaler.CPUOverallocation,
		MemoryOverallocation: cfg.Scaler.MemoryOverallocation,
	}
	if cfg.KubernetesConfig != "" {
		log.Info("Loading kubernetes cluster interface on namespace: " + cfg.Namespace)
		driver = controller.DriverKubernetes
		if cfg.ClassificationConfigMap != "" {
			opts.ConfigMounts = append(opts.ConfigMounts, controller.ConfigMount{
				Name:       "classification-config",
				ConfigMap:  cfg.ClassificationConfigMap,
				Key:        cfg.ClassificationKey,
				TargetPath: "/etc/assemblyline/classification.yml",
			})
		}
	} else {
		log.Info("Loading docker cluster interface")
		if cfg.ClassificationHostPath != "" {
			opts.GlobalMounts = append(opts.GlobalMounts,
				[2]string{cfg.ClassificationHostPath, "/etc/assemblyline/classification.yml"})
		}
	}

	ctrl, err := controller.Open(driver, opts)
	if err != nil {
		return fmt.Errorf("failed to open controller: %w", err)
	}

	srv := metrics.Serve(cfg.Metrics.ListenAddr)
	defer srv.Close()

	s := scaler.New(cfg, ctrl, store,
		kv.NewStatusTable(rdb),
		kv.NewNamedQueue(rdbPersist, kv.TimeoutQueueName),
		func(service string) profile.Queue {
			return kv.ServiceQueue(rdb, service)
		},
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("Received signal " + sig.String() + ", shutting down")
		s.Stop()
	}()

	log.Info("Starting scaler")
	s.Run()
	log.Info("Scaler stopped")
	return nil
}
