package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nuts-rice/torrust-tracker/api"
	"github.com/nuts-rice/torrust-tracker/auth"
	"github.com/nuts-rice/torrust-tracker/database"
	httpfrontend "github.com/nuts-rice/torrust-tracker/frontend/http"
	udpfrontend "github.com/nuts-rice/torrust-tracker/frontend/udp"
	"github.com/nuts-rice/torrust-tracker/pkg/log"
	"github.com/nuts-rice/torrust-tracker/pkg/stop"
	"github.com/nuts-rice/torrust-tracker/storage/memory"
	"github.com/nuts-rice/torrust-tracker/tracker"
	"github.com/nuts-rice/torrust-tracker/whitelist"

	// Database drivers.
	_ "github.com/nuts-rice/torrust-tracker/database/mysql"
	_ "github.com/nuts-rice/torrust-tracker/database/sqlite"
)

// Run represents the state of a running instance of the tracker.
type Run struct {
	configFilePath string
	sg             *stop.Group

	db         *databaseHandle
	whitelists *whitelist.Manager
	keys       *auth.Manager
}

// databaseHandle adapts a database.Database Close to the stop pattern.
type databaseHandle struct {
	database.Database
}

func (d *databaseHandle) Stop() stop.Result {
	c := make(stop.Channel)
	go func() { c.Done(d.Close()) }()
	return c.Result()
}

// NewRun runs an instance of the tracker.
func NewRun(configFilePath string) (*Run, error) {
	r := &Run{configFilePath: configFilePath}
	return r, r.Start()
}

// Start begins an instance of the tracker.
func (r *Run) Start() error {
	configFile, err := ParseConfigFile(r.configFilePath)
	if err != nil {
		return errors.Wrap(err, "failed to read config")
	}
	cfg := configFile.MainConfigBlock
	coreCfg := cfg.Config.Validate()

	r.sg = stop.NewGroup()

	db, err := database.New(cfg.Database)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	r.db = &databaseHandle{db}

	if err := db.CreateTables(); err != nil {
		return errors.Wrap(err, "failed to create database tables")
	}

	store, err := memory.New(cfg.Storage)
	if err != nil {
		return errors.Wrap(err, "failed to create swarm store")
	}
	log.Info("started swarm store", store)

	manager := tracker.NewManager(coreCfg, store, db)
	if err := manager.LoadTorrentsFromDatabase(); err != nil {
		return err
	}

	whitelistSet := whitelist.New()
	r.whitelists = whitelist.NewManager(db, whitelistSet)
	if err := r.whitelists.LoadWhitelistFromDatabase(); err != nil {
		return errors.Wrap(err, "failed to load whitelist")
	}

	keyRepo := auth.NewRepository()
	r.keys = auth.NewManager(db, keyRepo)
	if err := r.keys.LoadKeysFromDatabase(); err != nil {
		return errors.Wrap(err, "failed to load keys")
	}

	authorizer := whitelist.NewAuthorizer(coreCfg.Listed, whitelistSet)
	authService := auth.NewService(auth.Config{
		Private:             coreCfg.Private,
		CheckKeysExpiration: coreCfg.PrivateMode.CheckKeysExpiration,
	}, keyRepo)

	logic := tracker.NewLogic(
		tracker.NewAnnounceHandler(coreCfg, store, db),
		tracker.NewScrapeHandler(authorizer, store),
		authorizer,
	)

	manager.Start()
	r.sg.Add(manager)
	r.sg.Add(store)

	if cfg.PrometheusAddr != "" {
		log.Info("starting metrics server", log.Fields{"addr": cfg.PrometheusAddr})
		r.sg.AddFunc(startMetricsServer(cfg.PrometheusAddr))
	}

	if cfg.UDPConfig.Addr != "" {
		log.Info("starting UDP tracker", cfg.UDPConfig)
		udpFrontend, err := udpfrontend.NewFrontend(logic, cfg.UDPConfig)
		if err != nil {
			return errors.Wrap(err, "failed to create UDP frontend")
		}
		r.sg.Add(udpFrontend)
	}

	if cfg.HTTPConfig.Addr != "" {
		httpCfg := cfg.HTTPConfig
		httpCfg.OnReverseProxy = coreCfg.Net.OnReverseProxy
		log.Info("starting HTTP tracker", httpCfg)
		httpFrontend, err := httpfrontend.NewFrontend(logic, authService, httpCfg)
		if err != nil {
			return errors.Wrap(err, "failed to create HTTP frontend")
		}
		r.sg.Add(httpFrontend)
	}

	if cfg.APIConfig.Addr != "" {
		log.Info("starting management API", cfg.APIConfig)
		apiServer, err := api.NewServer(store, r.whitelists, r.keys, cfg.APIConfig)
		if err != nil {
			return errors.Wrap(err, "failed to create API server")
		}
		r.sg.Add(apiServer)
	}

	r.sg.AddFunc(r.db.Stop)

	return nil
}

// Reload reloads the whitelist and keys from the database.
func (r *Run) Reload() error {
	if err := r.whitelists.LoadWhitelistFromDatabase(); err != nil {
		return err
	}
	return r.keys.LoadKeysFromDatabase()
}

// Stop shuts down an instance of the tracker.
func (r *Run) Stop() error {
	log.Debug("stopping tracker")
	for _, err := range r.sg.Stop() {
		if err != nil {
			log.Error("error stopping tracker", log.Err(err))
		}
	}
	return nil
}

// startMetricsServer exposes the prometheus registry over HTTP.
func startMetricsServer(addr string) stop.Func {
	srv := &http.Server{
		Addr:    addr,
		Handler: promhttp.Handler(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed while serving prometheus", log.Err(err))
		}
	}()

	return func() stop.Result {
		c := make(stop.Channel)
		go func() { c.Done(srv.Close()) }()
		return c.Result()
	}
}

// RootRunCmdFunc implements a Cobra command that runs an instance of the
// tracker and handles the process's lifetime.
func RootRunCmdFunc(cmd *cobra.Command, _ []string) error {
	configFilePath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}

	r, err := NewRun(configFilePath)
	if err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)

	for {
		select {
		case <-reload:
			log.Info("reloading whitelist and keys")
			if err := r.Reload(); err != nil {
				log.Error("failed to reload", log.Err(err))
			}
		case <-quit:
			return r.Stop()
		}
	}
}

// RootPreRunCmdFunc handles command line flags for the Run command.
func RootPreRunCmdFunc(cmd *cobra.Command, _ []string) error {
	noColors, err := cmd.Flags().GetBool("nocolors")
	if err != nil {
		return err
	}
	if noColors {
		log.SetFormatter(&logrus.TextFormatter{DisableColors: true})
	}

	jsonLog, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	if jsonLog {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	debugLog, err := cmd.Flags().GetBool("debug")
	if err != nil {
		return err
	}
	if debugLog {
		log.Info("enabling debug logging")
		log.SetDebug(true)
	}

	return nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:     "torrust-tracker",
		Short:   "BitTorrent Tracker",
		Long:    "A customizable, multi-protocol BitTorrent Tracker",
		PreRunE: RootPreRunCmdFunc,
		RunE:    RootRunCmdFunc,
	}

	rootCmd.Flags().String("config", "/etc/torrust-tracker.yaml", "location of configuration file")
	rootCmd.Flags().Bool("debug", false, "enable debug logging")
	rootCmd.Flags().Bool("json", false, "enable json logging")
	rootCmd.Flags().Bool("nocolors", false, "disable log coloring")

	if err := rootCmd.Execute(); err != nil {
		log.Fatal("failed when executing root cobra command: " + err.Error())
	}
}
