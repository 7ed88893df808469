// Package cmd holds the command line interface of the amusement pipeline.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/maastricht-university/amusement-pipeline/config"
	"github.com/maastricht-university/amusement-pipeline/storage"
)

// flagKeys maps command line flags onto config keys. A flag only overrides
// the config when it is set.
var flagKeys = map[string]string{
	"log-level":  "pipeline.log_level",
	"log-format": "pipeline.log_format",
	"db":         "database.path",
	"addr":       "server.addr",
	"amqp-url":   "messaging.amqp_url",
	"sample-log": "logging.sample_log",
	"outputs":    "paths.outputs",
}

type app struct {
	cfgFile string
	cfg     *config.Root
	log     *logrus.Logger
}

// NewRootCmd builds a fresh command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "amusement-pipeline",
		Short:         "Score viewer amusement from face landmarks and audio while videos play",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default config/$CONFIG_ENV/config.yaml, then config.yaml)")
	pf.String("log-level", "", "debug, info, warn or error")
	pf.String("log-format", "", "text or json")
	pf.String("db", "", "sqlite database path")

	root.AddCommand(
		newRunCmd(a),
		newSeedCmd(a),
		newVideosCmd(a),
		newInspectCmd(a),
		newReportCmd(a),
		newMigrateCmd(a),
		newConfigCmd(a),
	)
	return root
}

// Execute runs the command line with os.Args.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "error:", err)
	}
	return err
}

func (a *app) init(cmd *cobra.Command) error {
	var opts []config.Option
	if a.cfgFile != "" {
		opts = append(opts, config.WithFile(a.cfgFile))
	}
	opts = append(opts, config.WithBinder(func(v *viper.Viper) error {
		return bindFlags(v, cmd.Flags())
	}))
	c, err := config.Load(opts...)
	if err != nil {
		return err
	}
	log, err := newLogger(c, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.cfg, a.log = c, log
	return nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var errs []error
	for name, key := range flagKeys {
		if f := fs.Lookup(name); f != nil && f.Changed {
			errs = append(errs, v.BindPFlag(key, f))
		}
	}
	return errors.Join(errs...)
}

func newLogger(c *config.Root, w io.Writer) (*logrus.Logger, error) {
	l := logrus.New()
	l.SetOutput(w)
	lvl, err := logrus.ParseLevel(c.Pipeline.LogLvl)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	l.SetLevel(lvl)
	if strings.EqualFold(c.Pipeline.LogFormat, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: w != os.Stderr})
	}
	return l, nil
}

func (a *app) openStore() (*storage.Store, error) {
	st, err := storage.Open(a.cfg.Database.Path,
		storage.RequireApproval(a.cfg.Database.RequireApproval),
		storage.WithLogger(a.log),
	)
	if err != nil {
		return nil, err
	}
	if err := st.MigrateUp(); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}
