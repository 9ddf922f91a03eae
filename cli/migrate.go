package cli

import (
	"socialgraph/config"
	"socialgraph/db"
	"socialgraph/pkg/logger"

	"github.com/spf13/cobra"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := bootstrap(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if err = db.ConnectDB(conf); err != nil {
				return err
			}
			defer func() { _ = db.CloseDB() }()

			if err = db.Migrate(db.ORM); err != nil {
				return err
			}
			logger.Get().Info("schema migrated")
			return nil
		},
	}
}

// bootstrap loads the config and initializes the logger from it
func bootstrap(path string) (*config.ConfigSchema, error) {
	if err := config.LoadConfig(path); err != nil {
		return nil, err
	}
	conf := config.AppConfig
	if err := logger.Init(conf.Logs.Env, conf.Logs.Level); err != nil {
		return nil, err
	}
	return conf, nil
}
