package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/nhle/obranotify/internal/api"
	"github.com/nhle/obranotify/internal/credential"
	"github.com/nhle/obranotify/internal/logging"
	"github.com/nhle/obranotify/internal/model"
	"github.com/nhle/obranotify/internal/session"
	"github.com/nhle/obranotify/internal/store"
)

// env holds what every subcommand resolves from flags and config.
type env struct {
	v      *viper.Viper
	cfg    *model.AppConfig
	logger *zap.Logger
}

// NewRootCmd builds the obranotify command tree.
func NewRootCmd() *cobra.Command {
	e := &env{v: viper.New()}

	root := &cobra.Command{
		Use:   "obranotify",
		Short: "Notification center for the construction platform",
		Long: `obranotify keeps a live view of your platform notifications: it
listens on the realtime hub, falls back to polling, filters by your
delivery preferences and plays a sound for what gets through.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if e.logger != nil {
				_ = e.logger.Sync()
			}
		},
	}

	// Global flags
	root.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/obranotify/config.yaml)")
	root.PersistentFlags().String("token", "", "session token to use instead of the stored one")
	root.PersistentFlags().BoolP("verbose", "v", false, "log to stderr at debug level")
	_ = e.v.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = e.v.BindPFlag("token", root.PersistentFlags().Lookup("token"))
	_ = e.v.BindPFlag("verbose", root.PersistentFlags().Lookup("verbose"))

	e.v.SetEnvPrefix("OBRANOTIFY")
	e.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	e.v.AutomaticEnv()

	root.AddCommand(
		newLoginCmd(e),
		newLogoutCmd(e),
		newWatchCmd(e),
		newListCmd(e),
		newSearchCmd(e),
		newReadCmd(e),
		newReadAllCmd(e),
		newDeleteCmd(e),
		newSummaryCmd(e),
		newStatsCmd(e),
		newPrefsCmd(e),
		newSoundCmd(e),
		newConfigCmd(e),
		newPingCmd(e),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func (e *env) configPath() string {
	if p := e.v.GetString("config"); p != "" {
		return p
	}
	return model.DefaultConfigPath()
}

func (e *env) load() error {
	cfg, err := model.LoadConfig(e.configPath())
	if err != nil {
		return err
	}
	e.cfg = cfg

	lc := logging.Config{Level: cfg.Log.Level, File: cfg.Log.File, Development: cfg.Log.Development}
	if e.v.GetBool("verbose") {
		lc = logging.Config{Level: "debug", Development: true}
	}
	logger, err := logging.New(lc)
	if err != nil {
		return err
	}
	e.logger = logger
	return nil
}

// tokens returns the explicit token when one was given, else the vault.
func (e *env) tokens() (api.TokenSource, error) {
	if t := e.v.GetString("token"); t != "" {
		return credential.StaticTokenSource(t), nil
	}
	vault, err := e.vault()
	if err != nil {
		return nil, err
	}
	return &credential.VaultTokenSource{Vault: vault}, nil
}

func (e *env) vault() (*credential.Vault, error) {
	ring, err := credential.Open(model.ConfigDir())
	if err != nil {
		return nil, err
	}
	return credential.NewVault(ring), nil
}

func (e *env) openStore() (*store.SQLiteStore, error) {
	path := e.cfg.Store.Path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}
	return store.NewSQLiteStore(path)
}

// withSession starts a session, runs fn and closes everything. One-shot
// commands run without the realtime hub.
func (e *env) withSession(ctx context.Context, live bool, fn func(ctx context.Context, s *session.Session) error) error {
	tokens, err := e.tokens()
	if err != nil {
		return err
	}
	st, err := e.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	cfg := *e.cfg
	if !live {
		cfg.Realtime.Enabled = false
	}
	sess, err := session.New(session.Deps{
		Config: &cfg,
		Tokens: tokens,
		Store:  st,
		Logger: e.logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sess.Close(context.Background()); cerr != nil {
			e.logger.Warn("closing session", zap.Error(cerr))
		}
	}()

	if err := sess.Start(ctx); err != nil {
		if errors.Is(err, credential.ErrNoSession) || api.IsAuthError(err) {
			return fmt.Errorf("%w; run `obranotify login` first", err)
		}
		return err
	}
	return fn(ctx, sess)
}
