package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"crm-clients/config"
	"crm-clients/consumer"
	"crm-clients/form"
	"crm-clients/logger"
	"crm-clients/notify"
	"crm-clients/render"
	"crm-clients/utils"
	"crm-clients/validation"
)

type cli struct {
	configPath  string
	cfg         config.Config
	log         *zap.Logger
	flushSentry func()
}

// NewRootCommand returns the crm command tree.
func NewRootCommand() *cobra.Command {
	c := &cli{flushSentry: func() {}}

	root := &cobra.Command{
		Use:           "crm",
		Short:         "Client records with a validated create/edit form",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			c.flushSentry()
			if c.log != nil {
				_ = c.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "YAML config file (env vars override it)")

	root.AddCommand(
		c.serveCmd(),
		c.listCmd(),
		c.addCmd(),
		c.editCmd(),
		c.deleteCmd(),
		c.indexerCmd(),
	)
	return root
}

func (c *cli) init(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	c.cfg = cfg

	c.log = logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "crm-clients",
		Version:     cfg.App.Version,
	})

	if cfg.Sentry.DSN != "" {
		flush, err := utils.InitSentry(cfg.Sentry.DSN, cfg.App.Env, cfg.App.Version)
		if err != nil {
			c.log.Warn("sentry disabled", zap.Error(err))
		} else {
			c.flushSentry = flush
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(logger.ToContext(ctx, c.log))
	return nil
}

// open wires the app with notifications printed to the command's stderr.
func (c *cli) open(cmd *cobra.Command) (*App, error) {
	console := notify.WithLogging(notify.NewConsole(cmd.ErrOrStderr()))
	return Open(cmd.Context(), c.cfg, console)
}

func (c *cli) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the form UI and JSON API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			feed, closeFeed, err := NewFeed(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer closeFeed()

			a, err := Open(ctx, c.cfg, withLogging(feed))
			if err != nil {
				return err
			}
			defer a.Close()

			router, err := NewRouter(a, feed, c.log)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = c.cfg.Server.Addr
			}
			return Serve(ctx, addr, router)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [query]",
		Short: "List clients, optionally filtered by a search query",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			return render.Text{}.Render(cmd.OutOrStdout(), a.Form.Search(query))
		},
	}
}

type clientFlags struct {
	name, email, phone, clientType string
}

func (f *clientFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, validation.FieldName, "", "full name (letters and spaces, 3+)")
	cmd.Flags().StringVar(&f.email, validation.FieldEmail, "", "email address")
	cmd.Flags().StringVar(&f.phone, validation.FieldPhone, "", "phone (digits, spaces, dashes; 7-15)")
	cmd.Flags().StringVar(&f.clientType, form.FieldType, "", "client type: regular, nuevo or vip")
}

// apply sets every changed flag on the form. Unchanged flags keep the staged value.
func (f *clientFlags) apply(cmd *cobra.Command, ctrl *form.Controller) error {
	values := map[string]string{
		validation.FieldName:  f.name,
		validation.FieldEmail: f.email,
		validation.FieldPhone: f.phone,
	}
	for _, field := range validation.Fields {
		if cmd.Flags().Changed(field) {
			ctrl.SetField(field, values[field])
		}
	}
	if cmd.Flags().Changed(form.FieldType) && !ctrl.SetField(form.FieldType, f.clientType) {
		return fmt.Errorf("unknown client type %q", f.clientType)
	}
	return nil
}

func submit(ctx context.Context, ctrl *form.Controller) error {
	if !ctrl.CanSubmit() {
		var invalid []string
		for _, field := range validation.Fields {
			if !ctrl.Valid(field) {
				invalid = append(invalid, field)
			}
		}
		return fmt.Errorf("%w: %s", form.ErrSubmitDisabled, strings.Join(invalid, ", "))
	}
	return ctrl.Submit(ctx)
}

func (c *cli) addCmd() *cobra.Command {
	var flags clientFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := flags.apply(cmd, a.Form); err != nil {
				return err
			}
			return submit(cmd.Context(), a.Form)
		},
	}
	flags.bind(cmd)
	return cmd
}

func (c *cli) editCmd() *cobra.Command {
	var flags clientFlags
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a client; only the given flags change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Form.BeginEdit(id); err != nil {
				return fmt.Errorf("client %d: %w", id, err)
			}
			if err := flags.apply(cmd, a.Form); err != nil {
				return err
			}
			return submit(cmd.Context(), a.Form)
		},
	}
	flags.bind(cmd)
	return cmd
}

func (c *cli) deleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a client after confirmation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			confirm := promptConfirmer(cmd.InOrStdin(), cmd.OutOrStdout())
			if yes {
				confirm = form.ConfirmFunc(func(string) bool { return true })
			}

			deleted, err := a.Form.Delete(cmd.Context(), id, confirm)
			if err != nil {
				return err
			}
			if !deleted {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func (c *cli) indexerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "indexer",
		Short: "Mirror client events from Kafka into Elasticsearch",
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.Kafka.Broker == "" || c.cfg.Elasticsearch.URL == "" {
				return errors.New("indexer needs KAFKA_BROKER and ELASTICSEARCH_URL")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			es, err := utils.NewElasticsearchClient(c.cfg.Elasticsearch.URL)
			if err != nil {
				return err
			}
			defer es.Close()

			cons := consumer.NewClientConsumer(consumer.Options{
				Broker: c.cfg.Kafka.Broker,
				Topic:  c.cfg.Kafka.Topic,
				Group:  c.cfg.Kafka.Group,
				Index:  c.cfg.Elasticsearch.Index,
			}, es)
			defer cons.Close()

			return cons.Run(ctx)
		},
	}
}

// promptConfirmer asks on out and accepts "y" or "yes" from in.
func promptConfirmer(in io.Reader, out io.Writer) form.Confirmer {
	return form.ConfirmFunc(func(prompt string) bool {
		fmt.Fprintf(out, "%s [y/N] ", prompt)
		line, _ := bufio.NewReader(in).ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		default:
			return false
		}
	})
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 0)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid client id %q", raw)
	}
	return uint(id), nil
}
