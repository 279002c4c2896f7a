package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/squarefactory/polcloud-submit/config"
	"github.com/squarefactory/polcloud-submit/driver"
	"github.com/squarefactory/polcloud-submit/fakebackend"
	"github.com/squarefactory/polcloud-submit/polcloud"
	"github.com/squarefactory/polcloud-submit/poll"
)

type flags struct {
	configPath string
	baseURL    string
	spec       string
	pool       string
	nodes      int
	token      string
	deletePool bool
	uploadOnly bool
	template   string
	wallClock  string
	interval   time.Duration
	maxPolls   int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:          "polcloud-submit [xml_file]",
		Short:        "Upload a HemeLB run, get a pool and submit the job",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd, f, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			opts := &driver.Options{
				SpecID:     f.spec,
				PoolID:     f.pool,
				Nodes:      cfg.Submit.Nodes,
				Token:      f.token,
				DeletePool: f.deletePool,
				UploadOnly: f.uploadOnly,
				Template:   cfg.Submit.Template,
				WallClock:  cfg.Submit.WallClock,
				Polling: poll.Options{
					Interval:    cfg.Polling.Interval,
					MaxAttempts: cfg.Polling.MaxAttempts,
					Timeout:     cfg.Polling.Timeout,
				},
			}
			if len(args) > 0 {
				opts.XMLFile = args[0]
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client := polcloud.NewClient(cfg.BaseURL)
			return driver.New(client, cmd.OutOrStdout()).Run(ctx, opts)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.configPath, "config", "", "YAML config file (defaults to $"+config.PathEnv+")")
	fs.StringVar(&f.baseURL, "url", "", "backend base URL (overrides $"+config.BaseURLEnv+")")
	fs.StringVarP(&f.spec, "spec", "s", "", "id of existing job spec")
	fs.StringVarP(&f.pool, "pool", "p", "", "existing pool id")
	fs.IntVarP(&f.nodes, "nodes", "n", 2, "number of requested nodes")
	fs.StringVarP(&f.token, "token", "t", "", "user token")
	fs.BoolVarP(&f.deletePool, "delete-pool", "d", false, "delete pool when job is complete")
	fs.BoolVar(&f.uploadOnly, "upload-only", false, "upload inputs only")
	fs.StringVar(&f.template, "template", "", "job template (default job_template.json)")
	fs.StringVar(&f.wallClock, "wall-clock", "", "wall-clock budget of the job (default 02:00)")
	fs.DurationVar(&f.interval, "interval", 0, "polling interval (default 5s)")
	fs.IntVar(&f.maxPolls, "max-polls", 0, "give up after this many polls, 0 polls forever")
	_ = cmd.MarkFlagRequired("token")

	cmd.AddCommand(newFakeBackendCmd())
	return cmd
}

// applyFlags lets explicitly set flags win over the config file.
func applyFlags(cmd *cobra.Command, f *flags, cfg *config.Config) {
	fs := cmd.Flags()
	if fs.Changed("url") {
		cfg.BaseURL = f.baseURL
	}
	if fs.Changed("nodes") {
		cfg.Submit.Nodes = f.nodes
	}
	if fs.Changed("template") {
		cfg.Submit.Template = f.template
	}
	if fs.Changed("wall-clock") {
		cfg.Submit.WallClock = f.wallClock
	}
	if fs.Changed("interval") {
		cfg.Polling.Interval = f.interval
	}
	if fs.Changed("max-polls") {
		cfg.Polling.MaxAttempts = f.maxPolls
	}
}

func newFakeBackendCmd() *cobra.Command {
	var (
		listen        string
		readyAfter    int
		completeAfter int
	)
	cmd := &cobra.Command{
		Use:   "fake-backend",
		Short: "Serve an in-memory backend for local dry runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend := fakebackend.New()
			backend.ReadyAfter = readyAfter
			backend.CompleteAfter = completeAfter
			backend.Verbose = true

			l, err := net.Listen("tcp", listen)
			if err != nil {
				return err
			}
			srv := &http.Server{Handler: backend.Handler()}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			log.Printf("fake backend listening on %s", l.Addr())
			if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}

	listenAddress := os.Getenv("LISTEN_ADDRESS")
	if len(listenAddress) == 0 {
		listenAddress = ":5000"
	}
	cmd.Flags().StringVar(&listen, "listen", listenAddress, "listen address")
	cmd.Flags().IntVar(&readyAfter, "ready-after", 3, "pool info calls before a pool is ready")
	cmd.Flags().IntVar(&completeAfter, "complete-after", 3, "state calls before a job completes")
	return cmd
}
