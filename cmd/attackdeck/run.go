package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pkt.systems/attackdeck/catalog"
	"pkt.systems/attackdeck/core"
	"pkt.systems/attackdeck/internal/appconfig"
	"pkt.systems/attackdeck/internal/eventbus"
	"pkt.systems/attackdeck/internal/gatewaygrpc"
	"pkt.systems/attackdeck/schema"
	"pkt.systems/pslog"
)

const runOperator schema.UserID = "cli"

type runOptions struct {
	Config   appconfig.Config
	Catalog  *catalog.Catalog
	ToolID   schema.ToolID
	AttackID schema.AttackID
	Params   []string
	Custom   string
	// Local serves cfg.Executor in-process on a private socket instead of
	// dialing the configured gateway.
	Local   bool
	Timeout time.Duration
}

func newRunCmd() *cobra.Command {
	var cfgPath string
	var opts runOptions
	var attack string
	var remote bool
	cmd := &cobra.Command{
		Use:   "run <tool>",
		Short: "Run one tool and stream its output to the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			cat, err := loadCatalog(cfg.CatalogFile, logger)
			if err != nil {
				return err
			}
			opts.Config = cfg
			opts.Catalog = cat
			opts.ToolID = schema.ToolID(args[0])
			opts.AttackID = schema.AttackID(attack)
			opts.Local = !remote

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			status, err := runTool(ctx, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if status == schema.StatusError {
				return fmt.Errorf("%s finished with status %s", opts.ToolID, status)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVarP(&attack, "attack", "a", "", "attack variant (default: first attack of the tool)")
	cmd.Flags().StringArrayVar(&opts.Params, "set", nil, "parameter key=value (repeatable)")
	cmd.Flags().StringVar(&opts.Custom, "custom", "", "custom command line for the custom tool")
	cmd.Flags().BoolVar(&remote, "remote", false, "dial the configured gateway instead of an in-process executor")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "stop the run after this long (0 waits for completion)")
	return cmd
}

// runTool executes one tool in a throwaway workspace and prints routed output
// until the run leaves the running state. Canceling ctx stops the run.
func runTool(ctx context.Context, opts runOptions, out io.Writer) (schema.SessionStatus, error) {
	logger := pslog.Ctx(ctx)
	stateDir, err := os.MkdirTemp("", "attackdeck-run-")
	if err != nil {
		return "", err
	}
	defer func() { _ = os.RemoveAll(stateDir) }()

	gwCfg := toGatewayConfig(opts.Config)
	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServe := context.WithCancel(gctx)
	defer stopServe()
	if opts.Local {
		gwCfg.Network = "unix"
		gwCfg.Address = filepath.Join(stateDir, "gateway.sock")
		listener, err := net.Listen(gwCfg.Network, gwCfg.Address)
		if err != nil {
			return "", err
		}
		server := gatewaygrpc.NewServer(gwCfg, newExecutor(opts.Config.Executor, opts.Catalog))
		g.Go(func() error {
			return server.Serve(serveCtx, listener)
		})
	}

	client, err := gatewaygrpc.Dial(ctx, gwCfg)
	if err != nil {
		stopServe()
		_ = g.Wait()
		return "", err
	}
	defer func() { _ = client.Close() }()

	bus := eventbus.New(logger)
	svcCfg := opts.Config.ServiceConfig()
	svcCfg.StateDir = stateDir
	svc, err := core.NewService(svcCfg, core.ServiceDeps{
		Catalog:   opts.Catalog,
		Gateway:   client,
		EventSink: bus,
		Logger:    logger,
	})
	if err != nil {
		stopServe()
		_ = g.Wait()
		return "", err
	}
	defer svc.Close()

	events, unsubscribe := bus.Subscribe(runOperator)
	defer unsubscribe()

	tabID, err := prepareRun(ctx, svc, opts)
	if err == nil {
		_, err = svc.Execute(ctx, schema.ExecuteRequest{UserID: runOperator, TabID: tabID})
	}
	if err != nil {
		stopServe()
		_ = g.Wait()
		return "", err
	}
	logger.Debug("run started", "tool", opts.ToolID, "tab", tabID)

	var status schema.SessionStatus
	g.Go(func() error {
		defer stopServe()
		defer func() { _ = client.Close() }()
		var timeout <-chan time.Time
		if opts.Timeout > 0 {
			timer := time.NewTimer(opts.Timeout)
			defer timer.Stop()
			timeout = timer.C
		}
		var err error
		status, err = printRun(gctx, svc, tabID, events, timeout, out)
		return err
	})
	if err := g.Wait(); err != nil {
		return status, err
	}
	return status, nil
}

func prepareRun(ctx context.Context, svc core.Service, opts runOptions) (schema.TabID, error) {
	opened, err := svc.OpenTab(ctx, schema.OpenTabRequest{UserID: runOperator})
	if err != nil {
		return "", err
	}
	tabID := opened.Tab.ID
	if _, err := svc.SelectTool(ctx, schema.SelectToolRequest{UserID: runOperator, TabID: tabID, ToolID: opts.ToolID}); err != nil {
		return "", err
	}
	if opts.AttackID != "" {
		if _, err := svc.SelectAttack(ctx, schema.SelectAttackRequest{UserID: runOperator, TabID: tabID, AttackID: opts.AttackID}); err != nil {
			return "", err
		}
	}
	if len(opts.Params) > 0 {
		params, err := schema.ParseParameterAssignments(opts.Params)
		if err != nil {
			return "", err
		}
		if _, err := svc.SetParameters(ctx, schema.SetParametersRequest{UserID: runOperator, TabID: tabID, Parameters: params}); err != nil {
			return "", err
		}
	}
	if strings.TrimSpace(opts.Custom) != "" {
		if _, err := svc.SetCustomCommand(ctx, schema.SetCustomCommandRequest{UserID: runOperator, TabID: tabID, Command: opts.Custom}); err != nil {
			return "", err
		}
	}
	return tabID, nil
}

// printRun writes events for tabID until the run finishes. A canceled ctx or
// a fired timeout stops the run first.
func printRun(ctx context.Context, svc core.Service, tabID schema.TabID, events <-chan eventbus.Event, timeout <-chan time.Time, out io.Writer) (schema.SessionStatus, error) {
	seenRunning := false
	stopping := false
	done := ctx.Done()
	for {
		select {
		case <-done:
			done = nil
			stopping = true
			if _, err := svc.Stop(context.Background(), schema.StopRequest{UserID: runOperator, TabID: tabID}); err != nil && !errors.Is(err, schema.ErrTabNotFound) {
				return "", err
			}
		case <-timeout:
			timeout = nil
			stopping = true
			_, _ = fmt.Fprintln(out, "! timeout reached; stopping")
			if _, err := svc.Stop(context.Background(), schema.StopRequest{UserID: runOperator, TabID: tabID}); err != nil {
				return "", err
			}
		case event, ok := <-events:
			if !ok {
				if stopping {
					return schema.StatusStopped, nil
				}
				return "", errors.New("event stream closed")
			}
			switch event.Type {
			case eventbus.EventOutput:
				if event.Output.TabID != tabID {
					continue
				}
				for _, line := range event.Output.Lines {
					if event.Output.StreamID != "" {
						_, _ = fmt.Fprintf(out, "[%s] %s\n", event.Output.StreamID, line)
						continue
					}
					_, _ = fmt.Fprintln(out, line)
				}
			case eventbus.EventNotification:
				note := event.Notification
				if note.TabID == tabID {
					_, _ = fmt.Fprintf(out, "! %s: %s\n", note.Title, note.Message)
				}
			case eventbus.EventTab:
				if event.Tab.Tab.ID != tabID {
					continue
				}
				status := event.Tab.Tab.Status
				if status == schema.StatusRunning {
					seenRunning = true
					continue
				}
				if seenRunning && status != schema.StatusIdle {
					return status, nil
				}
			}
		}
	}
}
