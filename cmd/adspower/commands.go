package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/entrhq/adspower/pkg/daemon"
	"github.com/entrhq/adspower/pkg/lifecycle"
	"github.com/entrhq/adspower/pkg/profile"
)

type statusOutput struct {
	URL    string `json:"url"`
	Online bool   `json:"online"`
	Error  string `json:"error,omitempty"`
}

func (a *app) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check whether the daemon answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := statusOutput{URL: a.client.BaseURL(), Online: true}
			probeErr := a.client.Probe(cmd.Context())
			if probeErr != nil {
				out.Online = false
				out.Error = probeErr.Error()
			}

			text := fmt.Sprintf("daemon at %s is online", out.URL)
			if !out.Online {
				text = fmt.Sprintf("daemon at %s is offline: %s", out.URL, out.Error)
			}
			if err := a.print(out, text); err != nil {
				return err
			}
			if probeErr != nil {
				return daemon.ErrDaemonUnreachable
			}
			return nil
		},
	}
}

func (a *app) newWaitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wait",
		Short: "Wait until the daemon is online",
		Long: `Poll the daemon status endpoint until it answers, using the startup
policy from the configuration (30 probes one second apart, then a 5 second
settle by default). Fails when the daemon never comes online.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.client.WaitOnline(cmd.Context(), daemon.WaitPolicyFromConfig(a.cfg)); err != nil {
				return err
			}
			return a.print(statusOutput{URL: a.client.BaseURL(), Online: true},
				fmt.Sprintf("daemon at %s is online", a.client.BaseURL()))
		},
	}
}

type profileOutput struct {
	ID string `json:"id"`
}

func (a *app) newCreateCmd() *cobra.Command {
	var groupID, browserVersion string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a profile and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := profile.ConfigFrom(a.cfg)
			if groupID != "" {
				cfg.GroupID = groupID
			}
			if browserVersion != "" {
				cfg.BrowserVersion = browserVersion
			}

			id, err := a.registry.Create(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return a.print(profileOutput{ID: id.String()}, id.String())
		},
	}
	cmd.Flags().StringVar(&groupID, "group", "", "Group to create the profile in")
	cmd.Flags().StringVar(&browserVersion, "browser-version", "", "Browser kernel version")
	return cmd
}

func (a *app) newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <profile-id>",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := profile.ID(args[0])
			if err := a.registry.Delete(cmd.Context(), id); err != nil {
				return err
			}
			return a.print(profileOutput{ID: id.String()}, fmt.Sprintf("deleted %s", id))
		},
	}
}

type endpointOutput struct {
	ID              string `json:"id"`
	DebuggerAddress string `json:"debugger_address"`
	WebSocketURL    string `json:"websocket_url,omitempty"`
	DebugPort       string `json:"debug_port,omitempty"`
	WebDriverPath   string `json:"webdriver,omitempty"`
}

func (a *app) newStartCmd() *cobra.Command {
	var headless bool

	cmd := &cobra.Command{
		Use:   "start <profile-id>",
		Short: "Start a profile's browser and print its debugger address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("headless") {
				headless = a.cfg.Headless
			}
			ctrl, cleanup := a.controller()
			defer cleanup()

			ep, err := ctrl.Start(cmd.Context(), profile.ID(args[0]), headless)
			if err != nil {
				return err
			}
			return a.print(endpointOutput{
				ID:              ep.ProfileID.String(),
				DebuggerAddress: ep.DebuggerAddress,
				WebSocketURL:    ep.WebSocketURL,
				DebugPort:       ep.DebugPort,
				WebDriverPath:   ep.WebDriverPath,
			}, ep.DebuggerAddress)
		},
	}
	cmd.Flags().BoolVar(&headless, "headless", false, "Start without a window (defaults to the config value)")
	return cmd
}

func (a *app) newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <profile-id>",
		Short: "Stop a profile's browser",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, cleanup := a.controller()
			defer cleanup()

			id := profile.ID(args[0])
			if err := ctrl.Stop(cmd.Context(), id); err != nil {
				return err
			}
			return a.print(profileOutput{ID: id.String()}, fmt.Sprintf("stopped %s", id))
		},
	}
}

type checkOutput struct {
	ID     string `json:"id"`
	Active bool   `json:"active"`
}

func (a *app) newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <profile-id>",
		Short: "Report whether a profile's browser is running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, cleanup := a.controller()
			defer cleanup()

			id := profile.ID(args[0])
			active := ctrl.Check(cmd.Context(), id)
			text := "inactive"
			if active {
				text = "active"
			}
			return a.print(checkOutput{ID: id.String(), Active: active}, text)
		},
	}
}

type pageOutput struct {
	URL string `json:"url"`
	lifecycle.Outcome[string]
}

func (a *app) newHTMLCmd() *cobra.Command {
	var (
		asText   bool
		parallel int
	)

	cmd := &cobra.Command{
		Use:   "html <url>...",
		Short: "Fetch pages through throwaway profiles",
		Long: `Fetch every URL in its own freshly created profile. Each run creates a
profile, starts its browser, loads the page, then releases the session,
stops the browser and deletes the profile, even when loading failed.

Examples:
  adspower html https://example.com
  adspower html --text --parallel 2 https://example.com https://example.org`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, urls []string) error {
			if parallel < 1 {
				return fmt.Errorf("--parallel must be at least 1, got %d", parallel)
			}
			ctx := cmd.Context()

			ctrl, cleanup := a.controller()
			defer cleanup()

			orch := lifecycle.New(a.registry, ctrl,
				lifecycle.WithHeadless(a.cfg.Headless),
				lifecycle.WithProfileConfig(profile.ConfigFrom(a.cfg)),
				lifecycle.WithLogger(a.logger.With("lifecycle")),
				lifecycle.WithMetrics(a.metrics),
			)

			results := make([]pageOutput, len(urls))
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(parallel)
			for i, url := range urls {
				i, url := i, url
				g.Go(func() error {
					// Runs never return errors to the group; one failed page
					// must not cancel the others.
					if asText {
						results[i] = pageOutput{URL: url, Outcome: orch.Text(gctx, url)}
					} else {
						results[i] = pageOutput{URL: url, Outcome: orch.HTML(gctx, url)}
					}
					return nil
				})
			}
			_ = g.Wait()

			return a.printPages(results)
		},
	}
	cmd.Flags().BoolVar(&asText, "text", false, "Print readable text instead of HTML")
	cmd.Flags().IntVarP(&parallel, "parallel", "j", 1, "Number of profiles to run at once")
	return cmd
}

func (a *app) printPages(results []pageOutput) error {
	var failed []string
	for _, r := range results {
		if !r.OK() {
			failed = append(failed, r.URL)
		}
	}

	if a.format == outputJSON {
		if err := a.print(results, ""); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if len(results) > 1 {
				fmt.Fprintf(a.stdout, "==> %s <==\n", r.URL)
			}
			if r.OK() {
				fmt.Fprintln(a.stdout, r.Value)
				continue
			}
			fmt.Fprintf(a.stderr, "%s: %s\n", r.URL, r.Status)
			if r.ProfileID != "" {
				fmt.Fprintf(a.stderr, "%s: profile %s was left behind\n", r.URL, r.ProfileID)
			}
			for _, s := range r.Suppressed {
				fmt.Fprintf(a.stderr, "%s: cleanup: %v\n", r.URL, s)
			}
		}
	}

	if len(failed) > 0 {
		return errors.New("failed to fetch " + strings.Join(failed, ", "))
	}
	return nil
}
