// Command flowctl queries a counts server: it prints flow trees, snaps
// points to segments and replays hover sequences through a session.
package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"traffic_counts/pkg/client"
	"traffic_counts/pkg/config"
)

type rootOptions struct {
	configPath string
	url        string
	key        string
	timeout    time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:          "flowctl",
		Short:        "Inspect traffic flow trees served by a counts server",
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "config.yaml", "Config file path")
	pf.StringVar(&opts.url, "url", "", "Server base URL (overrides config)")
	pf.StringVar(&opts.key, "key", "", "API key sent as X-API-Key (overrides config)")
	pf.DurationVar(&opts.timeout, "timeout", 0, "Request timeout (overrides config)")

	root.AddCommand(
		newTreeCmd(opts),
		newTraceCmd(opts),
		newNearestCmd(opts),
	)
	return root
}

// newClient resolves the connection settings: config file first, then
// any flags given on the command line.
func (o *rootOptions) newClient(cmd *cobra.Command) (*client.Client, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cc := cfg.Client

	flags := cmd.Flags()
	if flags.Changed("url") {
		cc.URL = o.url
	}
	if flags.Changed("key") {
		cc.APIKey = o.key
	}
	if flags.Changed("timeout") {
		cc.Timeout = o.timeout
	}
	if cc.URL == "" {
		return nil, errors.New("no server URL: set --url or client.url")
	}

	var copts []client.Option
	if cc.APIKey != "" {
		copts = append(copts, client.WithKey(cc.APIKey))
	}
	if cc.Timeout > 0 {
		copts = append(copts, client.WithHTTPClient(&http.Client{Timeout: cc.Timeout}))
	}
	return client.New(cc.URL, copts...), nil
}
