package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Sternrassler/esi-middleware/internal/config"
	"github.com/Sternrassler/esi-middleware/pkg/client"
	"github.com/Sternrassler/esi-middleware/pkg/logging"
	"github.com/spf13/cobra"
)

// getOptions are the flags of the get command.
type getOptions struct {
	version  string
	strategy string
	token    string
	params   []string
}

func newGetCmd(configPath *string) *cobra.Command {
	var opts getOptions

	cmd := &cobra.Command{
		Use:   "get ROUTE",
		Short: "Fetch one ESI route through the pipeline and print the body",
		Example: `  esi-proxy get /status/
  esi-proxy get /markets/10000002/orders/ --param order_type=sell --param page=2
  esi-proxy get /characters/90000001/ --strategy etag --version v5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logging.Setup(cfg.Logging())

			store, closeStore, err := cfg.OpenStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			clientCfg, err := cfg.ClientConfig(store)
			if err != nil {
				return err
			}
			esiClient, err := client.New(clientCfg)
			if err != nil {
				return err
			}

			return runGet(cmd, esiClient, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.version, "version", client.DefaultVersion, "ESI route version")
	cmd.Flags().StringVar(&opts.strategy, "strategy", "", "cache strategy for this request (direct, ttl, etag)")
	cmd.Flags().StringVar(&opts.token, "token", "", "bearer token for authenticated routes")
	cmd.Flags().StringArrayVar(&opts.params, "param", nil, "query parameter as key=value (repeatable)")
	return cmd
}

// runGet performs the request. The body goes to stdout; the status line goes
// to stderr so output can be piped into jq.
func runGet(cmd *cobra.Command, esiClient *client.Client, route string, opts getOptions) error {
	params := url.Values{}
	for _, p := range opts.params {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid --param %q, want key=value", p)
		}
		params.Add(key, value)
	}

	strategy, err := client.ParseStrategy(opts.strategy)
	if err != nil {
		return err
	}

	req := client.NewRequest(route, params)
	req.Version = opts.version
	req.Strategy = strategy
	if opts.token != "" {
		req.Token = client.LiteralToken(opts.token)
	}

	resp, err := esiClient.Do(cmd.Context(), req)
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			out, _ := json.Marshal(apiErr)
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
		}
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "%d %s cache=%s elapsed=%s\n",
		resp.Status, req.URL, cacheHeader(resp.Cached), resp.Elapsed)
	_, err = cmd.OutOrStdout().Write(resp.Body)
	return err
}
