package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CreativeUnicorns/leafprefs"
	"github.com/CreativeUnicorns/leafprefs/bus"
	"github.com/CreativeUnicorns/leafprefs/config"
	"github.com/CreativeUnicorns/leafprefs/host"
)

// openManager builds a manager over the configured storage, without a bus.
func openManager() (*leafprefs.Manager, func(), error) {
	store, err := host.OpenStorage(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}
	m := leafprefs.New(leafprefs.WithStorage(store), leafprefs.WithLogger(logger))
	return m, func() { _ = store.Close() }, nil
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <container> <key>",
		Short: "Print one stored value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, key := args[0], args[1]
			m, closeStore, err := openManager()
			if err != nil {
				return err
			}
			defer closeStore()

			v, ok := m.ValueForKey(cmd.Context(), key, container)
			if !ok {
				return fmt.Errorf("%s: %w in %s", key, leafprefs.ErrNotFound, container)
			}
			printValue(cmd.OutOrStdout(), "", key, v)
			return nil
		},
	}
}

// parseValue reads a command-line value of kind. Colors are "#rrggbb[aa]".
func parseValue(kind leafprefs.Kind, raw string) (leafprefs.Value, error) {
	switch kind {
	case leafprefs.KindString:
		return leafprefs.StringValue(raw), nil
	case leafprefs.KindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return leafprefs.Value{}, fmt.Errorf("%w: %v", leafprefs.ErrNondecodable, err)
		}
		return leafprefs.BoolValue(b), nil
	case leafprefs.KindNumber:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return leafprefs.Value{}, fmt.Errorf("%w: %v", leafprefs.ErrNondecodable, err)
		}
		return leafprefs.NumberValue(f), nil
	case leafprefs.KindColor:
		c, err := leafprefs.ColorFromHex(raw)
		if err != nil {
			return leafprefs.Value{}, err
		}
		return leafprefs.ColorValue(c), nil
	default:
		return leafprefs.Value{}, fmt.Errorf("%w: kind %s cannot be written", leafprefs.ErrNondecodable, kind)
	}
}

func setCmd() *cobra.Command {
	var (
		kindName string
		notify   bool
		busURL   string
	)
	cmd := &cobra.Command{
		Use:   "set <container> <key> <value>",
		Short: "Write one value",
		Long: `Write one value to the store.

With --notify the value is also published on the key's channel, through Redis
or through a running host's WebSocket hub, so leaves observe it.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, key, raw := args[0], args[1], args[2]
			if err := leafprefs.ValidateKey(key); err != nil {
				return err
			}
			if err := leafprefs.ValidateContainer(container); err != nil {
				return err
			}
			kind, err := leafprefs.ParseKind(kindName)
			if err != nil {
				return err
			}
			v, err := parseValue(kind, raw)
			if err != nil {
				return err
			}

			m, closeStore, err := openManager()
			if err != nil {
				return err
			}
			defer closeStore()

			ctx := cmd.Context()
			if err := m.Storage().SetAll(ctx, container, map[string]string{key: v.Encode()}); err != nil {
				return fmt.Errorf("failed to save %s: %w", key, err)
			}
			if notify {
				if err := publishChange(ctx, busURL, key, v.Encode()); err != nil {
					return err
				}
			}
			printSuccess(cmd.OutOrStdout(), fmt.Sprintf("%s/%s = %s", container, key, renderValue(v)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&kindName, "kind", "k", "string", "value kind: string, bool, number or color")
	cmd.Flags().BoolVar(&notify, "notify", false, "publish the change to leaves")
	cmd.Flags().StringVar(&busURL, "bus-url", "", "WebSocket hub of a running host (default derived from server.listen_address)")
	return cmd
}

func publishChange(ctx context.Context, busURL, key, token string) error {
	var b host.ClosableBus
	if cfg.Bus.Backend == config.BusRedis {
		var err error
		if b, err = host.OpenBus(cfg, logger, nil); err != nil {
			return err
		}
	} else {
		if busURL == "" {
			busURL = hubURL(cfg.Server.ListenAddress)
		}
		client, err := bus.Dial(ctx, busURL, logger)
		if err != nil {
			return err
		}
		b = client
	}
	defer b.Close()
	return b.Publish(ctx, key, token)
}

// hubURL turns a listen address such as ":8080" into the local hub URL.
func hubURL(listen string) string {
	if strings.HasPrefix(listen, ":") {
		listen = "localhost" + listen
	}
	return "ws://" + listen + "/api/v1/bus"
}

func dumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <container>",
		Short: "Print every value of a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container := args[0]
			if err := leafprefs.ValidateContainer(container); err != nil {
				return err
			}
			m, closeStore, err := openManager()
			if err != nil {
				return err
			}
			defer closeStore()

			values := m.LoadAll(cmd.Context(), container)
			out := cmd.OutOrStdout()
			printHeader(out, fmt.Sprintf("%s (%d)", container, len(values)))

			keys := make([]string, 0, len(values))
			for k := range values {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				printValue(out, "  ", k, values[k])
			}
			return nil
		},
	}
}
