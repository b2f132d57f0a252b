// Package initcmder provides the init command for initializing a local
// .thinkgate directory in the current working directory.
package initcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/thinkgate/pkg/cliui"
	"github.com/papercomputeco/thinkgate/pkg/config"
	"github.com/papercomputeco/thinkgate/pkg/dotdir"
)

const (
	configFile = "config.toml"

	remoteFetchTimeout = 30 * time.Second
	maxRemoteConfig    = 1 << 20
)

const initLongDesc string = `Initialize a new .thinkgate/ directory in the current working directory.

Creates a local .thinkgate/ directory, which takes precedence over the default
~/.thinkgate/ directory, and writes a config.toml into it.

The --preset flag selects the starting configuration. It is either the name of
a built-in upstream preset (local, ollama, vllm) or an http(s) URL of a
config.toml to fetch. An existing config.toml is never overwritten.

Examples:
  thinkgate init
  thinkgate init --preset ollama
  thinkgate init --preset https://example.com/thinkgate/config.toml`

const initShortDesc string = "Initialize a local .thinkgate/ directory"

type initCommander struct {
	preset string
	out    io.Writer
}

func NewInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&cmder.preset, "preset", "",
		fmt.Sprintf("Preset name (%s) or URL of a config.toml", strings.Join(config.ValidPresetNames(), ", ")))

	return cmd
}

func (c *initCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dotdir.DirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s directory: %w", dotdir.DirName, err)
	}

	path := filepath.Join(dir, configFile)
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(c.out, "  %s Already initialized: %s\n", cliui.SuccessMark, dir)
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking config: %w", err)
	}

	cfg, err := c.resolvePreset(ctx)
	if err != nil {
		return err
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "  %s Initialized %s directory: %s\n", cliui.SuccessMark, dotdir.DirName, dir)
	return nil
}

// resolvePreset returns the config named by --preset.
func (c *initCommander) resolvePreset(ctx context.Context) (*config.Config, error) {
	switch {
	case c.preset == "":
		return config.NewDefaultConfig(), nil
	case strings.HasPrefix(c.preset, "http://"), strings.HasPrefix(c.preset, "https://"):
		var cfg *config.Config
		err := cliui.Step(c.out, "Fetching "+c.preset, func() error {
			var err error
			cfg, err = fetchRemoteConfig(ctx, c.preset)
			return err
		})
		return cfg, err
	default:
		return config.PresetConfig(c.preset)
	}
}

// fetchRemoteConfig downloads and validates a config.toml.
func fetchRemoteConfig(ctx context.Context, url string) (*config.Config, error) {
	ctx, cancel := context.WithTimeout(ctx, remoteFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching remote config: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteConfig))
	if err != nil {
		return nil, fmt.Errorf("reading remote config: %w", err)
	}

	return config.ParseConfigTOML(data)
}
