package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/calebstewart/vmm/internal/clone"
	"github.com/calebstewart/vmm/internal/config"
	"github.com/calebstewart/vmm/internal/libvirt"
	"github.com/calebstewart/vmm/internal/menu"
	"github.com/calebstewart/vmm/internal/registry"
	"github.com/calebstewart/vmm/internal/session"
	"github.com/calebstewart/vmm/internal/storage"
)

var (
	version = "dev"
	commit  = "unknown"
)

var (
	configPath string
	socketPath string
	oneShot    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vmm",
	Short: "vmm - Interactive libvirt domain organizer",
	Long: `vmm organizes libvirt domains into folders and labels and drives them
through an interactive fuzzy-finder menu.

Domains keep their organization in a private metadata element, so no
extra state files are needed. Running vmm without a subcommand opens
the menu.`,
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
	RunE:    runMenu,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/vmm/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "libvirt daemon socket path")
	rootCmd.Flags().BoolVar(&oneShot, "one-shot", false, "exit after the first completed action")
	menuCmd.Flags().BoolVar(&oneShot, "one-shot", false, "exit after the first completed action")

	rootCmd.AddCommand(menuCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(testConnCmd)
}

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Open the interactive domain menu",
	Long: `Open the interactive menu: browse domains by folder or label, then
start, stop, save, snapshot, clone, or re-file the selected domain.`,
	RunE: runMenu,
}

// connect dials the libvirt daemon under the command's context so an
// interrupt during a slow dial aborts instead of hanging out the
// socket timeout.
func connect(ctx context.Context, cfg *config.Config) (*libvirt.Client, error) {
	client, err := libvirt.ConnectWithContext(ctx, cfg.SocketPath, cfg.ConnectTimeout())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to libvirt: %w", err)
	}
	return client, nil
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if socketPath != "" {
		cfg.SocketPath = socketPath
	}
	if oneShot {
		cfg.OneShot = true
	}
	return cfg, nil
}

func runMenu(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client, err := connect(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close libvirt connection: %v\n", closeErr)
		}
	}()

	reg, err := registry.Load(client.Libvirt())
	if err != nil {
		return fmt.Errorf("failed to load domains: %w", err)
	}

	volumes := storage.NewManager(client.Libvirt())
	orchestrator := clone.New(client.Libvirt(), volumes, cfg.ClonePolicy)

	sess := session.New(client.Libvirt(), reg, menu.NewFzf(), orchestrator, session.Options{
		OneShot:       cfg.OneShot,
		ViewerCommand: cfg.ViewerCommand,
		EditorCommand: cfg.EditorCommand,
	})

	return sess.Run(cmd.Context())
}

var testConnCmd = &cobra.Command{
	Use:   "test-conn",
	Short: "Test libvirt connection",
	Long:  `Test connectivity to the libvirt daemon and display version information.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Println("Testing libvirt connection...")

		client, err := connect(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close libvirt connection: %v\n", closeErr)
			}
		}()

		fmt.Println("✓ Connected to libvirt daemon")

		if err := client.Ping(); err != nil {
			return fmt.Errorf("connection test failed: %w", err)
		}

		// Get libvirt version
		version, err := client.Libvirt().ConnectGetLibVersion()
		if err != nil {
			return fmt.Errorf("failed to get libvirt version: %w", err)
		}

		// Format version (libvirt returns version as an integer like 8006000 for 8.6.0)
		major := version / 1000000
		minor := (version % 1000000) / 1000
		patch := version % 1000

		fmt.Printf("✓ Libvirt version: %d.%d.%d\n", major, minor, patch)

		// Get hostname
		hostname, err := client.Libvirt().ConnectGetHostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}

		fmt.Printf("✓ Hypervisor hostname: %s\n", hostname)

		// Get connection URI
		uri, err := client.Libvirt().ConnectGetUri()
		if err != nil {
			return fmt.Errorf("failed to get connection URI: %w", err)
		}

		fmt.Printf("✓ Connection URI: %s\n", uri)

		fmt.Println("\nConnection test successful!")
		return nil
	},
}
