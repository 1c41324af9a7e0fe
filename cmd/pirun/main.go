package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/anze/pirun/internal/cli"
	"github.com/anze/pirun/internal/config"
)

var (
	verbose bool
	quiet   bool
	noColor bool
	debug   bool

	ctx  *cli.GlobalContext
	once sync.Once
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// a non-zero exit of the chrooted command is a result, not a
		// failure of pirun itself
		if code, ok := cli.ExitCode(err); ok {
			os.Exit(code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pirun",
	Short: "Pirun - run commands inside OS disk images",
	Long: `Pirun attaches partitioned OS disk images (such as Raspberry Pi
images) to loop devices, mounts their boot and root filesystems, and
executes commands inside the mounted tree without booting the image.

It also inspects partition layouts, expands images in place, and
installs compressed image archives.`,
	Version:       "0.1.0",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Update context components with parsed flag values
		var err error
		once.Do(func() {
			var cfg *config.Config
			if cfg, err = config.Load(); err != nil {
				return
			}
			if !term.IsTerminal(int(os.Stderr.Fd())) {
				noColor = true
			}
			*ctx = *cli.NewGlobalContext(cfg, verbose, quiet, noColor, debug)
		})
		return err
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (suppress non-error output)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable color output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug mode (show commands)")

	// Create initial context with default values
	// Will be updated in PersistentPreRunE with parsed flag values
	ctx = cli.NewGlobalContext(config.Default(), false, false, false, false)

	// Register commands
	rootCmd.AddCommand(cli.NewRunCommand(ctx))
	rootCmd.AddCommand(cli.NewMountCommand(ctx))
	rootCmd.AddCommand(cli.NewInfoCommand(ctx))
	rootCmd.AddCommand(cli.NewExpandCommand(ctx))
	rootCmd.AddCommand(cli.NewInstallCommand(ctx))
	rootCmd.AddCommand(cli.NewStatusCommand(ctx))

	// Set up help templates
	rootCmd.SetHelpCommand(&cobra.Command{
		Use:    "no-help",
		Hidden: true,
	})

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
