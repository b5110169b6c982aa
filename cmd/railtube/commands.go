package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/steelcutops/railtube/logger"
	"github.com/steelcutops/railtube/railtube/doctor"
	"github.com/steelcutops/railtube/railtube/fetch"
	"github.com/steelcutops/railtube/railtube/host"
	"github.com/steelcutops/railtube/railtube/manifest"
	"github.com/steelcutops/railtube/railtube/prompt"
	"github.com/steelcutops/railtube/railtube/reconciler"
)

type globalFlags struct {
	ConfigPath         string
	Debug              bool
	LogFileName        string
	SudoPasswordPrompt bool
}

// app carries what every subcommand needs once the root has set up.
type app struct {
	flags    globalFlags
	settings settings
	log      logger.Logger
	closer   func() error
}

func newRootCommand(version string) *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "railtube",
		Short:         "Apply a declarative package manifest to this machine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closer != nil {
				return a.closer()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.flags.ConfigPath, "config", "", "settings file (default "+defaultConfigPath()+")")
	rootCmd.PersistentFlags().BoolVar(&a.flags.Debug, "debug", false, "Enable debug log level")
	rootCmd.PersistentFlags().StringVar(&a.flags.LogFileName, "log", "", "Log file name (default "+logger.DefaultFile+")")
	rootCmd.PersistentFlags().BoolVar(&a.flags.SudoPasswordPrompt, "sudo-password", false, "Prompt for sudo password")

	rootCmd.AddCommand(newApplyCommand(a))
	rootCmd.AddCommand(newRunCommand(a))
	rootCmd.AddCommand(newDoctorCommand(a))
	rootCmd.AddCommand(newExportCommand(a))
	rootCmd.AddCommand(newVersionCommand(version))

	return rootCmd
}

func (a *app) setup(cmd *cobra.Command) error {
	path, explicit := a.flags.ConfigPath, a.flags.ConfigPath != ""
	if !explicit {
		path = defaultConfigPath()
	}
	s, err := readSettings(path, explicit)
	if err != nil {
		return fmt.Errorf("read settings %s: %w", path, err)
	}
	if a.flags.LogFileName != "" {
		s.LogFile = a.flags.LogFileName
	}
	if a.flags.Debug {
		s.LogLevel = "debug"
	}
	if a.flags.SudoPasswordPrompt {
		s.SudoPrompt = true
	}
	a.settings = s

	log, closer := logger.New(s.LogFile, s.LogLevel)
	a.log = log.With("command", cmd.Name())
	a.closer = closer.Close
	return nil
}

func (a *app) host(cmd *cobra.Command) (*host.Host, error) {
	options := []host.HostOption{
		host.WithLogger(a.log),
		host.WithHTTPTimeout(a.settings.HTTPTimeout),
		host.WithOutput(cmd.OutOrStdout()),
		host.WithPrompter(prompt.NewTerminalPrompter(cmd.InOrStdin(), cmd.OutOrStdout())),
	}
	if !a.settings.Sudo {
		options = append(options, host.WithNoSudo(true))
	}
	if a.settings.SudoPrompt {
		password, err := prompt.ReadPassword(cmd.ErrOrStderr(), "Enter sudo password: ")
		if err != nil {
			return nil, err
		}
		options = append(options, host.WithSudoPassword(password))
	}
	return host.NewHost(options...), nil
}

func (a *app) load(cmd *cobra.Command, h *host.Host, source string) (*manifest.Manifest, error) {
	a.log.Info("Loading manifest", "source", source)
	m, err := manifest.Load(cmd.Context(), h.Fetcher, source)
	if err != nil {
		a.log.Error("Failed to load manifest", "source", source, "error", err)
		return nil, err
	}
	return m, nil
}

// sourceFlag adds the required --source flag: a local path or http(s) URL.
func sourceFlag(cmd *cobra.Command, source *string) {
	cmd.Flags().StringVarP(source, "source", "s", "", "Manifest path or URL")
	_ = cmd.MarkFlagRequired("source")
}

func newApplyCommand(a *app) *cobra.Command {
	var (
		source string
		dryRun bool
		yes    bool
		only   []string
	)
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Install everything the manifest declares",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			selector, err := reconciler.ParseSelector(only)
			if err != nil {
				return err
			}
			mode := reconciler.ModeFromFlags(dryRun, yes)

			h, err := a.host(cmd)
			if err != nil {
				return err
			}
			m, err := a.load(cmd, h, source)
			if err != nil {
				return err
			}

			a.log.Info("Applying manifest", "source", source, "mode", mode.String())
			summary, applyErr := h.Reconciler().Apply(cmd.Context(), m, reconciler.Options{Mode: mode, Only: selector})
			summary.Print(cmd.OutOrStdout())
			if applyErr != nil {
				a.log.Error("Apply finished with errors", "error", applyErr)
			}
			return applyErr
		},
	}
	sourceFlag(cmd, &source)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without changing anything")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	cmd.Flags().StringSliceVar(&only, "only", nil, "Only process these sections (comma separated)")
	return cmd
}

func newRunCommand(a *app) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Run a named script from the manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.host(cmd)
			if err != nil {
				return err
			}
			m, err := a.load(cmd, h, source)
			if err != nil {
				return err
			}
			return h.ScriptRunner().Run(cmd.Context(), m, args[0], fetch.IsRemote(source))
		},
	}
	sourceFlag(cmd, &source)
	return cmd
}

var errDrift = errors.New("drift detected")

func newDoctorCommand(a *app) *cobra.Command {
	var (
		source string
		strict bool
	)
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Compare the manifest with what is installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.host(cmd)
			if err != nil {
				return err
			}
			m, err := a.load(cmd, h, source)
			if err != nil {
				return err
			}
			report := doctor.Check(cmd.Context(), m, h.Backends())
			report.Print(cmd.OutOrStdout(), source)
			if !strict {
				return nil
			}
			if err := report.Err(); err != nil {
				return err
			}
			if !report.Clean() {
				return errDrift
			}
			return nil
		},
	}
	sourceFlag(cmd, &source)
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when drift is found")
	return cmd
}

func newExportCommand(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the installed packages out as a manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.host(cmd)
			if err != nil {
				return err
			}
			file, err := os.Create(output)
			if err != nil {
				return err
			}
			if _, err := h.Exporter().Write(cmd.Context(), file); err != nil {
				file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Environment exported to %s\n", output)
			a.log.Info("Exported environment", "output", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "exported-env.toml", "File to write")
	return cmd
}

func newVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "railtube %s\n", version)
		},
	}
}
