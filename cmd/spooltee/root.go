package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/containerd/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/lanrat/diskbuf"
)

// settings are the resolved flag, environment and config file values.
type settings struct {
	Dir        string `mapstructure:"dir"`
	Prefix     string `mapstructure:"prefix"`
	AllowTmpfs bool   `mapstructure:"allow-tmpfs"`
	LogLevel   string `mapstructure:"log-level"`
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "spooltee [flags] [OUTPUT...]",
		Short: "Spool stdin to disk and copy it to every OUTPUT",
		Long: `spooltee reads standard input into a temporary spool file and copies it to
each OUTPUT as fast as that output accepts data. "-" names standard output,
which is also the default when no OUTPUT is given.

Every flag can also be set through a SPOOLTEE_ environment variable
(SPOOLTEE_ALLOW_TMPFS=true) or a YAML file passed with --config.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if path := v.GetString("config"); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("reading config %s: %w", path, err)
				}
			}
			return log.SetLevel(v.GetString("log-level"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var s settings
			if err := v.Unmarshal(&s); err != nil {
				return err
			}
			return run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), args, s)
		},
	}

	flags := cmd.Flags()
	flags.String("dir", "", "directory for the spool file (default: chosen automatically)")
	flags.String("prefix", "spooltee_", "spool file name prefix")
	flags.Bool("allow-tmpfs", false, "allow the spool file on a memory-backed filesystem")
	flags.String("log-level", "warn", "log level (trace, debug, info, warn, error)")
	flags.String("config", "", "YAML config file")

	_ = v.BindPFlags(flags)
	v.SetEnvPrefix("SPOOLTEE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return cmd
}

// run spools in to a diskbuf.Writer and copies it to every output. A failing
// output fails the whole run, and the spool file is removed before returning.
func run(ctx context.Context, in io.Reader, stdout io.Writer, outputs []string, s settings) error {
	if len(outputs) == 0 {
		outputs = []string{"-"}
	}

	w := diskbuf.New(ctx, &diskbuf.Config{
		TempFilesDir:     s.Dir,
		FilenamePrefix:   s.Prefix,
		PreferDiskBacked: !s.AllowTmpfs,
	})

	g, gctx := errgroup.WithContext(ctx)
	for _, out := range outputs {
		r, err := w.NewReader()
		if err != nil {
			w.Destroy(err)
			return err
		}
		g.Go(func() error {
			if err := copyTo(gctx, r, out, stdout); err != nil {
				w.Destroy(err)
				return err
			}
			return nil
		})
	}

	// Reading stdin cannot be interrupted, so the spooler is not part of the
	// group: on cancellation the readers give up and we return without it.
	spooled := make(chan error, 1)
	go func() {
		n, err := w.ReadFrom(in)
		if err != nil {
			w.Destroy(err)
			spooled <- err
			return
		}
		log.G(ctx).WithField("bytes", n).Debug("spooltee: input complete")
		spooled <- w.Close()
	}()

	err := g.Wait()
	if err == nil {
		err = <-spooled
	}
	if err != nil {
		w.Destroy(err)
	} else {
		w.Release()
	}

	if werr := w.Wait(context.WithoutCancel(ctx)); err == nil {
		err = werr
	}
	return err
}

func copyTo(ctx context.Context, r *diskbuf.Reader, name string, stdout io.Writer) (err error) {
	dst := stdout
	if name != "-" {
		f, ferr := os.Create(name)
		if ferr != nil {
			return ferr
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		dst = f
	}

	n, err := r.Copy(ctx, dst)
	log.G(ctx).WithFields(log.Fields{"output": name, "bytes": n}).Debug("spooltee: output complete")
	if err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}
