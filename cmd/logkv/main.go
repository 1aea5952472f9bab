package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"code.cloudfoundry.org/bytefmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yonwoo9/go-logkv"
)

const configDesc = "path to a YAML configuration file"

type app struct {
	configPath string
	dir        string
	config     *config
	logger     *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	c := &cobra.Command{
		Use:          "logkv",
		Short:        "Inspect and modify a logkv store",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				a.logger.Sync()
			}
		},
	}
	c.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", configDesc)
	c.PersistentFlags().StringVarP(&a.dir, "dir", "d", "", "store directory, overrides the config file")

	c.AddCommand(
		&cobra.Command{
			Use:   "put <key> <value>",
			Short: "Store a value",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withEngine(func(db *logkv.Engine, _ logkv.RecoveryStats) error {
					return db.Put(args[0], []byte(args[1]))
				})
			},
		},
		&cobra.Command{
			Use:   "put-stream <key> [file]",
			Short: "Store the contents of a file, or stdin, as a streamed value",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				src := cmd.InOrStdin()
				if len(args) == 2 && args[1] != "-" {
					f, err := os.Open(args[1])
					if err != nil {
						return err
					}
					defer f.Close()
					src = f
				}
				return a.withEngine(func(db *logkv.Engine, _ logkv.RecoveryStats) error {
					return db.PutStream(args[0], src)
				})
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print a value",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withEngine(func(db *logkv.Engine, _ logkv.RecoveryStats) error {
					value, err := db.Get(args[0])
					if err != nil {
						return err
					}
					if value == nil {
						return fmt.Errorf("key %q not found", args[0])
					}
					_, err = cmd.OutOrStdout().Write(value)
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "get-stream <key> [file]",
			Short: "Stream a value to a file or stdout",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withEngine(func(db *logkv.Engine, _ logkv.RecoveryStats) error {
					vr, err := db.GetStream(args[0])
					if err != nil {
						return err
					}
					if vr == nil {
						return fmt.Errorf("key %q not found", args[0])
					}
					defer vr.Close()

					dst := cmd.OutOrStdout()
					if len(args) == 2 && args[1] != "-" {
						f, err := os.Create(args[1])
						if err != nil {
							return err
						}
						defer f.Close()
						dst = f
					}
					n, err := io.Copy(dst, vr)
					if err != nil {
						return err
					}
					a.logger.Info("streamed value", zap.String("key", args[0]), zap.String("size", bytefmt.ByteSize(uint64(n))))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:     "delete <key>",
			Aliases: []string{"rm"},
			Short:   "Delete a key",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withEngine(func(db *logkv.Engine, _ logkv.RecoveryStats) error {
					return db.Delete(args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "keys",
			Short: "List live keys with their record offsets",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withEngine(func(db *logkv.Engine, _ logkv.RecoveryStats) error {
					index, err := db.IndexSnapshot()
					if err != nil {
						return err
					}
					keys := make([]string, 0, len(index))
					for k := range index {
						keys = append(keys, k)
					}
					sort.Strings(keys)
					for _, k := range keys {
						fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", k, index[k])
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Replay the log and report what was found",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withEngine(func(db *logkv.Engine, stats logkv.RecoveryStats) error {
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "path:       %s\n", db.Path())
					fmt.Fprintf(out, "size:       %s\n", bytefmt.ByteSize(uint64(stats.Size)))
					fmt.Fprintf(out, "records:    %d\n", stats.Records)
					fmt.Fprintf(out, "tombstones: %d\n", stats.Tombstones)
					fmt.Fprintf(out, "live keys:  %d\n", stats.Live)
					if stats.Corrupt {
						fmt.Fprintf(out, "corrupt at: %d (%s)\n", stats.End, stats.Reason)
						fmt.Fprintf(out, "truncated:  %v\n", stats.Truncated)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "backup <file>",
			Short: "Copy the log file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withEngine(func(db *logkv.Engine, _ logkv.RecoveryStats) error {
					return db.Backup(args[0])
				})
			},
		},
	)
	return c
}

func (a *app) load() error {
	a.config = defaultConfig()
	if a.configPath != "" {
		data, err := os.ReadFile(a.configPath)
		if err != nil {
			return fmt.Errorf("failed to read configuration file: %w", err)
		}
		if a.config, err = parseConfig(data); err != nil {
			return err
		}
	}
	if a.dir != "" {
		a.config.Dir = a.dir
	}

	logger, err := a.config.newLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.logger = logger
	return nil
}

// withEngine opens and recovers the store, runs fn and closes the store.
func (a *app) withEngine(fn func(*logkv.Engine, logkv.RecoveryStats) error) (err error) {
	db, err := logkv.Open(a.config.Dir, a.config.options(a.logger)...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); err == nil {
			err = cerr
		}
	}()

	stats, err := db.Recover()
	if err != nil {
		return err
	}
	return fn(db, stats)
}
