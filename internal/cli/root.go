package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	redisserver "github.com/raniellyferreira/redis-inmemory-server"
	"github.com/raniellyferreira/redis-inmemory-server/server"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "redis-server",
		Short: "in-memory Redis-compatible server",
		Long: fmt.Sprintf(`redis-server (v%s)

An in-memory key-value server speaking the Redis protocol, with
master/slave replication bootstrap and Lua scripting.`, redisserver.Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "redis-server v%s (redis_version %s)\n", redisserver.Version, server.RedisVersion)
			if redisserver.GitCommit != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "commit %s\n", redisserver.GitCommit)
			}
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(cliCmd)
	RootCmd.AddCommand(benchCmd)
	RootCmd.AddCommand(infoDiffCmd)
}

// Execute runs the root command and exits non-zero on error
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
