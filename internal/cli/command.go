package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cliCmd = &cobra.Command{
	Use:     "cli <command> [args...]",
	Short:   "Send one command to a server and print the reply",
	Example: "  redis-server cli --addr localhost:6379 SET greeting hello PX 5000\n  redis-server cli INFO replication",
	Args:    cobra.MinimumNArgs(1),
	PreRunE: bindFlags,
	RunE:    runCli,
}

func init() {
	key := "addr"
	cliCmd.Flags().String(key, "localhost:6379", WrapString("Address of the server"))

	key = "timeout"
	cliCmd.Flags().Duration(key, 5*time.Second, WrapString("Dial and read timeout"))
}

func runCli(cmd *cobra.Command, args []string) error {
	rdb := redis.NewClient(&redis.Options{
		Addr:            viper.GetString("addr"),
		Protocol:        2,
		DisableIdentity: true,
		DialTimeout:     viper.GetDuration("timeout"),
		ReadTimeout:     viper.GetDuration("timeout"),
		MaxRetries:      -1,
	})
	defer rdb.Close()

	return sendCommand(cmd.Context(), rdb, args, cmd.OutOrStdout())
}

// sendCommand runs one command and prints the reply the way redis-cli
// does. Error replies are printed; only transport errors are returned.
func sendCommand(ctx context.Context, rdb *redis.Client, args []string, out io.Writer) error {
	cmdArgs := make([]interface{}, len(args))
	for i, arg := range args {
		cmdArgs[i] = arg
	}

	reply, err := rdb.Do(ctx, cmdArgs...).Result()
	switch {
	case errors.Is(err, redis.Nil):
		fmt.Fprintln(out, "(nil)")
		return nil
	case err != nil:
		var replyErr redis.Error
		if errors.As(err, &replyErr) {
			fmt.Fprintf(out, "(error) %s\n", replyErr.Error())
			return nil
		}
		return err
	}

	writeReply(out, reply, "")
	return nil
}

// writeReply prints a decoded reply; nested arrays are indented
func writeReply(out io.Writer, reply interface{}, indent string) {
	switch v := reply.(type) {
	case nil:
		fmt.Fprintln(out, "(nil)")
	case string:
		fmt.Fprintln(out, v)
	case int64:
		fmt.Fprintf(out, "(integer) %d\n", v)
	case []interface{}:
		if len(v) == 0 {
			fmt.Fprintln(out, "(empty array)")
			return
		}
		for i, elem := range v {
			prefix := fmt.Sprintf("%d) ", i+1)
			if i > 0 {
				fmt.Fprint(out, indent)
			}
			fmt.Fprint(out, prefix)
			writeReply(out, elem, indent+strings.Repeat(" ", len(prefix)))
		}
	default:
		fmt.Fprintf(out, "%v\n", v)
	}
}
