package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/raniellyferreira/redis-inmemory-server/client"
)

// defaultDiffFields are compared when --fields is empty
var defaultDiffFields = map[string][]string{
	"replication": {"master_replid", "master_repl_offset"},
	"keyspace":    {"db0"},
}

var infoDiffCmd = &cobra.Command{
	Use:   "info-diff",
	Short: "Compare an INFO section of two servers",
	Long: `Compare fields of one INFO section between a reference server and a system under test.

Comparing the replication section of a master (--ref) and its slave (--sut) checks that the handshake adopted the master's replication id and offset.`,
	Example: "  redis-server info-diff --ref localhost:6379 --sut localhost:6380\n  redis-server info-diff --ref localhost:6379 --sut localhost:6380 --section keyspace",
	PreRunE: bindFlags,
	RunE:    runInfoDiff,
}

func init() {
	key := "ref"
	infoDiffCmd.Flags().String(key, "localhost:6379", WrapString("Reference endpoint (host:port)"))

	key = "sut"
	infoDiffCmd.Flags().String(key, "localhost:6380", WrapString("System under test endpoint (host:port)"))

	key = "section"
	infoDiffCmd.Flags().String(key, "replication", WrapString("INFO section to compare"))

	key = "fields"
	infoDiffCmd.Flags().String(key, "", WrapString("Comma-separated fields to compare. Defaults to master_replid,master_repl_offset for replication and db0 for keyspace; all fields of the reference otherwise"))

	key = "timeout"
	infoDiffCmd.Flags().Duration(key, 5*time.Second, WrapString("Dial and read timeout"))
}

func runInfoDiff(cmd *cobra.Command, _ []string) error {
	var fields []string
	if f := viper.GetString("fields"); f != "" {
		for _, field := range strings.Split(f, ",") {
			fields = append(fields, strings.TrimSpace(field))
		}
	}

	differences, err := infoDiff(cmd.Context(),
		viper.GetString("ref"),
		viper.GetString("sut"),
		viper.GetString("section"),
		fields,
		viper.GetDuration("timeout"),
		cmd.OutOrStdout(),
	)
	if err != nil {
		return err
	}
	if differences > 0 {
		return fmt.Errorf("%d differences found", differences)
	}
	return nil
}

// infoDiff prints the comparison and returns the number of differing fields
func infoDiff(ctx context.Context, ref, sut, section string, fields []string, timeout time.Duration, out io.Writer) (int, error) {
	section = strings.ToLower(section)

	refInfo, err := fetchInfo(ctx, ref, section, timeout)
	if err != nil {
		return 0, fmt.Errorf("failed to get info from reference %s: %w", ref, err)
	}
	sutInfo, err := fetchInfo(ctx, sut, section, timeout)
	if err != nil {
		return 0, fmt.Errorf("failed to get info from system %s: %w", sut, err)
	}

	if len(fields) == 0 {
		fields = defaultDiffFields[section]
	}
	if len(fields) == 0 {
		for field := range refInfo {
			fields = append(fields, field)
		}
		sort.Strings(fields)
	}

	fmt.Fprintf(out, "Comparing INFO %s:\n", section)
	fmt.Fprintf(out, "  Reference: %s\n", ref)
	fmt.Fprintf(out, "  System:    %s\n\n", sut)

	differences := 0
	for _, field := range fields {
		refValue, refOK := refInfo[field]
		sutValue, sutOK := sutInfo[field]

		switch {
		case !refOK && !sutOK:
			fmt.Fprintf(out, "  ⚠️  %s: missing on both\n", field)
		case !sutOK:
			fmt.Fprintf(out, "  ❌ %s: missing in SYSTEM, REF=%s\n", field, refValue)
			differences++
		case !refOK:
			fmt.Fprintf(out, "  ❌ %s: missing in REFERENCE, SUT=%s\n", field, sutValue)
			differences++
		case refValue != sutValue:
			fmt.Fprintf(out, "  ❌ %s differs: REF=%s, SUT=%s\n", field, refValue, sutValue)
			differences++
		default:
			fmt.Fprintf(out, "  ✅ %s: %s\n", field, refValue)
		}
	}

	fmt.Fprintln(out)
	if differences == 0 {
		fmt.Fprintln(out, "SUCCESS: no differences found")
	} else {
		fmt.Fprintf(out, "FAILURE: %d differences found\n", differences)
	}
	return differences, nil
}

// fetchInfo sends INFO section to addr and parses the reply
func fetchInfo(ctx context.Context, addr, section string, timeout time.Duration) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := client.Dial(ctx, addr, client.WithReadTimeout(timeout), client.WithWriteTimeout(timeout))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	reply, err := conn.Do(ctx, "INFO", section)
	if err != nil {
		return nil, err
	}
	if reply.IsError() {
		return nil, reply
	}
	return parseInfo(reply.String()), nil
}

// parseInfo splits an INFO reply into field:value pairs, skipping
// section headers and blank lines
func parseInfo(text string) map[string]string {
	info := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if field, value, ok := strings.Cut(line, ":"); ok {
			info[field] = value
		}
	}
	return info
}
