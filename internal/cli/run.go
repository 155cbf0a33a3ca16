package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hatlonely/dbq/meta"
	"github.com/hatlonely/dbq/pojo"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <fragment> [params...] [:name=value...]",
		Short: "Execute a fragment against the configured schema and print every row",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), rootOpts, args[0], args[1:], cmd.OutOrStdout())
		},
	}
}

func runRun(ctx context.Context, opts *RootOptions, fragment string, args []string, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Dialect != "" {
		return errors.New("--dialect only applies to compile")
	}
	options, err := opts.load()
	if err != nil {
		return err
	}
	db, err := pojo.NewDBWithOptions(options, meta.NewRegistry())
	if err != nil {
		return err
	}
	defer db.Close()

	params, named := splitParams(args)
	cur, err := opts.table(db, fragment, params, named).Cursor(ctx)
	if err != nil {
		return err
	}

	columns := append([]string(nil), cur.Columns()...)
	sort.Strings(columns)
	n := 0
	for cur.Next() {
		n++
		row := cur.Row()
		pairs := make([]string, 0, len(columns))
		for _, c := range columns {
			pairs = append(pairs, fmt.Sprintf("%s=%v", c, format(row[c])))
		}
		fmt.Fprintln(w, strings.Join(pairs, " "))
	}
	fmt.Fprintf(w, "(%d rows)\n", n)
	return nil
}

func format(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
