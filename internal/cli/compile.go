package cli

import (
	"fmt"
	"io"

	"github.com/hatlonely/dbq/compiler"
	"github.com/hatlonely/dbq/dialect"
	"github.com/hatlonely/dbq/meta"
	"github.com/hatlonely/dbq/pojo"
	"github.com/hatlonely/dbq/security"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compile <fragment> [params...]",
		Short: "Print the SQL and parameters compiled from a fragment",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(rootOpts, args[0], args[1:], cmd.OutOrStdout())
		},
	}
}

func runCompile(opts *RootOptions, fragment string, args []string, w io.Writer) error {
	options, err := opts.load()
	if err != nil {
		return err
	}
	params, _ := splitParams(args)

	var compiled *compiler.Compiled
	if opts.Dialect != "" {
		compiled, err = compileOffline(opts, options, fragment, params)
	} else {
		compiled, err = compileOnline(opts, options, fragment, params)
	}
	if err != nil {
		return err
	}
	printCompiled(w, compiled)
	return nil
}

// compileOffline 只用配置中的实体和指定的方言编译，不打开连接
func compileOffline(opts *RootOptions, options *pojo.Options, fragment string, params []any) (*compiler.Compiled, error) {
	d, err := dialect.New(opts.Dialect)
	if err != nil {
		return nil, err
	}
	registry := meta.NewRegistry()
	for _, eo := range options.Entities {
		if _, err := registry.RegisterOptions(eo); err != nil {
			return nil, errors.WithMessagef(err, "register entity %s failed", eo.Name)
		}
	}
	e, err := registry.Entity(opts.Entity)
	if err != nil {
		return nil, err
	}

	ev := security.Disabled()
	if !options.DisableSecurity {
		ev = security.NewEvaluator(opts.principal())
	}
	return compiler.New(d).Select(&compiler.Request{
		Entity:   e,
		Fragment: fragment,
		Params:   params,
		Security: ev,
	})
}

func compileOnline(opts *RootOptions, options *pojo.Options, fragment string, params []any) (*compiler.Compiled, error) {
	db, err := pojo.NewDBWithOptions(options, meta.NewRegistry())
	if err != nil {
		return nil, err
	}
	defer db.Close()

	return opts.table(db, fragment, params, nil).Compile()
}

func (o *RootOptions) table(db *pojo.DB, fragment string, params []any, named map[string]any) *pojo.Table {
	t := db.Table(o.Entity).Where(fragment, params...)
	if p := o.principal(); p != nil {
		t.WithPrincipal(p)
	}
	for k, v := range named {
		t.Set(k, v)
	}
	return t
}

func printCompiled(w io.Writer, compiled *compiler.Compiled) {
	fmt.Fprintln(w, compiled.SQL)
	fmt.Fprintf(w, "params: %v\n", compiled.Params)
	for _, jf := range compiled.JoinFields {
		fmt.Fprintf(w, "join field: %s %s\n", jf.Join.Field, jf.Rest)
	}
}
