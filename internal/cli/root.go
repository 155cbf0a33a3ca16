package cli

import (
	"strings"

	"github.com/hatlonely/dbq/cfg"
	"github.com/hatlonely/dbq/pojo"
	"github.com/hatlonely/dbq/security"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// RootOptions 所有子命令共用的参数
type RootOptions struct {
	Config     string
	Entity     string
	Groups     []string
	NoSecurity bool
	Dialect    string
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "dbq",
		Short: "dbq compiles and runs entity queries",
		Long: `dbq compiles query fragments against declaratively configured entities.

A fragment has the form [select <fields>] [where <predicate>] [order by <fields>] [limit(<page>,<count>)],
fields are referenced by name and may traverse relationships, e.g. "select name, dept.name where dept.name = 'IT'".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Config == "" {
				return errors.New("--config is required")
			}
			if opts.Entity == "" {
				return errors.New("--entity is required")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "config file (yaml|json|toml|ini)")
	cmd.PersistentFlags().StringVarP(&opts.Entity, "entity", "e", "", "entity name")
	cmd.PersistentFlags().StringSliceVar(&opts.Groups, "principal-groups", nil, "groups of the caller for security checks")
	cmd.PersistentFlags().BoolVar(&opts.NoSecurity, "no-security", false, "disable security checks")
	cmd.PersistentFlags().StringVar(&opts.Dialect, "dialect", "", "compile for this dialect without opening connections")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))

	return cmd
}

func (o *RootOptions) load() (*pojo.Options, error) {
	var options pojo.Options
	if err := cfg.Load(o.Config, &options); err != nil {
		return nil, err
	}
	if o.NoSecurity {
		options.DisableSecurity = true
	}
	return &options, nil
}

func (o *RootOptions) principal() security.Principal {
	if len(o.Groups) == 0 {
		return nil
	}
	return security.Groups(o.Groups)
}

// splitParams :name=value 形式的参数绑定命名参数，其余按顺序绑定 ?
func splitParams(args []string) ([]any, map[string]any) {
	var params []any
	named := map[string]any{}
	for _, a := range args {
		if strings.HasPrefix(a, ":") {
			if k, v, ok := strings.Cut(a[1:], "="); ok {
				named[k] = v
				continue
			}
		}
		params = append(params, a)
	}
	return params, named
}
