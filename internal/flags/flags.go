// Package flags extends urfave/cli/v2 with the custom flag types and
// path-expansion helpers cmd/geth's internal/flags package carries:
// a DirectoryFlag that normalizes "~" and environment variables, a
// BigFlag for big.Int-valued flags (hex or decimal), and category
// grouping for --help output.
package flags

import (
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
)

// DirectoryString is a string that Set expands through expandPath, so
// flag values like "~/.aabundler" resolve to an absolute path.
type DirectoryString struct {
	Value string
}

func (d *DirectoryString) String() string {
	return d.Value
}

func (d *DirectoryString) Set(value string) error {
	d.Value = expandPath(value)
	return nil
}

// DirectoryFlag is a cli.Flag for directory-valued settings (data dir,
// keystore dir, log dir).
type DirectoryFlag struct {
	Name string

	Category string
	DefaultText string
	Usage    string

	Required   bool
	Hidden     bool
	HasBeenSet bool

	Value   DirectoryString
	Aliases []string
	EnvVars []string
}

func (f *DirectoryFlag) Names() []string { return append([]string{f.Name}, f.Aliases...) }
func (f *DirectoryFlag) IsSet() bool     { return f.HasBeenSet }
func (f *DirectoryFlag) String() string {
	return fmt.Sprintf("--%s value\t%s (default: %q)", f.Name, f.Usage, f.Value.Value)
}
func (f *DirectoryFlag) IsVisible() bool { return !f.Hidden }
func (f *DirectoryFlag) TakesValue() bool { return true }
func (f *DirectoryFlag) GetUsage() string { return f.Usage }
func (f *DirectoryFlag) GetValue() string { return f.Value.Value }
func (f *DirectoryFlag) GetCategory() string { return f.Category }
func (f *DirectoryFlag) GetEnvVars() []string { return f.EnvVars }
func (f *DirectoryFlag) IsRequired() bool  { return f.Required }
func (f *DirectoryFlag) GetDefaultText() string {
	if f.DefaultText != "" {
		return f.DefaultText
	}
	return f.Value.String()
}

// Apply registers the flag against set.
func (f *DirectoryFlag) Apply(set *flag.FlagSet) error {
	for _, name := range f.EnvVars {
		if v := os.Getenv(name); v != "" {
			f.Value.Value = expandPath(v)
			break
		}
	}
	for _, name := range f.Names() {
		set.Var(&f.Value, name, f.Usage)
	}
	return nil
}

// BigFlag is a cli.Flag whose value is a *big.Int, accepting decimal
// or 0x-hex strings, matching the teacher's own BigFlag (used for gas
// price/fee ceilings throughout cmd/geth).
type BigFlag struct {
	Name string

	Category    string
	DefaultText string
	Usage       string

	Required   bool
	Hidden     bool
	HasBeenSet bool

	Value   *big.Int
	Aliases []string
	EnvVars []string

	defaultValue *big.Int
}

func (f *BigFlag) Names() []string    { return append([]string{f.Name}, f.Aliases...) }
func (f *BigFlag) IsSet() bool        { return f.HasBeenSet }
func (f *BigFlag) String() string {
	return fmt.Sprintf("--%s value\t%s (default: %s)", f.Name, f.Usage, f.GetDefaultText())
}
func (f *BigFlag) IsVisible() bool    { return !f.Hidden }
func (f *BigFlag) TakesValue() bool   { return true }
func (f *BigFlag) GetUsage() string   { return f.Usage }
func (f *BigFlag) GetCategory() string { return f.Category }
func (f *BigFlag) GetEnvVars() []string { return f.EnvVars }
func (f *BigFlag) IsRequired() bool   { return f.Required }
func (f *BigFlag) GetValue() string {
	if f.Value == nil {
		return ""
	}
	return f.Value.String()
}
func (f *BigFlag) GetDefaultText() string {
	if f.DefaultText != "" {
		return f.DefaultText
	}
	if f.defaultValue != nil {
		return f.defaultValue.String()
	}
	return f.GetValue()
}

// Apply registers the flag against set, preserving f.Value as the
// default before any environment/CLI override is applied.
func (f *BigFlag) Apply(set *flag.FlagSet) error {
	if f.Value != nil {
		f.defaultValue = new(big.Int).Set(f.Value)
	}
	for _, name := range f.EnvVars {
		if v := os.Getenv(name); v != "" {
			parsed, err := parseBig(v)
			if err != nil {
				return fmt.Errorf("invalid value %q for flag %s: %w", v, f.Name, err)
			}
			f.Value = parsed
			f.HasBeenSet = true
			break
		}
	}
	if f.Value == nil {
		f.Value = new(big.Int)
	}
	for _, name := range f.Names() {
		set.Var((*bigValue)(f), name, f.Usage)
	}
	return nil
}

type bigValue BigFlag

func (b *bigValue) String() string {
	if b.Value == nil {
		return ""
	}
	return b.Value.String()
}

func (b *bigValue) Set(s string) error {
	v, err := parseBig(s)
	if err != nil {
		return err
	}
	b.Value = v
	b.HasBeenSet = true
	return nil
}

func parseBig(s string) (*big.Int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, ok := new(big.Int).SetString(s[2:], 16)
		if !ok {
			return nil, fmt.Errorf("invalid hex integer %q", s)
		}
		return v, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return v, nil
}

// GlobalBig reads a *big.Int flag value by name off ctx, the BigFlag
// counterpart to cli.Context.Int/String.
func GlobalBig(ctx *cli.Context, name string) *big.Int {
	val := ctx.Generic(name)
	if val == nil {
		return nil
	}
	if b, ok := val.(*bigValue); ok {
		return b.Value
	}
	return nil
}

// HomeDir returns the current user's home directory, or "" if it
// cannot be determined.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// expandPath expands a leading "~" to the user's home directory and
// any "$VAR"/"${VAR}" environment references, then cleans the result.
func expandPath(p string) string {
	if strings.HasPrefix(p, "~/") || p == "~" {
		if home := HomeDir(); home != "" {
			p = home + p[1:]
		}
	}
	return filepath.Clean(os.ExpandEnv(p))
}

// CategoryFlags groups flags by their GetCategory() value, in first-seen
// order, for a custom --help template the way cmd/geth renders
// "ACCOUNT", "NETWORKING", "LOGGING" sections.
func CategoryFlags(flags []cli.Flag) (categories []string, byCategory map[string][]cli.Flag) {
	byCategory = make(map[string][]cli.Flag)
	for _, f := range flags {
		cat := "MISC"
		if cf, ok := f.(interface{ GetCategory() string }); ok && cf.GetCategory() != "" {
			cat = cf.GetCategory()
		}
		if _, ok := byCategory[cat]; !ok {
			categories = append(categories, cat)
		}
		byCategory[cat] = append(byCategory[cat], f)
	}
	return categories, byCategory
}

// AtoiOrZero parses s as an int, returning 0 on any error — used for
// flag defaults sourced from environment variables that must never
// panic the CLI on a malformed override.
func AtoiOrZero(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
