package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/emiscope/internal/profile"
)

// profileFlags are shared by every command that scores one profile.
type profileFlags struct {
	file   string
	sets   []string
	strict bool
	remote string
}

func (f *profileFlags) register(c *cobra.Command) {
	c.Flags().StringVar(&f.file, "profile", "", "JSON profile overlaid on the configured defaults (- for stdin)")
	c.Flags().StringArrayVar(&f.sets, "set", nil, "Set one attribute, key=value (repeatable)")
	c.Flags().BoolVar(&f.strict, "strict", false, "Validate ranges and reject unknown categorical levels")
	c.Flags().StringVar(&f.remote, "remote", "", "Send the request to a running server, e.g. http://127.0.0.1:8790")
}

// read builds the profile: defaults, then --profile, then each --set in order.
func (f *profileFlags) read(base profile.RawProfile, stdin io.Reader) (profile.RawProfile, error) {
	p := base
	if f.file != "" {
		var (
			data []byte
			err  error
		)
		if f.file == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(f.file) //nolint:gosec // profile path is supplied by the local user
		}
		if err != nil {
			return base, fmt.Errorf("reading profile: %w", err)
		}
		if p, err = profile.ParseJSON(p, data); err != nil {
			return base, err
		}
	}

	for _, s := range f.sets {
		k, v, err := parseAssignment(s)
		if err != nil {
			return base, err
		}
		if err := p.Set(k, v); err != nil {
			return base, err
		}
	}

	// A remote server runs its own validation with the same flag.
	if f.strict && f.remote == "" {
		if err := profile.ValidateProfile(p, true); err != nil {
			return base, err
		}
	}
	return p, nil
}

func parseAssignment(s string) (string, string, error) {
	k, v, ok := strings.Cut(s, "=")
	k = strings.TrimSpace(k)
	if !ok || k == "" {
		return "", "", fmt.Errorf("--set %q: want key=value", s)
	}
	return k, strings.TrimSpace(v), nil
}
