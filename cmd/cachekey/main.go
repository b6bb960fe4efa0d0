// cachekey prints the cache key a derivative request maps to, so operators
// can build request bodies for DELETE /api/cache/burst.
//
//	cachekey --kind image --args w_300,f_webp --id photo1
//	cachekey --kind video --args h_720 --id clip --accept video/webm --json
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"media-cdn/internal/cachekey"
	"media-cdn/internal/mediatypes"
	"media-cdn/internal/modifiers"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(argv []string, stdout io.Writer) error {
	var kind, args, id, accept string
	var asJSON bool

	flagSet := pflag.NewFlagSet("cachekey", pflag.ContinueOnError)
	flagSet.SetOutput(stdout)
	flagSet.StringVar(&kind, "kind", "", "media kind: image, video or audio")
	flagSet.StringVar(&args, "args", "_", "modifier string as it appears in the URL")
	flagSet.StringVar(&id, "id", "", "media id")
	flagSet.StringVar(&accept, "accept", "", "Accept header used for format negotiation")
	flagSet.BoolVar(&asJSON, "json", false, "print a JSON array ready for the burst endpoint")

	if err := flagSet.Parse(argv); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	k, ok := mediatypes.ParseKind(kind)
	if !ok {
		return fmt.Errorf("unknown --kind %q", kind)
	}
	if strings.TrimSpace(id) == "" {
		return errors.New("--id is required")
	}

	set := modifiers.Parse(args).Resolve(string(k), accept)
	key := cachekey.ForRequest(k, id, set)

	if asJSON {
		return json.NewEncoder(stdout).Encode([]string{key})
	}
	_, err := fmt.Fprintln(stdout, key)
	return err
}
