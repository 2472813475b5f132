// Command issuertoken mints an internal JWT that authorizes capability
// token issuance. The signing key comes from the server configuration
// (-k or -c), so the token verifies against a server started the same way.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/richmiles/in-the-event-of-my-death/internal/flagx"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/auth"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/config"
)

func main() {
	args := os.Args[1:]
	cfg := config.LoadConfig(args)

	fs := flag.NewFlagSet("issuertoken", flag.ExitOnError)
	subject := fs.String("s", "operator", "token subject")
	validity := fs.Duration("t", 24*time.Hour, "token validity")
	_ = fs.Parse(flagx.FilterArgs(args, []string{"-s", "-t"}))

	token, err := auth.GenerateToken(*subject, auth.RoleIssuer, []byte(cfg.InternalSigningKey), *validity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "token generation error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
