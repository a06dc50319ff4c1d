package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/marcelsud/webhook-dispatcher/internal/clock"
	"github.com/marcelsud/webhook-dispatcher/signature"
	flag "github.com/spf13/pflag"
)

/* verify-signature checks a received webhook the way a subscriber would
 * Usage: verify-signature --secret S --signature "sha256=..." --timestamp 1700000000 [--body file]
 * The body is read from stdin when --body is not given.
 * Exit codes: 0 = valid, 1 = invalid, 2 = usage error
 */

func main() {
	secret := flag.StringP("secret", "s", os.Getenv("WEBHOOK_SECRET"), "subscription secret, defaults to $WEBHOOK_SECRET")
	sigHeader := flag.String("signature", "", "X-Signature header value")
	tsHeader := flag.String("timestamp", "", "X-Timestamp header value")
	bodyFile := flag.StringP("body", "b", "", "file holding the raw request body, stdin when empty")
	tolerance := flag.Duration("tolerance", 5*time.Minute, "accepted distance between the timestamp and now")
	sign := flag.Bool("sign", false, "print the headers for the body instead of verifying")
	algorithm := flag.String("algorithm", "sha256", "algorithm used with --sign")
	flag.Parse()

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "a secret is required")
		os.Exit(2)
	}

	body, err := readBody(*bodyFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	c := clock.New()
	if *sign {
		signer, err := signature.NewSigner(*algorithm, c)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		for name, value := range signer.Headers(*secret, body, c.Now()) {
			fmt.Printf("%s: %s\n", name, value)
		}
		return
	}

	if *sigHeader == "" || *tsHeader == "" {
		fmt.Fprintln(os.Stderr, "--signature and --timestamp are required")
		os.Exit(2)
	}

	ok, err := signature.VerifyHeaders(*secret, body, *sigHeader, *tsHeader, *tolerance, c)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid headers: %v\n", err)
		os.Exit(2)
	}
	if !ok {
		fmt.Println("signature INVALID")
		os.Exit(1)
	}
	fmt.Println("signature valid")
}

func readBody(path string) ([]byte, error) {
	if path == "" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return data, nil
}
