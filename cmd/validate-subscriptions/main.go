package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/marcelsud/webhook-dispatcher/subscription"
)

/* validate-subscriptions checks a subscriptions file without starting the engine
 * Usage: validate-subscriptions [subscriptions.yaml]
 * Exit codes: 0 = valid, 1 = invalid
 */

const defaultRetryCount = 3

func main() {
	file := "subscriptions.yaml"
	if len(os.Args) > 1 {
		file = os.Args[1]
	}

	fmt.Printf("Validating subscriptions file: %s\n", file)
	fmt.Println(strings.Repeat("-", 50))

	loader := subscription.NewLoader(defaultRetryCount)
	if err := loader.Load(file); err != nil {
		fmt.Fprintf(os.Stderr, "VALIDATION FAILED\n\n")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	subs := loader.List()
	fmt.Printf("VALIDATION PASSED\n\n")
	fmt.Printf("Loaded %d subscription(s):\n", len(subs))

	for i, sub := range subs {
		fmt.Printf("\n%d. Subscription: %s (%s)\n", i+1, sub.ID, sub.Name)
		fmt.Printf("   URL:         %s %s\n", sub.Method, sub.URL)
		fmt.Printf("   Events:      %s\n", strings.Join(sub.Events, ", "))
		fmt.Printf("   Status:      %s\n", sub.Status)
		fmt.Printf("   Format:      %s\n", sub.Format)
		fmt.Printf("   Timeout:     %ds\n", sub.TimeoutSeconds)
		fmt.Printf("   Retries:     %d every %ds\n", sub.RetryCount, sub.RetryDelaySeconds)

		if !sub.VerifyTLS {
			fmt.Printf("   TLS:         not verified\n")
		}
		if len(sub.CustomHeaders) > 0 {
			names := make([]string, 0, len(sub.CustomHeaders))
			for _, h := range sub.CustomHeaders {
				names = append(names, h.Name)
			}
			fmt.Printf("   Headers:     %s\n", strings.Join(names, ", "))
		}
		if sub.Window != nil {
			days := make([]string, 0, len(sub.Window.Days))
			for _, d := range sub.Window.Days {
				days = append(days, d.String()[:3])
			}
			tz := sub.Window.TimeZone
			if tz == "" {
				tz = "UTC"
			}
			fmt.Printf("   Window:      %s-%s %s on %s\n", sub.Window.Start, sub.Window.End, tz, strings.Join(days, ","))
		}
		if sub.Batched() {
			fmt.Printf("   Batching:    %d events or %ds\n", sub.BatchSize, sub.BatchIntervalSeconds)
		}
	}

	fmt.Printf("\nAll subscriptions are valid!\n")
}
