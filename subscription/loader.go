package subscription

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/marcelsud/webhook-dispatcher/payload"
	"gopkg.in/yaml.v3"
)

/* Loader reads subscription definitions from subscriptions.yaml
 * Secrets may reference environment variables as ${NAME}
 */

// File represents the structure of subscriptions.yaml
type File struct {
	Subscriptions []Config `yaml:"subscriptions"`
}

// Config represents a single subscription in the YAML file
type Config struct {
	ID                   string         `yaml:"id"`
	Name                 string         `yaml:"name"`
	URL                  string         `yaml:"url"`
	Secret               string         `yaml:"secret"`
	Events               []string       `yaml:"events"`
	Status               string         `yaml:"status"`
	Method               string         `yaml:"method"`
	Format               string         `yaml:"format"`
	TimeoutSeconds       int            `yaml:"timeout_seconds"`
	RetryCount           *int           `yaml:"retry_count"` // Optional: override global default
	RetryDelaySeconds    int            `yaml:"retry_delay_seconds"`
	VerifyTLS            *bool          `yaml:"verify_tls"` // Default: true
	CustomHeaders        []HeaderConfig `yaml:"custom_headers"`
	ActiveWindow         *WindowConfig  `yaml:"active_window"`
	BatchSize            int            `yaml:"batch_size"`
	BatchIntervalSeconds int            `yaml:"batch_interval_seconds"`
}

type HeaderConfig struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

type WindowConfig struct {
	Days     []string `yaml:"days"`
	Start    string   `yaml:"start"`
	End      string   `yaml:"end"`
	TimeZone string   `yaml:"timezone"`
}

// Loader holds the loaded subscriptions
type Loader struct {
	defaultRetryCount int
	subs              map[string]Subscription
}

// NewLoader creates a loader applying defaultRetryCount where a subscription sets none
func NewLoader(defaultRetryCount int) *Loader {
	return &Loader{
		defaultRetryCount: defaultRetryCount,
		subs:              make(map[string]Subscription),
	}
}

// Load reads and parses the subscriptions file
func (l *Loader) Load(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("reading subscriptions file: %w", err)
	}
	return l.Parse(data)
}

// Parse decodes and validates subscriptions YAML
func (l *Loader) Parse(data []byte) error {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing subscriptions YAML: %w", err)
	}

	now := time.Now()
	for _, sc := range file.Subscriptions {
		sub, err := sc.toSubscription(l.defaultRetryCount)
		if err != nil {
			return fmt.Errorf("converting subscription %s: %w", sc.ID, err)
		}
		if err := sub.Validate(); err != nil {
			return fmt.Errorf("validating subscription: %w", err)
		}
		if _, dup := l.subs[sub.ID]; dup {
			return fmt.Errorf("duplicate subscription id: %s", sub.ID)
		}
		sub.CreatedAt = now
		sub.UpdatedAt = now
		l.subs[sub.ID] = sub
	}

	return nil
}

func (sc Config) toSubscription(defaultRetryCount int) (Subscription, error) {
	retryCount := defaultRetryCount
	if sc.RetryCount != nil {
		retryCount = *sc.RetryCount
	}

	verifyTLS := true
	if sc.VerifyTLS != nil {
		verifyTLS = *sc.VerifyTLS
	}

	headers := make([]Header, 0, len(sc.CustomHeaders))
	for _, h := range sc.CustomHeaders {
		headers = append(headers, Header{Name: h.Name, Value: os.ExpandEnv(h.Value)})
	}

	sub := Subscription{
		ID:                   sc.ID,
		Name:                 sc.Name,
		URL:                  sc.URL,
		Secret:               os.ExpandEnv(sc.Secret),
		Events:               sc.Events,
		Status:               NewStatus(sc.Status),
		Method:               NewMethod(sc.Method),
		Format:               payload.NewFormat(sc.Format),
		TimeoutSeconds:       sc.TimeoutSeconds,
		RetryCount:           retryCount,
		RetryDelaySeconds:    sc.RetryDelaySeconds,
		VerifyTLS:            verifyTLS,
		CustomHeaders:        headers,
		BatchSize:            sc.BatchSize,
		BatchIntervalSeconds: sc.BatchIntervalSeconds,
	}

	if sc.ActiveWindow != nil {
		days := make([]time.Weekday, 0, len(sc.ActiveWindow.Days))
		for _, d := range sc.ActiveWindow.Days {
			day, err := ParseWeekday(d)
			if err != nil {
				return Subscription{}, err
			}
			days = append(days, day)
		}
		sub.Window = &ActiveWindow{
			Days:     days,
			Start:    sc.ActiveWindow.Start,
			End:      sc.ActiveWindow.End,
			TimeZone: sc.ActiveWindow.TimeZone,
		}
	}

	return sub, nil
}

// Get retrieves a subscription by its ID
func (l *Loader) Get(id string) (Subscription, error) {
	sub, exists := l.subs[id]
	if !exists {
		return Subscription{}, ErrNotFound
	}
	return sub, nil
}

// List returns all loaded subscriptions ordered by ID
func (l *Loader) List() []Subscription {
	subs := make([]Subscription, 0, len(l.subs))
	for _, sub := range l.subs {
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
	return subs
}

// Seed saves every loaded subscription into w
func (l *Loader) Seed(ctx context.Context, w Writer) error {
	for _, sub := range l.List() {
		if err := w.Save(ctx, sub); err != nil {
			return fmt.Errorf("seeding subscription %s: %w", sub.ID, err)
		}
	}
	return nil
}
