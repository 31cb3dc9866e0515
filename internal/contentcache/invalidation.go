package contentcache

import (
	"context"
	"strings"

	"nino/internal/logging"
	"nino/internal/notifybus"
)

// Store bundles the three read-through caches and drives their
// invalidation from the notification bus, per §4.3: each prefix maps to
// exactly one cache, and an identifier-less payload ("request:" with
// nothing after the colon) triggers a full reload of that cache.
type Store struct {
	Settings  *Settings
	Requests  *Requests
	Responses *Responses
}

// NewStore builds the three caches and performs their initial full-table
// scans.
func NewStore(ctx context.Context, settings *Settings, requests *Requests, responses *Responses) (*Store, error) {
	s := &Store{Settings: settings, Requests: requests, Responses: responses}
	if err := s.ReloadAll(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ReloadAll(ctx context.Context) error {
	if err := s.Settings.Reload(ctx); err != nil {
		return err
	}
	if err := s.Requests.Reload(ctx); err != nil {
		return err
	}
	return s.Responses.Reload(ctx)
}

// Watch consumes bus messages and applies them to the matching cache. It
// returns when ch is closed. Unrecognized prefixes are ignored here; the
// isolate pool handles them as message tasks separately since the same bus
// message is broadcast to both consumers.
func (s *Store) Watch(ctx context.Context, ch <-chan notifybus.Message) {
	for msg := range ch {
		if err := s.apply(ctx, msg.Text); err != nil {
			logging.Op().Warn("cache invalidation failed", "payload", msg.Text, "error", err)
		}
	}
}

func (s *Store) apply(ctx context.Context, payload string) error {
	switch {
	case strings.HasPrefix(payload, notifybus.PrefixSetting):
		key := strings.TrimPrefix(payload, notifybus.PrefixSetting)
		if key == "" {
			return s.Settings.Reload(ctx)
		}
		return s.Settings.InvalidateOne(ctx, key)
	case strings.HasPrefix(payload, notifybus.PrefixRequest):
		path := strings.TrimPrefix(payload, notifybus.PrefixRequest)
		if path == "" {
			return s.Requests.Reload(ctx)
		}
		return s.Requests.InvalidateOne(ctx, path)
	case strings.HasPrefix(payload, notifybus.PrefixResponse):
		name := strings.TrimPrefix(payload, notifybus.PrefixResponse)
		if name == "" {
			return s.Responses.Reload(ctx)
		}
		return s.Responses.InvalidateOne(ctx, name)
	default:
		return nil
	}
}
