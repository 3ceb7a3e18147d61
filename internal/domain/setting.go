package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type SettingKey string

const (
	SettingPollingFrequency SettingKey = "polling_frequency"
	SettingNotification     SettingKey = "notification"
	SettingTheme            SettingKey = "theme"
	SettingItemsOrder       SettingKey = "items_order"
	SettingProxy            SettingKey = "proxy"
	SettingFetchOldItems    SettingKey = "fetch_old_items"
)

// MinPollingFrequency is the floor enforced on the polling interval.
const MinPollingFrequency = 30 * time.Second

var SettingKeys = []SettingKey{
	SettingPollingFrequency,
	SettingNotification,
	SettingTheme,
	SettingItemsOrder,
	SettingProxy,
	SettingFetchOldItems,
}

func ParseSettingKey(s string) (SettingKey, error) {
	for _, k := range SettingKeys {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown key %q", ErrInvalidSetting, s)
}

type Setting struct {
	Key   SettingKey `db:"key" json:"key"`
	Value string     `db:"value" json:"value"`
}

// ValidateSetting checks a value before it is written.
func ValidateSetting(key SettingKey, value string) error {
	switch key {
	case SettingPollingFrequency:
		freq, err := parseSeconds(value)
		if err != nil {
			return fmt.Errorf("%w: %s must be a number of seconds", ErrInvalidSetting, key)
		}
		if freq < MinPollingFrequency {
			return fmt.Errorf("%w: %s must be at least %d", ErrInvalidSetting, key, int(MinPollingFrequency.Seconds()))
		}
	case SettingNotification, SettingFetchOldItems:
		if _, err := parseFlag(value); err != nil {
			return fmt.Errorf("%w: %s must be a boolean", ErrInvalidSetting, key)
		}
	case SettingItemsOrder:
		if !ItemOrder(value).Valid() {
			return fmt.Errorf("%w: unknown items order %q", ErrInvalidSetting, value)
		}
	case SettingTheme, SettingProxy:
	default:
		return fmt.Errorf("%w: unknown key %q", ErrInvalidSetting, key)
	}
	return nil
}

// Settings is the typed view of the settings table.
type Settings struct {
	PollingFrequency time.Duration
	Notification     bool
	Theme            string
	ItemsOrder       ItemOrder
	Proxy            string
	FetchOldItems    bool
}

func DefaultSettings() Settings {
	return Settings{
		PollingFrequency: 300 * time.Second,
		Notification:     true,
		Theme:            "system",
		ItemsOrder:       OrderReceivedDateDesc,
		Proxy:            "",
		FetchOldItems:    true,
	}
}

// SettingsFrom builds typed settings from raw rows. Unparseable values
// fall back to their defaults.
func SettingsFrom(rows []Setting) Settings {
	s := DefaultSettings()
	for _, row := range rows {
		switch row.Key {
		case SettingPollingFrequency:
			if freq, err := parseSeconds(row.Value); err == nil {
				s.PollingFrequency = freq
			}
		case SettingNotification:
			if v, err := parseFlag(row.Value); err == nil {
				s.Notification = v
			}
		case SettingTheme:
			s.Theme = row.Value
		case SettingItemsOrder:
			if ItemOrder(row.Value).Valid() {
				s.ItemsOrder = ItemOrder(row.Value)
			}
		case SettingProxy:
			s.Proxy = strings.TrimSpace(row.Value)
		case SettingFetchOldItems:
			if v, err := parseFlag(row.Value); err == nil {
				s.FetchOldItems = v
			}
		}
	}
	if s.PollingFrequency < MinPollingFrequency {
		s.PollingFrequency = MinPollingFrequency
	}
	return s
}

// ProxyURL returns nil when no proxy is configured.
func (s Settings) ProxyURL() *string {
	if s.Proxy == "" {
		return nil
	}
	p := s.Proxy
	return &p
}

// maxSeconds is the largest number of seconds a time.Duration can hold.
const maxSeconds = math.MaxInt64 / int64(time.Second)

func parseSeconds(v string) (time.Duration, error) {
	secs, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, err
	}
	if secs > maxSeconds || secs < -maxSeconds {
		return 0, fmt.Errorf("%d seconds out of range", secs)
	}
	return time.Duration(secs) * time.Second, nil
}

func parseFlag(v string) (bool, error) {
	return strconv.ParseBool(strings.TrimSpace(v))
}
