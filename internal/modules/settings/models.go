package settings

import (
	"fmt"
	"strconv"

	"github.com/aristath/rebalancer/internal/domain"
)

// Setting keys stored in config.db.
const (
	KeyAmountAvailable = "AMOUNT_LIMIT.AVAILABLE"
	KeyAmountDomestic  = "AMOUNT_LIMIT.DOMESTIC"
	KeyAmountOverseas  = "AMOUNT_LIMIT.OVERSEAS"
	KeyAccountTest     = "ACCOUNT.TEST"
)

// Default is one seeded setting.
type Default struct {
	Key         string
	Value       string
	Description string
}

// Defaults are inserted by Seed when missing.
var Defaults = []Default{
	{KeyAmountAvailable, formatFloat(domain.DefaultUsableFraction), "Fraction of account value eligible for rebalancing"},
	{KeyAmountDomestic, formatFloat(domain.DefaultDomesticFraction), "Fraction of usable value allocated to the domestic market"},
	{KeyAmountOverseas, formatFloat(domain.DefaultOverseasFraction), "Fraction of usable value allocated to overseas markets"},
	{KeyAccountTest, "true", "Trade against the test account"},
}

// DefaultsFor returns Defaults with the given startup values, so a first
// run persists what the environment configured.
func DefaultsFor(allocation domain.AllocationSettings, test bool) []Default {
	values := map[string]string{
		KeyAmountAvailable: formatFloat(allocation.Usable),
		KeyAmountDomestic:  formatFloat(allocation.Domestic),
		KeyAmountOverseas:  formatFloat(allocation.Overseas),
		KeyAccountTest:     strconv.FormatBool(test),
	}
	out := make([]Default, len(Defaults))
	for i, d := range Defaults {
		d.Value = values[d.Key]
		out[i] = d
	}
	return out
}

// SettingUpdate is the request body of PUT /api/settings/{key}.
type SettingUpdate struct {
	Value interface{} `json:"value"`
}

// String normalises the JSON value to its stored form.
func (u SettingUpdate) String() (string, error) {
	switch v := u.Value.(type) {
	case string:
		return v, nil
	case float64:
		return formatFloat(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("unsupported setting value type %T", u.Value)
	}
}

// AllocationFrom overlays the allocation keys present in values on base.
func AllocationFrom(base domain.AllocationSettings, values map[string]string) (domain.AllocationSettings, error) {
	out := base
	fields := []struct {
		key string
		dst *float64
	}{
		{KeyAmountAvailable, &out.Usable},
		{KeyAmountDomestic, &out.Domestic},
		{KeyAmountOverseas, &out.Overseas},
	}

	for _, f := range fields {
		raw, ok := values[f.key]
		if !ok || raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return base, &domain.ConfigurationError{Field: f.key, Reason: fmt.Sprintf("not a number: %q", raw)}
		}
		*f.dst = v
	}

	return out, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
