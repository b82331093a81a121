// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

/*
normalize.go - Row Normalizer

Maps one raw result row, whose field names and nesting vary by level and
breakdown, into the canonical NormalizedRow. This is the only place in the
engine that inspects raw payload shape; everything downstream works on the
canonical type.

Parsing rules:
  - Numeric parsing is permissive: absent or non-numeric values become nil,
    not zero. A nil conversion count means "not measured"; a 0 means
    "measured, none occurred".
  - Action-list metrics (conversions, revenue) are extracted by a
    case-insensitive substring match on the action type, first match wins.
  - A row lacking its level-defining entity identifier is dropped; it cannot
    be placed in the fact key.
  - Breakdown values for fields with an enumerated domain bucket unknown
    values to "other". Free-form breakdown values pass through unchanged.
*/

//nolint:staticcheck // File documentation, not package doc
package sync

import (
	"strconv"
	"strings"
	"time"

	"github.com/ohjayaxel/adsync/internal/models"
	"github.com/ohjayaxel/adsync/internal/platform"
)

// conversionActionType selects the purchase metrics out of the platform's
// nested action lists.
const conversionActionType = "purchase"

// knownPublisherPlatforms is the enumerated domain for the
// publisher_platform breakdown. Values outside it bucket to "other".
var knownPublisherPlatforms = map[string]struct{}{
	"facebook":         {},
	"instagram":        {},
	"messenger":        {},
	"audience_network": {},
}

// enumeratedBreakdowns maps breakdown fields with a closed domain to that
// domain. Fields absent here are free-form and never bucketed.
var enumeratedBreakdowns = map[string]map[string]struct{}{
	"publisher_platform": knownPublisherPlatforms,
}

// NormalizeRow converts one raw row for the given task into the canonical
// shape. Returns nil (drop) when the row lacks its level-defining entity
// identifier or a parseable date.
func NormalizeRow(raw platform.RawRow, task models.Task) *models.NormalizedRow {
	dateStart, okStart := parseDate(raw["date_start"])
	if !okStart {
		return nil
	}
	dateStop, okStop := parseDate(raw["date_stop"])
	if !okStop {
		dateStop = dateStart
	}

	row := &models.NormalizedRow{
		DateStart:    dateStart,
		DateStop:     dateStop,
		AccountID:    stringField(raw, "account_id"),
		CampaignID:   stringPtrField(raw, "campaign_id"),
		CampaignName: stringPtrField(raw, "campaign_name"),
		AdSetID:      stringPtrField(raw, "adset_id"),
		AdID:         stringPtrField(raw, "ad_id"),
		AdName:       stringPtrField(raw, "ad_name"),
		Currency:     stringField(raw, "account_currency"),

		Spend:       floatField(raw, "spend"),
		Impressions: intField(raw, "impressions"),
		Clicks:      intField(raw, "clicks"),
		Conversions: actionValue(raw, "actions", conversionActionType),
		Revenue:     actionValue(raw, "action_values", conversionActionType),
	}

	if row.EntityID(task.Level) == "" {
		return nil
	}

	if len(task.BreakdownFields) > 0 {
		row.Breakdowns = make(map[string]string, len(task.BreakdownFields))
		for _, field := range task.BreakdownFields {
			row.Breakdowns[field] = breakdownValue(field, stringField(raw, field))
		}
	}

	return row
}

// breakdownValue applies "other"-bucketing to enumerated breakdown domains.
func breakdownValue(field, value string) string {
	domain, enumerated := enumeratedBreakdowns[field]
	if !enumerated {
		return value
	}
	if _, known := domain[strings.ToLower(value)]; known {
		return strings.ToLower(value)
	}
	return "other"
}

// parseDate accepts the platform's date string format.
func parseDate(v interface{}) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(models.DateFormat, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// stringField reads a field as a string, accepting raw numbers as well since
// the platform is inconsistent about quoting identifiers.
func stringField(raw platform.RawRow, key string) string {
	switch v := raw[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func stringPtrField(raw platform.RawRow, key string) *string {
	s := stringField(raw, key)
	if s == "" {
		return nil
	}
	return &s
}

// floatField parses a numeric field permissively: nil on absence or garbage.
func floatField(raw platform.RawRow, key string) *float64 {
	return parseFloat(raw[key])
}

func parseFloat(v interface{}) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case string:
		if n == "" {
			return nil
		}
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

// intField parses an integer field permissively: nil on absence or garbage.
func intField(raw platform.RawRow, key string) *int64 {
	f := parseFloat(raw[key])
	if f == nil {
		return nil
	}
	i := int64(*f)
	return &i
}

// actionValue extracts a metric from one of the platform's action lists
// (elements shaped {"action_type": ..., "value": ...}) by case-insensitive
// substring match on the action type. First match wins.
func actionValue(raw platform.RawRow, listKey, actionType string) *float64 {
	list, ok := raw[listKey].([]interface{})
	if !ok {
		return nil
	}

	needle := strings.ToLower(actionType)
	for _, item := range list {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		label, _ := entry["action_type"].(string)
		if !strings.Contains(strings.ToLower(label), needle) {
			continue
		}
		return parseFloat(entry["value"])
	}
	return nil
}
