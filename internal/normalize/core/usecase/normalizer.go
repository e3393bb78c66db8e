package usecase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/apd/v3"
	"github.com/tidwall/gjson"

	ingestdomain "logforge/internal/ingest/core/domain"
	"logforge/internal/normalize/core/domain"
	"logforge/internal/platform/money"
)

// Field aliases accepted in raw payloads, snake_case first.
var (
	eventTypeKeys = []string{"event_type", "eventType"}
	eventTimeKeys = []string{"event_time", "eventTime"}
	userIDKeys    = []string{"user_id", "userId"}
	sessionIDKeys = []string{"session_id", "sessionId"}
)

// Normalizer turns one raw log into a canonical event. It holds no state.
type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

func (n *Normalizer) Normalize(raw ingestdomain.RawLog) (domain.NormalizedEvent, error) {
	reject := func(msg string, err error) (domain.NormalizedEvent, error) {
		return domain.NormalizedEvent{}, &domain.NormalizeError{RawLogID: raw.ID, TenantID: raw.TenantID, Message: msg, Err: err}
	}

	if !gjson.Valid(raw.PayloadJSON) {
		return reject("payload is not valid JSON", nil)
	}
	doc := gjson.Parse(raw.PayloadJSON)
	if !doc.IsObject() {
		return reject("payload is not a JSON object", nil)
	}

	eventType, ok := scalarText(lookup(doc, eventTypeKeys))
	eventType = strings.TrimSpace(eventType)
	if !ok || eventType == "" {
		return reject("payload has no eventType", nil)
	}
	if utf8.RuneCountInString(eventType) > domain.MaxEventTypeLen {
		return reject(fmt.Sprintf("eventType longer than %d characters", domain.MaxEventTypeLen), nil)
	}

	eventTime, err := parseEventTime(lookup(doc, eventTimeKeys), raw.OccurredAt)
	if err != nil {
		return reject("eventTime is not a valid instant", err)
	}

	userID, err := optionalText(lookup(doc, userIDKeys), domain.MaxUserIDLen)
	if err != nil {
		return reject("userId is invalid", err)
	}
	sessionID, err := optionalText(lookup(doc, sessionIDKeys), domain.MaxSessionIDLen)
	if err != nil {
		return reject("sessionId is invalid", err)
	}

	amount, err := parseAmount(doc.Get("amount"))
	if err != nil {
		return reject("amount is not a valid decimal", err)
	}

	metadata, err := canonicalJSON(doc.Get("metadata"))
	if err != nil {
		return reject("metadata could not be serialized", err)
	}

	return domain.NormalizedEvent{
		RawLogID:     raw.ID,
		TenantID:     raw.TenantID,
		EventType:    eventType,
		EventTime:    eventTime.UTC(),
		UserID:       userID,
		SessionID:    sessionID,
		Amount:       amount,
		MetadataJSON: metadata,
	}, nil
}

func lookup(doc gjson.Result, keys []string) gjson.Result {
	for _, k := range keys {
		if r := doc.Get(gjson.Escape(k)); r.Exists() && r.Type != gjson.Null {
			return r
		}
	}
	return gjson.Result{}
}

// scalarText renders strings and numbers as text. Anything else is absent.
func scalarText(r gjson.Result) (string, bool) {
	switch r.Type {
	case gjson.String:
		return r.Str, true
	case gjson.Number:
		return r.Raw, true
	}
	return "", false
}

func optionalText(r gjson.Result, maxLen int) (*string, error) {
	if !r.Exists() {
		return nil, nil
	}
	s, ok := scalarText(r)
	if !ok {
		return nil, fmt.Errorf("expected a string, got %s", r.Type)
	}
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(s) > maxLen {
		return nil, fmt.Errorf("longer than %d characters", maxLen)
	}
	return &s, nil
}

// parseEventTime accepts an RFC 3339 string or epoch seconds. Absent falls
// back to the raw log's occurrence time.
func parseEventTime(r gjson.Result, fallback time.Time) (time.Time, error) {
	switch r.Type {
	case gjson.Null:
		return fallback, nil
	case gjson.String:
		t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(r.Str))
		if err != nil {
			return time.Time{}, err
		}
		return t, nil
	case gjson.Number:
		sec, frac := math.Modf(r.Float())
		return time.Unix(int64(sec), int64(math.Round(frac*1e9))), nil
	}
	return time.Time{}, fmt.Errorf("unsupported type %s", r.Type)
}

func parseAmount(r gjson.Result) (*apd.Decimal, error) {
	var text string
	switch r.Type {
	case gjson.Null:
		return nil, nil
	case gjson.Number:
		text = r.Raw
	case gjson.String:
		text = r.Str
	default:
		return nil, fmt.Errorf("unsupported type %s", r.Type)
	}
	d, err := money.Parse(text)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// canonicalJSON re-serializes any JSON value compactly with sorted object keys.
func canonicalJSON(r gjson.Result) (*string, error) {
	if r.Type == gjson.Null {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(r.Raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	s := strings.TrimSuffix(buf.String(), "\n")
	return &s, nil
}
