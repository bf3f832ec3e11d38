package app

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"predictwatch/clients/predictapi"
)

// amountScale converts base-unit amount strings to dollar units.
var amountScale = decimal.New(1, 18)

// Normalizer converts raw feed records into canonical trade events.
// The feed has shipped several field shapes over time; normalization
// degrades gracefully rather than rejecting a record outright. A record is
// only dropped when neither a market nor a wallet can be resolved.
type Normalizer struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewNormalizer(logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{logger: logger, now: time.Now}
}

// NormalizeBatch converts a batch of raw records. Records that fail hard
// are logged and skipped; the returned count reports how many were dropped.
func (n *Normalizer) NormalizeBatch(raw []predictapi.OrderMatch) ([]TradeEvent, int) {
	events := make([]TradeEvent, 0, len(raw))
	dropped := 0

	for i := range raw {
		ev, err := n.Normalize(raw[i])
		if err != nil {
			dropped++
			n.logger.Warn("dropping unnormalizable record",
				zap.String("txHash", raw[i].TransactionHash),
				zap.Error(err),
			)
			continue
		}
		events = append(events, ev)
	}

	return events, dropped
}

// Normalize converts one raw record.
func (n *Normalizer) Normalize(m predictapi.OrderMatch) (TradeEvent, error) {
	wallet := resolveParty(m.Taker)
	if wallet == "" {
		wallet = resolveParty(m.Maker)
	}

	marketID := m.TokenID
	if marketID == "" {
		marketID = m.MarketID
	}
	if marketID == "" {
		marketID = resolveMarketID(m.Market)
	}

	if marketID == "" && wallet == "" {
		return TradeEvent{}, fmt.Errorf("record has neither market nor wallet")
	}

	amount := resolveAmount(m.TakerAmount)
	if amount.IsZero() {
		amount = resolveAmount(m.MakerAmount)
	}

	executedAt := resolveTimestamp(m.ExecutedAt)
	if executedAt.IsZero() {
		executedAt = resolveTimestamp(m.Timestamp)
	}
	if executedAt.IsZero() {
		executedAt = n.now().UTC()
	}

	ev := TradeEvent{
		MarketID:   marketID,
		Wallet:     wallet,
		Side:       resolveSide(m.Side),
		Amount:     amount,
		Price:      resolvePrice(m.Price),
		ExecutedAt: executedAt,
	}
	ev.Identity = identity(m.TransactionHash, ev)

	return ev, nil
}

// identity derives the stable dedup key: the transaction hash when the feed
// provides one, otherwise a deterministic composite of the event fields so
// replays of the same record collapse to the same key.
func identity(txHash string, ev TradeEvent) string {
	if txHash != "" {
		return "tx:" + txHash
	}
	return fmt.Sprintf("fb:%s:%s:%s:%d",
		ev.Wallet, ev.MarketID, ev.Amount.String(), ev.ExecutedAt.Unix())
}

// resolveParty handles a party field that is either a bare address string
// or an object with signer/id/address.
func resolveParty(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var obj struct {
		Signer  string `json:"signer"`
		ID      string `json:"id"`
		Address string `json:"address"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	for _, v := range []string{obj.Signer, obj.ID, obj.Address} {
		if v != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func resolveMarketID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	return strings.TrimSpace(obj.ID)
}

// resolveSide handles numeric sides (0 = YES, anything else = NO), side
// names, and nested outcome objects.
func resolveSide(raw json.RawMessage) Side {
	if len(raw) == 0 {
		return SideUnknown
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		if num == 0 {
			return SideYes
		}
		return SideNo
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return sideFromName(s)
	}

	var obj struct {
		Name    string `json:"name"`
		Outcome struct {
			Name string `json:"name"`
		} `json:"outcome"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Name != "" {
			return sideFromName(obj.Name)
		}
		if obj.Outcome.Name != "" {
			return sideFromName(obj.Outcome.Name)
		}
	}

	return SideUnknown
}

func sideFromName(name string) Side {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "YES", "0":
		return SideYes
	case "NO", "1":
		return SideNo
	default:
		return SideUnknown
	}
}

// resolveAmount parses a base-unit integer string and scales it down to
// dollar units. Unparseable amounts degrade to zero.
func resolveAmount(raw string) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d.Div(amountScale)
}

func resolvePrice(raw json.RawMessage) decimal.NullDecimal {
	if len(raw) == 0 {
		return decimal.NullDecimal{}
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return decimal.NewNullDecimal(decimal.NewFromFloat(num))
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if d, err := decimal.NewFromString(strings.TrimSpace(s)); err == nil {
			return decimal.NewNullDecimal(d)
		}
	}

	return decimal.NullDecimal{}
}

// resolveTimestamp accepts unix seconds, unix milliseconds, numeric
// strings, or RFC3339.
func resolveTimestamp(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}

	var num int64
	if err := json.Unmarshal(raw, &num); err == nil {
		return unixToTime(num)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC()
		}
		var n int64
		if _, err := fmt.Sscanf(s, "%d", &n); err == nil {
			return unixToTime(n)
		}
	}

	return time.Time{}
}

func unixToTime(n int64) time.Time {
	if n <= 0 {
		return time.Time{}
	}
	// Millisecond timestamps are thirteen digits.
	if n > 1_000_000_000_000 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
