package blocks

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/mrlerner/daily-briefing/internal/config"
)

const (
	goldBaseURL          = "https://data-asg.goldprice.org/dbXRates"
	marketsClientTimeout = 5 * time.Second
	marketsMaxRespBytes  = 64 * 1024 // 64KB，行情接口响应很小
)

// MarketsFetcher 从免费行情接口拉贵金属报价（XAU/XAG），按配置的计价货币。
// 数据仅供参考，不做任何交易用途
type MarketsFetcher struct {
	baseURL string
	client  *http.Client
}

func NewMarketsFetcher() *MarketsFetcher {
	return &MarketsFetcher{
		baseURL: goldBaseURL,
		client:  &http.Client{Timeout: marketsClientTimeout},
	}
}

func (m *MarketsFetcher) Type() string {
	return "markets"
}

// 对应 dbXRates/<CUR> 的响应结构
type goldAPIResp struct {
	TSJ   int64 `json:"tsj"`
	Items []struct {
		Curr     string  `json:"curr"`
		XAUPrice float64 `json:"xauPrice"`
		XAGPrice float64 `json:"xagPrice"`
		PCXAU    float64 `json:"pcXau"`
		PCXAG    float64 `json:"pcXag"`
	} `json:"items"`
}

func (m *MarketsFetcher) Fetch(cfg config.BlockConfig) (*Payload, error) {
	currency := strings.ToUpper(cfg.Currency)
	if currency == "" {
		currency = "USD"
	}
	label := cfg.Label
	if label == "" {
		label = "Markets"
	}

	resp, err := m.client.Get(m.baseURL + "/" + currency)
	if err != nil {
		return nil, fmt.Errorf("markets %s: fetch: %w", currency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("markets %s: unexpected status %d", currency, resp.StatusCode)
	}

	var data goldAPIResp
	if err := json.NewDecoder(io.LimitReader(resp.Body, marketsMaxRespBytes)).Decode(&data); err != nil {
		return nil, fmt.Errorf("markets %s: decode: %w", currency, err)
	}
	if len(data.Items) == 0 {
		return nil, fmt.Errorf("markets %s: response has no quotes", currency)
	}

	quote := data.Items[0]
	asOf := time.Now()
	if data.TSJ != 0 {
		asOf = time.UnixMilli(data.TSJ)
	}

	payload := &Payload{
		Type:  "markets",
		Label: label,
		Data: map[string]any{
			"currency":      quote.Curr,
			"gold_price":    quote.XAUPrice,
			"gold_change":   quote.PCXAU,
			"silver_price":  quote.XAGPrice,
			"silver_change": quote.PCXAG,
			"as_of":         asOf.UTC().Format(time.RFC3339),
		},
		SummaryLine: fmt.Sprintf("Gold %.2f %s/oz (%+.2f%%), silver %.2f (%+.2f%%).",
			quote.XAUPrice, quote.Curr, quote.PCXAU, quote.XAGPrice, quote.PCXAG),
	}

	log.Printf("markets: gold %.2f %s/oz", quote.XAUPrice, quote.Curr)
	return payload, nil
}
